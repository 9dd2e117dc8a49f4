package core

import "context"

type contextKey string

const (
	ctxKeyTrigger   contextKey = "run_trigger"
	ctxKeyRequester contextKey = "run_requester"
)

// Run triggers recorded in history.
const (
	TriggerCLI      = "cli"
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
)

// ContextWithTrigger records what started a run.
func ContextWithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, trigger)
}

// ContextWithRequester records who asked for a run, e.g. the client IP of an API call.
func ContextWithRequester(ctx context.Context, requester string) context.Context {
	return context.WithValue(ctx, ctxKeyRequester, requester)
}

// TriggerFromContext returns the run trigger, defaulting to TriggerCLI.
func TriggerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTrigger).(string); ok && v != "" {
		return v
	}
	return TriggerCLI
}

// RequesterFromContext returns the requester or "".
func RequesterFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequester).(string); ok {
		return v
	}
	return ""
}
