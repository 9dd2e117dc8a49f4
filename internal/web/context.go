package web

import (
	"context"
	"net/http"

	"github.com/season179/elastic-tools/internal/core"
)

// WithRequestMetadata marks runs started by r as API runs and records the
// client address as the requester in run history.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithTrigger(ctx, core.TriggerAPI)
	return core.ContextWithRequester(ctx, r.RemoteAddr) // already processed by TrustedRealIP
}
