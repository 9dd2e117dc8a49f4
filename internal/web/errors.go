package web

// errors.go provides unified error response handling for the web layer.
//
// Technical errors are logged with the request ID; clients receive the
// user message, suggested action and support code from core.MapError.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/season179/elastic-tools/internal/core"
	"github.com/season179/elastic-tools/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

func newErrorResponse(err error) *ErrorResponse {
	msg := core.MapError(err)
	return &ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

// respondError logs err and writes a user-friendly response whose status
// is derived from the error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := statusFor(err)
	resp := newErrorResponse(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", resp.Code,
	)

	if wantsJSON(r) {
		writeJSON(w, statusCode, resp)
		return
	}
	http.Error(w, resp.Message+" ("+resp.Code+")", statusCode)
}

// statusFor maps an error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrRunNotFound), errors.Is(err, core.ErrNoHistory):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch core.Classify(err) {
	case core.KindConfig:
		return http.StatusBadRequest
	case core.KindFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// badRequest wraps a request decoding problem as a configuration error.
func badRequest(field, reason string) error {
	return &core.ConfigError{Field: field, Reason: reason}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("body", err.Error())
	}
	return nil
}

// maxBodyBytes bounds API request bodies.
const maxBodyBytes = 1 << 20
