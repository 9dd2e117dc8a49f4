package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "unknown profile",
			err:         &ConfigError{Field: "profile", Reason: `unknown profile "nope" (known: [customer])`},
			wantCode:    "CFG001",
			wantMessage: "Extraction profile is not registered",
		},
		{
			name:        "unparseable window bound",
			err:         &ConfigError{Field: "start", Reason: `invalid date: "yesterday"`},
			wantCode:    "CFG002",
			wantMessage: "Time window bound could not be parsed",
		},
		{
			name:        "empty window",
			err:         TimeWindow{Start: mustTime(t, "2025-01-17T00:00:00Z"), End: mustTime(t, "2025-01-15T00:00:00Z")}.Validate(),
			wantCode:    "CFG003",
			wantMessage: "Time window is empty",
		},
		{
			name:        "missing index",
			err:         &FetchError{Op: "open", Page: 1, Err: errors.New("[404 Not Found] index_not_found_exception")},
			wantCode:    "ES002",
			wantMessage: "Search index does not exist",
		},
		{
			name:        "expired scroll",
			err:         &FetchError{Op: "next", Page: 3, Err: errors.New("search_context_missing_exception: No search context found")},
			wantCode:    "ES004",
			wantMessage: "Scroll cursor expired between pages",
		},
		{
			name:        "backend unreachable wins over connection refused",
			err:         &FetchError{Op: "next", Page: 2, Err: errors.New("dial tcp 10.0.0.1:9200: connection refused")},
			wantCode:    "ES005",
			wantMessage: "Search backend request failed mid-run",
		},
		{
			name:        "limiter full",
			err:         ErrTooManyRuns,
			wantCode:    "RUN001",
			wantMessage: "System is busy with other runs",
		},
		{
			name:        "run not found",
			err:         fmt.Errorf("%w: abc", ErrRunNotFound),
			wantCode:    "RUN002",
			wantMessage: "Run not found",
		},
		{
			name:        "cancelled",
			err:         context.Canceled,
			wantCode:    "RUN003",
			wantMessage: "Run was cancelled",
		},
		{
			name:        "database missing table",
			err:         errors.New(`ERROR: relation "customer_logs" does not exist (SQLSTATE 42P01)`),
			wantCode:    "DB003",
			wantMessage: "Target table does not exist",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("CONNECTION REFUSED"),
			wantCode:    "DB001",
			wantMessage: "Unable to connect to database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyRuns)

	expected := "System is busy with other runs (Code: RUN001). Please wait for a run to finish and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "known error is user facing", err: ErrRunNotFound, want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := errors.New("dial tcp: connection refused")
		userErr := NewUserError(techErr)

		if userErr.Error() != "Unable to connect to database" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, techErr) {
			t.Error("Unwrap() should return original error")
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{&ConfigError{Field: "x", Reason: "y"}, KindConfig},
		{fmt.Errorf("wrapped: %w", &FetchError{Op: "open", Err: errors.New("boom")}), KindFetch},
		{&DecodeFailure{SubjectID: "s", Err: errors.New("bad")}, KindDecode},
		{&LoadError{Table: "t", Size: 1, Err: errors.New("down")}, KindLoad},
		{errors.New("other"), KindUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
