// Package core provides the extract-transform-load logic for log documents.
//
// # Error Codes Reference
//
// This file defines operator-facing error messages with codes for support
// reference. The CLI prints them next to the run summary and the HTTP API
// returns them in error bodies.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Unknown profile: the requested extraction profile is not registered
//	         Patterns: "unknown profile"
//	CFG002 - Invalid window: a window bound could not be parsed
//	         Patterns: "invalid date"
//	CFG003 - Empty window: end is not after start
//	         Patterns: "must be after start"
//	CFG004 - Invalid profile file
//	         Patterns: "profiles file"
//	CFG005 - Other configuration error
//	         Patterns: "configuration error", "validation failed"
//
// # Search Backend Errors (ES001-ES099)
//
//	ES001 - Query rejected by the backend
//	        Patterns: "search_phase_execution_exception", "parsing_exception"
//	ES002 - Index does not exist
//	        Patterns: "index_not_found_exception"
//	ES003 - Authentication failed
//	        Patterns: "security_exception"
//	ES004 - Scroll expired between fetches
//	        Patterns: "search_context_missing_exception"
//	ES005 - Backend unreachable or other fetch failure
//	        Patterns: "fetch open", "fetch next"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Too many runs in progress
//	         Patterns: "too many concurrent runs"
//	RUN002 - Run not found
//	         Patterns: "run not found"
//	RUN003 - Run cancelled
//	         Patterns: "context canceled"
//	RUN004 - Run timed out
//	         Patterns: "context deadline exceeded"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused
//	        Patterns: "connection refused"
//	DB002 - Authentication failed
//	        Patterns: "password authentication failed"
//	DB003 - Target table missing
//	        Patterns: "does not exist"
//	DB004 - Timeout
//	        Patterns: "timeout"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the logs for the
// original technical error.
//
// # Pattern Matching
//
// Patterns are matched case-insensitively using strings.Contains. The first
// matching pattern wins, so more specific patterns come before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides operator-facing error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Configuration Errors (CFG001-CFG005)
	// =========================================================================
	{
		pattern: "unknown profile",
		msg: UserMessage{
			Message: "Extraction profile is not registered",
			Action:  "Run `esetl profiles` to list the available profiles",
			Code:    "CFG001",
		},
	},
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Time window bound could not be parsed",
			Action:  "Use YYYY-MM-DD or an RFC3339 timestamp",
			Code:    "CFG002",
		},
	},
	{
		pattern: "must be after start",
		msg: UserMessage{
			Message: "Time window is empty",
			Action:  "The end bound is exclusive and must be later than the start",
			Code:    "CFG003",
		},
	},
	{
		pattern: "profiles file",
		msg: UserMessage{
			Message: "Profiles file could not be loaded",
			Action:  "Check PIPELINE_PROFILES_FILE and the YAML syntax",
			Code:    "CFG004",
		},
	},
	{
		pattern: "configuration error",
		msg: UserMessage{
			Message: "Invalid configuration",
			Action:  "Review the reported setting and restart",
			Code:    "CFG005",
		},
	},
	{
		pattern: "validation failed",
		msg: UserMessage{
			Message: "Invalid configuration",
			Action:  "Review the reported settings and restart",
			Code:    "CFG005",
		},
	},

	// =========================================================================
	// Search Backend Errors (ES001-ES005)
	// =========================================================================
	{
		pattern: "search_phase_execution_exception",
		msg: UserMessage{
			Message: "Search query was rejected",
			Action:  "Check the --match and --filter criteria",
			Code:    "ES001",
		},
	},
	{
		pattern: "parsing_exception",
		msg: UserMessage{
			Message: "Search query was rejected",
			Action:  "Check the --match and --filter criteria",
			Code:    "ES001",
		},
	},
	{
		pattern: "index_not_found_exception",
		msg: UserMessage{
			Message: "Search index does not exist",
			Action:  "Check ES_INDEX or --index",
			Code:    "ES002",
		},
	},
	{
		pattern: "security_exception",
		msg: UserMessage{
			Message: "Search backend rejected the credentials",
			Action:  "Check ES_USERNAME/ES_PASSWORD or ES_API_KEY",
			Code:    "ES003",
		},
	},
	{
		pattern: "search_context_missing_exception",
		msg: UserMessage{
			Message: "Scroll cursor expired between pages",
			Action:  "Increase ES_SCROLL_KEEPALIVE and re-run the same window",
			Code:    "ES004",
		},
	},
	{
		pattern: "fetch open",
		msg: UserMessage{
			Message: "Search backend request failed",
			Action:  "Check ES_ADDRESSES and re-run; the load is idempotent",
			Code:    "ES005",
		},
	},
	{
		pattern: "fetch next",
		msg: UserMessage{
			Message: "Search backend request failed mid-run",
			Action:  "Re-run the same window; already loaded rows are skipped",
			Code:    "ES005",
		},
	},

	// =========================================================================
	// Run Errors (RUN001-RUN004)
	// =========================================================================
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "System is busy with other runs",
			Action:  "Please wait for a run to finish and try again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Run not found",
			Action:  "The run may have expired from memory; check etl_runs",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Run was cancelled",
			Action:  "Re-run the same window when ready",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Run timed out",
			Action:  "Split the window or raise RUN_TIMEOUT",
			Code:    "RUN004",
		},
	},

	// =========================================================================
	// Database Errors (DB001-DB004)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "password authentication failed",
		msg: UserMessage{
			Message: "Database rejected the credentials",
			Action:  "Check DATABASE_URL",
			Code:    "DB002",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "Target table does not exist",
			Action:  "Apply sql/schema.sql to the target database",
			Code:    "DB003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB004",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the technical error",
	Code:    "ERR000",
}

// MapError converts a technical error to an operator-facing message.
// It returns the first matching pattern, or ERR000.
//
// Example:
//
//	msg := MapError(&ConfigError{Field: "profile", Reason: `unknown profile "x"`})
//	// msg.Code == "CFG001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern.
// Returns false for nil and for the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its operator-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // Message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
