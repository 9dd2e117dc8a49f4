package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures by how the run reacts to them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindConfig is fatal before any I/O.
	KindConfig
	// KindFetch is fatal to the run after the cursor is released.
	KindFetch
	// KindDecode drops a single document.
	KindDecode
	// KindLoad fails one batch and degrades the run.
	KindLoad
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindFetch:
		return "fetch"
	case KindDecode:
		return "decode"
	case KindLoad:
		return "load"
	default:
		return "unknown"
	}
}

// ErrCursorConsumed is returned when a CursorIterator is iterated twice.
var ErrCursorConsumed = errors.New("cursor iterator already consumed")

// ConfigError reports a missing or invalid setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// FetchError wraps a document source failure.
type FetchError struct {
	Op   string // "open" or "next"
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (page %d): %v", e.Op, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeFailure carries the identity of a document whose payload could not be decoded.
type DecodeFailure struct {
	SubjectID string
	Timestamp time.Time
	Err       error
}

func (e *DecodeFailure) Error() string {
	return fmt.Sprintf("decode payload (subject %q at %s): %v",
		e.SubjectID, e.Timestamp.Format(time.RFC3339), e.Err)
}

func (e *DecodeFailure) Unwrap() error { return e.Err }

// LoadError wraps a sink failure for a single batch.
type LoadError struct {
	Table string
	Size  int
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load batch of %d into %s: %v", e.Size, e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Classify returns the ErrorKind of err.
func Classify(err error) ErrorKind {
	var (
		cfg    *ConfigError
		fetch  *FetchError
		decode *DecodeFailure
		load   *LoadError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &cfg):
		return KindConfig
	case errors.As(err, &fetch):
		return KindFetch
	case errors.As(err, &decode):
		return KindDecode
	case errors.As(err, &load):
		return KindLoad
	default:
		return KindUnknown
	}
}
