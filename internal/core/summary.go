package core

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	StatusRunning  RunStatus = "running"
	StatusClean    RunStatus = "clean"
	StatusDegraded RunStatus = "degraded"
	StatusFailed   RunStatus = "failed"
)

// RunSummary accumulates counts across a whole run.
// Counter fields use atomic operations so progress can be read while a run is active.
type RunSummary struct {
	RunID   string
	Profile string
	Window  TimeWindow

	fetched           atomic.Int64
	projectionSkipped atomic.Int64
	inserted          atomic.Int64
	loadSkipped       atomic.Int64
	failed            atomic.Int64
	pages             atomic.Int64
	batches           atomic.Int64
	degraded          atomic.Bool

	startedAt  time.Time
	finishedAt atomic.Int64 // unix nanos, 0 while running
	fatal      atomic.Pointer[string]
}

// NewRunSummary creates an empty summary for one run.
func NewRunSummary(runID, profile string, window TimeWindow) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		Profile:   profile,
		Window:    window,
		startedAt: time.Now(),
	}
}

// Fetched returns the number of documents received from the source.
func (s *RunSummary) Fetched() int64 { return s.fetched.Load() }

// ProjectionSkipped returns the number of documents dropped by decode or projection.
func (s *RunSummary) ProjectionSkipped() int64 { return s.projectionSkipped.Load() }

// Inserted returns the number of rows persisted.
func (s *RunSummary) Inserted() int64 { return s.inserted.Load() }

// LoadSkipped returns the number of rows the sink skipped as duplicates.
func (s *RunSummary) LoadSkipped() int64 { return s.loadSkipped.Load() }

// Failed returns the number of records in batches the sink rejected.
func (s *RunSummary) Failed() int64 { return s.failed.Load() }

// Pages returns the number of pages received.
func (s *RunSummary) Pages() int64 { return s.pages.Load() }

// Batches returns the number of batches submitted.
func (s *RunSummary) Batches() int64 { return s.batches.Load() }

// Degraded reports whether any batch failed.
func (s *RunSummary) Degraded() bool { return s.degraded.Load() }

// StartedAt returns when the run began.
func (s *RunSummary) StartedAt() time.Time { return s.startedAt }

// Duration returns the elapsed run time, frozen once the run finishes.
func (s *RunSummary) Duration() time.Duration {
	if end := s.finishedAt.Load(); end != 0 {
		return time.Unix(0, end).Sub(s.startedAt)
	}
	return time.Since(s.startedAt)
}

// Finished reports whether Finish has been called.
func (s *RunSummary) Finished() bool { return s.finishedAt.Load() != 0 }

// FatalError returns the fatal error text, if any.
func (s *RunSummary) FatalError() string {
	if p := s.fatal.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *RunSummary) addFetched(n int)           { s.fetched.Add(int64(n)) }
func (s *RunSummary) addProjectionSkipped(n int) { s.projectionSkipped.Add(int64(n)) }
func (s *RunSummary) addPage()                   { s.pages.Add(1) }

func (s *RunSummary) addBatch(r BatchResult) {
	s.batches.Add(1)
	s.inserted.Add(r.Inserted)
	s.loadSkipped.Add(r.Skipped)
	if r.Failed > 0 {
		s.failed.Add(r.Failed)
		s.degraded.Store(true)
	}
}

// Finish freezes the duration and records a fatal error if err is non-nil.
func (s *RunSummary) Finish(err error) {
	if err != nil {
		msg := err.Error()
		s.fatal.Store(&msg)
	}
	s.finishedAt.CompareAndSwap(0, time.Now().UnixNano())
}

// Status derives the run outcome from the counters.
func (s *RunSummary) Status() RunStatus {
	switch {
	case s.FatalError() != "":
		return StatusFailed
	case !s.Finished():
		return StatusRunning
	case s.Degraded():
		return StatusDegraded
	default:
		return StatusClean
	}
}

// ExitCode maps the status to a process exit code: 0 clean, 1 fatal, 2 degraded.
func (s *RunSummary) ExitCode() int {
	switch s.Status() {
	case StatusClean:
		return 0
	case StatusDegraded:
		return 2
	default:
		return 1
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s *RunSummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("fetched", s.Fetched()),
		slog.Int64("projection_skipped", s.ProjectionSkipped()),
		slog.Int64("inserted", s.Inserted()),
		slog.Int64("load_skipped", s.LoadSkipped()),
		slog.Int64("failed", s.Failed()),
		slog.Int64("pages", s.Pages()),
		slog.Int64("batches", s.Batches()),
		slog.String("status", string(s.Status())),
	)
}

// summaryJSON is the JSON representation of a RunSummary.
type summaryJSON struct {
	RunID             string    `json:"run_id"`
	Profile           string    `json:"profile"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	Status            RunStatus `json:"status"`
	Fetched           int64     `json:"fetched"`
	ProjectionSkipped int64     `json:"projection_skipped"`
	Inserted          int64     `json:"inserted"`
	LoadSkipped       int64     `json:"load_skipped"`
	Failed            int64     `json:"failed"`
	Pages             int64     `json:"pages"`
	Batches           int64     `json:"batches"`
	StartedAt         time.Time `json:"started_at"`
	DurationMs        int64     `json:"duration_ms"`
	Error             string    `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s *RunSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		RunID:             s.RunID,
		Profile:           s.Profile,
		WindowStart:       s.Window.Start,
		WindowEnd:         s.Window.End,
		Status:            s.Status(),
		Fetched:           s.Fetched(),
		ProjectionSkipped: s.ProjectionSkipped(),
		Inserted:          s.Inserted(),
		LoadSkipped:       s.LoadSkipped(),
		Failed:            s.Failed(),
		Pages:             s.Pages(),
		Batches:           s.Batches(),
		StartedAt:         s.startedAt,
		DurationMs:        s.Duration().Milliseconds(),
		Error:             s.FatalError(),
	})
}
