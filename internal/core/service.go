package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned for unknown or expired run ids.
var ErrRunNotFound = errors.New("run not found")

// ErrNoHistory is returned when run history is requested without a database.
var ErrNoHistory = errors.New("run history is not configured")

// DefaultRetention is how long finished runs stay queryable in memory.
const DefaultRetention = time.Hour

// historyTimeout bounds the etl_runs write after a run.
const historyTimeout = 10 * time.Second

// ServiceConfig holds the run defaults applied to every request.
type ServiceConfig struct {
	Index         string
	PageSize      int
	KeepAlive     time.Duration
	KeepEmpty     bool
	Pipeline      Options
	MaxConcurrent int
	MaxWait       time.Duration
	RunTimeout    time.Duration
	Retention     time.Duration
}

// RunRequest describes one run.
type RunRequest struct {
	Profile string            `json:"profile"`
	Window  TimeWindow        `json:"-"`
	Index   string            `json:"index,omitempty"`
	Match   map[string]string `json:"match,omitempty"`
	Filters []json.RawMessage `json:"filters,omitempty"`
}

// Service runs pipelines on behalf of the CLI, the HTTP API and the scheduler.
type Service struct {
	src     DocumentSource
	sink    RecordSink
	history *HistoryStore
	limiter *RunLimiter
	cfg     ServiceConfig

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	ID      string
	Request RunRequest
	Summary *RunSummary
	Cancel  context.CancelFunc
	Err     error
	Done    chan struct{}
}

// NewService creates a Service. history may be nil to disable etl_runs writes.
func NewService(src DocumentSource, sink RecordSink, history *HistoryStore, cfg ServiceConfig) *Service {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Service{
		src:     src,
		sink:    sink,
		history: history,
		limiter: NewRunLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:     cfg,
		runs:    make(map[string]*activeRun),
	}
}

// Profiles returns all registered extraction profiles.
func (s *Service) Profiles() []ExtractionProfile {
	return All()
}

// prepare resolves everything a run needs without touching the network.
// Unknown profiles and bad windows fail here.
func (s *Service) prepare(req RunRequest) (*Pipeline, SearchQuery, error) {
	profile, err := Resolve(req.Profile)
	if err != nil {
		return nil, SearchQuery{}, err
	}
	if s.cfg.KeepEmpty {
		profile = profile.WithEmptyPolicy(EmptyKeep)
	}
	if err := req.Window.Validate(); err != nil {
		return nil, SearchQuery{}, err
	}

	index := req.Index
	if index == "" {
		index = s.cfg.Index
	}

	p, err := NewPipeline(s.src, s.sink, profile, s.cfg.Pipeline)
	if err != nil {
		return nil, SearchQuery{}, err
	}

	return p, SearchQuery{
		Index:     index,
		Window:    req.Window,
		Match:     req.Match,
		Filters:   req.Filters,
		PageSize:  s.cfg.PageSize,
		KeepAlive: s.cfg.KeepAlive,
	}, nil
}

// Execute runs req synchronously and returns its summary.
// The summary is nil only when the request was rejected before starting.
func (s *Service) Execute(ctx context.Context, req RunRequest) (*RunSummary, error) {
	p, q, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	summary := NewRunSummary(uuid.NewString(), p.Profile().Name, q.Window)
	return summary, s.execute(ctx, p, q, summary)
}

// StartRun begins an asynchronous run and returns its id immediately.
// Use GetRunProgress or GetRunResult to follow it.
func (s *Service) StartRun(ctx context.Context, req RunRequest) (string, error) {
	p, q, err := s.prepare(req)
	if err != nil {
		return "", err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runID := uuid.New().String()

	// Detached from the request but keeps its trigger and requester values.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	run := &activeRun{
		ID:      runID,
		Request: req,
		Summary: NewRunSummary(runID, p.Profile().Name, q.Window),
		Cancel:  cancel,
		Done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	go s.processRun(runCtx, run, p, q)

	return runID, nil
}

func (s *Service) processRun(ctx context.Context, run *activeRun, p *Pipeline, q SearchQuery) {
	defer s.cleanup(run.ID, s.cfg.Retention)
	defer close(run.Done)
	defer s.limiter.Release()
	defer run.Cancel()
	defer func() {
		if r := recover(); r != nil {
			run.Err = fmt.Errorf("run panicked: %v", r)
			run.Summary.Finish(run.Err)
			slog.Error("run panicked", "run_id", run.ID, "panic", r)
		}
	}()

	run.Err = s.execute(ctx, p, q, run.Summary)
}

// execute applies the run timeout, runs the pipeline and records history.
func (s *Service) execute(ctx context.Context, p *Pipeline, q SearchQuery, summary *RunSummary) error {
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	err := p.Execute(ctx, q, summary)
	s.recordHistory(ctx, summary)
	return err
}

func (s *Service) recordHistory(ctx context.Context, summary *RunSummary) {
	if s.history == nil {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()

	if err := s.history.Record(hctx, summary); err != nil {
		slog.Warn("failed to record run history", "run_id", summary.RunID, "error", err)
	}
}

func (s *Service) lookup(runID string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// GetRunProgress returns the live summary without blocking.
func (s *Service) GetRunProgress(runID string) (*RunSummary, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}
	return run.Summary, nil
}

// GetRunResult blocks until the run finishes or ctx is done and returns
// the summary with the run's fatal error, if any.
func (s *Service) GetRunResult(ctx context.Context, runID string) (*RunSummary, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}

	select {
	case <-run.Done:
		return run.Summary, run.Err
	case <-ctx.Done():
		return run.Summary, ctx.Err()
	}
}

// CancelRun cancels an in-progress run. The cursor is still released and
// the buffered batch flushed.
func (s *Service) CancelRun(runID string) error {
	run, err := s.lookup(runID)
	if err != nil {
		return err
	}
	run.Cancel()
	return nil
}

// ListRuns returns the summaries of tracked runs, newest first.
func (s *Service) ListRuns() []*RunSummary {
	s.mu.RLock()
	out := make([]*RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run.Summary)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt().After(out[j].StartedAt())
	})
	return out
}

// RecentRuns reads persisted run history.
func (s *Service) RecentRuns(ctx context.Context, profile string, limit int) ([]RunRecord, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	return s.history.Recent(ctx, profile, limit)
}

// LimiterStatus returns the current run slot usage.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until all active runs complete or ctx is done.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// CancelAll cancels every tracked run. Used on shutdown.
func (s *Service) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, run := range s.runs {
		run.Cancel()
	}
}

// cleanup removes the run from tracking after a delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}
