package core

// scheduler.go runs a profile periodically over the previous calendar day.
//
// Each tick loads yesterday's window in the configured timezone. A window
// that already completed cleanly is not loaded again; a degraded or failed
// window is retried on the next tick, which is safe because inserts skip
// duplicates.

import (
	"context"
	"log/slog"
	"time"
)

// ScheduleConfig holds configuration for the run scheduler.
type ScheduleConfig struct {
	Profile  string
	Interval time.Duration  // how often to check (default: 1h)
	Location *time.Location // timezone that defines "yesterday" (default: UTC)
	Match    map[string]string
}

// DefaultScheduleInterval is used when ScheduleConfig.Interval is zero.
const DefaultScheduleInterval = time.Hour

// StartScheduler loads the previous day for cfg.Profile immediately and
// then on every Interval. It stops when ctx is cancelled.
func (s *Service) StartScheduler(ctx context.Context, cfg ScheduleConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultScheduleInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	slog.Info("run scheduler started",
		"profile", cfg.Profile,
		"interval", cfg.Interval.String(),
		"timezone", cfg.Location.String(),
	)

	ctx = ContextWithTrigger(ctx, TriggerSchedule)
	var lastClean TimeWindow

	tick := func() {
		window := PreviousDay(time.Now(), cfg.Location)
		if window.Start.Equal(lastClean.Start) && window.End.Equal(lastClean.End) {
			slog.Debug("scheduled window already loaded", "window", window.String())
			return
		}
		if s.loadedClean(ctx, cfg.Profile, window) {
			slog.Info("scheduled window already loaded by an earlier run", "window", window.String())
			lastClean = window
			return
		}
		if s.runScheduled(ctx, cfg, window) {
			lastClean = window
		}
	}

	tick()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("run scheduler stopped")
			return
		case <-ticker.C:
			tick()
		}
	}
}

// loadedClean consults run history, so a restart does not reload a window.
// Without history, or when the lookup fails, the window is run again.
func (s *Service) loadedClean(ctx context.Context, profile string, w TimeWindow) bool {
	if s.history == nil {
		return false
	}
	ok, err := s.history.LoadedClean(ctx, profile, w)
	if err != nil {
		slog.Warn("run history lookup failed", "profile", profile, "window", w.String(), "error", err)
		return false
	}
	return ok
}

// runScheduled performs one scheduled run and reports whether it was clean.
func (s *Service) runScheduled(ctx context.Context, cfg ScheduleConfig, window TimeWindow) bool {
	start := time.Now()

	summary, err := s.Execute(ctx, RunRequest{
		Profile: cfg.Profile,
		Window:  window,
		Match:   cfg.Match,
	})
	if err != nil {
		slog.Error("scheduled run failed",
			"profile", cfg.Profile,
			"window", window.String(),
			"error", err,
			"code", MapError(err).Code,
		)
		return false
	}

	slog.Info("scheduled run completed",
		"profile", cfg.Profile,
		"window", window.String(),
		"summary", summary,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return summary.Status() == StatusClean
}
