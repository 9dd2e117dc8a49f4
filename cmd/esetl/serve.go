package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/season179/elastic-tools/internal/core"
	"github.com/season179/elastic-tools/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ops HTTP server and the optional daily scheduler",
	Long: `Serve exposes the run API, a status page, /healthz and /metrics.

With SCHEDULE_ENABLED=true the previous calendar day (in
SCHEDULE_TIMEZONE) is loaded for SCHEDULE_PROFILE on every
SCHEDULE_INTERVAL until it completes cleanly.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	// A bad schedule stops startup instead of failing on every tick.
	var schedule core.ScheduleConfig
	if cfg.Schedule.Enabled {
		if _, err := core.Resolve(cfg.Schedule.Profile); err != nil {
			return &exitError{code: 1, err: err}
		}
		loc, err := cfg.Schedule.Location()
		if err != nil {
			return &exitError{code: 1, err: err}
		}
		schedule = core.ScheduleConfig{
			Profile:  cfg.Schedule.Profile,
			Interval: cfg.Schedule.Interval,
			Location: loc,
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	defer a.Close()

	// Background jobs stop with the signal context.
	if cfg.Schedule.Enabled {
		go a.service.StartScheduler(ctx, schedule)
	}

	server := web.NewServer(a.service, a.source, cfg.Server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.Addr())
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return &exitError{code: 1, err: err}
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	// Active runs are cancelled; each still releases its cursor and
	// flushes its buffered batch before the slot is freed.
	if status := a.service.LimiterStatus(); status.Active > 0 {
		slog.Info("cancelling active runs", "active", status.Active)
		a.service.CancelAll()
		if err := a.service.WaitForRuns(shutdownCtx); err != nil {
			slog.Warn("runs did not finish in time", "error", err)
		} else {
			slog.Info("all runs finished")
		}
	}

	slog.Info("server stopped")
	return nil
}
