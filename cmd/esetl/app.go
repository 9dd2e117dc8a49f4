package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/season179/elastic-tools/internal/config"
	"github.com/season179/elastic-tools/internal/core"
	"github.com/season179/elastic-tools/internal/core/profiles"
	"github.com/season179/elastic-tools/internal/logging"
	"github.com/season179/elastic-tools/internal/search"
	"github.com/season179/elastic-tools/internal/sink"
)

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	source  *search.ScrollSource
	sink    core.RecordSink
	service *core.Service
}

// loadConfig reads configuration, sets up logging and registers any
// profiles from PIPELINE_PROFILES_FILE. It performs no network I/O, so
// callers can reject bad input before newApp connects anywhere.
func loadConfig(overrides ...config.Override) (*config.Config, error) {
	cfg, err := config.Load(overrides...)
	if err != nil {
		return nil, err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	n, err := profiles.LoadFile(cfg.Pipeline.ProfilesFile)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		slog.Info("profiles loaded from file", "path", cfg.Pipeline.ProfilesFile, "count", n)
	}
	return cfg, nil
}

// newApp builds the search client, the database pool, the sink and the service.
// Failures here are configuration or connection errors: fatal before any run.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	var err error
	a := &app{cfg: cfg}

	a.source, err = newSource(cfg.Elastic)
	if err != nil {
		return nil, err
	}

	// The pool backs the postgres sink and run history. History is kept
	// whenever a database is configured, whatever the output.
	if cfg.Database.URL != "" {
		a.pool, err = openPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
	}

	if a.sink, err = newSink(cfg.Pipeline, a.pool); err != nil {
		a.Close()
		return nil, err
	}

	var history *core.HistoryStore
	if a.pool != nil {
		history = core.NewHistoryStore(a.pool)
	}

	a.service = core.NewService(a.source, a.sink, history, serviceConfig(cfg))

	slog.Info("esetl ready",
		"output", cfg.Pipeline.Output,
		"index", cfg.Elastic.Index,
		"profiles", core.ProfileCount(),
		"history", history != nil,
	)
	return a, nil
}

// Close releases the sink and the pool.
func (a *app) Close() {
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			slog.Error("close sink", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func serviceConfig(cfg *config.Config) core.ServiceConfig {
	return core.ServiceConfig{
		Index:     cfg.Elastic.Index,
		PageSize:  cfg.Elastic.PageSize,
		KeepAlive: cfg.Elastic.KeepAlive,
		KeepEmpty: cfg.Pipeline.KeepEmpty,
		Pipeline: core.Options{
			BatchSize:      cfg.Pipeline.BatchSize,
			Workers:        cfg.Pipeline.Workers,
			DrainTimeout:   cfg.Pipeline.DrainTimeout,
			ReleaseTimeout: cfg.Pipeline.ReleaseTimeout,
			Logger:         slog.Default(),
		},
		MaxConcurrent: cfg.Run.MaxConcurrent,
		MaxWait:       cfg.Run.MaxWaitTime,
		RunTimeout:    cfg.Run.Timeout,
		Retention:     cfg.Run.Retention,
	}
}

func newSource(cfg config.ElasticConfig) (*search.ScrollSource, error) {
	var caCert []byte
	if cfg.CACert != "" {
		b, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, &core.ConfigError{Field: "ES_CA_CERT", Reason: err.Error()}
		}
		caCert = b
	}

	return search.NewScrollSource(search.Config{
		Addresses:      cfg.Addresses,
		Username:       cfg.Username,
		Password:       cfg.Password,
		APIKey:         cfg.APIKey,
		CloudID:        cfg.CloudID,
		CACert:         caCert,
		MaxRetries:     cfg.MaxRetries,
		TimestampField: cfg.TimestampField,
		SubjectField:   cfg.SubjectField,
		PayloadField:   cfg.PayloadField,
	})
}

func newSink(cfg config.PipelineConfig, pool *pgxpool.Pool) (core.RecordSink, error) {
	switch cfg.Output {
	case config.OutputPostgres:
		if pool == nil {
			return nil, &core.ConfigError{Field: "DATABASE_URL", Reason: "required for postgres output"}
		}
		return sink.NewPostgresSink(pool), nil
	case config.OutputCSV:
		s, err := sink.CreateCSVSink(cfg.CSVPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.OutputDiscard:
		return &sink.DiscardSink{}, nil
	default:
		return nil, &core.ConfigError{Field: "PIPELINE_OUTPUT", Reason: fmt.Sprintf("unknown output %q", cfg.Output)}
	}
}

// openPool parses, configures and verifies a connection pool.
func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, &core.ConfigError{Field: "DATABASE_URL", Reason: "cannot parse connection string"}
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
