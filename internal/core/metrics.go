package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Extraction metrics
	documentsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esetl_documents_fetched_total",
		Help: "Total number of documents received from the search backend",
	})

	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esetl_pages_fetched_total",
		Help: "Total number of scroll pages received",
	})

	fetchDurationHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "esetl_fetch_duration_seconds",
		Help:    "Time taken to fetch one scroll page",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	cursorReleasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esetl_cursor_releases_total",
		Help: "Scroll cursor release attempts by result",
	}, []string{"result"})

	// Projection metrics
	recordsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esetl_records_skipped_total",
		Help: "Documents dropped before loading, by reason",
	}, []string{"profile", "reason"})

	// Load metrics
	rowsInsertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esetl_rows_inserted_total",
		Help: "Rows persisted by the sink",
	}, []string{"table"})

	rowsDuplicateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esetl_rows_duplicate_total",
		Help: "Rows skipped by the sink as duplicates",
	}, []string{"table"})

	rowsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esetl_rows_failed_total",
		Help: "Rows in batches the sink rejected",
	}, []string{"table"})

	batchDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "esetl_batch_duration_seconds",
		Help:    "Time taken to submit one batch to the sink",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"table"})

	// Run metrics
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esetl_runs_total",
		Help: "Completed pipeline runs by profile and status",
	}, []string{"profile", "status"})

	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "esetl_active_runs",
		Help: "Number of pipeline runs in progress",
	})

	runDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "esetl_run_duration_seconds",
		Help:    "Wall time of a pipeline run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"profile"})
)
