package core

import (
	"context"
	"log/slog"
	"time"
)

// DefaultBatchSize is the number of records submitted per sink call.
const DefaultBatchSize = 1000

// BatchResult is the outcome of one sink submission.
type BatchResult struct {
	Inserted int64
	Skipped  int64 // duplicates
	Failed   int64 // whole batch on a sink error
	Err      error
}

// BatchLoader buffers projected records and submits them to a sink in
// fixed-size batches. It is not safe for concurrent use; the pipeline
// funnels every record through a single goroutine.
type BatchLoader struct {
	sink    RecordSink
	target  Target
	size    int
	summary *RunSummary
	logger  *slog.Logger

	buf []ProjectedRecord
}

// NewBatchLoader creates a loader. A non-positive size falls back to DefaultBatchSize.
func NewBatchLoader(sink RecordSink, target Target, size int, summary *RunSummary, logger *slog.Logger) *BatchLoader {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchLoader{
		sink:    sink,
		target:  target,
		size:    size,
		summary: summary,
		logger:  logger,
		buf:     make([]ProjectedRecord, 0, size),
	}
}

// BatchSize returns the configured batch size.
func (l *BatchLoader) BatchSize() int { return l.size }

// Buffered returns the number of records waiting for the next submission.
func (l *BatchLoader) Buffered() int { return len(l.buf) }

// Add appends rec and submits the buffer once it reaches the batch size.
func (l *BatchLoader) Add(ctx context.Context, rec ProjectedRecord) {
	l.buf = append(l.buf, rec)
	if len(l.buf) >= l.size {
		l.submitBuffer(ctx)
	}
}

// Flush submits any trailing partial batch.
func (l *BatchLoader) Flush(ctx context.Context) {
	if len(l.buf) > 0 {
		l.submitBuffer(ctx)
	}
}

func (l *BatchLoader) submitBuffer(ctx context.Context) {
	l.Submit(ctx, l.buf)
	l.buf = make([]ProjectedRecord, 0, l.size)
}

// Submit writes batch to the sink and records the outcome in the summary.
// A sink error fails the whole batch and marks the run degraded; there is no retry.
func (l *BatchLoader) Submit(ctx context.Context, batch []ProjectedRecord) BatchResult {
	if len(batch) == 0 {
		return BatchResult{}
	}

	start := time.Now()
	inserted, err := l.sink.InsertMany(ctx, l.target, batch)
	batchDurationHistogram.WithLabelValues(l.target.Table).Observe(time.Since(start).Seconds())

	var res BatchResult
	if err != nil {
		res = BatchResult{Failed: int64(len(batch)), Err: &LoadError{Table: l.target.Table, Size: len(batch), Err: err}}
		rowsFailedTotal.WithLabelValues(l.target.Table).Add(float64(len(batch)))
		l.logger.Error("batch failed",
			"table", l.target.Table,
			"size", len(batch),
			"error", err,
		)
	} else {
		if inserted > int64(len(batch)) {
			inserted = int64(len(batch))
		}
		res = BatchResult{Inserted: inserted, Skipped: int64(len(batch)) - inserted}
		rowsInsertedTotal.WithLabelValues(l.target.Table).Add(float64(res.Inserted))
		rowsDuplicateTotal.WithLabelValues(l.target.Table).Add(float64(res.Skipped))
		l.logger.Debug("batch loaded",
			"table", l.target.Table,
			"inserted", res.Inserted,
			"skipped", res.Skipped,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if l.summary != nil {
		l.summary.addBatch(res)
	}
	return res
}
