package core

// pipeline.go drives one run: a single sequential loop over scroll pages.
// Documents within a page are projected by a bounded errgroup and merged
// back in page order; only this loop appends to the load buffer.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the projection parallelism within one page.
const DefaultWorkers = 4

// DefaultDrainTimeout bounds the final flush after a cancellation.
const DefaultDrainTimeout = 30 * time.Second

// Options tunes a Pipeline. Zero values use the package defaults.
type Options struct {
	BatchSize      int
	Workers        int
	DrainTimeout   time.Duration
	ReleaseTimeout time.Duration
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.ReleaseTimeout <= 0 {
		o.ReleaseTimeout = DefaultReleaseTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Pipeline moves documents from a DocumentSource to a RecordSink using one profile.
type Pipeline struct {
	src       DocumentSource
	sink      RecordSink
	projector *Projector
	opts      Options
}

// NewPipeline validates profile and builds a pipeline. The caller owns sink
// and must close it.
func NewPipeline(src DocumentSource, sink RecordSink, profile ExtractionProfile, opts Options) (*Pipeline, error) {
	if src == nil {
		return nil, &ConfigError{Field: "source", Reason: "document source is required"}
	}
	if sink == nil {
		return nil, &ConfigError{Field: "sink", Reason: "record sink is required"}
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	projector, err := NewProjector(profile)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		src:       src,
		sink:      sink,
		projector: projector,
		opts:      opts.withDefaults(),
	}, nil
}

// Profile returns the profile the pipeline projects with.
func (p *Pipeline) Profile() ExtractionProfile { return p.projector.Profile() }

// Run executes one run over q with a fresh summary.
func (p *Pipeline) Run(ctx context.Context, q SearchQuery) (*RunSummary, error) {
	summary := NewRunSummary(uuid.NewString(), p.Profile().Name, q.Window)
	err := p.Execute(ctx, q, summary)
	return summary, err
}

// Execute runs the pipeline, accumulating into summary so callers can
// observe progress. The returned error is fatal: a configuration,
// fetch or cancellation error. Load failures only degrade the summary.
func (p *Pipeline) Execute(ctx context.Context, q SearchQuery, summary *RunSummary) (err error) {
	profile := p.Profile()
	logger := p.opts.Logger.With("run_id", summary.RunID, "profile", profile.Name)

	if err := q.Window.Validate(); err != nil {
		summary.Finish(err)
		return err
	}

	activeRuns.Inc()
	logger.Info("run started",
		"window", q.Window.String(),
		"index", q.Index,
		"batch_size", p.opts.BatchSize,
		"workers", p.opts.Workers,
	)

	loader := NewBatchLoader(p.sink, profile.Target(), p.opts.BatchSize, summary, logger)
	it := NewCursorIterator(p.src, q,
		WithReleaseTimeout(p.opts.ReleaseTimeout),
		WithIteratorLogger(logger),
	)

	defer func() {
		p.flush(ctx, loader)
		summary.Finish(err)
		activeRuns.Dec()
		runsTotal.WithLabelValues(profile.Name, string(summary.Status())).Inc()
		runDurationHistogram.WithLabelValues(profile.Name).Observe(summary.Duration().Seconds())

		if err != nil {
			logger.Error("run failed", "summary", summary, "error", err,
				"duration_ms", summary.Duration().Milliseconds())
			return
		}
		logger.Info("run completed", "summary", summary,
			"duration_ms", summary.Duration().Milliseconds())
	}()

	for docs, ferr := range it.Pages(ctx) {
		if ferr != nil {
			return ferr
		}

		summary.addPage()
		summary.addFetched(len(docs))
		pagesFetchedTotal.Inc()
		documentsFetchedTotal.Add(float64(len(docs)))

		for _, res := range p.projectPage(docs) {
			if res.Record == nil {
				summary.addProjectionSkipped(1)
				recordsSkippedTotal.WithLabelValues(profile.Name, string(res.Skip)).Inc()
				if res.Err != nil {
					var df *DecodeFailure
					if errors.As(res.Err, &df) {
						logger.Debug("document skipped", "reason", res.Skip,
							"subject_id", df.SubjectID, "timestamp", df.Timestamp, "error", df.Err)
					}
				}
				continue
			}
			loader.Add(ctx, *res.Record)
		}

		logger.Debug("page processed",
			"page", summary.Pages(),
			"documents", len(docs),
			"buffered", loader.Buffered(),
		)
	}

	return nil
}

// projectPage projects docs in parallel and returns results in page order.
func (p *Pipeline) projectPage(docs []RawDocument) []Projection {
	out := make([]Projection, len(docs))

	workers := min(p.opts.Workers, len(docs))
	if workers <= 1 {
		for i, doc := range docs {
			out[i] = p.projector.Project(doc)
		}
		return out
	}

	chunk := (len(docs) + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < len(docs); start += chunk {
		end := min(start+chunk, len(docs))
		g.Go(func() error {
			for i := start; i < end; i++ {
				out[i] = p.projector.Project(docs[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// flush drains the loader. A cancelled run still gets its trailing batch
// written on a detached context bounded by the drain timeout.
func (p *Pipeline) flush(ctx context.Context, loader *BatchLoader) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), p.opts.DrainTimeout)
		defer cancel()
	}
	loader.Flush(ctx)
}
