package core

// cursor.go owns the lifetime of one server-side scroll cursor.
//
// The iterator is single use: a scroll cannot be rewound, so a second call
// to Pages yields ErrCursorConsumed. Whatever way iteration ends
// (exhaustion, fetch error, caller break, cancellation) the latest cursor
// handle is released exactly once. Release runs on a context detached from
// the caller's so a cancelled run still clears its cursor.

import (
	"context"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultReleaseTimeout bounds the cursor release call.
const DefaultReleaseTimeout = 10 * time.Second

// CursorIterator exposes a scroll search as a lazy sequence of pages.
type CursorIterator struct {
	src            DocumentSource
	query          SearchQuery
	releaseTimeout time.Duration
	logger         *slog.Logger

	used     atomic.Bool
	releases atomic.Int32
}

// IteratorOption configures a CursorIterator.
type IteratorOption func(*CursorIterator)

// WithReleaseTimeout sets how long the release call may take.
func WithReleaseTimeout(d time.Duration) IteratorOption {
	return func(it *CursorIterator) {
		if d > 0 {
			it.releaseTimeout = d
		}
	}
}

// WithIteratorLogger sets the logger used for release diagnostics.
func WithIteratorLogger(l *slog.Logger) IteratorOption {
	return func(it *CursorIterator) {
		if l != nil {
			it.logger = l
		}
	}
}

// NewCursorIterator creates an iterator for q over src.
func NewCursorIterator(src DocumentSource, q SearchQuery, opts ...IteratorOption) *CursorIterator {
	it := &CursorIterator{
		src:            src,
		query:          q.withDefaults(),
		releaseTimeout: DefaultReleaseTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Releases returns how many times a cursor release was attempted.
func (it *CursorIterator) Releases() int { return int(it.releases.Load()) }

// Pages returns the sequence of non-empty pages. A non-nil error is always
// the last element: a *FetchError, a context error, or ErrCursorConsumed.
func (it *CursorIterator) Pages(ctx context.Context) iter.Seq2[[]RawDocument, error] {
	return func(yield func([]RawDocument, error) bool) {
		if !it.used.CompareAndSwap(false, true) {
			yield(nil, ErrCursorConsumed)
			return
		}

		var cursor Cursor
		defer func() { it.release(ctx, cursor) }()

		pageNum := 1
		page, err := it.fetch(func() (Page, error) { return it.src.OpenSearch(ctx, it.query) })
		if err != nil {
			yield(nil, fetchFailure(ctx, "open", pageNum, err))
			return
		}

		for {
			if page.Cursor != "" {
				cursor = page.Cursor
			}
			if len(page.Documents) == 0 {
				return
			}
			if !yield(page.Documents, nil) {
				return
			}
			if page.Cursor == "" {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			pageNum++
			page, err = it.fetch(func() (Page, error) { return it.src.FetchNext(ctx, cursor, it.query.KeepAlive) })
			if err != nil {
				yield(nil, fetchFailure(ctx, "next", pageNum, err))
				return
			}
		}
	}
}

// fetchFailure reports a cancelled run as the context error rather than a
// backend failure.
func fetchFailure(ctx context.Context, op string, page int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &FetchError{Op: op, Page: page, Err: err}
}

func (it *CursorIterator) fetch(fn func() (Page, error)) (Page, error) {
	start := time.Now()
	page, err := fn()
	fetchDurationHistogram.Observe(time.Since(start).Seconds())
	return page, err
}

// release clears cursor once. Failures are logged; the server expires
// abandoned cursors on its own.
func (it *CursorIterator) release(ctx context.Context, cursor Cursor) {
	if cursor == "" {
		return
	}
	it.releases.Add(1)

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), it.releaseTimeout)
	defer cancel()

	if err := it.src.Release(releaseCtx, cursor); err != nil {
		cursorReleasesTotal.WithLabelValues("error").Inc()
		it.logger.Warn("cursor release failed", "error", err)
		return
	}
	cursorReleasesTotal.WithLabelValues("ok").Inc()
	it.logger.Debug("cursor released")
}
