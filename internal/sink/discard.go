package sink

import (
	"context"
	"sync/atomic"

	"github.com/season179/elastic-tools/internal/core"
)

// DiscardSink accepts every record and stores nothing. Used for dry runs
// that only exercise fetching and projection.
type DiscardSink struct {
	received atomic.Int64
}

// InsertMany implements core.RecordSink.
func (d *DiscardSink) InsertMany(_ context.Context, _ core.Target, records []core.ProjectedRecord) (int64, error) {
	d.received.Add(int64(len(records)))
	return int64(len(records)), nil
}

// Received returns the number of records accepted.
func (d *DiscardSink) Received() int64 { return d.received.Load() }

// Close implements core.RecordSink.
func (d *DiscardSink) Close() error { return nil }
