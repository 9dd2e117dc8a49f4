package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/season179/elastic-tools/internal/core"
)

// CSVSink writes records as CSV, one file per run. The header is written
// with the first batch. Duplicates of the unique key seen earlier in the
// same file are skipped, mirroring the database sink.
//
// Each batch is encoded in memory and handed to the writer in a single
// Write, and its keys are remembered only after that Write succeeds, so a
// failed batch can be resubmitted. The key set holds one entry per row
// written and grows with the file; use the postgres output for runs too
// large to dedupe in memory.
type CSVSink struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer

	header bool
	seen   map[string]struct{}
}

// NewCSVSink writes to w. If w is an io.Closer it is closed by Close.
func NewCSVSink(w io.Writer) *CSVSink {
	s := &CSVSink{out: w, seen: make(map[string]struct{})}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// CreateCSVSink creates (or truncates) the file at path.
func CreateCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv output: %w", err)
	}
	return NewCSVSink(f), nil
}

// InsertMany implements core.RecordSink.
func (s *CSVSink) InsertMany(_ context.Context, target core.Target, records []core.ProjectedRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if !s.header {
		if err := w.Write(target.ColumnNames()); err != nil {
			return 0, fmt.Errorf("write csv header: %w", err)
		}
	}

	keyIdx := make([]int, 0, len(target.UniqueKey))
	for _, k := range target.UniqueKey {
		for i, c := range target.Columns {
			if c.Name == k {
				keyIdx = append(keyIdx, i)
			}
		}
	}

	var keys []string
	batch := make(map[string]struct{})
	for _, rec := range records {
		row, err := csvRow(target, rec)
		if err != nil {
			return 0, err
		}

		if len(keyIdx) > 0 {
			parts := make([]string, len(keyIdx))
			for i, idx := range keyIdx {
				parts[i] = row[idx]
			}
			key := strings.Join(parts, "\x00")
			if _, dup := s.seen[key]; dup {
				continue
			}
			if _, dup := batch[key]; dup {
				continue
			}
			batch[key] = struct{}{}
			keys = append(keys, key)
		}

		if err := w.Write(row); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("encode csv: %w", err)
	}
	if _, err := s.out.Write(buf.Bytes()); err != nil {
		return 0, fmt.Errorf("write csv batch: %w", err)
	}

	s.header = true
	for _, k := range keys {
		s.seen[k] = struct{}{}
	}
	if len(keyIdx) == 0 {
		return int64(len(records)), nil
	}
	return int64(len(keys)), nil
}

// Close closes the underlying writer.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func csvRow(target core.Target, rec core.ProjectedRecord) ([]string, error) {
	values := target.Row(rec)
	row := make([]string, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case nil:
			row[i] = ""
		case string:
			row[i] = t
		case time.Time:
			row[i] = t.UTC().Format(time.RFC3339Nano)
		case int64:
			row[i] = strconv.FormatInt(t, 10)
		case json.Number:
			row[i] = t.String()
		default:
			b, err := json.Marshal(t)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", target.Columns[i].Name, err)
			}
			row[i] = string(b)
		}
	}
	return row, nil
}
