package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

// fakeSource serves fixed pages through the scroll protocol.
type fakeSource struct {
	mu sync.Mutex

	pages      [][]RawDocument
	failOn     int  // 1-based page whose fetch fails
	dropCursor bool // return no cursor handle at all

	opened        SearchQuery
	fetched       int
	keepAlives    []time.Duration
	released      []Cursor
	releaseErr    error
	releaseCtxErr error
}

var errBackendDown = errors.New("backend unavailable")

func (f *fakeSource) page(n int) (Page, error) {
	if f.failOn == n {
		return Page{}, errBackendDown
	}
	f.fetched = n

	var cursor Cursor
	if !f.dropCursor {
		cursor = Cursor(fmt.Sprintf("scroll-%d", n))
	}
	if n > len(f.pages) {
		return Page{Cursor: cursor}, nil
	}
	return Page{Documents: f.pages[n-1], Cursor: cursor}, nil
}

func (f *fakeSource) OpenSearch(_ context.Context, q SearchQuery) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = q
	return f.page(1)
}

func (f *fakeSource) FetchNext(ctx context.Context, cursor Cursor, keepAlive time.Duration) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if want := Cursor(fmt.Sprintf("scroll-%d", f.fetched)); cursor != want {
		return Page{}, fmt.Errorf("fetch with cursor %q, want %q", cursor, want)
	}
	f.keepAlives = append(f.keepAlives, keepAlive)
	return f.page(f.fetched + 1)
}

func (f *fakeSource) Release(ctx context.Context, cursor Cursor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, cursor)
	f.releaseCtxErr = ctx.Err()
	return f.releaseErr
}

func (f *fakeSource) releases() []Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Cursor(nil), f.released...)
}

// memSink is an in-memory sink enforcing the target's unique key.
type memSink struct {
	mu sync.Mutex

	rows      map[string]ProjectedRecord
	calls     []int
	failCalls map[int]bool // 1-based InsertMany calls that fail
	ctxErrs   []error
	closed    bool
}

func newMemSink() *memSink {
	return &memSink{rows: make(map[string]ProjectedRecord), failCalls: make(map[int]bool)}
}

func (s *memSink) InsertMany(ctx context.Context, target Target, records []ProjectedRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, len(records))
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	if s.failCalls[len(s.calls)] {
		return 0, errors.New("connection reset by peer")
	}

	idx := make(map[string]int, len(target.Columns))
	for i, c := range target.Columns {
		idx[c.Name] = i
	}

	var inserted int64
	for _, rec := range records {
		row := target.Row(rec)
		parts := make([]string, len(target.UniqueKey))
		for i, k := range target.UniqueKey {
			parts[i] = fmt.Sprint(row[idx[k]])
		}
		key := strings.Join(parts, "|")
		if _, dup := s.rows[key]; dup {
			continue
		}
		s.rows[key] = rec
		inserted++
	}
	return inserted, nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

// customerProfile mirrors the built-in customer profile without importing it.
func customerProfile() ExtractionProfile {
	return ExtractionProfile{
		Name:          "customer",
		Kind:          ExtractStructured,
		Section:       "customer",
		Table:         "customer_logs",
		TracksSubject: true,
		UniqueKey:     []string{ColumnNameTimestamp, ColumnNameSubject},
		EmptyPolicy:   EmptyDrop,
		Fields: []FieldRule{
			{Output: "email", Path: "customer.email", Type: FieldText},
			{Output: "mobile", Path: "customer.mobileNumber", Type: FieldText},
			{Output: "name", Path: "customer.fullName", Type: FieldText},
			{Output: "identity_type", Path: "customer.identity.type", Type: FieldText},
			{Output: "identity_number", Path: "customer.identity.number", Type: FieldText},
			{Output: "employer_reference_id", Path: "customer.employments.employerReferenceId", Type: FieldText},
			{Output: "employer_internal_id", Path: "customer.employments.employerId", Type: FieldText},
			{Output: "salary", Path: "customer.employments.salary", Type: FieldInteger},
		},
	}
}

func rawProfile() ExtractionProfile {
	return ExtractionProfile{
		Name:      "bukopin",
		Kind:      ExtractRaw,
		Table:     "bukopin_logs",
		UniqueKey: []string{ColumnNameTimestamp, PayloadHashField},
	}
}

// customerDoc builds a document with a singly encoded customer payload.
func customerDoc(ts time.Time, subject, email string) RawDocument {
	return RawDocument{
		Timestamp:  ts,
		SubjectID:  subject,
		RawPayload: fmt.Sprintf(`{"customer":{"email":%q,"employments":[{"salary":1000}]}}`, email),
	}
}

// customerDocs builds n documents with distinct subjects.
func customerDocs(ts time.Time, n int, prefix string) []RawDocument {
	docs := make([]RawDocument, n)
	for i := range docs {
		docs[i] = customerDoc(ts, fmt.Sprintf("%s-%d", prefix, i), fmt.Sprintf("%s%d@example.com", prefix, i))
	}
	return docs
}

// records builds n projected customer records with distinct subjects.
func records(n int) []ProjectedRecord {
	ts := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	out := make([]ProjectedRecord, n)
	for i := range out {
		out[i] = ProjectedRecord{
			Timestamp: ts,
			SubjectID: fmt.Sprintf("subject-%d", i),
			Fields:    map[string]any{"email": fmt.Sprintf("u%d@example.com", i)},
		}
	}
	return out
}
