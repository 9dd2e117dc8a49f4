package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// RawDocument is a single hit returned by the document source.
// RawPayload is either a string/[]byte holding encoded JSON or an
// already structured map[string]any / []any.
type RawDocument struct {
	Timestamp  time.Time
	SubjectID  string
	RawPayload any
}

// DecodedPayload is the untyped tree produced by DecodePayload.
// After a successful decode it is always a map[string]any or a []any.
type DecodedPayload any

// ProjectedRecord is the flattened, load-ready shape of one document.
type ProjectedRecord struct {
	Timestamp time.Time
	SubjectID string
	Fields    map[string]any
}

// Cursor is an opaque, server-issued scroll handle. The zero value means
// no handle has been issued.
type Cursor string

// Page is one response from the document source.
type Page struct {
	Documents []RawDocument
	Cursor    Cursor
}

// SearchQuery scopes a search for one pipeline run.
type SearchQuery struct {
	Index     string
	Window    TimeWindow
	Match     map[string]string // field -> phrase, all must match
	Filters   []json.RawMessage // additional raw filter clauses
	PageSize  int
	KeepAlive time.Duration
}

// DefaultPageSize is the number of hits requested per page.
const DefaultPageSize = 5000

// DefaultKeepAlive is the scroll liveness requested on every fetch.
const DefaultKeepAlive = 5 * time.Minute

// withDefaults returns a copy of q with zero tunables replaced.
func (q SearchQuery) withDefaults() SearchQuery {
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.KeepAlive <= 0 {
		q.KeepAlive = DefaultKeepAlive
	}
	return q
}

// TimeWindow is the half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Validate rejects empty or inverted windows.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return &ConfigError{Field: "window", Reason: "start and end are required"}
	}
	if !w.End.After(w.Start) {
		return &ConfigError{Field: "window", Reason: fmt.Sprintf("end %s must be after start %s",
			w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))}
	}
	return nil
}

// String formats the window for logs.
func (w TimeWindow) String() string {
	return "[" + w.Start.Format(time.RFC3339) + ", " + w.End.Format(time.RFC3339) + ")"
}

// windowLayouts are tried in order by ParseWindow.
var windowLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseWindow resolves user supplied bounds into absolute instants.
// Bounds without an explicit offset are interpreted in loc.
func ParseWindow(start, end string, loc *time.Location) (TimeWindow, error) {
	if loc == nil {
		loc = time.UTC
	}

	s, err := parseBound(start, loc)
	if err != nil {
		return TimeWindow{}, &ConfigError{Field: "start", Reason: err.Error()}
	}
	e, err := parseBound(end, loc)
	if err != nil {
		return TimeWindow{}, &ConfigError{Field: "end", Reason: err.Error()}
	}

	w := TimeWindow{Start: s, End: e}
	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}

func parseBound(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("invalid date: empty")
	}
	for _, layout := range windowLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date: %q", s)
}

// PreviousDay returns the window covering the calendar day before now in loc.
func PreviousDay(now time.Time, loc *time.Location) TimeWindow {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return TimeWindow{Start: end.AddDate(0, 0, -1), End: end}
}

// ColumnType is the storage type of a sink column.
type ColumnType int

const (
	ColumnTimestamp ColumnType = iota
	ColumnText
	ColumnInteger
	ColumnJSON
)

// Column is one persisted column of a Target.
// Source names the ProjectedRecord field feeding it when it differs from Name.
type Column struct {
	Name   string
	Type   ColumnType
	Source string
}

// Target describes where and how a profile's records are persisted.
type Target struct {
	Table     string
	Columns   []Column
	UniqueKey []string
}

// ColumnNames returns the column names in insert order.
func (t Target) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Row returns the values of rec in column order.
// timestamp and subject_id come from the envelope, everything else from Fields.
func (t Target) Row(rec ProjectedRecord) []any {
	row := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		switch c.Name {
		case ColumnNameTimestamp:
			row[i] = rec.Timestamp
		case ColumnNameSubject:
			row[i] = rec.SubjectID
		default:
			key := c.Name
			if c.Source != "" {
				key = c.Source
			}
			row[i] = rec.Fields[key]
		}
	}
	return row
}

// Envelope column names shared by every profile.
const (
	ColumnNameTimestamp = "timestamp"
	ColumnNameSubject   = "subject_id"
)

// DocumentSource is a paginated search backend with scroll semantics.
type DocumentSource interface {
	// OpenSearch runs the initial query and returns the first page.
	OpenSearch(ctx context.Context, q SearchQuery) (Page, error)
	// FetchNext returns the next page, renewing the cursor for keepAlive.
	FetchNext(ctx context.Context, cursor Cursor, keepAlive time.Duration) (Page, error)
	// Release clears the cursor on the server.
	Release(ctx context.Context, cursor Cursor) error
}

// RecordSink persists records with duplicate-skipping semantics.
type RecordSink interface {
	// InsertMany writes records and reports how many rows were persisted.
	// Rows violating target.UniqueKey are skipped without error.
	InsertMany(ctx context.Context, target Target, records []ProjectedRecord) (int64, error)
	Close() error
}
