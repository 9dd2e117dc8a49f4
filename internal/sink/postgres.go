// Package sink provides core.RecordSink implementations.
package sink

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/season179/elastic-tools/internal/core"
)

// maxBindParams is the PostgreSQL limit on parameters per statement.
const maxBindParams = 65535

// Beginner starts transactions. Satisfied by *pgxpool.Pool and *pgx.Conn.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresSink writes batches with multi-row INSERT ... ON CONFLICT DO NOTHING.
// A batch is written in one transaction: it lands entirely or not at all.
type PostgresSink struct {
	db        Beginner
	maxParams int
}

// PostgresOption configures a PostgresSink.
type PostgresOption func(*PostgresSink)

// WithMaxParams lowers the bind parameter budget per statement.
func WithMaxParams(n int) PostgresOption {
	return func(s *PostgresSink) {
		if n > 0 && n < maxBindParams {
			s.maxParams = n
		}
	}
}

// NewPostgresSink creates a sink over db. The caller owns db.
func NewPostgresSink(db Beginner, opts ...PostgresOption) *PostgresSink {
	s := &PostgresSink{db: db, maxParams: maxBindParams}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InsertMany implements core.RecordSink. Rows conflicting with
// target.UniqueKey are skipped; the count is of rows actually inserted.
func (s *PostgresSink) InsertMany(ctx context.Context, target core.Target, records []core.ProjectedRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if target.Table == "" || len(target.Columns) == 0 {
		return 0, fmt.Errorf("invalid target: table and columns are required")
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row, err := pgRow(target, rec)
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		rows[i] = row
	}

	perStatement := max(1, s.maxParams/len(target.Columns))

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	var inserted int64
	for start := 0; start < len(rows); start += perStatement {
		chunk := rows[start:min(start+perStatement, len(rows))]

		args := make([]any, 0, len(chunk)*len(target.Columns))
		for _, row := range chunk {
			args = append(args, row...)
		}

		tag, err := tx.Exec(ctx, insertSQL(target, len(chunk)), args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", target.Table, err)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresSink) Close() error { return nil }

// insertSQL renders the statement for n rows of target.
func insertSQL(target core.Target, n int) string {
	cols := make([]string, len(target.Columns))
	for i, c := range target.Columns {
		cols[i] = quoteIdentifier(c.Name)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteTable(target.Table))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	param := 1
	for r := 0; r < n; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range target.Columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(param))
			param++
		}
		b.WriteByte(')')
	}

	b.WriteString(" ON CONFLICT")
	if len(target.UniqueKey) > 0 {
		keys := make([]string, len(target.UniqueKey))
		for i, k := range target.UniqueKey {
			keys[i] = quoteIdentifier(k)
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(keys, ", "))
		b.WriteByte(')')
	}
	b.WriteString(" DO NOTHING")
	return b.String()
}

// pgRow converts rec into driver values in column order.
func pgRow(target core.Target, rec core.ProjectedRecord) ([]any, error) {
	values := target.Row(rec)
	out := make([]any, len(values))
	for i, c := range target.Columns {
		v := values[i]
		switch c.Type {
		case core.ColumnTimestamp:
			ts, _ := v.(time.Time)
			out[i] = core.ToPgTimestamptz(ts)
		case core.ColumnInteger:
			out[i] = core.ToPgInt8(v)
		case core.ColumnJSON:
			b, err := core.ToJSONB(v)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			out[i] = b
		default:
			out[i] = core.ToPgTextValue(v)
		}
	}
	return out, nil
}

// quoteIdentifier safely quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteTable quotes each part of a possibly schema-qualified table name.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
