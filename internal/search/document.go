package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/season179/elastic-tools/internal/core"
)

// fieldMap names the _source fields holding the document envelope.
type fieldMap struct {
	timestamp string
	subject   string
	payload   string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// document maps one hit _source to a RawDocument. A hit that cannot be
// read still yields a document (with whatever was recovered) and an error.
func (f fieldMap) document(source json.RawMessage) (core.RawDocument, error) {
	dec := json.NewDecoder(bytes.NewReader(source))
	dec.UseNumber()

	var src map[string]any
	if err := dec.Decode(&src); err != nil {
		return core.RawDocument{}, fmt.Errorf("decode _source: %w", err)
	}

	doc := core.RawDocument{
		SubjectID:  subjectString(lookup(src, f.subject)),
		RawPayload: lookup(src, f.payload),
	}

	ts, err := parseTimestamp(lookup(src, f.timestamp))
	if err != nil {
		return doc, err
	}
	doc.Timestamp = ts
	return doc, nil
}

// lookup resolves a dotted field, preferring a literal key containing dots
// the way Elasticsearch flattens object fields.
func lookup(src map[string]any, field string) any {
	if v, ok := src[field]; ok {
		return v
	}
	var cur any = src
	for _, seg := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

// parseTimestamp accepts RFC3339-like strings and epoch milliseconds.
func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("missing timestamp")
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	case json.Number:
		if ms, err := t.Int64(); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q", t.String())
		}
		return time.UnixMilli(int64(f)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func subjectString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
