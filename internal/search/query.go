package search

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/season179/elastic-tools/internal/core"
)

// BuildQuery renders the request body for q: a bool filter holding the
// half-open time range, one match_phrase per Match entry (in key order)
// and any raw filter clauses.
func BuildQuery(q core.SearchQuery, timestampField string) ([]byte, error) {
	filters := []any{
		map[string]any{
			"range": map[string]any{
				timestampField: map[string]any{
					"gte":    q.Window.Start.UTC().Format(time.RFC3339Nano),
					"lt":     q.Window.End.UTC().Format(time.RFC3339Nano),
					"format": "strict_date_optional_time",
				},
			},
		},
	}

	keys := make([]string, 0, len(q.Match))
	for k := range q.Match {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		filters = append(filters, map[string]any{
			"match_phrase": map[string]any{k: q.Match[k]},
		})
	}

	for i, raw := range q.Filters {
		if !json.Valid(raw) {
			return nil, &core.ConfigError{Field: "filter", Reason: fmt.Sprintf("clause %d is not valid JSON", i+1)}
		}
		filters = append(filters, raw)
	}

	return json.Marshal(map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"filter": filters},
		},
	})
}
