package search

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/season179/elastic-tools/internal/core"
)

func TestBuildQuery(t *testing.T) {
	wib := time.FixedZone("WIB", 7*60*60)
	q := core.SearchQuery{
		Window: core.TimeWindow{
			Start: time.Date(2025, 1, 15, 0, 0, 0, 0, wib),
			End:   time.Date(2025, 1, 17, 0, 0, 0, 0, wib),
		},
		Match:   map[string]string{"message": "customer", "app": "onboarding"},
		Filters: []json.RawMessage{json.RawMessage(`{"term":{"level":"info"}}`)},
	}

	body, err := BuildQuery(q, "ts")
	require.NoError(t, err)

	require.JSONEq(t, `{
		"query": {"bool": {"filter": [
			{"range": {"ts": {"gte": "2025-01-14T17:00:00Z", "lt": "2025-01-16T17:00:00Z", "format": "strict_date_optional_time"}}},
			{"match_phrase": {"app": "onboarding"}},
			{"match_phrase": {"message": "customer"}},
			{"term": {"level": "info"}}
		]}}
	}`, string(body))
}

func TestBuildQuery_InvalidFilter(t *testing.T) {
	_, err := BuildQuery(core.SearchQuery{Filters: []json.RawMessage{json.RawMessage(`{"term":`)}}, "ts")
	require.ErrorContains(t, err, "clause 1 is not valid JSON")
	require.Equal(t, core.KindConfig, core.Classify(err))
}
