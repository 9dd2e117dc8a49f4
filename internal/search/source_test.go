package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/season179/elastic-tools/internal/core"
)

// fakeCluster is a minimal scroll API: each scroll id maps to the next page.
type fakeCluster struct {
	mu sync.Mutex

	pages     [][]map[string]any
	served    int
	searchErr int // status for the initial search, 0 for success

	searchPath  string
	searchQuery map[string][]string
	searchBody  map[string]any
	scrollIDs   []string
	cleared     []string
}

func (c *fakeCluster) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		body, _ := io.ReadAll(r.Body)

		switch {
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/_search/scroll"):
			c.cleared = append(c.cleared, scrollIDFrom(r, body))
			_, _ = io.WriteString(w, `{"succeeded":true,"num_freed":1}`)

		case strings.HasPrefix(r.URL.Path, "/_search/scroll"):
			c.scrollIDs = append(c.scrollIDs, scrollIDFrom(r, body))
			c.writePage(t, w)

		case strings.HasSuffix(r.URL.Path, "/_search"):
			c.searchPath = r.URL.Path
			c.searchQuery = r.URL.Query()
			if err := json.Unmarshal(body, &c.searchBody); err != nil {
				t.Errorf("search body: %v", err)
			}
			if c.searchErr != 0 {
				w.WriteHeader(c.searchErr)
				_, _ = io.WriteString(w, `{"error":{"root_cause":[{"type":"index_not_found_exception","reason":"no such index [missing]"}],`+
					`"type":"index_not_found_exception","reason":"no such index [missing]"},"status":404}`)
				return
			}
			c.writePage(t, w)

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (c *fakeCluster) writePage(t *testing.T, w http.ResponseWriter) {
	var hits []map[string]any
	if c.served < len(c.pages) {
		hits = c.pages[c.served]
	}
	c.served++

	wrapped := make([]map[string]any, len(hits))
	for i, src := range hits {
		wrapped[i] = map[string]any{"_index": "logs", "_id": fmt.Sprint(i), "_source": src}
	}
	err := json.NewEncoder(w).Encode(map[string]any{
		"_scroll_id": fmt.Sprintf("scroll-%d", c.served),
		"hits":       map[string]any{"hits": wrapped},
	})
	if err != nil {
		t.Errorf("encode page: %v", err)
	}
}

// scrollIDFrom reads the scroll id from the path, the query or the body.
func scrollIDFrom(r *http.Request, body []byte) string {
	if id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/_search/scroll"), "/"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("scroll_id"); id != "" {
		return id
	}
	var b struct {
		ScrollID any `json:"scroll_id"`
	}
	_ = json.Unmarshal(body, &b)
	switch v := b.ScrollID.(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			return fmt.Sprint(v[0])
		}
	}
	return ""
}

func newTestSource(t *testing.T, c *fakeCluster) *ScrollSource {
	t.Helper()
	srv := httptest.NewServer(c.handler(t))
	t.Cleanup(srv.Close)

	src, err := NewScrollSource(Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return src
}

func hit(ts, subject, payload string) map[string]any {
	return map[string]any{"ts": ts, "customer_id": subject, "payload": payload, "message": "customer"}
}

func TestScrollSource_FullScroll(t *testing.T) {
	cluster := &fakeCluster{pages: [][]map[string]any{
		{hit("2025-01-16T10:00:00Z", "c1", `{"customer":{"email":"a@b.c"}}`), hit("2025-01-16T09:00:00Z", "c2", `{}`)},
		{hit("2025-01-15T10:00:00.123Z", "c3", `"{\"customer\":{}}"`)},
	}}
	src := newTestSource(t, cluster)

	q := core.SearchQuery{
		Index: "customer-logs-*",
		Window: core.TimeWindow{
			Start: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC),
		},
		Match:     map[string]string{"message": "customer"},
		PageSize:  2,
		KeepAlive: 2 * time.Minute,
	}

	it := core.NewCursorIterator(src, q)
	var docs []core.RawDocument
	for page, err := range it.Pages(context.Background()) {
		require.NoError(t, err)
		docs = append(docs, page...)
	}

	require.Len(t, docs, 3)
	require.Equal(t, "c1", docs[0].SubjectID)
	require.Equal(t, time.Date(2025, 1, 16, 10, 0, 0, 0, time.UTC), docs[0].Timestamp.UTC())
	require.Equal(t, `{"customer":{"email":"a@b.c"}}`, docs[0].RawPayload)
	require.Equal(t, 123*time.Millisecond, time.Duration(docs[2].Timestamp.Nanosecond()))

	require.Equal(t, "/customer-logs-*/_search", cluster.searchPath)
	require.Equal(t, "2", cluster.searchQuery["size"][0])
	require.Contains(t, []string{"2m", "120000ms"}, cluster.searchQuery["scroll"][0])
	require.Contains(t, cluster.searchBody, "query")
	require.Equal(t, "ts:desc", cluster.searchQuery["sort"][0])

	require.Equal(t, []string{"scroll-1", "scroll-2"}, cluster.scrollIDs)
	require.Equal(t, []string{"scroll-3"}, cluster.cleared, "latest scroll id released once")
}

func TestScrollSource_IndexNotFound(t *testing.T) {
	cluster := &fakeCluster{searchErr: http.StatusNotFound}
	src := newTestSource(t, cluster)

	_, err := src.OpenSearch(context.Background(), core.SearchQuery{Index: "missing"})
	require.Error(t, err)

	var re *ResponseError
	require.ErrorAs(t, err, &re)
	require.Equal(t, http.StatusNotFound, re.StatusCode)
	require.Equal(t, "index_not_found_exception", re.Type)

	wrapped := &core.FetchError{Op: "open", Page: 1, Err: err}
	require.Equal(t, "ES002", core.MapError(wrapped).Code)
}

func TestScrollSource_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	src, err := NewScrollSource(Config{Addresses: []string{srv.URL}, MaxRetries: 0})
	require.NoError(t, err)

	_, err = src.FetchNext(context.Background(), "scroll-1", time.Minute)
	require.Error(t, err)
	require.Error(t, src.Release(context.Background(), "scroll-1"))
}

func TestNewScrollSource_RequiresAddress(t *testing.T) {
	_, err := NewScrollSource(Config{})
	require.Error(t, err)
	require.Equal(t, core.KindConfig, core.Classify(err))
}

func TestDocumentMapping(t *testing.T) {
	f := fieldMap{timestamp: "@timestamp", subject: "ctx.customer.id", payload: "body"}

	tests := []struct {
		name        string
		source      string
		wantTS      time.Time
		wantSubject string
		wantPayload any
		wantErr     bool
	}{
		{
			name:        "epoch millis and nested subject",
			source:      `{"@timestamp":1736935200000,"ctx":{"customer":{"id":12345}},"body":"{}"}`,
			wantTS:      time.UnixMilli(1736935200000).UTC(),
			wantSubject: "12345",
			wantPayload: "{}",
		},
		{
			name:        "flattened dotted key",
			source:      `{"@timestamp":"2025-01-15T10:00:00+07:00","ctx.customer.id":"c-9","body":{"a":1}}`,
			wantTS:      time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC),
			wantSubject: "c-9",
			wantPayload: map[string]any{"a": json.Number("1")},
		},
		{
			name:        "missing timestamp keeps the rest",
			source:      `{"ctx":{"customer":{"id":"c-1"}},"body":"x"}`,
			wantSubject: "c-1",
			wantPayload: "x",
			wantErr:     true,
		},
		{
			name:    "garbage timestamp",
			source:  `{"@timestamp":"last tuesday"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := f.document(json.RawMessage(tt.source))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.True(t, tt.wantTS.Equal(doc.Timestamp), "timestamp %v, want %v", doc.Timestamp, tt.wantTS)
			require.Equal(t, tt.wantSubject, doc.SubjectID)
			require.Equal(t, tt.wantPayload, doc.RawPayload)
		})
	}
}
