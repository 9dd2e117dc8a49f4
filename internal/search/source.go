// Package search reads log documents from Elasticsearch through the scroll API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/season179/elastic-tools/internal/core"
)

// Default document field names.
const (
	DefaultTimestampField = "ts"
	DefaultSubjectField   = "customer_id"
	DefaultPayloadField   = "payload"
)

// Config holds connection and mapping settings for a ScrollSource.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	CloudID   string
	CACert    []byte

	MaxRetries int

	// Document field names. Dotted paths address nested fields.
	TimestampField string
	SubjectField   string
	PayloadField   string

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// ScrollSource implements core.DocumentSource over the Elasticsearch scroll API.
type ScrollSource struct {
	es     *elasticsearch.Client
	fields fieldMap
	logger *slog.Logger
}

// NewScrollSource creates a client for cfg. No request is made until the
// first search.
func NewScrollSource(cfg Config) (*ScrollSource, error) {
	if len(cfg.Addresses) == 0 && cfg.CloudID == "" {
		return nil, &core.ConfigError{Field: "ES_ADDRESSES", Reason: "at least one address or a cloud id is required"}
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		APIKey:     cfg.APIKey,
		CloudID:    cfg.CloudID,
		CACert:     cfg.CACert,
		MaxRetries: cfg.MaxRetries,
		Transport:  cfg.Transport,
	})
	if err != nil {
		return nil, &core.ConfigError{Field: "elasticsearch", Reason: err.Error()}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ScrollSource{
		es: es,
		fields: fieldMap{
			timestamp: orDefault(cfg.TimestampField, DefaultTimestampField),
			subject:   orDefault(cfg.SubjectField, DefaultSubjectField),
			payload:   orDefault(cfg.PayloadField, DefaultPayloadField),
		},
		logger: logger.With("component", "search"),
	}, nil
}

// OpenSearch runs the initial scroll search, sorted newest first.
func (s *ScrollSource) OpenSearch(ctx context.Context, q core.SearchQuery) (core.Page, error) {
	body, err := BuildQuery(q, s.fields.timestamp)
	if err != nil {
		return core.Page{}, err
	}
	if q.PageSize <= 0 {
		q.PageSize = core.DefaultPageSize
	}
	if q.KeepAlive <= 0 {
		q.KeepAlive = core.DefaultKeepAlive
	}

	opts := []func(*esapi.SearchRequest){
		s.es.Search.WithContext(ctx),
		s.es.Search.WithBody(bytes.NewReader(body)),
		s.es.Search.WithScroll(q.KeepAlive),
		s.es.Search.WithSize(q.PageSize),
		s.es.Search.WithSort(s.fields.timestamp + ":desc"),
	}
	if q.Index != "" {
		opts = append(opts, s.es.Search.WithIndex(splitIndex(q.Index)...))
	}

	s.logger.Debug("opening scroll",
		"index", q.Index,
		"window", q.Window.String(),
		"page_size", q.PageSize,
		"keep_alive", q.KeepAlive.String(),
	)

	res, err := s.es.Search(opts...)
	if err != nil {
		return core.Page{}, fmt.Errorf("search: %w", err)
	}
	return s.readPage(res)
}

// FetchNext continues the scroll and renews its liveness.
func (s *ScrollSource) FetchNext(ctx context.Context, cursor core.Cursor, keepAlive time.Duration) (core.Page, error) {
	res, err := s.es.Scroll(
		s.es.Scroll.WithContext(ctx),
		s.es.Scroll.WithScrollID(string(cursor)),
		s.es.Scroll.WithScroll(keepAlive),
	)
	if err != nil {
		return core.Page{}, fmt.Errorf("scroll: %w", err)
	}
	return s.readPage(res)
}

// Release clears the scroll context on the server.
func (s *ScrollSource) Release(ctx context.Context, cursor core.Cursor) error {
	res, err := s.es.ClearScroll(
		s.es.ClearScroll.WithContext(ctx),
		s.es.ClearScroll.WithScrollID(string(cursor)),
	)
	if err != nil {
		return fmt.Errorf("clear scroll: %w", err)
	}
	defer res.Body.Close()

	// 404 means the scroll already expired, which is the state we want.
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("clear scroll: %w", responseError(res))
	}
	return nil
}

// Ping checks that the cluster is reachable. Used by the health endpoint.
func (s *ScrollSource) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping: %s", res.Status())
	}
	return nil
}

// scrollResponse is the subset of a search/scroll response we read.
type scrollResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *ScrollSource) readPage(res *esapi.Response) (core.Page, error) {
	defer res.Body.Close()

	if res.IsError() {
		return core.Page{}, responseError(res)
	}

	var sr scrollResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return core.Page{}, fmt.Errorf("decode response: %w", err)
	}

	page := core.Page{
		Cursor:    core.Cursor(sr.ScrollID),
		Documents: make([]core.RawDocument, 0, len(sr.Hits.Hits)),
	}
	for _, hit := range sr.Hits.Hits {
		doc, err := s.fields.document(hit.Source)
		if err != nil {
			// Keep the hit so it is counted; the projector drops it for
			// lacking a timestamp.
			s.logger.Debug("unreadable hit source", "error", err)
		}
		page.Documents = append(page.Documents, doc)
	}
	return page, nil
}

// ResponseError is an error reply from Elasticsearch.
type ResponseError struct {
	StatusCode int
	Type       string
	Reason     string
}

func (e *ResponseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("[%d] %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Type, e.Reason)
}

func responseError(res *esapi.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	var body struct {
		Error struct {
			Type      string `json:"type"`
			Reason    string `json:"reason"`
			RootCause []struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"root_cause"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Type == "" {
		return &ResponseError{StatusCode: res.StatusCode, Reason: strings.TrimSpace(string(raw))}
	}

	e := &ResponseError{StatusCode: res.StatusCode, Type: body.Error.Type, Reason: body.Error.Reason}
	if len(body.Error.RootCause) > 0 {
		if rc := body.Error.RootCause[0]; rc.Type != "" && rc.Type != e.Type {
			e.Reason += " (" + rc.Type + ": " + rc.Reason + ")"
		}
	}
	return e
}

func splitIndex(index string) []string {
	var out []string
	for _, part := range strings.Split(index, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
