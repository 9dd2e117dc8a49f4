package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/season179/elastic-tools/internal/core"
)

// healthTimeout bounds the dependency ping in /healthz.
const healthTimeout = 5 * time.Second

// profileInfo is the API view of an extraction profile.
type profileInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Kind        string   `json:"kind"`
	Section     string   `json:"section,omitempty"`
	Table       string   `json:"table"`
	Columns     []string `json:"columns"`
	UniqueKey   []string `json:"unique_key"`
	EmptyPolicy string   `json:"empty_policy,omitempty"`
}

func toProfileInfo(p core.ExtractionProfile) profileInfo {
	target := p.Target()
	return profileInfo{
		Name:        p.Name,
		Description: p.Description,
		Kind:        string(p.Kind),
		Section:     p.Section,
		Table:       target.Table,
		Columns:     target.ColumnNames(),
		UniqueKey:   target.UniqueKey,
		EmptyPolicy: string(p.EmptyPolicy),
	}
}

// handleListProfiles returns every registered profile.
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := s.service.Profiles()
	out := make([]profileInfo, len(profiles))
	for i, p := range profiles {
		out[i] = toProfileInfo(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": out})
}

// handleHealth pings the search cluster and reports run slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"limiter": s.service.LimiterStatus(),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := s.health.Ping(ctx); err != nil {
			resp["status"] = "unavailable"
			resp["error"] = newErrorResponse(err)
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRunHistory returns persisted runs, optionally for one profile.
func (s *Server) handleRunHistory(w http.ResponseWriter, r *http.Request) {
	profile := r.URL.Query().Get("profile")
	limit := parseIntParam(r, "limit", 20)

	runs, err := s.service.RecentRuns(r.Context(), profile, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []core.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
