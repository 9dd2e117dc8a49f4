package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/season179/elastic-tools/internal/core"
	"github.com/season179/elastic-tools/internal/logging"
)

// startRunRequest is the body of POST /api/runs. Bounds without an
// offset are read in Timezone, which defaults to UTC.
type startRunRequest struct {
	Profile  string            `json:"profile"`
	Start    string            `json:"start"`
	End      string            `json:"end"`
	Timezone string            `json:"timezone,omitempty"`
	Index    string            `json:"index,omitempty"`
	Match    map[string]string `json:"match,omitempty"`
	Filters  []json.RawMessage `json:"filters,omitempty"`
}

func (req startRunRequest) toRunRequest() (core.RunRequest, error) {
	loc := time.UTC
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return core.RunRequest{}, badRequest("timezone", "unknown timezone "+req.Timezone)
		}
		loc = l
	}

	window, err := core.ParseWindow(req.Start, req.End, loc)
	if err != nil {
		return core.RunRequest{}, err
	}

	return core.RunRequest{
		Profile: req.Profile,
		Window:  window,
		Index:   req.Index,
		Match:   req.Match,
		Filters: req.Filters,
	}, nil
}

// runResult is the body of GET /api/runs/{runID}/result.
type runResult struct {
	Summary  *core.RunSummary `json:"summary"`
	ExitCode int              `json:"exit_code"`
	Error    *ErrorResponse   `json:"error,omitempty"`
}

// handleStartRun starts an asynchronous run and returns its id.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var body startRunRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}

	req, err := body.toRunRequest()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	runID, err := s.service.StartRun(WithRequestMetadata(r.Context(), r), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(logging.WithRunID(r.Context(), runID),
		"profile", req.Profile,
		"window", req.Window.String(),
	).Info("run started")

	w.Header().Set("Location", "/api/runs/"+runID)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// handleListRuns returns runs still tracked in memory, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":    s.service.ListRuns(),
		"limiter": s.service.LimiterStatus(),
	})
}

// handleRunProgress returns the live counts of a run without blocking.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.GetRunProgress(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleRunResult blocks until the run finishes and returns its summary
// and exit code. A fatal run error is reported in the body, not the status.
func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.GetRunResult(r.Context(), chi.URLParam(r, "runID"))
	if summary == nil {
		s.respondError(w, r, err)
		return
	}
	if r.Context().Err() != nil {
		return // client went away
	}

	res := runResult{Summary: summary, ExitCode: summary.ExitCode()}
	if err != nil {
		res.Error = newErrorResponse(err)
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCancelRun cancels an in-progress run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.service.CancelRun(runID); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(logging.WithRunID(r.Context(), runID)).Info("run cancel requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
