package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/season179/elastic-tools/internal/core"
	"github.com/season179/elastic-tools/internal/logging"
)

// statusPageData is everything rendered on the status page.
type statusPageData struct {
	Limiter  core.RunLimiterStatus
	Active   []*core.RunSummary
	History  []core.RunRecord
	Profiles []core.ExtractionProfile
	Now      time.Time
}

// handleStatusPage renders the HTML overview of runs and profiles.
func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	data := statusPageData{
		Limiter:  s.service.LimiterStatus(),
		Active:   s.service.ListRuns(),
		Profiles: s.service.Profiles(),
		Now:      time.Now(),
	}

	history, err := s.service.RecentRuns(r.Context(), "", 20)
	switch {
	case err == nil:
		data.History = history
	case !errors.Is(err, core.ErrNoHistory):
		logging.FromContext(r.Context()).Warn("status page: run history unavailable", "error", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage(data).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render status page", "error", err)
	}
}

// statusPage renders a self-contained HTML page.
func statusPage(data statusPageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}

		p.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>esetl</title></head>`)
		p.raw(`<body style="font-family:sans-serif;margin:2rem">`)
		p.raw(`<h1>esetl</h1>`)
		p.raw(`<p>Run slots: `)
		p.text(fmt.Sprintf("%d active, %d available of %d",
			data.Limiter.Active, data.Limiter.Available, data.Limiter.MaxConcurrent))
		p.raw(`</p>`)

		p.raw(`<h2>Runs in memory</h2>`)
		if len(data.Active) == 0 {
			p.raw(`<p>No runs.</p>`)
		} else {
			runTable(p, []string{"Run", "Profile", "Window", "Status", "Fetched", "Inserted", "Duplicates", "Failed", "Elapsed"})
			for _, s := range data.Active {
				p.row(s.RunID, s.Profile, s.Window.String(), string(s.Status()),
					itoa(s.Fetched()), itoa(s.Inserted()), itoa(s.LoadSkipped()), itoa(s.Failed()),
					s.Duration().Round(time.Second).String())
			}
			p.raw(`</table>`)
		}

		p.raw(`<h2>Recent history</h2>`)
		if len(data.History) == 0 {
			p.raw(`<p>No recorded runs.</p>`)
		} else {
			runTable(p, []string{"Started", "Profile", "Window", "Status", "Trigger", "Inserted", "Failed", "Error"})
			for _, h := range data.History {
				p.row(h.StartedAt.UTC().Format(time.RFC3339), h.Profile,
					core.TimeWindow{Start: h.WindowStart, End: h.WindowEnd}.String(),
					string(h.Status), h.Trigger, itoa(h.Inserted), itoa(h.Failed), h.Error)
			}
			p.raw(`</table>`)
		}

		p.raw(`<h2>Profiles</h2>`)
		runTable(p, []string{"Name", "Kind", "Table", "Description"})
		for _, prof := range data.Profiles {
			p.row(prof.Name, string(prof.Kind), prof.Target().Table, prof.Description)
		}
		p.raw(`</table>`)

		p.raw(`<p style="color:#888">Rendered `)
		p.text(data.Now.UTC().Format(time.RFC3339))
		p.raw(`</p></body></html>`)
		return p.err
	})
}

func runTable(p *htmlWriter, headers []string) {
	p.raw(`<table border="1" cellpadding="4" style="border-collapse:collapse"><tr>`)
	for _, h := range headers {
		p.raw(`<th>`)
		p.text(h)
		p.raw(`</th>`)
	}
	p.raw(`</tr>`)
}

// htmlWriter keeps the first write error so rendering code stays linear.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (p *htmlWriter) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *htmlWriter) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *htmlWriter) row(cells ...string) {
	p.raw(`<tr>`)
	for _, c := range cells {
		p.raw(`<td>`)
		p.text(c)
		p.raw(`</td>`)
	}
	p.raw(`</tr>`)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
