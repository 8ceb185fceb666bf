package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/marketresearch/internal/catalog"
	"github.com/mohammad-safakhou/marketresearch/internal/store"
	"github.com/mohammad-safakhou/marketresearch/internal/trace"
)

// SummaryStore is the subset of store.Store the API reads from.
type SummaryStore interface {
	GetSummary(ctx context.Context, runID string) (store.RunRecord, error)
	ListSummaries(ctx context.Context, status string, limit int) ([]store.RunRecord, error)
}

// Searcher is the subset of catalog.Catalog the API reads from.
type Searcher interface {
	Search(q string, k int) ([]catalog.Hit, error)
}

type RunsHandler struct {
	traceDir string
	store    SummaryStore
	catalog  Searcher
	logger   *log.Logger
}

func (h *RunsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.GET("/:id", h.show)
	g.GET("/:id/events", h.events)
}

type runView struct {
	RunID      string         `json:"run_id"`
	Complete   bool           `json:"complete"`
	Summary    *trace.Summary `json:"summary,omitempty"`
	RecordedAt string         `json:"recorded_at,omitempty"`
}

// list prefers the Postgres index and falls back to scanning the trace dir.
func (h *RunsHandler) list(c echo.Context) error {
	status := c.QueryParam("status")
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return err
	}
	if h.store != nil {
		recs, err := h.store.ListSummaries(c.Request().Context(), status, limit)
		if err != nil {
			return err
		}
		out := make([]runView, 0, len(recs))
		for i := range recs {
			s := recs[i].Summary
			out = append(out, runView{RunID: s.RunID, Complete: true, Summary: &s, RecordedAt: recs[i].RecordedAt.UTC().Format("2006-01-02T15:04:05Z")})
		}
		return c.JSON(http.StatusOK, out)
	}
	runs, err := trace.ListRuns(h.traceDir)
	if err != nil {
		return err
	}
	out := make([]runView, 0, len(runs))
	for _, r := range runs {
		if status != "" && (r.Summary == nil || r.Summary.Status != status) {
			continue
		}
		out = append(out, runView{RunID: r.RunID, Complete: r.Complete, Summary: r.Summary})
		if len(out) >= limit {
			break
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RunsHandler) show(c echo.Context) error {
	id := c.Param("id")
	info, err := trace.FindRun(h.traceDir, id)
	if err == nil {
		return c.JSON(http.StatusOK, runView{RunID: info.RunID, Complete: info.Complete, Summary: info.Summary})
	}
	if h.store != nil {
		rec, serr := h.store.GetSummary(c.Request().Context(), id)
		if serr == nil {
			s := rec.Summary
			return c.JSON(http.StatusOK, runView{RunID: s.RunID, Complete: true, Summary: &s})
		}
		if !errors.Is(serr, store.ErrNotFound) {
			return serr
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "run not found")
}

func (h *RunsHandler) events(c echo.Context) error {
	info, err := trace.FindRun(h.traceDir, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	events, err := trace.ReadEvents(info.JSONLPath)
	if err != nil {
		return err
	}
	if t := c.QueryParam("type"); t != "" {
		filtered := events[:0]
		for _, ev := range events {
			if string(ev.Type) == t {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	return c.JSON(http.StatusOK, events)
}

func (h *RunsHandler) search(c echo.Context) error {
	if h.catalog == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search index not available")
	}
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	k, err := queryInt(c, "k", 10)
	if err != nil {
		return err
	}
	hits, err := h.catalog.Search(q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, hits)
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a positive integer")
	}
	return n, nil
}
