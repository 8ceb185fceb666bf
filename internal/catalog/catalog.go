// Package catalog keeps a full-text index over completed runs so past
// reports can be found by topic or content.
package catalog

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/mohammad-safakhou/marketresearch/internal/trace"
)

// Entry is the indexed view of one run.
type Entry struct {
	RunID         string `json:"run_id"`
	Topic         string `json:"topic"`
	Status        string `json:"status"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	ReportPreview string `json:"report_preview"`
}

// Hit is a ranked search result.
type Hit struct {
	Entry
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

type Catalog struct {
	mu      sync.RWMutex
	index   bleve.Index
	entries map[string]Entry
}

// New returns an empty in-memory catalog.
func New() (*Catalog, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Catalog{index: index, entries: make(map[string]Entry)}, nil
}

// Add indexes or replaces an entry.
func (c *Catalog) Add(e Entry) error {
	if e.RunID == "" {
		return fmt.Errorf("catalog entry has no run id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.RunID] = e
	return c.index.Index(e.RunID, e)
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Search runs a query-string query and returns up to k hits.
func (c *Catalog) Search(q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, err := c.index.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]Hit, 0, len(res.Hits))
	for i, h := range res.Hits {
		out = append(out, Hit{Entry: c.entries[h.ID], Score: h.Score, Rank: i + 1})
	}
	return out, nil
}

func (c *Catalog) Close() error {
	return c.index.Close()
}

// EntryFromEvents builds an entry from a run's event log.
func EntryFromEvents(events []trace.Event) Entry {
	s := trace.Recompute(events)
	e := Entry{RunID: s.RunID, Topic: s.Topic, Status: s.Status, Provider: s.Provider, Model: s.Model}
	for _, ev := range events {
		if ev.Type == trace.EventFinalReport {
			e.ReportPreview = ev.Payload.String("report_preview")
		}
	}
	return e
}

// LoadDir indexes every completed run found in a trace directory and returns
// how many were added. Incomplete or unreadable traces are skipped.
func (c *Catalog) LoadDir(dir string) (int, error) {
	runs, err := trace.ListRuns(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, run := range runs {
		if !run.Complete {
			continue
		}
		events, err := trace.ReadEvents(run.JSONLPath)
		if err != nil {
			continue
		}
		e := EntryFromEvents(events)
		if e.RunID == "" {
			e.RunID = run.RunID
		}
		if err := c.Add(e); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
