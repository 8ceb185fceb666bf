package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohammad-safakhou/marketresearch/internal/trace"
)

func TestSearchRanksMatchingRuns(t *testing.T) {
	t.Parallel()
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	entries := []Entry{
		{RunID: "a", Topic: "electric vehicle charging", ReportPreview: "charging networks grow"},
		{RunID: "b", Topic: "coffee subscriptions", ReportPreview: "retention is the key metric"},
		{RunID: "c", Topic: "battery recycling", ReportPreview: "electric fleets drive demand"},
	}
	for _, e := range entries {
		if err := c.Add(e); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d", c.Len())
	}

	hits, err := c.Search("electric", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %+v", hits)
	}
	for i, h := range hits {
		if h.RunID == "b" {
			t.Fatalf("unexpected hit %+v", h)
		}
		if h.Rank != i+1 || h.Topic == "" {
			t.Fatalf("hit not populated: %+v", h)
		}
	}
}

func TestAddRejectsBlankRunID(t *testing.T) {
	t.Parallel()
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Add(Entry{Topic: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadDirIndexesCompletedRuns(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tr, err := trace.New(trace.Options{Topic: "solar inverters", Provider: "openai", Model: "m", Enabled: true, Dir: dir, RunID: "run-done"})
	if err != nil {
		t.Fatalf("trace.New: %v", err)
	}
	report := "# Solar\nInverter demand is rising."
	if _, err := tr.Complete(trace.StatusSuccess, &report, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// A trace with no summary file is an interrupted run.
	if err := os.WriteFile(filepath.Join(dir, "run-partial.jsonl"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	n, err := c.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if n != 1 {
		t.Fatalf("indexed %d runs, want 1", n)
	}
	hits, err := c.Search("inverter", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].RunID != "run-done" || hits[0].Status != trace.StatusSuccess {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestEntryFromEvents(t *testing.T) {
	t.Parallel()
	ts := trace.NewTimestamp(time.Unix(0, 0))
	events := []trace.Event{
		{Timestamp: ts, RunID: "r", Index: 0, Type: trace.EventRunStarted, Payload: trace.Payload{"topic": "T", "provider": "anthropic", "model": "m"}},
		{Timestamp: ts, RunID: "r", Index: 1, Type: trace.EventFinalReport, Payload: trace.Payload{"report_preview": "body"}},
		{Timestamp: ts, RunID: "r", Index: 2, Type: trace.EventRunCompleted, Payload: trace.Payload{"status": "success"}},
	}
	e := EntryFromEvents(events)
	if e.RunID != "r" || e.Topic != "T" || e.Provider != "anthropic" || e.Status != "success" || e.ReportPreview != "body" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}
