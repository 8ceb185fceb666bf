package trace

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	base := time.Date(2025, 3, 14, 9, 26, 53, 589_793_238, time.UTC)
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}
}

func newTestTracer(t *testing.T, dir string) *Tracer {
	t.Helper()
	tr, err := New(Options{
		Topic:    "solar inverters",
		Provider: "openai",
		Model:    "gpt-4.1-mini",
		Enabled:  true,
		Dir:      dir,
		Now:      fixedClock(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestTracerWritesOrderedEventsAndSummary(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracer(t, dir)

	tr.LogPhase("planning", PhaseStarted, Payload{"topic": "solar inverters"})
	tr.LogToolCall("web_search", map[string]any{"query": "inverter market"})
	tr.LogToolResult("web_search", false, 15*time.Millisecond, "ERROR: Search failed")
	tr.LogToolCall("calculator", map[string]any{"expression": "1+1"})
	tr.LogToolResult("calculator", true, time.Millisecond, "2")
	tr.LogMessageSnapshot("planner", "plan text")
	report := "# Report\nAll good."
	summary, err := tr.Complete(StatusSuccess, &report, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	events, err := ReadEvents(tr.JSONLPath())
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 9 {
		t.Fatalf("expected 9 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Index != i+1 {
			t.Fatalf("event %d has idx %d", i, ev.Index)
		}
		if ev.RunID != tr.RunID() {
			t.Fatalf("event %d has run id %q", i, ev.RunID)
		}
	}
	if events[0].Type != EventRunStarted {
		t.Fatalf("first event is %s", events[0].Type)
	}
	if events[7].Type != EventFinalReport || events[8].Type != EventRunCompleted {
		t.Fatalf("unexpected terminal events %s, %s", events[7].Type, events[8].Type)
	}

	if summary.EventCount != len(events) || summary.ToolCallCount != 2 || summary.ToolErrorCount != 1 {
		t.Fatalf("unexpected summary counters %+v", summary)
	}
	if summary.ReportLen == nil || *summary.ReportLen != len([]rune(report)) {
		t.Fatalf("unexpected report len %v", summary.ReportLen)
	}
	if summary.Error != nil {
		t.Fatalf("unexpected error %q", *summary.Error)
	}

	onDisk, err := LoadSummary(tr.SummaryPath())
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	if !reflect.DeepEqual(onDisk, summary) {
		t.Fatalf("summary on disk differs:\n%+v\n%+v", onDisk, summary)
	}

	recomputed, err := RecomputeFile(tr.JSONLPath())
	if err != nil {
		t.Fatalf("RecomputeFile: %v", err)
	}
	if !reflect.DeepEqual(recomputed, summary) {
		t.Fatalf("recomputed summary differs:\n%+v\n%+v", recomputed, summary)
	}
}

func TestTracerSummaryFileIsIndented(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracer(t, dir)
	if _, err := tr.Complete(StatusError, nil, errors.New("planning failed")); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	data, err := os.ReadFile(tr.SummaryPath())
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "\n  \"status\": \"error\"") {
		t.Fatalf("summary not indented with two spaces:\n%s", text)
	}
	if !strings.Contains(text, `"report_len": null`) || !strings.Contains(text, `"error": "planning failed"`) {
		t.Fatalf("unexpected summary:\n%s", text)
	}
	events, err := ReadEvents(tr.JSONLPath())
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	last := events[len(events)-1]
	if last.Type != EventRunCompleted {
		t.Fatalf("run_completed must be last, got %s", last.Type)
	}
}

func TestDisabledTracerHasNoFilesystemEffects(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "traces")
	tr, err := New(Options{Topic: "x", Enabled: false, Dir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr.LogPhase("planning", PhaseStarted, nil)
	tr.LogToolCall("web_search", nil)
	tr.LogToolResult("web_search", false, 0, "ERROR: nope")
	tr.LogMessageSnapshot("planner", "text")
	report := "r"
	if _, err := tr.Complete(StatusSuccess, &report, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("disabled tracer created %s (stat err %v)", dir, err)
	}
}

func TestNilTracerIsSafe(t *testing.T) {
	var tr *Tracer
	tr.LogPhase("execution", PhaseStarted, nil)
	tr.LogToolCall("calculator", nil)
	tr.LogToolResult("calculator", true, 0, "1")
	tr.LogMessageSnapshot("synthesis", "x")
	if _, err := tr.Complete(StatusSuccess, nil, nil); err != nil {
		t.Fatalf("nil Complete: %v", err)
	}
	if tr.Enabled() || tr.RunID() != "" {
		t.Fatalf("nil tracer should report disabled")
	}
}

func TestLoggingAfterCompleteIsIgnored(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracer(t, dir)
	first, err := tr.Complete(StatusSuccess, nil, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	tr.LogPhase("late", PhaseStarted, nil)
	tr.LogToolCall("web_search", nil)
	tr.LogToolResult("web_search", false, 0, "ERROR")

	second, err := tr.Complete(StatusError, nil, errors.New("again"))
	if !errors.Is(err, ErrCompleted) {
		t.Fatalf("expected ErrCompleted, got %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second Complete changed the summary")
	}
	events, err := ReadEvents(tr.JSONLPath())
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != first.EventCount {
		t.Fatalf("events appended after completion: %d vs %d", len(events), first.EventCount)
	}
}

func TestEventRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracer(t, dir)
	tr.LogEvent(EventPhase, Payload{
		"phase":      "execution",
		"status":     PhaseCompleted,
		"step_count": 4,
		"nested":     map[string]any{"ok": true, "tags": []any{"a", "b"}},
		"note":       "unicode ✓ and \"quotes\"",
	})
	events, err := ReadEvents(tr.JSONLPath())
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	got := events[1]
	if got.Index != 2 || got.Type != EventPhase || got.RunID != tr.RunID() {
		t.Fatalf("unexpected header %+v", got)
	}
	if got.Timestamp.Nanosecond()%int(time.Millisecond) != 0 || got.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp not UTC millisecond precision: %v", got.Timestamp)
	}

	line, err := os.ReadFile(tr.JSONLPath())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(line)), "\n")
	again, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var want, have map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &want); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if err := json.Unmarshal(again, &have); err != nil {
		t.Fatalf("decode re-encoded: %v", err)
	}
	if !reflect.DeepEqual(want, have) {
		t.Fatalf("round trip mismatch:\n%v\n%v", want, have)
	}
	if !strings.HasSuffix(want["ts_utc"].(string), "+00:00") {
		t.Fatalf("unexpected timestamp format %v", want["ts_utc"])
	}
}

func TestConcurrentLoggingKeepsIndicesDense(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracer(t, dir)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				tr.LogToolCall("calculator", map[string]any{"expression": "1"})
			}
		}()
	}
	wg.Wait()
	summary, err := tr.Complete(StatusSuccess, nil, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	events, err := ReadEvents(tr.JSONLPath())
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	for i, ev := range events {
		if ev.Index != i+1 {
			t.Fatalf("gap at %d: idx %d", i, ev.Index)
		}
	}
	if summary.EventCount != 202 || summary.ToolCallCount != 200 {
		t.Fatalf("unexpected counters %+v", summary)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	if got := Preview("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	long := strings.Repeat("é", 12)
	got := Preview(long, 10)
	if got != strings.Repeat("é", 10)+TruncationMarker {
		t.Fatalf("unexpected %q", got)
	}
}

func TestRunIDFormat(t *testing.T) {
	t.Parallel()

	id := NewRunID()
	if !strings.HasPrefix(id, "run_") || len(id) != 16 {
		t.Fatalf("unexpected run id %q", id)
	}
}

func TestContextScoping(t *testing.T) {
	t.Parallel()

	outer := &Tracer{runID: "outer"}
	inner := &Tracer{runID: "inner"}
	ctx := context.Background()
	if FromContext(ctx) != nil {
		t.Fatalf("expected no tracer in background context")
	}
	octx := WithTracer(ctx, outer)
	func() {
		ictx := WithTracer(octx, inner)
		if FromContext(ictx) != inner {
			t.Fatalf("inner scope should see inner tracer")
		}
	}()
	if FromContext(octx) != outer {
		t.Fatalf("outer scope should be restored")
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			own := &Tracer{runID: NewRunID()}
			c := WithTracer(octx, own)
			if FromContext(c) != own {
				t.Errorf("goroutine %d saw a foreign tracer", i)
			}
		}(i)
	}
	wg.Wait()
}

func TestListRunsFlagsIncompleteRuns(t *testing.T) {
	dir := t.TempDir()
	done := newTestTracer(t, dir)
	if _, err := done.Complete(StatusSuccess, nil, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	interrupted := newTestTracer(t, dir)
	interrupted.LogPhase("planning", PhaseStarted, nil)

	runs, err := ListRuns(dir)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	byID := map[string]RunInfo{}
	for _, r := range runs {
		byID[r.RunID] = r
	}
	if !byID[done.RunID()].Complete || byID[done.RunID()].Summary == nil {
		t.Fatalf("completed run not detected")
	}
	if byID[interrupted.RunID()].Complete {
		t.Fatalf("interrupted run reported complete")
	}

	if _, err := FindRun(dir, "../etc"); err == nil {
		t.Fatalf("expected FindRun to reject path-like ids")
	}
	info, err := FindRun(dir, interrupted.RunID())
	if err != nil || info.Complete {
		t.Fatalf("FindRun: %+v %v", info, err)
	}
}
