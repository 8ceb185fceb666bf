// Package trace records an append-only JSONL trajectory for one workflow run
// and derives an end-of-run summary from it.
package trace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// DefaultDir is where traces are written when no directory is configured.
	DefaultDir = "trajectories"
	// DefaultPreviewLimit bounds previews of tool output, messages and reports.
	DefaultPreviewLimit = 1200
	// TruncationMarker is appended to previews that were cut.
	TruncationMarker = "...<truncated>"
)

// Run statuses passed to Complete.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrCompleted is returned by Complete when the run was already finalised.
var ErrCompleted = errors.New("trace: run already completed")

// Options configures a Tracer.
type Options struct {
	Topic    string
	Provider string
	Model    string
	Enabled  bool
	// Dir defaults to DefaultDir.
	Dir string
	// RunID defaults to NewRunID().
	RunID        string
	PreviewLimit int
	// Sinks receive a copy of every event after it was appended to the file.
	Sinks  []Sink
	Logger *log.Logger
	Now    func() time.Time
}

// Tracer collects and persists trajectory events for one run. A nil *Tracer
// and a disabled Tracer accept every call and do nothing.
type Tracer struct {
	mu sync.Mutex

	topic, provider, model string
	enabled                bool
	runID                  string
	jsonlPath, summaryPath string
	previewLimit           int
	now                    func() time.Time
	logger                 *log.Logger

	file  *FileSink
	sinks []Sink

	eventCount     int
	toolCallCount  int
	toolErrorCount int
	completed      bool
	summary        *Summary
}

// NewRunID returns an identifier of the form run_<12 hex>.
func NewRunID() string {
	return "run_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// New constructs a tracer. When enabled it creates the trace directory and
// emits run_started immediately; when disabled it touches nothing.
func New(opts Options) (*Tracer, error) {
	t := &Tracer{
		topic:        opts.Topic,
		provider:     opts.Provider,
		model:        opts.Model,
		enabled:      opts.Enabled,
		runID:        opts.RunID,
		previewLimit: opts.PreviewLimit,
		now:          opts.Now,
		logger:       opts.Logger,
		sinks:        opts.Sinks,
	}
	if t.runID == "" {
		t.runID = NewRunID()
	}
	if t.previewLimit <= 0 {
		t.previewLimit = DefaultPreviewLimit
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.logger == nil {
		t.logger = log.New(log.Writer(), "[TRACE] ", log.LstdFlags)
	}
	dir := opts.Dir
	if dir == "" {
		dir = DefaultDir
	}
	t.jsonlPath = filepath.Join(dir, t.runID+".jsonl")
	t.summaryPath = filepath.Join(dir, t.runID+".summary.json")

	if !t.enabled {
		return t, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace dir: %w", err)
	}
	file, err := OpenFileSink(t.jsonlPath)
	if err != nil {
		return nil, err
	}
	t.file = file
	t.LogEvent(EventRunStarted, Payload{
		"topic":    t.topic,
		"provider": t.provider,
		"model":    t.model,
	})
	return t, nil
}

// RunID returns the run identifier.
func (t *Tracer) RunID() string {
	if t == nil {
		return ""
	}
	return t.runID
}

// Enabled reports whether events are persisted.
func (t *Tracer) Enabled() bool { return t != nil && t.enabled }

// JSONLPath is the event log location (not created when disabled).
func (t *Tracer) JSONLPath() string {
	if t == nil {
		return ""
	}
	return t.jsonlPath
}

// SummaryPath is the summary document location.
func (t *Tracer) SummaryPath() string {
	if t == nil {
		return ""
	}
	return t.summaryPath
}

// LogEvent appends one event. Calls after Complete are ignored.
func (t *Tracer) LogEvent(eventType EventType, payload Payload) {
	if t == nil || !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(eventType, payload)
}

func (t *Tracer) appendLocked(eventType EventType, payload Payload) {
	if t.completed {
		return
	}
	if payload == nil {
		payload = Payload{}
	}
	t.eventCount++
	ev := Event{
		Timestamp: NewTimestamp(t.now()),
		RunID:     t.runID,
		Index:     t.eventCount,
		Type:      eventType,
		Payload:   payload,
	}
	ctx := context.Background()
	if err := t.file.Write(ctx, ev); err != nil {
		t.logger.Printf("run %s: failed to append %s event: %v", t.runID, eventType, err)
	}
	for _, sink := range t.sinks {
		if err := sink.Write(ctx, ev); err != nil {
			t.logger.Printf("run %s: sink %T rejected event %d: %v", t.runID, sink, ev.Index, err)
		}
	}
}

// LogPhase records a phase transition; extra fields are merged into the payload.
func (t *Tracer) LogPhase(phase, status string, extra Payload) {
	if t == nil || !t.enabled {
		return
	}
	payload := Payload{}
	for k, v := range extra {
		payload[k] = v
	}
	payload["phase"] = phase
	payload["status"] = status
	t.LogEvent(EventPhase, payload)
}

// LogToolCall records a tool invocation before it runs.
func (t *Tracer) LogToolCall(tool string, args map[string]any) {
	if t == nil || !t.enabled {
		return
	}
	if args == nil {
		args = map[string]any{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed {
		return
	}
	t.toolCallCount++
	t.appendLocked(EventToolCall, Payload{"tool": tool, "kwargs": args})
}

// LogToolResult records a tool outcome with its latency and a bounded preview.
func (t *Tracer) LogToolResult(tool string, ok bool, latency time.Duration, output string) {
	if t == nil || !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed {
		return
	}
	if !ok {
		t.toolErrorCount++
	}
	t.appendLocked(EventToolResult, Payload{
		"tool":           tool,
		"ok":             ok,
		"latency_ms":     latency.Milliseconds(),
		"result_preview": Preview(output, t.previewLimit),
	})
}

// LogMessageSnapshot records model text by preview and digest.
func (t *Tracer) LogMessageSnapshot(role, text string) {
	if t == nil || !t.enabled {
		return
	}
	t.LogEvent(EventMessageSnapshot, Payload{
		"role":         role,
		"text_preview": Preview(text, t.previewLimit),
		"text_sha256":  digest(text),
	})
}

// Complete seals the run: it emits final_report when a report is given, then
// run_completed as the last event, then writes the summary document. It runs at most once;
// later calls return the first summary and ErrCompleted.
func (t *Tracer) Complete(status string, report *string, runErr error) (Summary, error) {
	if t == nil {
		return Summary{Status: status}, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed {
		return *t.summary, ErrCompleted
	}

	var errText *string
	if runErr != nil {
		s := runErr.Error()
		errText = &s
	}
	summary := Summary{
		RunID:     t.runID,
		Topic:     t.topic,
		Provider:  t.provider,
		Model:     t.model,
		Status:    status,
		JSONLPath: t.jsonlPath,
		Error:     errText,
	}
	if report != nil {
		n := utf8.RuneCountInString(*report)
		sum := digest(*report)
		summary.ReportLen = &n
		summary.ReportSHA256 = &sum
	}

	if !t.enabled {
		t.completed = true
		summary.ToolCallCount = t.toolCallCount
		summary.ToolErrorCount = t.toolErrorCount
		t.summary = &summary
		return summary, nil
	}

	if report != nil {
		t.appendLocked(EventFinalReport, Payload{
			"report_len":     *summary.ReportLen,
			"report_sha256":  *summary.ReportSHA256,
			"report_preview": Preview(*report, t.previewLimit),
		})
	}
	t.appendLocked(EventRunCompleted, Payload{"status": status, "error": errText})
	t.completed = true
	summary.EventCount = t.eventCount
	summary.ToolCallCount = t.toolCallCount
	summary.ToolErrorCount = t.toolErrorCount
	t.summary = &summary

	var errs []error
	if err := writeSummary(t.summaryPath, summary); err != nil {
		errs = append(errs, err)
	}
	if err := t.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close trace file: %w", err))
	}
	for _, sink := range t.sinks {
		if err := sink.Close(); err != nil {
			t.logger.Printf("run %s: closing sink %T: %v", t.runID, sink, err)
		}
	}
	return summary, errors.Join(errs...)
}

// Summary returns the run summary. Before Complete it reflects the counters
// so far with an empty status.
func (t *Tracer) Summary() Summary {
	if t == nil {
		return Summary{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.summary != nil {
		return *t.summary
	}
	return Summary{
		RunID:          t.runID,
		Topic:          t.topic,
		Provider:       t.provider,
		Model:          t.model,
		EventCount:     t.eventCount,
		ToolCallCount:  t.toolCallCount,
		ToolErrorCount: t.toolErrorCount,
		JSONLPath:      t.jsonlPath,
	}
}

// Preview truncates text to limit characters, marking the cut.
func Preview(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + TruncationMarker
}

func digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func writeSummary(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
