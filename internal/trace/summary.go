package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Summary is the end-of-run aggregate. Every field except JSONLPath can be
// recomputed from the event log alone.
type Summary struct {
	RunID          string  `json:"run_id"`
	Topic          string  `json:"topic"`
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	Status         string  `json:"status"`
	EventCount     int     `json:"event_count"`
	ToolCallCount  int     `json:"tool_call_count"`
	ToolErrorCount int     `json:"tool_error_count"`
	JSONLPath      string  `json:"jsonl_path"`
	ReportLen      *int    `json:"report_len"`
	ReportSHA256   *string `json:"report_sha256"`
	Error          *string `json:"error"`
}

// Recompute derives a summary from an event stream.
func Recompute(events []Event) Summary {
	var s Summary
	for _, ev := range events {
		s.EventCount++
		if s.RunID == "" {
			s.RunID = ev.RunID
		}
		switch ev.Type {
		case EventRunStarted:
			s.Topic = ev.Payload.String("topic")
			s.Provider = ev.Payload.String("provider")
			s.Model = ev.Payload.String("model")
		case EventToolCall:
			s.ToolCallCount++
		case EventToolResult:
			if ok, present := ev.Payload.Bool("ok"); present && !ok {
				s.ToolErrorCount++
			}
		case EventRunCompleted:
			s.Status = ev.Payload.String("status")
			if msg, ok := ev.Payload["error"].(string); ok {
				s.Error = &msg
			}
		case EventFinalReport:
			if n, ok := ev.Payload.Int("report_len"); ok {
				s.ReportLen = &n
			}
			if sum := ev.Payload.String("report_sha256"); sum != "" {
				s.ReportSHA256 = &sum
			}
		}
	}
	return s
}

// ReadEvents decodes a JSONL trace file.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", path, line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return events, nil
}

// RecomputeFile reads path and recomputes its summary.
func RecomputeFile(path string) (Summary, error) {
	events, err := ReadEvents(path)
	if err != nil {
		return Summary{}, err
	}
	s := Recompute(events)
	s.JSONLPath = path
	return s, nil
}

// LoadSummary reads a summary document.
func LoadSummary(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("read summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	return s, nil
}

// RunInfo describes one trace found on disk. A run without a summary file did
// not complete (the process stopped mid-phase).
type RunInfo struct {
	RunID       string   `json:"run_id"`
	JSONLPath   string   `json:"jsonl_path"`
	SummaryPath string   `json:"summary_path"`
	Complete    bool     `json:"complete"`
	Summary     *Summary `json:"summary,omitempty"`
}

// ListRuns scans dir for traces, sorted by run id.
func ListRuns(dir string) ([]RunInfo, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("scan trace dir: %w", err)
	}
	runs := make([]RunInfo, 0, len(matches))
	for _, path := range matches {
		runID := strings.TrimSuffix(filepath.Base(path), ".jsonl")
		info := RunInfo{
			RunID:       runID,
			JSONLPath:   path,
			SummaryPath: filepath.Join(dir, runID+".summary.json"),
		}
		if s, err := LoadSummary(info.SummaryPath); err == nil {
			info.Complete = true
			info.Summary = &s
		}
		runs = append(runs, info)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })
	return runs, nil
}

// FindRun locates runID in dir.
func FindRun(dir, runID string) (RunInfo, error) {
	if runID == "" || runID != filepath.Base(runID) {
		return RunInfo{}, fmt.Errorf("invalid run id %q", runID)
	}
	info := RunInfo{
		RunID:       runID,
		JSONLPath:   filepath.Join(dir, runID+".jsonl"),
		SummaryPath: filepath.Join(dir, runID+".summary.json"),
	}
	if _, err := os.Stat(info.JSONLPath); err != nil {
		return RunInfo{}, fmt.Errorf("run %s: %w", runID, err)
	}
	if s, err := LoadSummary(info.SummaryPath); err == nil {
		info.Complete = true
		info.Summary = &s
	}
	return info, nil
}
