package trace

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType enumerates the records a run trace may contain.
type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventPhase           EventType = "phase"
	EventToolCall        EventType = "tool_call"
	EventToolResult      EventType = "tool_result"
	EventMessageSnapshot EventType = "message_snapshot"
	EventFinalReport     EventType = "final_report"
	EventRunCompleted    EventType = "run_completed"
)

// Phase statuses used with LogPhase.
const (
	PhaseStarted   = "started"
	PhaseCompleted = "completed"
)

// Payload carries event specific fields.
type Payload map[string]any

// Event is one immutable line of a run trace.
type Event struct {
	Timestamp Timestamp `json:"ts_utc"`
	RunID     string    `json:"run_id"`
	Index     int       `json:"idx"`
	Type      EventType `json:"event_type"`
	Payload   Payload   `json:"payload"`
}

const timestampLayout = "2006-01-02T15:04:05.000-07:00"

// Timestamp is a UTC instant serialised with millisecond precision.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to milliseconds in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.UTC().Format(timestampLayout))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	ts.Time = parsed.UTC()
	return nil
}

// String returns the payload value for key rendered as a string.
func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the payload value for key as an int, accepting the numeric
// shapes produced by encoding/json.
func (p Payload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// Bool returns the payload value for key when it is a boolean.
func (p Payload) Bool(key string) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}
