package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink receives every event of a run in index order.
type Sink interface {
	Write(ctx context.Context, ev Event) error
	Close() error
}

// FileSink appends events to a JSONL file, one object per line.
type FileSink struct {
	f *os.File
}

// OpenFileSink opens path for appending, creating it when missing.
func OpenFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) Write(_ context.Context, ev Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	if s == nil || s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// DefaultStreamPrefix prefixes the per-run Redis stream key.
const DefaultStreamPrefix = "trace:"

// StreamOption tweaks the XADD issued for each event.
type StreamOption func(*redis.XAddArgs)

// WithMaxLenApprox caps the stream length approximately.
func WithMaxLenApprox(maxLen int64) StreamOption {
	return func(args *redis.XAddArgs) {
		if maxLen > 0 {
			args.MaxLen = maxLen
			args.Approx = true
		}
	}
}

// RedisStreamSink mirrors events into a Redis stream named <prefix><run_id>
// so that other processes can follow a run live.
type RedisStreamSink struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	opts    []StreamOption
}

// NewRedisStreamSink wraps client. An empty prefix uses DefaultStreamPrefix.
func NewRedisStreamSink(client redis.UniversalClient, prefix string, timeout time.Duration, opts ...StreamOption) *RedisStreamSink {
	if prefix == "" {
		prefix = DefaultStreamPrefix
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisStreamSink{client: client, prefix: prefix, timeout: timeout, opts: opts}
}

// StreamKey returns the stream holding runID's events.
func (s *RedisStreamSink) StreamKey(runID string) string {
	return s.prefix + runID
}

func (s *RedisStreamSink) Write(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.StreamKey(ev.RunID),
		Values: map[string]interface{}{
			"idx":        strconv.Itoa(ev.Index),
			"event_type": string(ev.Type),
			"event":      string(raw),
		},
	}
	for _, opt := range s.opts {
		opt(args)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

// Close leaves the shared client open; its owner closes it.
func (s *RedisStreamSink) Close() error { return nil }

// ReadStream loads every event mirrored for runID, oldest first.
func (s *RedisStreamSink) ReadStream(ctx context.Context, runID string) ([]Event, error) {
	msgs, err := s.client.XRange(ctx, s.StreamKey(runID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange: %w", err)
	}
	events := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["event"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no event field", msg.ID)
		}
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
