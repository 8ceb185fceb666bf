// Package store indexes finished run summaries in Postgres so runs can be
// listed without scanning the trace directory.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/marketresearch/internal/trace"
)

type Store struct {
	DB *sql.DB
}

// ErrNotFound is returned when no summary exists for a run id.
var ErrNotFound = errors.New("run summary not found")

// RunRecord is a stored summary plus the time it was recorded.
type RunRecord struct {
	trace.Summary
	RecordedAt time.Time `json:"recorded_at"`
}

// NewWithDSN opens and pings the database.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

const upsertSummary = `
INSERT INTO run_summaries (run_id, topic, provider, model, status, event_count, tool_call_count, tool_error_count, jsonl_path, report_len, report_sha256, error, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
ON CONFLICT (run_id) DO UPDATE SET
  status = EXCLUDED.status,
  event_count = EXCLUDED.event_count,
  tool_call_count = EXCLUDED.tool_call_count,
  tool_error_count = EXCLUDED.tool_error_count,
  report_len = EXCLUDED.report_len,
  report_sha256 = EXCLUDED.report_sha256,
  error = EXCLUDED.error,
  recorded_at = NOW();
`

// SaveSummary upserts a run summary keyed by run id.
func (s *Store) SaveSummary(ctx context.Context, sum trace.Summary) error {
	if sum.RunID == "" {
		return errors.New("summary has no run id")
	}
	_, err := s.DB.ExecContext(ctx, upsertSummary,
		sum.RunID, sum.Topic, sum.Provider, sum.Model, sum.Status,
		sum.EventCount, sum.ToolCallCount, sum.ToolErrorCount, sum.JSONLPath,
		nullInt(sum.ReportLen), nullString(sum.ReportSHA256), nullString(sum.Error),
	)
	if err != nil {
		return fmt.Errorf("save summary %s: %w", sum.RunID, err)
	}
	return nil
}

const selectSummary = `
SELECT run_id, topic, provider, model, status, event_count, tool_call_count, tool_error_count, jsonl_path, report_len, report_sha256, error, recorded_at
FROM run_summaries`

// GetSummary loads one run.
func (s *Store) GetSummary(ctx context.Context, runID string) (RunRecord, error) {
	row := s.DB.QueryRowContext(ctx, selectSummary+"\nWHERE run_id=$1", runID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	return rec, err
}

// ListSummaries returns the most recent runs first, optionally filtered by
// status. A non-positive limit means 50.
func (s *Store) ListSummaries(ctx context.Context, status string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, selectSummary+"\nWHERE ($1 = '' OR status = $1)\nORDER BY recorded_at DESC\nLIMIT $2", status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (RunRecord, error) {
	var (
		rec       RunRecord
		reportLen sql.NullInt64
		sha, msg  sql.NullString
	)
	err := sc.Scan(&rec.RunID, &rec.Topic, &rec.Provider, &rec.Model, &rec.Status,
		&rec.EventCount, &rec.ToolCallCount, &rec.ToolErrorCount, &rec.JSONLPath,
		&reportLen, &sha, &msg, &rec.RecordedAt)
	if err != nil {
		return RunRecord{}, err
	}
	if reportLen.Valid {
		n := int(reportLen.Int64)
		rec.ReportLen = &n
	}
	if sha.Valid {
		rec.ReportSHA256 = &sha.String
	}
	if msg.Valid {
		rec.Error = &msg.String
	}
	return rec, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
