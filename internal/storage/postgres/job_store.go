// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prospectica/leadpipe/internal/leads"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore implements leads.JobStore on Postgres.
//
// Expected schema:
//
//	CREATE TABLE jobs (
//		id          TEXT PRIMARY KEY,
//		job_type    TEXT NOT NULL,
//		status      TEXT NOT NULL,
//		payload     JSONB NOT NULL,
//		result      JSONB,
//		error_text  TEXT NOT NULL DEFAULT '',
//		created_at  TIMESTAMPTZ NOT NULL,
//		updated_at  TIMESTAMPTZ NOT NULL,
//		started_at  TIMESTAMPTZ,
//		finished_at TIMESTAMPTZ
//	);
type JobStore struct {
	pool dbPool
	now  func() time.Time
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &JobStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool dbPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

func newPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row in queued status.
func (s *JobStore) CreateJob(ctx context.Context, job leads.Job) error {
	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	now := s.now()
	query := `
INSERT INTO jobs (id, job_type, status, payload, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`
	if _, err := s.pool.Exec(ctx, query, job.ID, job.Type, leads.JobStatusQueued, payloadJSON, now); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (leads.Job, error) {
	query := `
SELECT id, job_type, status, payload, result, error_text, created_at, updated_at, started_at, finished_at
FROM jobs
WHERE id = $1`
	return s.scanJob(s.pool.QueryRow(ctx, query, jobID))
}

// MarkRunning transitions queued -> running, setting started_at exactly once.
func (s *JobStore) MarkRunning(ctx context.Context, jobID string) (leads.Job, error) {
	now := s.now()
	query := `
UPDATE jobs
SET status = $2, updated_at = $3, started_at = COALESCE(started_at, $3)
WHERE id = $1 AND status IN ('queued', 'running')
RETURNING id, job_type, status, payload, result, error_text, created_at, updated_at, started_at, finished_at`
	job, err := s.scanJob(s.pool.QueryRow(ctx, query, jobID, leads.JobStatusRunning, now))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, leads.ErrNotFound) {
		return leads.Job{}, err
	}
	// No transitionable row: distinguish a terminal job from a missing one.
	existing, getErr := s.GetJob(ctx, jobID)
	if getErr != nil {
		return leads.Job{}, getErr
	}
	return existing, fmt.Errorf("mark running %s: %w", jobID, leads.ErrTerminal)
}

// MarkComplete transitions a non-terminal job to complete and stores the
// result. Re-applying complete is a no-op.
func (s *JobStore) MarkComplete(ctx context.Context, jobID string, result []leads.Lead) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	now := s.now()
	query := `
UPDATE jobs
SET status = $2, result = $3, error_text = '', updated_at = $4, finished_at = COALESCE(finished_at, $4)
WHERE id = $1 AND status IN ('queued', 'running')`
	tag, err := s.pool.Exec(ctx, query, jobID, leads.JobStatusComplete, resultJSON, now)
	if err != nil {
		return fmt.Errorf("update job complete: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return s.terminalNoop(ctx, jobID, leads.JobStatusComplete)
}

// MarkFailed transitions a non-terminal job to failed and stores the reason.
// Re-applying failed is a no-op.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, errText string) error {
	now := s.now()
	query := `
UPDATE jobs
SET status = $2, error_text = $3, result = NULL, updated_at = $4, finished_at = COALESCE(finished_at, $4)
WHERE id = $1 AND status IN ('queued', 'running')`
	tag, err := s.pool.Exec(ctx, query, jobID, leads.JobStatusFailed, errText, now)
	if err != nil {
		return fmt.Errorf("update job failed: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return s.terminalNoop(ctx, jobID, leads.JobStatusFailed)
}

// terminalNoop resolves a zero-row terminal update: the same terminal status
// is a duplicate-delivery no-op, a different one is rejected.
func (s *JobStore) terminalNoop(ctx context.Context, jobID string, want leads.JobStatus) error {
	existing, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if existing.Status == want {
		return nil
	}
	return fmt.Errorf("mark %s %s: %w", want, jobID, leads.ErrTerminal)
}

// ListStaleQueued returns queued jobs created before the cutoff, oldest first.
func (s *JobStore) ListStaleQueued(ctx context.Context, olderThan time.Duration, limit int) ([]leads.Job, error) {
	cutoff := s.now().Add(-olderThan)
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT id, job_type, status, payload, result, error_text, created_at, updated_at, started_at, finished_at
FROM jobs
WHERE status = 'queued' AND created_at < $1
ORDER BY created_at ASC
LIMIT $2`
	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []leads.Job
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) scanJob(row pgx.Row) (leads.Job, error) {
	var (
		job         leads.Job
		payloadJSON []byte
		resultJSON  []byte
	)
	err := row.Scan(
		&job.ID,
		&job.Type,
		&job.Status,
		&payloadJSON,
		&resultJSON,
		&job.ErrorText,
		&job.Created,
		&job.Updated,
		&job.Started,
		&job.Finished,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leads.Job{}, leads.ErrNotFound
		}
		return leads.Job{}, fmt.Errorf("scan job row: %w", err)
	}
	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return leads.Job{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &job.Result); err != nil {
			return leads.Job{}, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return job, nil
}
