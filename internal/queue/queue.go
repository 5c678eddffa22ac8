// Package queue is the postgres-backed job queue that drives statement
// processing. Claims use FOR UPDATE SKIP LOCKED so workers never contend,
// and a partial unique index keeps at most one live job per statement.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Job statuses
const (
	StatusPending = "pending"
	StatusClaimed = "claimed"
	StatusDone    = "done"
	StatusDead    = "dead"
)

// ErrDrop signals that a job must not be redelivered
var ErrDrop = errors.New("job dropped")

// PGX is the subset of pgxpool.Pool the queue needs
type PGX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Job is one unit of statement processing work
type Job struct {
	ID          int64
	StatementID uuid.UUID
	Attempt     int
	Status      string
	RunAfter    time.Time
	ClaimedAt   *time.Time
	CreatedAt   time.Time
}

// Queue manages statement processing jobs
type Queue struct {
	db PGX
}

// New creates a queue over an existing connection pool
func New(db PGX) *Queue {
	return &Queue{db: db}
}

// Enqueue schedules processing for a statement. A statement that already has
// a pending or claimed job is left alone, which makes double-submits safe.
func (q *Queue) Enqueue(ctx context.Context, statementID uuid.UUID, attempt int) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO statement_jobs (statement_id, attempt, status, run_after)
		VALUES ($1, $2, 'pending', NOW())
		ON CONFLICT (statement_id) WHERE status IN ('pending', 'claimed') DO NOTHING
	`, statementID, attempt)
	if err != nil {
		return fmt.Errorf("failed to enqueue statement: %w", err)
	}
	return nil
}

// Claim takes the oldest runnable job, or returns nil when the queue is
// empty. SKIP LOCKED keeps concurrent workers from blocking on each other.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, statement_id, attempt, status, run_after, claimed_at, created_at
		FROM statement_jobs
		WHERE status = 'pending' AND run_after <= NOW()
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`)

	var job Job
	err = row.Scan(&job.ID, &job.StatementID, &job.Attempt, &job.Status,
		&job.RunAfter, &job.ClaimedAt, &job.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan claimed job: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE statement_jobs SET status = 'claimed', claimed_at = NOW() WHERE id = $1
	`, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark job claimed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	job.Status = StatusClaimed
	return &job, nil
}

// Ack finishes a job successfully
func (q *Queue) Ack(ctx context.Context, jobID int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE statement_jobs SET status = 'done' WHERE id = $1
	`, jobID)
	if err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// Nack returns a job to the queue after a delay
func (q *Queue) Nack(ctx context.Context, jobID int64, delay time.Duration) error {
	_, err := q.db.Exec(ctx, `
		UPDATE statement_jobs
		SET status = 'pending', claimed_at = NULL, run_after = NOW() + $2::interval
		WHERE id = $1
	`, jobID, delay.String())
	if err != nil {
		return fmt.Errorf("failed to nack job: %w", err)
	}
	return nil
}

// MarkDead removes a job from circulation permanently
func (q *Queue) MarkDead(ctx context.Context, jobID int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE statement_jobs SET status = 'dead' WHERE id = $1
	`, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job dead: %w", err)
	}
	return nil
}

// ReleaseStale re-opens claims older than the TTL. Crash recovery: a worker
// that died mid-run holds its claim until this sweeper frees it.
func (q *Queue) ReleaseStale(ctx context.Context, ttl time.Duration) (int, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE statement_jobs
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'claimed' AND claimed_at < NOW() - $1::interval
	`, ttl.String())
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
