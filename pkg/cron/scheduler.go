// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
	"github.com/FACorreiaa/statement-ingest/internal/metrics"
	"github.com/FACorreiaa/statement-ingest/internal/queue"
)

// Querier is the read surface the sweeper needs beyond the repository
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scheduler manages the background sweeper jobs.
type Scheduler struct {
	cron              *cron.Cron
	queue             *queue.Queue
	repo              statement.Repository
	db                Querier
	sweepSpec         string
	claimTTL          time.Duration
	processingTimeout time.Duration
	logger            *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(q *queue.Queue, repo statement.Repository, db Querier, sweepSpec string, claimTTL, processingTimeout time.Duration, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	if sweepSpec == "" {
		sweepSpec = "* * * * *"
	}

	return &Scheduler{
		cron:              c,
		queue:             q,
		repo:              repo,
		db:                db,
		sweepSpec:         sweepSpec,
		claimTTL:          claimTTL,
		processingTimeout: processingTimeout,
		logger:            logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.sweepSpec, s.sweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the sweeper (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.sweep()
}

// sweep releases stale queue claims and fails statements whose worker died
// mid-run, making them eligible for retry.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	released, err := s.queue.ReleaseStale(ctx, s.claimTTL)
	if err != nil {
		s.logger.Error("failed to release stale claims", slog.Any("error", err))
	} else if released > 0 {
		metrics.StaleClaimsReleased.Add(float64(released))
		s.logger.Warn("released stale queue claims", slog.Int("count", released))
	}

	s.failStuckStatements(ctx)
	s.observeQueueDepth(ctx)
}

// failStuckStatements moves statements stuck in PROCESSING beyond twice the
// processing budget to FAILED with a Timeout detail. The conditional
// transition means a run that finishes concurrently wins the race.
func (s *Scheduler) failStuckStatements(ctx context.Context) {
	cutoff := 2 * s.processingTimeout
	rows, err := s.db.Query(ctx, `
		SELECT id, attempt FROM statements
		WHERE status = 'PROCESSING' AND updated_at < NOW() - $1::interval
	`, cutoff.String())
	if err != nil {
		s.logger.Error("failed to list stuck statements", slog.Any("error", err))
		return
	}
	defer rows.Close()

	type stuck struct {
		id      uuid.UUID
		attempt int
	}
	var found []stuck
	for rows.Next() {
		var st stuck
		if err := rows.Scan(&st.id, &st.attempt); err != nil {
			s.logger.Error("failed to scan stuck statement", slog.Any("error", err))
			return
		}
		found = append(found, st)
	}
	if rows.Err() != nil {
		s.logger.Error("failed to iterate stuck statements", slog.Any("error", rows.Err()))
		return
	}

	for _, st := range found {
		detail := map[string]any{
			"fault": string(statement.FaultTimeout),
			"error": "worker did not finish within the processing budget",
		}
		err := s.repo.Transition(ctx, st.id, statement.StatusProcessing, statement.StatusFailed, st.attempt,
			"processing failed: Timeout", detail)
		if err != nil {
			s.logger.Error("failed to fail stuck statement",
				slog.String("statement_id", st.id.String()),
				slog.Any("error", err),
			)
			continue
		}
		s.logger.Warn("failed stuck statement",
			slog.String("statement_id", st.id.String()),
			slog.Int("attempt", st.attempt),
		)
	}
}

func (s *Scheduler) observeQueueDepth(ctx context.Context) {
	var pending int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM statement_jobs WHERE status = 'pending'
	`).Scan(&pending)
	if err != nil {
		s.logger.Error("failed to count pending jobs", slog.Any("error", err))
		return
	}
	metrics.QueueDepth.Set(float64(pending))
}
