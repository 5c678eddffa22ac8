package statement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/FACorreiaa/statement-ingest/pkg/storage"
)

// Enqueuer pushes a statement onto the job queue. The queue package provides
// the concrete implementation; the interface lives here so the service does
// not depend on queue internals.
type Enqueuer interface {
	Enqueue(ctx context.Context, statementID uuid.UUID, attempt int) error
}

// StatementView is the query-surface projection of a statement
type StatementView struct {
	Statement    *Statement
	Transactions []Transaction
	Warnings     []string
	History      []LogEntry
}

// RetryResult reports the outcome of a retry request
type RetryResult struct {
	Accepted bool
	Reason   string
	Attempt  int
}

// Service exposes the statement query surface to the (external) web layer
type Service struct {
	repo        Repository
	store       storage.DocumentStore
	queue       Enqueuer
	maxAttempts int
	logger      *slog.Logger
}

// NewService creates a statement service
func NewService(repo Repository, store storage.DocumentStore, queue Enqueuer, maxAttempts int, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		store:       store,
		queue:       queue,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Submit stores the raw document, creates the statement record and enqueues it
// for processing. Document store writes are retried with backoff since they
// are the classic transient failure.
func (s *Service) Submit(ctx context.Context, ownerID uuid.UUID, filename, mimeType string, r io.Reader, declaredBank *string) (*Statement, error) {
	var info *storage.DocumentInfo
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var storeErr error
		info, storeErr = s.store.Store(ctx, filename, mimeType, r)
		if storeErr != nil {
			return retry.RetryableError(storeErr)
		}
		return nil
	})
	if err != nil {
		return nil, NewFault(FaultTransientIO, "document store write failed", err)
	}

	st := &Statement{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		DocHandle:        info.Handle,
		MimeType:         mimeType,
		OriginalFilename: filename,
		DeclaredBank:     declaredBank,
		Status:           StatusUploaded,
	}
	if err := s.repo.CreateStatement(ctx, st); err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, st.ID, StatusUploaded, 1); err != nil {
		return nil, err
	}
	st.Status = StatusQueued
	st.Attempt = 1

	s.logger.Info("statement submitted",
		slog.String("statement_id", st.ID.String()),
		slog.String("mime_type", mimeType),
	)
	return st, nil
}

// GetStatement returns a statement with its transactions, warnings and history
func (s *Service) GetStatement(ctx context.Context, id uuid.UUID) (*StatementView, error) {
	st, err := s.repo.GetStatement(ctx, id)
	if err != nil {
		return nil, err
	}

	txs, err := s.repo.ListTransactions(ctx, id, TransactionFilter{Limit: 1000})
	if err != nil {
		return nil, err
	}

	logs, err := s.repo.ListLogs(ctx, id)
	if err != nil {
		return nil, err
	}

	return &StatementView{
		Statement:    st,
		Transactions: txs,
		Warnings:     collectWarnings(logs),
		History:      logs,
	}, nil
}

// ListTransactions returns a filtered page of transactions for a statement
func (s *Service) ListTransactions(ctx context.Context, statementID uuid.UUID, filter TransactionFilter) ([]Transaction, error) {
	if _, err := s.repo.GetStatement(ctx, statementID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, statementID, filter)
}

// Retry re-queues a FAILED or PARTIAL statement for another processing run.
// Deduplication makes the re-run idempotent for rows already persisted.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*RetryResult, error) {
	st, err := s.repo.GetStatement(ctx, id)
	if err != nil {
		return nil, err
	}

	if st.Status != StatusFailed && st.Status != StatusPartial {
		return &RetryResult{Accepted: false, Reason: fmt.Sprintf("statement is %s, only FAILED or PARTIAL can be retried", st.Status)}, nil
	}
	if st.Attempt >= s.maxAttempts {
		return &RetryResult{Accepted: false, Reason: fmt.Sprintf("retry cap of %d attempts reached, manual intervention required", s.maxAttempts)}, nil
	}

	attempt := st.Attempt + 1
	if err := s.enqueue(ctx, id, st.Status, attempt); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return &RetryResult{Accepted: false, Reason: "statement state changed concurrently"}, nil
		}
		return nil, err
	}

	s.logger.Info("statement retry accepted",
		slog.String("statement_id", id.String()),
		slog.Int("attempt", attempt),
	)
	return &RetryResult{Accepted: true, Attempt: attempt}, nil
}

// Cancel flags a queued statement so the worker discards results before commit
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkCancelled(ctx, id)
}

func (s *Service) enqueue(ctx context.Context, id uuid.UUID, from Status, attempt int) error {
	if err := s.repo.Transition(ctx, id, from, StatusQueued, attempt, "enqueued for processing", nil); err != nil {
		return err
	}
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.queue.Enqueue(ctx, id, attempt); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		return nil
	}

	// The statement is QUEUED but no job exists. Park it in FAILED so a
	// later Retry can requeue it instead of leaving it stranded.
	fault := NewFault(FaultTransientIO, "queue write failed", err)
	detail := map[string]any{
		"fault": string(FaultTransientIO),
		"error": err.Error(),
	}
	if terr := s.repo.Transition(ctx, id, StatusQueued, StatusFailed, attempt, "enqueue failed", detail); terr != nil {
		return errors.Join(fault, terr)
	}
	return fault
}

// collectWarnings flattens warning details out of the processing history
func collectWarnings(logs []LogEntry) []string {
	var warnings []string
	for _, e := range logs {
		raw, ok := e.Detail["warnings"]
		if !ok {
			continue
		}
		items, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			if s, ok := item.(string); ok {
				warnings = append(warnings, s)
			}
		}
	}
	return warnings
}
