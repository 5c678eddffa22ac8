// Package orchestrator drives a statement through the full ingestion
// pipeline: classify, extract, parse, validate, persist. It owns the status
// state machine and guarantees exactly one processing log entry per
// transition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
	"github.com/FACorreiaa/statement-ingest/internal/ingest/extract"
	"github.com/FACorreiaa/statement-ingest/internal/ingest/parse"
	"github.com/FACorreiaa/statement-ingest/internal/ingest/validate"
	"github.com/FACorreiaa/statement-ingest/internal/metrics"
	"github.com/FACorreiaa/statement-ingest/internal/queue"
	"github.com/FACorreiaa/statement-ingest/pkg/storage"
)

// Config bounds a processing run
type Config struct {
	ProcessingTimeout time.Duration
	MaxAttempts       int
}

// Classifier decides the extraction strategy for a document
type Classifier interface {
	Classify(ctx context.Context, data []byte, mimeType string) (*extract.Classification, error)
}

// PageExtractor produces per-page results for a classified document
type PageExtractor interface {
	ExtractPages(ctx context.Context, data []byte, cls *extract.Classification) ([]extract.PageResult, error)
}

// RowParser turns page results into transaction candidates
type RowParser interface {
	Parse(pages []extract.PageResult, declaredBank *string) *parse.Result
}

// RowValidator filters candidates and computes the run summary
type RowValidator interface {
	Validate(candidates []parse.Candidate, currency string, now time.Time) *validate.Outcome
}

// Orchestrator implements queue.Handler for statement processing jobs
type Orchestrator struct {
	repo       statement.Repository
	store      storage.DocumentStore
	classifier Classifier
	extractor  PageExtractor
	parser     RowParser
	validator  RowValidator
	cfg        Config
	logger     *slog.Logger
}

// New creates an orchestrator
func New(repo statement.Repository, store storage.DocumentStore, classifier Classifier, extractor PageExtractor, parser RowParser, validator RowValidator, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Orchestrator{
		repo:       repo,
		store:      store,
		classifier: classifier,
		extractor:  extractor,
		parser:     parser,
		validator:  validator,
		cfg:        cfg,
		logger:     logger,
	}
}

// runOutcome carries everything the terminal transition needs
type runOutcome struct {
	strategy statement.Strategy
	inserted int
	skipped  int
	warnings []extract.Warning
	summary  validate.Summary
}

// Process runs the pipeline for one claimed job. Statement-level failures
// end in a FAILED status and acknowledge the job; only infrastructure
// errors propagate so the queue redelivers.
func (o *Orchestrator) Process(ctx context.Context, job *queue.Job) error {
	st, err := o.repo.GetStatement(ctx, job.StatementID)
	if err != nil {
		if errors.Is(err, statement.ErrNotFound) {
			return fmt.Errorf("%w: statement %s no longer exists", queue.ErrDrop, job.StatementID)
		}
		return err
	}
	if st.Status != statement.StatusQueued {
		// Redelivered job for a statement another run already handled
		o.logger.Warn("skipping job for statement not in QUEUED",
			slog.String("statement_id", st.ID.String()),
			slog.String("status", string(st.Status)),
		)
		return nil
	}

	err = o.repo.Transition(ctx, st.ID, statement.StatusQueued, statement.StatusProcessing, job.Attempt, "processing started", nil)
	if err != nil {
		if errors.Is(err, statement.ErrStatusConflict) {
			return nil
		}
		return err
	}
	st.Attempt = job.Attempt

	started := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, o.cfg.ProcessingTimeout)
	defer cancel()

	outcome, runErr := o.run(runCtx, st)

	strategyLabel := "unknown"
	if outcome != nil {
		strategyLabel = string(outcome.strategy)
	}
	metrics.ProcessingDuration.WithLabelValues(strategyLabel).Observe(time.Since(started).Seconds())

	if runErr != nil {
		return o.fail(ctx, st, runCtx, runErr)
	}
	return o.finish(ctx, st, outcome)
}

// run executes the pipeline stages inside the wall-clock budget
func (o *Orchestrator) run(ctx context.Context, st *statement.Statement) (*runOutcome, error) {
	data, err := o.readDocument(ctx, st.DocHandle)
	if err != nil {
		return nil, err
	}

	cls, err := o.classifier.Classify(ctx, data, st.MimeType)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrUnsupportedFormat):
			return nil, statement.NewFault(statement.FaultUnsupportedFormat, "document format not supported", err)
		case errors.Is(err, extract.ErrCorruptDocument):
			return nil, statement.NewFault(statement.FaultCorruptDocument, "document cannot be opened", err)
		default:
			return nil, statement.NewFault(statement.FaultTransientIO, "classification failed", err)
		}
	}
	strategy := statement.Strategy(cls.Strategy)

	pages, err := o.extractor.ExtractPages(ctx, data, cls)
	if err != nil {
		if ctx.Err() != nil {
			return &runOutcome{strategy: strategy}, ctx.Err()
		}
		return &runOutcome{strategy: strategy}, statement.NewFault(statement.FaultTransientIO, "page extraction failed", err)
	}
	for _, page := range pages {
		if page.Strategy != extract.StrategyNativePDF {
			metrics.OCRConfidence.Observe(page.Confidence)
		}
	}

	parsed := o.parser.Parse(pages, st.DeclaredBank)
	outcome := o.validator.Validate(parsed.Candidates, parsed.Currency, time.Now().UTC())

	warnings := make([]extract.Warning, 0, len(outcome.Warnings))
	for _, page := range pages {
		warnings = append(warnings, page.Warnings...)
	}
	warnings = append(warnings, parsed.Warnings...)
	warnings = append(warnings, outcome.Warnings...)
	for _, w := range warnings {
		metrics.ExtractionWarnings.WithLabelValues(string(w.Kind)).Inc()
	}

	if err := ctx.Err(); err != nil {
		return &runOutcome{strategy: strategy}, err
	}

	// Last look before commit: a cancellation that raced the run discards
	// everything extracted so far.
	fresh, err := o.repo.GetStatement(ctx, st.ID)
	if err != nil {
		return &runOutcome{strategy: strategy}, err
	}
	if fresh.Cancelled {
		return &runOutcome{strategy: strategy}, statement.NewFault(statement.FaultCancelled, "statement was cancelled", nil)
	}

	err = o.repo.UpdateExtractionMeta(ctx, st.ID, strategy,
		nilIfEmpty(parsed.DetectedBank), nilIfEmpty(parsed.AccountNumber),
		outcome.Summary.PeriodStart, outcome.Summary.PeriodEnd)
	if err != nil {
		return &runOutcome{strategy: strategy}, err
	}

	rows := make([]statement.Transaction, 0, len(outcome.Rows))
	for _, r := range outcome.Rows {
		rows = append(rows, statement.Transaction{
			StatementID: st.ID,
			Date:        r.Date,
			Description: r.Description,
			RawLine:     r.RawLine,
			Amount:      r.Amount,
			Balance:     r.Balance,
			Page:        r.Page,
			Row:         r.Row,
			Confidence:  r.Confidence,
			Category:    r.Category,
			NeedsReview: r.NeedsReview,
			Fingerprint: r.Fingerprint,
		})
	}
	inserted, skipped, err := o.repo.InsertTransactions(ctx, st.ID, rows)
	if err != nil {
		return &runOutcome{strategy: strategy}, err
	}
	metrics.TransactionsPersisted.WithLabelValues("inserted").Add(float64(inserted))
	metrics.TransactionsPersisted.WithLabelValues("skipped").Add(float64(skipped))

	return &runOutcome{
		strategy: strategy,
		inserted: inserted,
		skipped:  skipped,
		warnings: warnings,
		summary:  outcome.Summary,
	}, nil
}

// finish writes the terminal transition for a completed run. Only warnings
// that mark lost rows or pages demote the outcome to PARTIAL; dedup notes are
// informational and stay in the log detail. A clean run is SUCCEEDED even when
// the statement held no transactions at all.
func (o *Orchestrator) finish(ctx context.Context, st *statement.Statement, outcome *runOutcome) error {
	status := statement.StatusSucceeded
	message := "processing succeeded"
	if n := countLossWarnings(outcome.warnings); n > 0 {
		status = statement.StatusPartial
		message = fmt.Sprintf("processing finished with %d warnings", n)
	}

	detail := map[string]any{
		"strategy":      string(outcome.strategy),
		"inserted":      outcome.inserted,
		"skipped":       outcome.skipped,
		"count":         outcome.summary.Count,
		"total_debits":  outcome.summary.DebitsDisplay,
		"total_credits": outcome.summary.CreditsDisplay,
	}
	if ws := warningStrings(outcome.warnings); len(ws) > 0 {
		detail["warnings"] = ws
	}

	err := o.repo.Transition(ctx, st.ID, statement.StatusProcessing, status, st.Attempt, message, detail)
	if err != nil {
		return err
	}

	metrics.StatementsProcessed.WithLabelValues(string(status)).Inc()
	o.logger.Info("statement processed",
		slog.String("statement_id", st.ID.String()),
		slog.String("status", string(status)),
		slog.Int("inserted", outcome.inserted),
		slog.Int("skipped", outcome.skipped),
		slog.Int("warnings", len(outcome.warnings)),
	)
	return nil
}

// fail records a FAILED terminal state with the fault taxonomy in the log
func (o *Orchestrator) fail(ctx context.Context, st *statement.Statement, runCtx context.Context, runErr error) error {
	kind := statement.KindOf(runErr)
	if errors.Is(runErr, context.DeadlineExceeded) || (runCtx.Err() != nil && ctx.Err() == nil) {
		kind = statement.FaultTimeout
	}

	detail := map[string]any{
		"fault": string(kind),
		"error": runErr.Error(),
	}
	if st.Attempt >= o.cfg.MaxAttempts {
		detail["retries_exhausted"] = true
	}

	err := o.repo.Transition(ctx, st.ID, statement.StatusProcessing, statement.StatusFailed, st.Attempt,
		fmt.Sprintf("processing failed: %s", kind), detail)
	if err != nil {
		return err
	}

	metrics.StatementsProcessed.WithLabelValues(string(statement.StatusFailed)).Inc()
	o.logger.Error("statement processing failed",
		slog.String("statement_id", st.ID.String()),
		slog.String("fault", string(kind)),
		slog.Int("attempt", st.Attempt),
		slog.Any("error", runErr),
	)
	return nil
}

// readDocument loads the raw document with backoff, since object reads are
// the pipeline's main transient failure.
func (o *Orchestrator) readDocument(ctx context.Context, handle uuid.UUID) ([]byte, error) {
	var data []byte
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rc, err := o.store.Open(ctx, handle)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, statement.NewFault(statement.FaultTransientIO, "failed to read document", err)
	}
	return data, nil
}

// countLossWarnings counts warnings describing rows or pages that failed
// extraction or validation. Duplicate notes describe merges, not losses.
func countLossWarnings(warnings []extract.Warning) int {
	n := 0
	for _, w := range warnings {
		switch w.Kind {
		case extract.WarnDuplicateDropped, extract.WarnNearDuplicate:
		default:
			n++
		}
	}
	return n
}

func warningStrings(warnings []extract.Warning) []string {
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, w.String())
	}
	return out
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
