package statement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrStatusConflict is returned when a status transition loses the race
// against a concurrent writer, or would skip a state.
var ErrStatusConflict = errors.New("statement status transition conflict")

// ErrNotFound is returned when a statement does not exist
var ErrNotFound = errors.New("statement not found")

// PGX is the subset of pgxpool.Pool the repository needs. pgxmock satisfies
// it in tests.
type PGX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TransactionFilter narrows ListTransactions results
type TransactionFilter struct {
	From        *time.Time
	To          *time.Time
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	NeedsReview *bool
	Limit       int
	Offset      int
}

// Repository is the persistence surface for statements, transactions and logs
type Repository interface {
	CreateStatement(ctx context.Context, st *Statement) error
	GetStatement(ctx context.Context, id uuid.UUID) (*Statement, error)
	Transition(ctx context.Context, id uuid.UUID, from, to Status, attempt int, message string, detail map[string]any) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
	UpdateExtractionMeta(ctx context.Context, id uuid.UUID, strategy Strategy, detectedBank, accountNumber *string, periodStart, periodEnd *time.Time) error
	InsertTransactions(ctx context.Context, statementID uuid.UUID, txs []Transaction) (inserted int, skipped int, err error)
	ListTransactions(ctx context.Context, statementID uuid.UUID, filter TransactionFilter) ([]Transaction, error)
	ListLogs(ctx context.Context, statementID uuid.UUID) ([]LogEntry, error)
}

// PostgresRepository implements Repository on pgx
type PostgresRepository struct {
	db PGX
}

// NewPostgresRepository creates a statement repository
func NewPostgresRepository(db PGX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateStatement inserts a new statement in UPLOADED state
func (r *PostgresRepository) CreateStatement(ctx context.Context, st *Statement) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	if st.Status == "" {
		st.Status = StatusUploaded
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO statements (id, owner_id, doc_handle, mime_type, original_filename, declared_bank, status, attempt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, st.ID, st.OwnerID, st.DocHandle, st.MimeType, st.OriginalFilename, st.DeclaredBank, st.Status, st.Attempt)
	if err != nil {
		return fmt.Errorf("failed to insert statement: %w", err)
	}
	return nil
}

// GetStatement loads a statement by id
func (r *PostgresRepository) GetStatement(ctx context.Context, id uuid.UUID) (*Statement, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, owner_id, doc_handle, mime_type, original_filename,
		       declared_bank, detected_bank, account_number,
		       period_start, period_end, status, strategy, attempt, cancelled,
		       created_at, updated_at
		FROM statements
		WHERE id = $1
	`, id)

	var st Statement
	var strategy *string
	err := row.Scan(
		&st.ID, &st.OwnerID, &st.DocHandle, &st.MimeType, &st.OriginalFilename,
		&st.DeclaredBank, &st.DetectedBank, &st.AccountNumber,
		&st.PeriodStart, &st.PeriodEnd, &st.Status, &strategy, &st.Attempt, &st.Cancelled,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load statement: %w", err)
	}

	if strategy != nil {
		s := Strategy(*strategy)
		st.Strategy = &s
	}
	return &st, nil
}

// Transition moves a statement from one status to another and appends exactly
// one processing log entry, atomically. The conditional UPDATE doubles as the
// per-statement lease: a concurrent worker that already moved the row away
// from `from` makes this call fail with ErrStatusConflict.
func (r *PostgresRepository) Transition(ctx context.Context, id uuid.UUID, from, to Status, attempt int, message string, detail map[string]any) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s is not a valid transition", ErrStatusConflict, from, to)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE statements
		SET status = $1, attempt = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, to, attempt, id, from)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}

	var detailJSON []byte
	if detail != nil {
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("failed to marshal log detail: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO processing_logs (statement_id, from_status, to_status, message, detail, attempt)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, from, to, message, detailJSON, attempt)
	if err != nil {
		return fmt.Errorf("failed to append processing log: %w", err)
	}

	return tx.Commit(ctx)
}

// MarkCancelled flags a statement for cancellation. The orchestrator checks
// the flag before committing results.
func (r *PostgresRepository) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE statements SET cancelled = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateExtractionMeta records what extraction learned about the document
func (r *PostgresRepository) UpdateExtractionMeta(ctx context.Context, id uuid.UUID, strategy Strategy, detectedBank, accountNumber *string, periodStart, periodEnd *time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE statements
		SET strategy = $1,
		    detected_bank = COALESCE($2, detected_bank),
		    account_number = COALESCE($3, account_number),
		    period_start = $4,
		    period_end = $5,
		    updated_at = NOW()
		WHERE id = $6
	`, strategy, detectedBank, accountNumber, periodStart, periodEnd, id)
	if err != nil {
		return fmt.Errorf("failed to update extraction meta: %w", err)
	}
	return nil
}

// InsertTransactions writes all rows of one processing run in a single
// transaction. Fingerprint collisions with already-persisted rows are skipped
// rather than erroring, which is what makes re-processing idempotent.
func (r *PostgresRepository) InsertTransactions(ctx context.Context, statementID uuid.UUID, txs []Transaction) (int, int, error) {
	if len(txs) == 0 {
		return 0, 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for i := range txs {
		t := &txs[i]
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO transactions (id, statement_id, tx_date, description, raw_line,
			                          amount, balance, page, row_num, confidence,
			                          category, needs_review, fingerprint)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (statement_id, fingerprint) DO NOTHING
		`, t.ID, statementID, t.Date, t.Description, t.RawLine,
			t.Amount, t.Balance, t.Page, t.Row, t.Confidence,
			t.Category, t.NeedsReview, t.Fingerprint)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert transaction: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transactions: %w", err)
	}

	return inserted, len(txs) - inserted, nil
}

// ListTransactions returns a filtered page of a statement's transactions
func (r *PostgresRepository) ListTransactions(ctx context.Context, statementID uuid.UUID, filter TransactionFilter) ([]Transaction, error) {
	query := `
		SELECT id, statement_id, tx_date, description, raw_line,
		       amount, balance, page, row_num, confidence,
		       category, needs_review, fingerprint, created_at
		FROM transactions
		WHERE statement_id = $1
	`
	args := []any{statementID}

	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND tx_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND tx_date <= $%d", len(args))
	}
	if filter.MinAmount != nil {
		args = append(args, *filter.MinAmount)
		query += fmt.Sprintf(" AND amount >= $%d", len(args))
	}
	if filter.MaxAmount != nil {
		args = append(args, *filter.MaxAmount)
		query += fmt.Sprintf(" AND amount <= $%d", len(args))
	}
	if filter.NeedsReview != nil {
		args = append(args, *filter.NeedsReview)
		query += fmt.Sprintf(" AND needs_review = $%d", len(args))
	}

	query += " ORDER BY tx_date, page, row_num"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		err := rows.Scan(
			&t.ID, &t.StatementID, &t.Date, &t.Description, &t.RawLine,
			&t.Amount, &t.Balance, &t.Page, &t.Row, &t.Confidence,
			&t.Category, &t.NeedsReview, &t.Fingerprint, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ListLogs returns the full audit trail for a statement, oldest first
func (r *PostgresRepository) ListLogs(ctx context.Context, statementID uuid.UUID) ([]LogEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, statement_id, from_status, to_status, message, detail, attempt, created_at
		FROM processing_logs
		WHERE statement_id = $1
		ORDER BY created_at, id
	`, statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var detailJSON []byte
		err := rows.Scan(&e.ID, &e.StatementID, &e.FromStatus, &e.ToStatus, &e.Message, &detailJSON, &e.Attempt, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processing log: %w", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("failed to parse log detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
