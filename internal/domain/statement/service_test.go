package statement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ingest/pkg/storage"
)

// MockRepository implements Repository for testing
type MockRepository struct {
	statements  map[uuid.UUID]*Statement
	transitions []string
	logs        []LogEntry
	txs         []Transaction
	err         error
}

func newMockRepository() *MockRepository {
	return &MockRepository{statements: map[uuid.UUID]*Statement{}}
}

func (m *MockRepository) CreateStatement(ctx context.Context, st *Statement) error {
	if m.err != nil {
		return m.err
	}
	m.statements[st.ID] = st
	return nil
}

func (m *MockRepository) GetStatement(ctx context.Context, id uuid.UUID) (*Statement, error) {
	if m.err != nil {
		return nil, m.err
	}
	st, ok := m.statements[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *st
	return &copied, nil
}

func (m *MockRepository) Transition(ctx context.Context, id uuid.UUID, from, to Status, attempt int, message string, detail map[string]any) error {
	if !CanTransition(from, to) {
		return ErrStatusConflict
	}
	st, ok := m.statements[id]
	if !ok || st.Status != from {
		return ErrStatusConflict
	}
	st.Status = to
	st.Attempt = attempt
	m.transitions = append(m.transitions, string(from)+"->"+string(to))
	return nil
}

func (m *MockRepository) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	st, ok := m.statements[id]
	if !ok {
		return ErrNotFound
	}
	st.Cancelled = true
	return nil
}

func (m *MockRepository) UpdateExtractionMeta(ctx context.Context, id uuid.UUID, strategy Strategy, detectedBank, accountNumber *string, periodStart, periodEnd *time.Time) error {
	return nil
}

func (m *MockRepository) InsertTransactions(ctx context.Context, statementID uuid.UUID, txs []Transaction) (int, int, error) {
	m.txs = append(m.txs, txs...)
	return len(txs), 0, nil
}

func (m *MockRepository) ListTransactions(ctx context.Context, statementID uuid.UUID, filter TransactionFilter) ([]Transaction, error) {
	return m.txs, nil
}

func (m *MockRepository) ListLogs(ctx context.Context, statementID uuid.UUID) ([]LogEntry, error) {
	return m.logs, nil
}

// MockStore implements storage.DocumentStore for testing
type MockStore struct {
	failures int
	stored   int
}

func (m *MockStore) Store(ctx context.Context, name, contentType string, r io.Reader) (*storage.DocumentInfo, error) {
	if m.failures > 0 {
		m.failures--
		return nil, errors.New("disk full")
	}
	m.stored++
	return &storage.DocumentInfo{Handle: uuid.New(), Name: name, ContentType: contentType}, nil
}

func (m *MockStore) Open(ctx context.Context, handle uuid.UUID) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (m *MockStore) Info(ctx context.Context, handle uuid.UUID) (*storage.DocumentInfo, error) {
	return &storage.DocumentInfo{Handle: handle}, nil
}

func (m *MockStore) Delete(ctx context.Context, handle uuid.UUID) error { return nil }

// MockEnqueuer records enqueued statements
type MockEnqueuer struct {
	enqueued []uuid.UUID
	err      error
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, statementID uuid.UUID, attempt int) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, statementID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_Submit(t *testing.T) {
	repo := newMockRepository()
	store := &MockStore{}
	q := &MockEnqueuer{}
	svc := NewService(repo, store, q, 3, testLogger())

	st, err := svc.Submit(context.Background(), uuid.New(), "jan.pdf", "application/pdf", strings.NewReader("%PDF"), nil)
	require.NoError(t, err)

	assert.Equal(t, StatusQueued, st.Status)
	assert.Equal(t, 1, st.Attempt)
	assert.Equal(t, "jan.pdf", st.OriginalFilename)
	assert.Len(t, q.enqueued, 1)
	assert.Equal(t, []string{"UPLOADED->QUEUED"}, repo.transitions)
}

func TestService_Submit_RetriesStorage(t *testing.T) {
	repo := newMockRepository()
	store := &MockStore{failures: 2}
	q := &MockEnqueuer{}
	svc := NewService(repo, store, q, 3, testLogger())

	st, err := svc.Submit(context.Background(), uuid.New(), "jan.pdf", "application/pdf", strings.NewReader("%PDF"), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, st.Status)
	assert.Equal(t, 1, store.stored)
}

func TestService_Submit_StorageExhausted(t *testing.T) {
	repo := newMockRepository()
	store := &MockStore{failures: 10}
	q := &MockEnqueuer{}
	svc := NewService(repo, store, q, 3, testLogger())

	_, err := svc.Submit(context.Background(), uuid.New(), "jan.pdf", "application/pdf", strings.NewReader("%PDF"), nil)
	require.Error(t, err)
	assert.Equal(t, FaultTransientIO, KindOf(err))
	assert.Empty(t, q.enqueued)
}

func TestService_Retry(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		attempt  int
		accepted bool
		reason   string
	}{
		{"failed retryable", StatusFailed, 1, true, ""},
		{"partial retryable", StatusPartial, 2, true, ""},
		{"succeeded not retryable", StatusSucceeded, 1, false, "only FAILED or PARTIAL"},
		{"still processing", StatusProcessing, 1, false, "only FAILED or PARTIAL"},
		{"attempts exhausted", StatusFailed, 3, false, "retry cap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			q := &MockEnqueuer{}
			svc := NewService(repo, &MockStore{}, q, 3, testLogger())

			id := uuid.New()
			repo.statements[id] = &Statement{ID: id, Status: tt.status, Attempt: tt.attempt}

			res, err := svc.Retry(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.accepted, res.Accepted)
			if tt.accepted {
				assert.Equal(t, tt.attempt+1, res.Attempt)
				assert.Len(t, q.enqueued, 1)
			} else {
				assert.Contains(t, res.Reason, tt.reason)
				assert.Empty(t, q.enqueued)
			}
		})
	}
}

func TestService_Retry_EnqueueFailureParksStatementFailed(t *testing.T) {
	repo := newMockRepository()
	q := &MockEnqueuer{err: errors.New("queue unavailable")}
	svc := NewService(repo, &MockStore{}, q, 3, testLogger())

	id := uuid.New()
	repo.statements[id] = &Statement{ID: id, Status: StatusFailed, Attempt: 1}

	_, err := svc.Retry(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, FaultTransientIO, KindOf(err))

	// The statement must not be stranded in QUEUED without a job
	assert.Equal(t, StatusFailed, repo.statements[id].Status)
	assert.Equal(t, []string{"FAILED->QUEUED", "QUEUED->FAILED"}, repo.transitions)

	// Once the queue recovers, another retry goes through
	q.err = nil
	res, err := svc.Retry(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 3, res.Attempt)
	assert.Len(t, q.enqueued, 1)
}

func TestService_Retry_NotFound(t *testing.T) {
	svc := NewService(newMockRepository(), &MockStore{}, &MockEnqueuer{}, 3, testLogger())

	_, err := svc.Retry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_GetStatement_CollectsWarnings(t *testing.T) {
	repo := newMockRepository()
	id := uuid.New()
	repo.statements[id] = &Statement{ID: id, Status: StatusPartial}
	repo.logs = []LogEntry{
		{ToStatus: StatusProcessing, Message: "processing started"},
		{ToStatus: StatusPartial, Detail: map[string]any{
			"warnings": []any{"UnparsableRow: row 3", "ValidationRejected: amount is zero"},
		}},
	}

	svc := NewService(repo, &MockStore{}, &MockEnqueuer{}, 3, testLogger())

	view, err := svc.GetStatement(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, view.Statement.Status)
	assert.Equal(t, []string{"UnparsableRow: row 3", "ValidationRejected: amount is zero"}, view.Warnings)
	assert.Len(t, view.History, 2)
}

func TestService_Cancel(t *testing.T) {
	repo := newMockRepository()
	id := uuid.New()
	repo.statements[id] = &Statement{ID: id, Status: StatusQueued}

	svc := NewService(repo, &MockStore{}, &MockEnqueuer{}, 3, testLogger())
	require.NoError(t, svc.Cancel(context.Background(), id))
	assert.True(t, repo.statements[id].Cancelled)
}
