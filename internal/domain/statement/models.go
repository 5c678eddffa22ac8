// Package statement defines the persisted entities of the ingestion pipeline:
// statements, their extracted transactions, and the append-only processing log.
package statement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the processing state of a statement
type Status string

const (
	StatusUploaded   Status = "UPLOADED"
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusPartial    Status = "PARTIAL"
	StatusFailed     Status = "FAILED"
)

// validTransitions is the state graph. Transitions not listed here are
// rejected by the repository, which keeps the log history monotonic.
// QUEUED -> FAILED covers a queue write that exhausted its retries after the
// status transition committed; parking the statement in FAILED keeps it
// retry-eligible instead of stranded without a job.
var validTransitions = map[Status][]Status{
	StatusUploaded:   {StatusQueued},
	StatusQueued:     {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusSucceeded, StatusPartial, StatusFailed},
	StatusFailed:     {StatusQueued},
	StatusPartial:    {StatusQueued},
}

// CanTransition reports whether from -> to is a legal status transition
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible without an
// explicit retry
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusPartial || s == StatusFailed
}

// Strategy is the extraction strategy chosen by the classifier
type Strategy string

const (
	StrategyNativePDF  Strategy = "NATIVE_PDF"
	StrategyScannedPDF Strategy = "SCANNED_PDF"
	StrategyImage      Strategy = "IMAGE"
)

// Statement is one uploaded bank-statement document and its processing state
type Statement struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	DocHandle        uuid.UUID
	MimeType         string
	OriginalFilename string
	DeclaredBank     *string
	DetectedBank     *string
	AccountNumber    *string
	PeriodStart      *time.Time
	PeriodEnd        *time.Time
	Status           Status
	Strategy         *Strategy
	Attempt          int
	Cancelled        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Transaction is one normalized financial movement extracted from a statement.
// Amount is signed: debits negative, credits positive.
type Transaction struct {
	ID          uuid.UUID
	StatementID uuid.UUID
	Date        time.Time
	Description string
	RawLine     string
	Amount      decimal.Decimal
	Balance     *decimal.Decimal
	Page        int
	Row         int
	Confidence  float64
	Category    string
	NeedsReview bool
	Fingerprint string
	CreatedAt   time.Time
}

// LogEntry is one append-only processing log record
type LogEntry struct {
	ID          int64
	StatementID uuid.UUID
	FromStatus  Status
	ToStatus    Status
	Message     string
	Detail      map[string]any
	Attempt     int
	CreatedAt   time.Time
}

// Summary aggregates the outcome of a statement's transactions
type Summary struct {
	TransactionCount int
	PeriodStart      *time.Time
	PeriodEnd        *time.Time
	TotalDebits      decimal.Decimal
	TotalCredits     decimal.Decimal
	CurrencyHint     string
}
