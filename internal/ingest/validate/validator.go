// Package validate filters transaction candidates, computes content
// fingerprints for idempotent persistence and builds the statement summary.
package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ingest/internal/ingest/extract"
	"github.com/FACorreiaa/statement-ingest/internal/ingest/parse"
	"github.com/FACorreiaa/statement-ingest/pkg/money"
)

// Config bounds what counts as a sane transaction
type Config struct {
	Epoch          time.Time     // dates before this are rejected
	SkewTolerance  time.Duration // how far into the future a date may sit
	MaxAmount      decimal.Decimal
	NearSimilarity float64 // description similarity that flags a near-duplicate
}

// Row is a candidate that survived validation
type Row struct {
	parse.Candidate
	Fingerprint string
	NeedsReview bool
}

// Summary aggregates the accepted rows of one run
type Summary struct {
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	Count          int
	TotalDebits    decimal.Decimal
	TotalCredits   decimal.Decimal
	DebitsDisplay  string
	CreditsDisplay string
}

// Outcome is the validator's verdict for one processing run
type Outcome struct {
	Rows     []Row
	Warnings []extract.Warning
	Summary  Summary
}

// Validator applies the validation rules and in-run deduplication
type Validator struct {
	cfg    Config
	logger *slog.Logger
}

// NewValidator creates a validator
func NewValidator(cfg Config, logger *slog.Logger) *Validator {
	if cfg.Epoch.IsZero() {
		cfg.Epoch = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.SkewTolerance <= 0 {
		cfg.SkewTolerance = 48 * time.Hour
	}
	if cfg.MaxAmount.IsZero() {
		cfg.MaxAmount = decimal.NewFromInt(10_000_000)
	}
	if cfg.NearSimilarity <= 0 {
		cfg.NearSimilarity = 0.8
	}
	return &Validator{cfg: cfg, logger: logger}
}

// Validate filters candidates, merges in-run duplicates and flags
// near-duplicates for review. Rejections become warnings, never errors.
func (v *Validator) Validate(candidates []parse.Candidate, currency string, now time.Time) *Outcome {
	outcome := &Outcome{}
	horizon := now.Add(v.cfg.SkewTolerance)

	seenFingerprints := map[string]bool{}
	seenContent := map[string]bool{}

	for _, c := range candidates {
		if reason := v.reject(c, horizon); reason != "" {
			outcome.Warnings = append(outcome.Warnings, extract.Warning{
				Kind:    extract.WarnValidationRejected,
				Page:    c.Page,
				Row:     c.Row,
				Message: reason,
			})
			continue
		}

		fp := Fingerprint(c)
		contentKey := contentKey(c)

		// An identical row repeated on the same page is an extraction
		// artifact; keep the first occurrence only.
		if seenFingerprints[fp] || seenContent[contentKey] {
			outcome.Warnings = append(outcome.Warnings, extract.Warning{
				Kind:    extract.WarnDuplicateDropped,
				Page:    c.Page,
				Row:     c.Row,
				Message: fmt.Sprintf("duplicate of an earlier row: %s", truncate(c.Description, 60)),
			})
			continue
		}
		seenFingerprints[fp] = true
		seenContent[contentKey] = true

		row := Row{Candidate: c, Fingerprint: fp}
		if prior := v.nearDuplicateOf(outcome.Rows, c); prior >= 0 {
			row.NeedsReview = true
			outcome.Rows[prior].NeedsReview = true
			outcome.Warnings = append(outcome.Warnings, extract.Warning{
				Kind:    extract.WarnNearDuplicate,
				Page:    c.Page,
				Row:     c.Row,
				Message: fmt.Sprintf("similar to row %d on page %d, flagged for review", outcome.Rows[prior].Row, outcome.Rows[prior].Page),
			})
		}
		outcome.Rows = append(outcome.Rows, row)
	}

	outcome.Summary = v.summarize(outcome.Rows, currency)
	return outcome
}

func (v *Validator) reject(c parse.Candidate, horizon time.Time) string {
	if c.Date.Before(v.cfg.Epoch) {
		return fmt.Sprintf("date %s predates epoch %s", c.Date.Format("2006-01-02"), v.cfg.Epoch.Format("2006-01-02"))
	}
	if c.Date.After(horizon) {
		return fmt.Sprintf("date %s is in the future", c.Date.Format("2006-01-02"))
	}
	if c.Amount.IsZero() {
		return "amount is zero"
	}
	if c.Amount.Abs().GreaterThan(v.cfg.MaxAmount) {
		return fmt.Sprintf("amount %s exceeds magnitude bound", c.Amount.String())
	}
	if strings.TrimSpace(c.Description) == "" {
		return "description is empty"
	}
	return ""
}

// nearDuplicateOf finds an accepted row with the same date and amount and a
// suspiciously similar description. Returns its index, or -1.
func (v *Validator) nearDuplicateOf(rows []Row, c parse.Candidate) int {
	for i, r := range rows {
		if !r.Date.Equal(c.Date) || !r.Amount.Equal(c.Amount) {
			continue
		}
		if descriptionSimilarity(r.Description, c.Description) >= v.cfg.NearSimilarity {
			return i
		}
	}
	return -1
}

// descriptionSimilarity is a normalized Levenshtein ratio in [0,1]
func descriptionSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func (v *Validator) summarize(rows []Row, currency string) Summary {
	s := Summary{Count: len(rows)}
	for i, r := range rows {
		if i == 0 {
			d := r.Date
			s.PeriodStart, s.PeriodEnd = &d, &d
		}
		if r.Date.Before(*s.PeriodStart) {
			d := r.Date
			s.PeriodStart = &d
		}
		if r.Date.After(*s.PeriodEnd) {
			d := r.Date
			s.PeriodEnd = &d
		}
		if r.Amount.IsNegative() {
			s.TotalDebits = s.TotalDebits.Add(r.Amount)
		} else {
			s.TotalCredits = s.TotalCredits.Add(r.Amount)
		}
	}
	s.DebitsDisplay = money.FormatTotal(s.TotalDebits, currency)
	s.CreditsDisplay = money.FormatTotal(s.TotalCredits, currency)
	return s
}

// Fingerprint derives the deterministic content hash used for deduplication
// within and across processing attempts.
func Fingerprint(c parse.Candidate) string {
	payload := fmt.Sprintf("%s|%s|%s|%d:%d",
		c.Date.Format("2006-01-02"),
		strings.ToLower(strings.TrimSpace(c.Description)),
		c.Amount.StringFixed(2),
		c.Page, c.Row,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// contentKey ignores row position so repeated extraction artifacts on the
// same page collapse to one row.
func contentKey(c parse.Candidate) string {
	return fmt.Sprintf("%s|%s|%s|%d",
		c.Date.Format("2006-01-02"),
		strings.ToLower(strings.TrimSpace(c.Description)),
		c.Amount.StringFixed(2),
		c.Page,
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
