package parse

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ingest/internal/ingest/extract"
	"github.com/FACorreiaa/statement-ingest/pkg/money"
)

// Candidate is a recognized transaction row awaiting validation
type Candidate struct {
	Date        time.Time
	Description string
	RawLine     string
	Amount      decimal.Decimal
	Balance     *decimal.Decimal
	Category    string
	Page        int
	Row         int
	Confidence  float64
}

// Result is the parser's output for one document
type Result struct {
	Candidates    []Candidate
	Warnings      []extract.Warning
	Profile       string
	Fit           float64
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	Currency      string
	DetectedBank  string
	AccountNumber string
}

// Parser selects the best-fitting layout profile and emits candidates
type Parser struct {
	profiles []Profile
	logger   *slog.Logger
}

// NewParser creates a parser over the default profile registry
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{profiles: Registry(), logger: logger}
}

type candidateLine struct {
	page     int
	row      int
	line     string
	pageConf float64
}

// Parse recognizes transactions across all extracted pages. A declared bank
// that matches a profile name pins the profile; otherwise every profile is
// scored by parsed-rows over candidate-rows and the best fit wins. Ties go
// to the profile with fewer inferred signs, then to registry order.
func (p *Parser) Parse(pages []extract.PageResult, declaredBank *string) *Result {
	lines := collectCandidateLines(pages)
	fullText := joinPageText(pages)
	refYear := referenceYear(fullText)

	result := &Result{
		Currency:      money.DetectCurrency(fullText),
		DetectedBank:  detectBank(fullText),
		AccountNumber: DetectAccountNumber(fullText),
	}

	if len(lines) == 0 {
		result.Profile = "none"
		return result
	}

	profile, fit := p.selectProfile(lines, refYear, declaredBank)
	result.Profile = profile.Name
	result.Fit = fit

	p.logger.Debug("profile selected",
		slog.String("profile", profile.Name),
		slog.Float64("fit", fit),
		slog.Int("candidate_lines", len(lines)),
	)

	for _, cl := range lines {
		lp, ok := profile.parseLine(cl.line, refYear)
		if !ok {
			result.Warnings = append(result.Warnings, extract.Warning{
				Kind:    extract.WarnUnparsableRow,
				Page:    cl.page,
				Row:     cl.row,
				Message: fmt.Sprintf("row did not match profile %s: %s", profile.Name, truncate(cl.line, 80)),
			})
			continue
		}

		confidence := fit
		if cl.pageConf < confidence {
			confidence = cl.pageConf
		}
		result.Candidates = append(result.Candidates, Candidate{
			Date:        lp.date,
			Description: lp.description,
			RawLine:     cl.line,
			Amount:      lp.amount,
			Balance:     lp.balance,
			Category:    Categorize(lp.description),
			Page:        cl.page,
			Row:         cl.row,
			Confidence:  confidence,
		})
	}

	result.PeriodStart, result.PeriodEnd = period(result.Candidates)
	return result
}

func (p *Parser) selectProfile(lines []candidateLine, refYear int, declaredBank *string) (Profile, float64) {
	if declaredBank != nil {
		name := strings.ToLower(strings.TrimSpace(*declaredBank))
		for _, profile := range p.profiles {
			if profile.Name == name {
				return profile, scoreProfile(profile, lines, refYear).fit()
			}
		}
	}

	best := p.profiles[0]
	bestScore := scoreProfile(best, lines, refYear)
	for _, profile := range p.profiles[1:] {
		score := scoreProfile(profile, lines, refYear)
		if score.fit() > bestScore.fit() ||
			(score.fit() == bestScore.fit() && score.inferred < bestScore.inferred) {
			best, bestScore = profile, score
		}
	}
	return best, bestScore.fit()
}

type profileScore struct {
	parsed   int
	total    int
	inferred int
}

func (s profileScore) fit() float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.parsed) / float64(s.total)
}

func scoreProfile(profile Profile, lines []candidateLine, refYear int) profileScore {
	score := profileScore{total: len(lines)}
	for _, cl := range lines {
		lp, ok := profile.parseLine(cl.line, refYear)
		if !ok {
			continue
		}
		score.parsed++
		if lp.signInferred {
			score.inferred++
		}
	}
	return score
}

func collectCandidateLines(pages []extract.PageResult) []candidateLine {
	var lines []candidateLine
	for _, page := range pages {
		for row, line := range page.Rows() {
			if isCandidateLine(line) {
				lines = append(lines, candidateLine{
					page:     page.Index,
					row:      row,
					line:     line,
					pageConf: page.Confidence,
				})
			}
		}
	}
	return lines
}

func joinPageText(pages []extract.PageResult) string {
	var sb strings.Builder
	for _, page := range pages {
		sb.WriteString(page.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// referenceYear resolves yearless dates against a year found in the document,
// falling back to the current year.
func referenceYear(text string) int {
	if m := yearPattern.FindString(text); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			return y
		}
	}
	return time.Now().UTC().Year()
}

var knownBanks = []string{
	"hsbc", "barclays", "lloyds", "natwest", "santander", "monzo", "revolut",
	"chase", "bank of america", "wells fargo", "citibank",
	"deutsche bank", "ing", "bnp paribas",
	"al rajhi", "riyad bank", "saudi national bank",
	"hdfc", "icici", "state bank of india",
}

// detectBank scans statement text for a known institution name
func detectBank(text string) string {
	lower := strings.ToLower(text)
	for _, bank := range knownBanks {
		if strings.Contains(lower, bank) {
			return bank
		}
	}
	return ""
}

func period(candidates []Candidate) (*time.Time, *time.Time) {
	if len(candidates) == 0 {
		return nil, nil
	}
	min, max := candidates[0].Date, candidates[0].Date
	for _, c := range candidates[1:] {
		if c.Date.Before(min) {
			min = c.Date
		}
		if c.Date.After(max) {
			max = c.Date
		}
	}
	return &min, &max
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
