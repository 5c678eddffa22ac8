// Package extract turns stored documents into per-page text and tables.
// It hosts the format classifier, the OCR engines with confidence-based
// fallback, and the structured PDF extractor.
package extract

import "errors"

// Strategy is the extraction route chosen for a document
type Strategy string

const (
	StrategyNativePDF  Strategy = "NATIVE_PDF"
	StrategyScannedPDF Strategy = "SCANNED_PDF"
	StrategyImage      Strategy = "IMAGE"
)

// Sentinel document-level failures. Everything below document level is a
// Warning, never an error.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("document cannot be opened")
)

// WarnKind labels a page- or row-level extraction problem
type WarnKind string

const (
	WarnLowConfidence      WarnKind = "LowConfidenceExtraction"
	WarnPageDecodeFailed   WarnKind = "PageDecodeFailed"
	WarnUnparsableRow      WarnKind = "UnparsableRow"
	WarnValidationRejected WarnKind = "ValidationRejected"
	WarnDuplicateDropped   WarnKind = "DuplicateDropped"
	WarnNearDuplicate      WarnKind = "NearDuplicateFlagged"
)

// Warning records a recoverable problem with enough context to surface it
type Warning struct {
	Kind    WarnKind
	Page    int // 0-based page index, -1 when not page-scoped
	Row     int // 0-based row index within the page, -1 when not row-scoped
	Message string
}

func (w Warning) String() string {
	return string(w.Kind) + ": " + w.Message
}

// Classification is the classifier's verdict for a document
type Classification struct {
	Strategy     Strategy
	PageCount    int
	CharsPerPage float64
}

// PageResult holds everything extracted from one page. It lives only for the
// duration of a processing run; warnings roll into the processing log.
type PageResult struct {
	Index      int
	Strategy   Strategy
	Text       string
	Table      [][]string // nil when no tabular region was detected
	Confidence float64    // in [0,1]
	Warnings   []Warning
}

// Rows returns the page's content as candidate rows: table rows when a table
// was detected, text lines otherwise.
func (p *PageResult) Rows() []string {
	if len(p.Table) > 0 {
		rows := make([]string, 0, len(p.Table))
		for _, cells := range p.Table {
			rows = append(rows, joinCells(cells))
		}
		return rows
	}
	return splitLines(p.Text)
}
