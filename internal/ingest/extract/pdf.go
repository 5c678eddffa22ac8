package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

// ExtractorConfig tunes page extraction
type ExtractorConfig struct {
	PageParallelism int // concurrent page workers, default 4
	MinCharsPerPage int // below this a native page falls back to OCR
}

// PDFExtractor produces per-page text and tables for a classified document.
// Native pages go through the PDF text layer with a table reconstruction
// pass; scanned pages and images are rasterized and handed to OCR.
type PDFExtractor struct {
	cfg    ExtractorConfig
	ocr    *OCRExtractor
	logger *slog.Logger
}

// NewPDFExtractor creates a page extractor
func NewPDFExtractor(cfg ExtractorConfig, ocr *OCRExtractor, logger *slog.Logger) *PDFExtractor {
	if cfg.PageParallelism <= 0 {
		cfg.PageParallelism = 4
	}
	if cfg.MinCharsPerPage <= 0 {
		cfg.MinCharsPerPage = 200
	}
	return &PDFExtractor{cfg: cfg, ocr: ocr, logger: logger}
}

// ExtractPages extracts every page of a classified document. A failed page
// never fails the document: it yields an empty zero-confidence result with a
// decode warning so the run can continue and end PARTIAL.
func (e *PDFExtractor) ExtractPages(ctx context.Context, data []byte, cls *Classification) ([]PageResult, error) {
	if cls.Strategy == StrategyImage {
		page := e.ocr.ExtractPage(ctx, 0, data)
		page.Strategy = StrategyImage
		return []PageResult{page}, nil
	}

	results := make([]PageResult, cls.PageCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PageParallelism)

	for i := 0; i < cls.PageCount; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.extractPage(gctx, data, i, cls.Strategy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *PDFExtractor) extractPage(ctx context.Context, data []byte, index int, strategy Strategy) PageResult {
	if strategy == StrategyNativePDF {
		page := e.extractNativePage(data, index)
		if len(strings.TrimSpace(page.Text)) >= e.cfg.MinCharsPerPage || e.ocr == nil {
			return page
		}
		// Sparse text layer on an otherwise native document, usually a scanned
		// page mixed into a digital statement. OCR it instead.
		e.logger.Debug("native page below text threshold, using ocr",
			slog.Int("page", index),
			slog.Int("chars", len(page.Text)),
		)
		return e.extractScannedPage(ctx, data, index, nil)
	}
	return e.extractScannedPage(ctx, data, index, nil)
}

// extractNativePage pulls the text layer of one page and reconstructs any
// tabular region from word positions.
func (e *PDFExtractor) extractNativePage(data []byte, index int) (result PageResult) {
	result = PageResult{Index: index, Strategy: StrategyNativePDF, Confidence: 1.0}

	defer func() {
		if r := recover(); r != nil {
			result = PageResult{
				Index:    index,
				Strategy: StrategyNativePDF,
				Warnings: []Warning{{
					Kind:    WarnPageDecodeFailed,
					Page:    index,
					Row:     -1,
					Message: fmt.Sprintf("text layer decode panicked: %v", r),
				}},
			}
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		result.Confidence = 0
		result.Warnings = append(result.Warnings, Warning{
			Kind: WarnPageDecodeFailed, Page: index, Row: -1,
			Message: fmt.Sprintf("failed to open pdf: %v", err),
		})
		return result
	}

	page := r.Page(index + 1)
	if page.V.IsNull() {
		result.Confidence = 0
		result.Warnings = append(result.Warnings, Warning{
			Kind: WarnPageDecodeFailed, Page: index, Row: -1,
			Message: "page object is null",
		})
		return result
	}

	rows, err := page.GetTextByRow()
	if err != nil {
		result.Confidence = 0
		result.Warnings = append(result.Warnings, Warning{
			Kind: WarnPageDecodeFailed, Page: index, Row: -1,
			Message: fmt.Sprintf("failed to read text rows: %v", err),
		})
		return result
	}

	lines := make([]rowWords, 0, len(rows))
	var sb strings.Builder
	for _, row := range rows {
		words := make([]positionedWord, 0, len(row.Content))
		for _, w := range row.Content {
			s := strings.TrimSpace(w.S)
			if s == "" {
				continue
			}
			words = append(words, positionedWord{text: s, x: w.X, width: w.W})
		}
		if len(words) == 0 {
			continue
		}
		sort.Slice(words, func(a, b int) bool { return words[a].x < words[b].x })
		lines = append(lines, rowWords{words: words})

		for i, w := range words {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(w.text)
		}
		sb.WriteByte('\n')
	}

	result.Text = sb.String()
	result.Table = reconstructTable(lines)
	return result
}

// extractScannedPage rasterizes one page and runs it through OCR
func (e *PDFExtractor) extractScannedPage(ctx context.Context, data []byte, index int, warnings []Warning) PageResult {
	image, err := rasterizePage(ctx, data, index)
	if err != nil {
		return PageResult{
			Index:    index,
			Strategy: StrategyScannedPDF,
			Warnings: append(warnings, Warning{
				Kind: WarnPageDecodeFailed, Page: index, Row: -1,
				Message: fmt.Sprintf("failed to rasterize page: %v", err),
			}),
		}
	}

	page := e.ocr.ExtractPage(ctx, index, image)
	page.Warnings = append(warnings, page.Warnings...)
	return page
}

// rasterizePage renders a single PDF page to a PNG via pdftoppm
func rasterizePage(ctx context.Context, data []byte, index int) ([]byte, error) {
	dir, err := os.MkdirTemp("", "rasterize-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp pdf: %w", err)
	}

	pageNum := strconv.Itoa(index + 1)
	out := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png", "-r", "300", "-singlefile",
		"-f", pageNum, "-l", pageNum,
		src, out)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}

	image, err := os.ReadFile(out + ".png")
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered page: %w", err)
	}
	return image, nil
}

type positionedWord struct {
	text  string
	x     float64
	width float64
}

type rowWords struct {
	words []positionedWord
}

// columnGap is the minimum horizontal whitespace, in text-space units,
// treated as a cell boundary during table reconstruction.
const columnGap = 12.0

// minTableRows is how many aligned rows a region needs before it counts as a
// table rather than coincidentally gappy prose.
const minTableRows = 4

// reconstructTable rebuilds a tabular region from word positions. Rows are
// split into cells at large horizontal gaps; when enough consecutive rows
// share a cell count the region is treated as a table.
func reconstructTable(lines []rowWords) [][]string {
	type splitRow struct {
		cells []string
	}

	split := make([]splitRow, len(lines))
	counts := map[int]int{}
	for i, line := range lines {
		cells := splitIntoCells(line.words)
		split[i] = splitRow{cells: cells}
		if len(cells) >= 2 {
			counts[len(cells)]++
		}
	}

	// Dominant cell count across the page decides the table width
	bestCount, bestRows := 0, 0
	for count, n := range counts {
		if n > bestRows || (n == bestRows && count > bestCount) {
			bestCount, bestRows = count, n
		}
	}
	if bestCount < 2 || bestRows < minTableRows {
		return nil
	}

	table := make([][]string, 0, bestRows)
	for _, row := range split {
		if len(row.cells) == bestCount {
			table = append(table, row.cells)
		}
	}
	return table
}

// splitIntoCells cuts a sorted word row at large horizontal gaps
func splitIntoCells(words []positionedWord) []string {
	if len(words) == 0 {
		return nil
	}

	var cells []string
	var cell strings.Builder
	cell.WriteString(words[0].text)
	prevEnd := words[0].x + words[0].width

	for _, w := range words[1:] {
		gap := w.x - prevEnd
		if gap > columnGap {
			cells = append(cells, cell.String())
			cell.Reset()
		} else if cell.Len() > 0 {
			cell.WriteByte(' ')
		}
		cell.WriteString(w.text)
		prevEnd = math.Max(prevEnd, w.x+w.width)
	}
	cells = append(cells, cell.String())
	return cells
}

// joinCells flattens a table row back into a single candidate line. A double
// space keeps cell boundaries recognizable for whitespace-based parsing.
func joinCells(cells []string) string {
	return strings.Join(cells, "  ")
}

// splitLines breaks page text into trimmed non-empty lines
func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
