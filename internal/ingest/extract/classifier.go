package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ClassifierConfig tunes the strategy decision
type ClassifierConfig struct {
	SamplePages     int // pages sampled for text density, default 3
	MinCharsPerPage int // native-text density threshold
}

// Classifier inspects a document and decides the extraction strategy
type Classifier struct {
	cfg    ClassifierConfig
	logger *slog.Logger
}

// NewClassifier creates a classifier
func NewClassifier(cfg ClassifierConfig, logger *slog.Logger) *Classifier {
	if cfg.SamplePages <= 0 {
		cfg.SamplePages = 3
	}
	if cfg.MinCharsPerPage <= 0 {
		cfg.MinCharsPerPage = 200
	}
	return &Classifier{cfg: cfg, logger: logger}
}

// Classify decides between NATIVE_PDF, SCANNED_PDF and IMAGE for a document.
// Non-PDF image types pass through directly; PDFs are validated first and
// then sampled for native text density.
func (c *Classifier) Classify(ctx context.Context, data []byte, mimeType string) (*Classification, error) {
	switch normalizeMime(mimeType) {
	case "application/pdf":
		return c.classifyPDF(data)
	case "image/jpeg", "image/png", "image/tiff":
		return &Classification{Strategy: StrategyImage, PageCount: 1}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
}

func (c *Classifier) classifyPDF(data []byte) (*Classification, error) {
	// pdfcpu validation is the authoritative corruption check: a document it
	// cannot read will not open for any downstream extractor either.
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrCorruptDocument)
	}

	sample := c.cfg.SamplePages
	if sample > pageCount {
		sample = pageCount
	}

	chars := nativeTextChars(data, sample)
	charsPerPage := float64(chars) / float64(sample)

	strategy := StrategyScannedPDF
	if charsPerPage >= float64(c.cfg.MinCharsPerPage) {
		strategy = StrategyNativePDF
	}

	c.logger.Debug("document classified",
		slog.String("strategy", string(strategy)),
		slog.Int("pages", pageCount),
		slog.Float64("chars_per_page", charsPerPage),
	)

	return &Classification{
		Strategy:     strategy,
		PageCount:    pageCount,
		CharsPerPage: charsPerPage,
	}, nil
}

// nativeTextChars counts extractable text characters across the first n pages.
// The PDF library panics on some malformed font tables; a panic counts as
// zero native text rather than a failure.
func nativeTextChars(data []byte, pages int) (chars int) {
	defer func() {
		if r := recover(); r != nil {
			chars = 0
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}

	for i := 1; i <= pages && i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			for _, word := range row.Content {
				chars += len(strings.TrimSpace(word.S))
			}
		}
	}
	return chars
}

func normalizeMime(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "image/jpg":
		return "image/jpeg"
	case "image/tif":
		return "image/tiff"
	}
	return mt
}
