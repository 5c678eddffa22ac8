package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Engine is one OCR implementation. Additional engines plug in without
// touching the orchestrator; the extractor only cares about this contract.
type Engine interface {
	// Extract runs OCR over a page image and reports text plus a confidence
	// score in [0,1].
	Extract(ctx context.Context, image []byte) (text string, confidence float64, err error)
	Name() string
}

// TesseractEngine shells out to tesseract with a fixed page-segmentation
// mode. Different PSMs behave very differently on statement layouts, so the
// primary/secondary pair is two instances of this type with different modes.
type TesseractEngine struct {
	PSM  int    // page segmentation mode
	Lang string // defaults to "eng"
}

// Name identifies the engine in logs and warnings
func (e *TesseractEngine) Name() string {
	return fmt.Sprintf("tesseract-psm%d", e.PSM)
}

// Extract runs tesseract in TSV mode and aggregates per-word confidences
func (e *TesseractEngine) Extract(ctx context.Context, image []byte) (string, float64, error) {
	lang := e.Lang
	if lang == "" {
		lang = "eng"
	}

	tmp, err := os.CreateTemp("", "ocr-page-*.png")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("failed to write temp image: %w", err)
	}
	tmp.Close()

	cmd := exec.CommandContext(ctx, "tesseract", tmp.Name(), "stdout",
		"-l", lang, "--psm", strconv.Itoa(e.PSM), "tsv")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", 0, fmt.Errorf("tesseract failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}

	text, confidence := parseTesseractTSV(out.String())
	return text, confidence, nil
}

// parseTesseractTSV rebuilds line-oriented text from tesseract's TSV output
// and averages word-level confidences. Structural rows carry conf -1 and are
// excluded from the average.
func parseTesseractTSV(tsv string) (string, float64) {
	var sb strings.Builder
	var confSum float64
	var confCount int

	lastLineKey := ""
	for i, line := range strings.Split(tsv, "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}

		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(fields[11])
		if word == "" {
			continue
		}

		// block_num, par_num, line_num identify the physical line
		lineKey := fields[2] + ":" + fields[3] + ":" + fields[4]
		if lastLineKey != "" && lineKey != lastLineKey {
			sb.WriteByte('\n')
		} else if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		lastLineKey = lineKey

		sb.WriteString(word)
		confSum += conf
		confCount++
	}

	if confCount == 0 {
		return "", 0
	}
	return sb.String(), confSum / float64(confCount) / 100.0
}

// OCRExtractor runs a primary OCR engine and falls back to a secondary when
// confidence is too low. It never fails for a decodable image: the worst
// outcome is an empty low-confidence page with a warning attached.
type OCRExtractor struct {
	primary   Engine
	secondary Engine
	threshold float64
	logger    *slog.Logger
}

// NewOCRExtractor creates an OCR extractor with confidence-based fallback
func NewOCRExtractor(primary, secondary Engine, threshold float64, logger *slog.Logger) *OCRExtractor {
	if threshold <= 0 {
		threshold = 0.6
	}
	return &OCRExtractor{primary: primary, secondary: secondary, threshold: threshold, logger: logger}
}

// ExtractPage OCRs one page image and always returns a result
func (o *OCRExtractor) ExtractPage(ctx context.Context, pageIndex int, image []byte) PageResult {
	result := PageResult{Index: pageIndex, Strategy: StrategyScannedPDF}

	text, conf, err := o.primary.Extract(ctx, image)
	if err != nil {
		result.Warnings = append(result.Warnings, Warning{
			Kind:    WarnLowConfidence,
			Page:    pageIndex,
			Row:     -1,
			Message: fmt.Sprintf("%s failed: %v", o.primary.Name(), err),
		})
		text, conf = "", 0
	}

	if conf < o.threshold && o.secondary != nil {
		secText, secConf, secErr := o.secondary.Extract(ctx, image)
		if secErr == nil && secConf > conf {
			o.logger.Debug("ocr fallback engine selected",
				slog.Int("page", pageIndex),
				slog.String("engine", o.secondary.Name()),
				slog.Float64("primary_confidence", conf),
				slog.Float64("secondary_confidence", secConf),
			)
			text, conf = secText, secConf
		}
	}

	if conf < o.threshold {
		result.Warnings = append(result.Warnings, Warning{
			Kind:    WarnLowConfidence,
			Page:    pageIndex,
			Row:     -1,
			Message: fmt.Sprintf("best OCR confidence %.2f below threshold %.2f", conf, o.threshold),
		})
	}

	result.Text = text
	result.Confidence = conf
	return result
}
