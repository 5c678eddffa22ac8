package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine returns canned OCR output
type fakeEngine struct {
	name       string
	text       string
	confidence float64
	err        error
	calls      int
}

func (f *fakeEngine) Extract(ctx context.Context, image []byte) (string, float64, error) {
	f.calls++
	if f.err != nil {
		return "", 0, f.err
	}
	return f.text, f.confidence, nil
}

func (f *fakeEngine) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOCRExtractor_PrimaryGoodEnough(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "clean text", confidence: 0.9}
	secondary := &fakeEngine{name: "secondary", text: "other", confidence: 0.95}
	ocr := NewOCRExtractor(primary, secondary, 0.6, testLogger())

	page := ocr.ExtractPage(context.Background(), 0, []byte("img"))

	assert.Equal(t, "clean text", page.Text)
	assert.Equal(t, 0.9, page.Confidence)
	assert.Empty(t, page.Warnings)
	assert.Zero(t, secondary.calls, "secondary must not run when primary clears the threshold")
}

func TestOCRExtractor_FallbackPicksBetter(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "garbled", confidence: 0.3}
	secondary := &fakeEngine{name: "secondary", text: "readable", confidence: 0.8}
	ocr := NewOCRExtractor(primary, secondary, 0.6, testLogger())

	page := ocr.ExtractPage(context.Background(), 2, []byte("img"))

	assert.Equal(t, "readable", page.Text)
	assert.Equal(t, 0.8, page.Confidence)
	assert.Empty(t, page.Warnings)
	assert.Equal(t, 1, secondary.calls)
}

func TestOCRExtractor_BothBelowThreshold(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "bad", confidence: 0.4}
	secondary := &fakeEngine{name: "secondary", text: "worse", confidence: 0.2}
	ocr := NewOCRExtractor(primary, secondary, 0.6, testLogger())

	page := ocr.ExtractPage(context.Background(), 1, []byte("img"))

	// Better of the two survives, flagged low confidence
	assert.Equal(t, "bad", page.Text)
	assert.Equal(t, 0.4, page.Confidence)
	require.Len(t, page.Warnings, 1)
	assert.Equal(t, WarnLowConfidence, page.Warnings[0].Kind)
	assert.Equal(t, 1, page.Warnings[0].Page)
}

func TestOCRExtractor_PrimaryFails(t *testing.T) {
	primary := &fakeEngine{name: "primary", err: errors.New("binary missing")}
	secondary := &fakeEngine{name: "secondary", text: "rescued", confidence: 0.7}
	ocr := NewOCRExtractor(primary, secondary, 0.6, testLogger())

	page := ocr.ExtractPage(context.Background(), 0, []byte("img"))

	assert.Equal(t, "rescued", page.Text)
	assert.Equal(t, 0.7, page.Confidence)
	require.Len(t, page.Warnings, 1)
	assert.Equal(t, WarnLowConfidence, page.Warnings[0].Kind)
}

func TestOCRExtractor_EverythingFails(t *testing.T) {
	primary := &fakeEngine{name: "primary", err: errors.New("boom")}
	secondary := &fakeEngine{name: "secondary", err: errors.New("boom too")}
	ocr := NewOCRExtractor(primary, secondary, 0.6, testLogger())

	// Never an error: the page degrades to empty with zero confidence
	page := ocr.ExtractPage(context.Background(), 0, []byte("img"))

	assert.Empty(t, page.Text)
	assert.Zero(t, page.Confidence)
	assert.NotEmpty(t, page.Warnings)
}

func TestParseTesseractTSV(t *testing.T) {
	tsv := strings.Join([]string{
		"level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext",
		"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t",
		"5\t1\t1\t1\t1\t1\t5\t5\t20\t10\t91\t05/01/2024",
		"5\t1\t1\t1\t1\t2\t30\t5\t30\t10\t88\tCOFFEE",
		"5\t1\t1\t1\t2\t1\t5\t20\t20\t10\t75\t06/01/2024",
		"5\t1\t1\t1\t2\t2\t30\t20\t30\t10\t66\tSALARY",
	}, "\n")

	text, conf := parseTesseractTSV(tsv)

	assert.Equal(t, "05/01/2024 COFFEE\n06/01/2024 SALARY", text)
	assert.InDelta(t, 0.80, conf, 0.001) // (91+88+75+66)/4/100
}

func TestParseTesseractTSV_Empty(t *testing.T) {
	text, conf := parseTesseractTSV("level\tpage_num\tconf\ttext\n")
	assert.Empty(t, text)
	assert.Zero(t, conf)
}
