package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_Images(t *testing.T) {
	c := NewClassifier(ClassifierConfig{}, testLogger())

	for _, mime := range []string{"image/jpeg", "image/png", "image/tiff", "image/jpg", "image/tif", "IMAGE/PNG", "image/png; charset=binary"} {
		cls, err := c.Classify(context.Background(), []byte("raw"), mime)
		require.NoError(t, err, "mime %q", mime)
		assert.Equal(t, StrategyImage, cls.Strategy)
		assert.Equal(t, 1, cls.PageCount)
	}
}

func TestClassifier_UnsupportedFormat(t *testing.T) {
	c := NewClassifier(ClassifierConfig{}, testLogger())

	for _, mime := range []string{"text/plain", "application/zip", "application/msword", ""} {
		_, err := c.Classify(context.Background(), []byte("raw"), mime)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, "mime %q", mime)
	}
}

func TestClassifier_CorruptPDF(t *testing.T) {
	c := NewClassifier(ClassifierConfig{}, testLogger())

	_, err := c.Classify(context.Background(), []byte("this is not a pdf"), "application/pdf")
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestNormalizeMime(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"application/pdf", "application/pdf"},
		{"Application/PDF", "application/pdf"},
		{"application/pdf; charset=binary", "application/pdf"},
		{"image/jpg", "image/jpeg"},
		{"image/tif", "image/tiff"},
		{" image/png ", "image/png"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeMime(tt.input), "input %q", tt.input)
	}
}

func TestNativeTextChars_GarbageInput(t *testing.T) {
	// Must not panic and must report zero text
	assert.Zero(t, nativeTextChars([]byte{0x00, 0x01, 0x02}, 3))
}
