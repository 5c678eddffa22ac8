package statement

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusUploaded, StatusQueued, true},
		{StatusQueued, StatusProcessing, true},
		{StatusProcessing, StatusSucceeded, true},
		{StatusProcessing, StatusPartial, true},
		{StatusProcessing, StatusFailed, true},
		{StatusFailed, StatusQueued, true},
		{StatusPartial, StatusQueued, true},
		// Enqueue failure after the QUEUED transition committed
		{StatusQueued, StatusFailed, true},

		// No skipping or moving backwards
		{StatusUploaded, StatusProcessing, false},
		{StatusUploaded, StatusSucceeded, false},
		{StatusQueued, StatusSucceeded, false},
		{StatusQueued, StatusUploaded, false},
		{StatusProcessing, StatusQueued, false},
		{StatusSucceeded, StatusQueued, false},
		{StatusSucceeded, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusSucceeded.IsTerminal())
	assert.True(t, StatusPartial.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusUploaded.IsTerminal())
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
}

func TestFaultKindIsFatal(t *testing.T) {
	fatal := []FaultKind{FaultUnsupportedFormat, FaultCorruptDocument, FaultTimeout, FaultCancelled, FaultTransientIO}
	for _, k := range fatal {
		assert.True(t, k.IsFatal(), "%s", k)
	}

	warnings := []FaultKind{FaultLowConfidence, FaultUnparsableRow, FaultValidationRejected, FaultDuplicateDropped, FaultNearDuplicateFlagged}
	for _, k := range warnings {
		assert.False(t, k.IsFatal(), "%s", k)
	}
}

func TestKindOf(t *testing.T) {
	fault := NewFault(FaultCorruptDocument, "bad header", nil)
	assert.Equal(t, FaultCorruptDocument, KindOf(fault))

	wrapped := errors.Join(errors.New("outer"), fault)
	assert.Equal(t, FaultCorruptDocument, KindOf(wrapped))

	// Unclassified errors default to the retryable kind
	assert.Equal(t, FaultTransientIO, KindOf(errors.New("socket reset")))
}
