package statement

import (
	"errors"
	"fmt"
)

// FaultKind classifies document-level failures and row/page-level warnings.
// Fatal kinds abort the current attempt; warning kinds are recorded and
// processing continues.
type FaultKind string

const (
	// Fatal
	FaultUnsupportedFormat FaultKind = "UnsupportedFormat"
	FaultCorruptDocument   FaultKind = "CorruptDocument"
	FaultTimeout           FaultKind = "Timeout"
	FaultCancelled         FaultKind = "Cancelled"
	FaultTransientIO       FaultKind = "TransientIOFailure"

	// Warning
	FaultLowConfidence        FaultKind = "LowConfidenceExtraction"
	FaultUnparsableRow        FaultKind = "UnparsableRow"
	FaultValidationRejected   FaultKind = "ValidationRejected"
	FaultDuplicateDropped     FaultKind = "DuplicateDropped"
	FaultNearDuplicateFlagged FaultKind = "NearDuplicateFlagged"
)

// Fault is an error carrying its taxonomy kind
type Fault struct {
	Kind    FaultKind
	Message string
	Err     error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error { return f.Err }

// NewFault builds a Fault of the given kind
func NewFault(kind FaultKind, msg string, err error) *Fault {
	return &Fault{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the fault kind from an error chain. Unclassified errors
// report as TransientIOFailure since everything else in the pipeline is
// explicitly kinded at the point of failure.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return FaultTransientIO
}

// IsFatal reports whether the kind aborts the current processing attempt
func (k FaultKind) IsFatal() bool {
	switch k {
	case FaultUnsupportedFormat, FaultCorruptDocument, FaultTimeout, FaultCancelled, FaultTransientIO:
		return true
	}
	return false
}
