package enrich

import (
	"context"
	"errors"
)

// FailureKind classifies a run-ending failure. It is stored as the
// activity error code.
type FailureKind string

const (
	// KindConnectivity covers reads from the store: batch selection,
	// loading firms and claiming leases.
	KindConnectivity FailureKind = "CONNECTIVITY"
	// KindPersistence covers writing generated values and marks.
	KindPersistence FailureKind = "PERSISTENCE"
	KindCanceled    FailureKind = "CANCELED"
	KindInternal    FailureKind = "INTERNAL"
)

// RunError is a fatal run failure.
type RunError struct {
	Kind  FailureKind
	Op    string
	Batch int
	Err   error
}

func (e *RunError) Error() string {
	return "enrich: " + e.Op + ": " + e.Err.Error()
}

func (e *RunError) Unwrap() error { return e.Err }

// ErrorCode implements registry.Coder.
func (e *RunError) ErrorCode() string { return string(e.Kind) }

func fail(kind FailureKind, op string, batch int, err error) *RunError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	return &RunError{Kind: kind, Op: op, Batch: batch, Err: err}
}
