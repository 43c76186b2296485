package transaction

import (
	"errors"
	"fmt"
)

// Messages shown on the Error state when a transaction cannot start.
const (
	ReasonProfileRequired   = "profile required"
	ReasonProfileIncomplete = "profile incomplete"
	ReasonBookNotFound      = "book not found"
	ReasonNotOwner          = "not owner"
	ReasonAlreadyLent       = "already lent"
	ReasonNotLent           = "not lent"
	ReasonUnknownAction     = "unknown action"
	ReasonShareRequired     = "share code required"
)

var (
	ErrBorrowerMissing = errors.New("transaction confirmed without borrower")
	ErrBookMissing     = errors.New("book is no longer in the local library")
	ErrEmptyShare      = errors.New("relay returned an empty share id")
)

// ValidationError is a precondition that failed before anything was sent to the relay.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(reason string) error { return &ValidationError{Reason: reason} }

// TimeoutError means polling gave up without seeing a borrower.
type TimeoutError struct {
	Attempts int
}

func (e *TimeoutError) Error() string { return "timeout" }

// ReconcileError wraps a local write that failed after the relay already
// confirmed the transaction. The relay has no undo, so these are not retried.
type ReconcileError struct {
	Side Side
	Err  error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.Side, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }
