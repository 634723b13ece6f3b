package repair

import (
	"errors"
	"fmt"
)

// Error types for distinguishing repair failures.
// Check with errors.Is(err, repair.ErrMarkupRepairFailed).
var (
	// ErrMarkupRepairFailed indicates the repaired buffer still could not be
	// strict-parsed. It is fatal for the document.
	ErrMarkupRepairFailed = errors.New("markup repair failed")

	// ErrUTF8RepairExhausted indicates the invalid byte removal loop hit its
	// retry limit before the buffer parsed. It wraps ErrMarkupRepairFailed.
	ErrUTF8RepairExhausted = fmt.Errorf("%w: utf-8 repair exhausted", ErrMarkupRepairFailed)

	// ErrInvalidPattern indicates the extraction pattern has no capture group.
	ErrInvalidPattern = errors.New("extraction pattern must have a capture group")

	// ErrUnknownFeature indicates a feature name that does not exist.
	ErrUnknownFeature = errors.New("unknown feature")
)

// Error is returned by the strict parser gate on fatal failure.
type Error struct {
	// Kind is ErrMarkupRepairFailed or ErrUTF8RepairExhausted.
	Kind error

	// Diagnostic is the last parser diagnostic.
	Diagnostic Diagnostic

	// Artifact is the path of the persisted wrapped buffer, empty when the
	// write failed or artifacts are disabled.
	Artifact string

	// Attempts is the number of parse attempts made.
	Attempts int
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s after %d attempt(s): %s", e.Kind, e.Attempts, e.Diagnostic.Message)
	if e.Artifact != "" {
		msg += " (saved to " + e.Artifact + ")"
	}
	return msg
}

// Unwrap exposes Kind to errors.Is and the underlying parser error to errors.As.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Diagnostic.Err != nil {
		errs = append(errs, e.Diagnostic.Err)
	}
	return errs
}
