// Package apperr defines the engine's error taxonomy. Every error returned
// by a service wraps exactly one of these sentinels so callers can branch
// with errors.Is instead of matching strings.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input, rejected before any
	// state change.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds marks a balance check failure at reservation time.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidTransition marks an order state machine violation.
	ErrInvalidTransition = errors.New("invalid order transition")

	ErrOrderNotFound    = errors.New("order not found")
	ErrPositionNotFound = errors.New("position not found")
	ErrNotFound         = errors.New("not found")

	// ErrInvariantViolation marks an internal ledger consistency failure.
	// It is always a bug, never a user mistake, and aborts the operation.
	ErrInvariantViolation = errors.New("invariant violation")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Transitionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func Invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// Internal reports whether err should surface to users as an opaque
// internal error rather than a rejection reason.
func Internal(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
