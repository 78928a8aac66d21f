/*
errors.go - Centralized error types for the share engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Workflow packages wrap these with operation context; the API layer maps
  them onto HTTP status codes.

ERROR CATEGORIES:
  1. Validation errors - business rule violations (rejected operation)
  2. Transition errors - illegal workflow state moves
  3. Not-found errors - referenced rows missing (rejected, not a crash)
  4. Conflict errors - unique-constraint races, retried transparently

USAGE:
  if ledger.IsValidation(err) {
      // 422: caller's request broke a business rule
  }
  if errors.Is(err, ledger.ErrRetryExhausted) {
      // fatal: bounded retries spent without a clean insert
  }

SEE ALSO:
  - retry.go: Conflict retry loop producing ErrRetryExhausted
  - store.go: Store contract returning NotFoundError
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation marks a business-rule violation. The operation was
	// rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition marks an illegal workflow status move, including
	// the second Approve/Complete on an already-decided request.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotFound marks a missing referenced row (member, share, request).
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a unique-constraint violation surfaced by a store.
	// The retry loop treats it as transient.
	ErrConflict = errors.New("conflict")

	// ErrRetryExhausted is returned when the bounded conflict-retry loop
	// spends all attempts without committing. Fatal for the caller; never
	// a silently wrong number.
	ErrRetryExhausted = errors.New("conflict retries exhausted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which operation rejected the request and why.
type ValidationError struct {
	Op     string // e.g. "transfer.validate"
	Reason string // human-readable, surfaced to the caller
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for op with a formatted reason.
func Invalid(op, format string, args ...any) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// TransitionError reports an illegal status move on a workflow entity.
type TransitionError struct {
	Entity string // "approval" or "transfer"
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot move %s -> %s", e.Entity, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// NotFoundError reports a missing row by entity kind and id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether err is a business-rule rejection.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err indicates a missing referenced row.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a unique-constraint conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsClientError reports whether the caller's request, not the system,
// caused the failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotFound)
}
