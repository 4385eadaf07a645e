/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every structured error unwraps to a sentinel so callers can branch with
  errors.Is and still render a precise message from the struct fields.

ERROR CATEGORIES:
  1. ValidationError       - malformed input, rejected before any state change
  2. UnauthorizedError     - actor lacks the role a transition requires
  3. InvalidTransitionError - target status unreachable from current status
  4. InsufficientBalanceError - the ledger would go negative; approval aborted
  5. ConsistencyWarning    - a reversal underflowed consumed; clamped and logged

SEE ALSO:
  - workflow.go: produces InvalidTransitionError and UnauthorizedError
  - account.go: produces InsufficientBalanceError and ConsistencyWarning
  - api/errors.go: maps these to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input (negative amount, unknown
	// resource type, missing accounting period...).
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is returned when the actor lacks the required role.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidTransition is returned when the target status is not reachable.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInsufficientBalance is returned when a debit exceeds the remaining balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrRequestNotFound is returned when a referenced request doesn't exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrAccountNotFound is returned by stores when an account row is absent.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmployeeNotFound is returned by an EmployeeResolver for unknown ids.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrNotDeletable is returned when deleting or amending a request that is
	// no longer pending, or whose ledger effect is applied.
	ErrNotDeletable = errors.New("request can only be changed while pending")

	// ErrUnknownResource is returned when no policy is registered for a resource.
	ErrUnknownResource = errors.New("unknown resource type")

	// ErrConcurrentModification is returned when a store detects a conflicting write.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UnauthorizedError carries the role the transition required.
type UnauthorizedError struct {
	Actor      string
	Required   Level
	Transition string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("actor %q is not allowed to %s: requires %s", e.Actor, e.Transition, e.Required)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// InvalidTransitionError reports the current and requested status.
type InvalidTransitionError struct {
	RequestID RequestID
	Resource  string
	From      Status
	To        Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("request %s (%s): cannot move from %s to %s", e.RequestID, e.Resource, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	Key       AccountKey
	Remaining decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: remaining %s, requested %s",
		e.Key, e.Remaining.String(), e.Requested.String())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// ConsistencyWarning records a credit that would have driven consumed below
// zero. The credit is clamped; the warning is logged, never returned to the
// caller of a status update.
type ConsistencyWarning struct {
	Key       AccountKey
	RequestID RequestID
	Consumed  decimal.Decimal // consumed before the credit
	Credit    decimal.Decimal // amount that was asked to be credited
}

func (w *ConsistencyWarning) Error() string {
	return fmt.Sprintf("consistency warning on %s: credit %s exceeds consumed %s (clamped to zero)",
		w.Key, w.Credit.String(), w.Consumed.String())
}

// Excess is the part of the credit that could not be applied.
func (w *ConsistencyWarning) Excess() decimal.Decimal { return w.Credit.Sub(w.Consumed) }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to the caller's input or rights.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNotDeletable) ||
		errors.Is(err, ErrUnknownResource)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrEmployeeNotFound)
}
