/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every structured error unwraps to exactly one sentinel, so callers can
  classify any error returned by the engine with errors.Is().

ERROR CATEGORIES:
  1. Validation - malformed input, operation not attempted
  2. Not found - referenced agent/type/closing/shift does not exist
  3. Conflict - duplicate closing or illegal state transition
  4. Duplicate in flight - identical submission already processing
  5. Store - persistence failure, propagated unchanged in kind

USAGE:
  closing, err := engine.Closings.Create(ctx, input)
  switch {
  case generic.IsDuplicateInFlight(err):
      // already processing, do not retry immediately
  case generic.IsConflict(err):
      // explain the specific conflict
  }

SEE ALSO:
  - api/errors.go: Maps these kinds to HTTP status codes
  - store/sqlstore: Maps driver errors to ConflictError/StoreError
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned for duplicate closings and illegal transitions.
	ErrConflict = errors.New("conflict")

	// ErrDuplicateInFlight is returned when an identical submission is
	// already being processed. It is not a failure of the operation.
	ErrDuplicateInFlight = errors.New("duplicate submission in progress")

	// ErrStore is returned when the underlying persistence fails.
	ErrStore = errors.New("store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "agent", "transaction_type", "closing", ...
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError explains why the write was refused.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// DuplicateInFlightError is returned by the submission guard.
type DuplicateInFlightError struct {
	Key string
}

func (e *DuplicateInFlightError) Error() string {
	return fmt.Sprintf("submission %s is already being processed", shortKey(e.Key))
}

func (e *DuplicateInFlightError) Unwrap() error { return ErrDuplicateInFlight }

// StoreError wraps a persistence failure with the store operation name.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

// Is makes StoreError match ErrStore while Unwrap still exposes the driver error.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

func (e *StoreError) Unwrap() error { return e.Err }

// OperationError adds operation context (name, agent, date) without changing
// the kind of the wrapped error.
type OperationError struct {
	Op      string
	AgentID AgentID
	Date    Date
	Err     error
}

func (e *OperationError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("%s (agent %d): %v", e.Op, e.AgentID, e.Err)
	}
	return fmt.Sprintf("%s (agent %d, %s): %v", e.Op, e.AgentID, e.Date, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// WrapOp wraps err in an OperationError. A nil err stays nil.
func WrapOp(op string, agentID AgentID, date Date, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Op: op, AgentID: agentID, Date: date, Err: err}
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for duplicate closings and illegal transitions.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsDuplicateInFlight returns true when the guard rejected the submission.
func IsDuplicateInFlight(err error) bool {
	return errors.Is(err, ErrDuplicateInFlight)
}

// IsStoreError returns true for persistence failures.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}
