/*
errors.go - Centralized error types for the stock ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure the engine returns wraps exactly one taxonomy sentinel,
  so callers (HTTP layer, tests, metrics) can classify it with errors.Is.

ERROR CATEGORIES:
  1. ErrValidation        - malformed quantity, unit, id, location
  2. ErrNotFound          - holding, owner or product does not exist
  3. ErrConflict          - holding already pending, duplicate holding
  4. ErrInsufficientStock - transfer larger than the available stock
  5. ErrForbidden         - confirm/cancel by the wrong owner or state
  6. ErrTransient         - storage or collaborator failure; retryable

USAGE:
  if errors.Is(err, ledger.ErrConflict) {
      // someone else is already moving this holding
  }
  kind := ledger.KindOf(err) // "conflict"

SEE ALSO:
  - engine.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrForbidden         = errors.New("forbidden")
	ErrTransient         = errors.New("transient fault")
)

// Store-level sentinels. Each one wraps a taxonomy sentinel.
var (
	ErrHoldingNotFound  = fmt.Errorf("holding %w", ErrNotFound)
	ErrOwnerNotFound    = fmt.Errorf("owner %w", ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrDuplicateHolding = fmt.Errorf("holding already exists for owner and product: %w", ErrConflict)
	ErrHoldingPending   = fmt.Errorf("holding has a pending transfer: %w", ErrConflict)
	ErrIdempotencyInUse = fmt.Errorf("idempotency key is being processed or its outcome was not recorded; check the source holding before retrying: %w", ErrConflict)
)

// ErrIdempotencyKeyNotFound is returned by IdempotencyStore.Get for an
// unknown key. It is internal to the idempotency protocol.
var ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

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

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	HoldingID HoldingID
	Category  Category
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock in holding %d (%s): available %s, requested %s",
		e.HoldingID, e.Category, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ForbiddenError explains why an actor may not act on a holding.
type ForbiddenError struct {
	HoldingID HoldingID
	Reason    string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("holding %d: %s", e.HoldingID, e.Reason)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// TransientError wraps an infrastructure failure.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the cause and the taxonomy sentinel.
func (e *TransientError) Unwrap() []error { return []error{ErrTransient, e.Err} }

// Transient classifies err as a transient fault unless it already carries a
// taxonomy sentinel.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindTransient {
		return err
	}
	var te *TransientError
	if errors.As(err, &te) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

type Kind string

const (
	KindOK                Kind = "ok"
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInsufficientStock Kind = "insufficient_stock"
	KindForbidden         Kind = "forbidden"
	KindTransient         Kind = "transient"
)

// KindOf maps any error onto the taxonomy. Unclassified errors are transient.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	}
	return KindTransient
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient && !errors.Is(err, context.Canceled)
}

// IsClientError returns true if the error is due to the caller's input or
// the current state of the holding.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict, KindInsufficientStock, KindForbidden:
		return true
	}
	return false
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
