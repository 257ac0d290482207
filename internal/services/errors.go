package services

import (
	"context"
	"errors"

	"github.com/earnhub/backend/internal/database"
)

var (
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrInvalidStateTransition   = errors.New("invalid state transition")
	ErrDuplicateConfirmation    = errors.New("already confirmed today")
	ErrNonMonotonicConfirmation = errors.New("confirmation date must be later than the previous confirmation")
	ErrInvalidRankTarget        = errors.New("invalid rank target")
	ErrAuthenticationFailure    = errors.New("invalid transaction password")
	ErrLedgerInvariantViolation = errors.New("ledger invariant violation")

	ErrNotFound            = database.ErrNotFound
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrIdempotencyConflict = errors.New("idempotency key reused for a different posting")
	ErrLockTimeout         = errors.New("timed out waiting for account lock")
	ErrRankNotEligible     = errors.New("membership level not eligible")
	ErrNoPayoutDestination = errors.New("no bank account on file")
	ErrDailyTaskLimit      = errors.New("daily task limit reached")
	ErrInvalidRequest      = errors.New("invalid request")
)

// IsTransient reports whether err is an infrastructure failure that is safe to retry with the
// same idempotency key.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrLedgerInvariantViolation):
		return false
	case errors.Is(err, ErrLockTimeout),
		errors.Is(err, database.ErrStoreUnavailable),
		errors.Is(err, database.ErrVersionConflict),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
