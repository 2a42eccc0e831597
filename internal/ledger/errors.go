package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCredits is matched by every *InsufficientCreditsError.
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrLedgerMismatch      = errors.New("ledger does not reconcile")
)

// InsufficientCreditsError carries the exact shortfall of a rejected debit.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// Is lets errors.Is(err, ErrInsufficientCredits) match.
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// Shortfall returns how many credits are missing.
func (e *InsufficientCreditsError) Shortfall() int64 {
	return e.Required - e.Available
}
