package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the ledger layers. Field-specific input errors wrap
// ErrInvalidInput so callers can branch with errors.Is on the category alone.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrMigrationFailure   = errors.New("migration failure")
	ErrAmountOverflow     = errors.New("amount overflow")
)

var (
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
	ErrEmptyItem       = fmt.Errorf("%w: empty item", ErrInvalidInput)
	ErrItemTooLong     = fmt.Errorf("%w: item too long (max %d characters)", ErrInvalidInput, MaxItemLength)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be a positive integer", ErrInvalidInput)
	ErrInvalidMonthKey = fmt.Errorf("%w: month must be formatted as YYYY-MM", ErrInvalidInput)
	ErrInvalidUser     = fmt.Errorf("%w: invalid user id", ErrInvalidInput)
)
