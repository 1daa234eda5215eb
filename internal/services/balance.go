package services

import (
	"context"
	"fmt"

	"budgettracker/internal/core"
)

// BalanceCalculator derives a month's balance from stored rows at call time.
// Nothing is cached.
type BalanceCalculator struct {
	storage LedgerStore
	months  core.MonthResolver
}

func NewBalanceCalculator(storage LedgerStore, months core.MonthResolver) *BalanceCalculator {
	return &BalanceCalculator{storage: storage, months: months}
}

// GetBalance returns the balance of userID for the current month.
func (c *BalanceCalculator) GetBalance(ctx context.Context, userID int64) (core.Balance, error) {
	return c.BalanceFor(ctx, userID, c.months.Current())
}

// BalanceFor returns the balance of userID for month. The budget and the
// expense total are read from the same snapshot.
func (c *BalanceCalculator) BalanceFor(ctx context.Context, userID int64, month core.MonthKey) (core.Balance, error) {
	if err := core.ValidateUserID(userID); err != nil {
		return core.Balance{}, err
	}
	if month.IsZero() {
		return core.Balance{}, core.ErrInvalidMonthKey
	}

	budget, spent, err := c.storage.MonthTotals(ctx, userID, month)
	if err != nil {
		return core.Balance{}, fmt.Errorf("balance %s: %w", month, err)
	}
	return core.NewBalance(month, budget, spent)
}
