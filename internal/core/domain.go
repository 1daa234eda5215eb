package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxItemLength bounds the free-text item of an expense.
const MaxItemLength = 200

type (
	Money struct {
		Cents int64
	}

	// Budget is the declared spending limit of one user for one month.
	Budget struct {
		ID     int64
		UserID int64
		Amount Money
		Month  MonthKey
	}

	// Expense is a single recorded purchase. Quantity is informational only:
	// Cost is always the amount charged against the budget.
	Expense struct {
		ID       int64
		UserID   int64
		Item     string
		Cost     Money
		Quantity int
		AddedAt  time.Time
	}

	// Balance is the derived state of one user's month.
	Balance struct {
		Month         MonthKey
		Budget        Money
		TotalExpenses Money
		Remaining     Money
	}
)

// ValidateUserID rejects identifiers that cannot belong to a stored user.
func ValidateUserID(id int64) error {
	if id <= 0 {
		return ErrInvalidUser
	}
	return nil
}

// ValidateQuantity requires a strictly positive quantity.
func ValidateQuantity(q int) error {
	if q < 1 {
		return ErrInvalidQuantity
	}
	return nil
}

// NormalizeItem trims the item and enforces the non-empty and length rules.
func NormalizeItem(item string) (string, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return "", ErrEmptyItem
	}
	if utf8.RuneCountInString(item) > MaxItemLength {
		return "", ErrItemTooLong
	}
	return item, nil
}

func (e Expense) Validate() error {
	if err := ValidateUserID(e.UserID); err != nil {
		return err
	}
	if _, err := NormalizeItem(e.Item); err != nil {
		return err
	}
	return ValidateQuantity(e.Quantity)
}

func (b Budget) Validate() error {
	if err := ValidateUserID(b.UserID); err != nil {
		return err
	}
	if b.Month.IsZero() {
		return ErrInvalidMonthKey
	}
	return nil
}

// NewBalance derives the remaining amount. A negative remainder means the
// month is overspent and is a valid result; one that does not fit in int64
// cents is ErrAmountOverflow.
func NewBalance(month MonthKey, budget, spent Money) (Balance, error) {
	remaining, err := budget.Sub(spent)
	if err != nil {
		return Balance{}, fmt.Errorf("balance %s: %w", month, err)
	}
	return Balance{
		Month:         month,
		Budget:        budget,
		TotalExpenses: spent,
		Remaining:     remaining,
	}, nil
}

// Overspent reports whether expenses exceed the budget.
func (b Balance) Overspent() bool {
	return b.Remaining.Cents < 0
}
