package services

import (
	"context"
	"fmt"
	"log/slog"

	"budgettracker/internal/amqp"
	"budgettracker/internal/core"
	"budgettracker/internal/storage"
)

// LedgerStore is the persistence the ledger needs. *storage.SQLiteRepository
// implements it.
type LedgerStore interface {
	UpsertBudget(ctx context.Context, userID int64, month core.MonthKey, amount core.Money) (core.Money, error)
	GetBudget(ctx context.Context, userID int64, month core.MonthKey) (core.Money, error)
	InsertExpense(ctx context.Context, e core.Expense) (int64, error)
	ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error)
	MonthTotals(ctx context.Context, userID int64, month core.MonthKey) (budget, spent core.Money, err error)
	DeleteUserLedger(ctx context.Context, userID int64) (storage.ResetResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher receives a notification after every committed ledger write.
// *amqp.Client implements it.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error
	Close() error
}

// LedgerService orchestrates budget and expense operations across SQLite and AMQP
type LedgerService struct {
	storage   LedgerStore
	publisher EventPublisher
	months    core.MonthResolver
}

// NewLedgerService wires the service. publisher may be nil when the event
// feed is disabled.
func NewLedgerService(storage LedgerStore, publisher EventPublisher, months core.MonthResolver) *LedgerService {
	return &LedgerService{
		storage:   storage,
		publisher: publisher,
		months:    months,
	}
}

// SetBudget stores amount as the budget of userID for month, replacing any
// previous value. A zero month means the current one.
func (s *LedgerService) SetBudget(ctx context.Context, userID int64, amount core.Money, month core.MonthKey) (core.Budget, error) {
	if month.IsZero() {
		month = s.months.Current()
	}
	b := core.Budget{UserID: userID, Amount: amount, Month: month}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	stored, err := s.storage.UpsertBudget(ctx, userID, month, amount)
	if err != nil {
		return core.Budget{}, fmt.Errorf("set budget: %w", err)
	}
	b.Amount = stored

	s.publish(ctx, amqp.NewBudgetSetEvent(userID, month.String(), stored.Cents))
	return b, nil
}

// GetBudget returns the budget of userID for month, zero when none is set.
// A zero month means the current one.
func (s *LedgerService) GetBudget(ctx context.Context, userID int64, month core.MonthKey) (core.Budget, error) {
	if err := core.ValidateUserID(userID); err != nil {
		return core.Budget{}, err
	}
	if month.IsZero() {
		month = s.months.Current()
	}

	amount, err := s.storage.GetBudget(ctx, userID, month)
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return core.Budget{UserID: userID, Amount: amount, Month: month}, nil
}

// AddExpense records an expense at the current local time. Budgets are not
// checked at write time.
func (s *LedgerService) AddExpense(ctx context.Context, userID int64, item string, cost core.Money, quantity int) (core.Expense, error) {
	now := s.months.Now()
	e := core.Expense{
		UserID:   userID,
		Item:     item,
		Cost:     cost,
		Quantity: quantity,
		AddedAt:  now,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	e.Item, _ = core.NormalizeItem(e.Item)

	id, err := s.storage.InsertExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}
	e.ID = id

	s.publish(ctx, amqp.NewExpenseAddedEvent(userID, core.MonthKeyOf(now).String(), id, cost.Cents))
	return e, nil
}

// ListExpenses returns every expense of userID, newest first.
func (s *LedgerService) ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error) {
	if err := core.ValidateUserID(userID); err != nil {
		return nil, err
	}
	expenses, err := s.storage.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// Reset deletes every budget and expense of userID. Other users are untouched.
func (s *LedgerService) Reset(ctx context.Context, userID int64) (storage.ResetResult, error) {
	if err := core.ValidateUserID(userID); err != nil {
		return storage.ResetResult{}, err
	}
	result, err := s.storage.DeleteUserLedger(ctx, userID)
	if err != nil {
		return storage.ResetResult{}, fmt.Errorf("reset ledger: %w", err)
	}

	s.publish(ctx, amqp.NewLedgerResetEvent(userID, s.months.Current().String()))
	return result, nil
}

// Ping reports whether the store answers.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// publish never fails the caller: the write has already committed.
func (s *LedgerService) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Event feed disabled, skipping ledger event", "type", event.Type)
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", event.Type,
			"user_id", event.UserID,
			"error", err)
	}
}

// Close closes both storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
