package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"budgettracker/internal/core"

	_ "modernc.org/sqlite"
)

// ResetResult counts the rows removed by DeleteUserLedger.
type ResetResult struct {
	Budgets  int64
	Expenses int64
}

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository migrates the store at dbPath and opens it. No query is
// served before the schema is current.
func NewSQLiteRepository(ctx context.Context, dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("%w: create db directory: %w", core.ErrStorageUnavailable, err)
	}

	if err := RunMigrations(ctx, dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite database: %w", core.ErrStorageUnavailable, err)
	}
	// SQLite has a single writer; one connection serializes writes in-process.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", core.ErrStorageUnavailable, err)
	}

	return &SQLiteRepository{db: db}, nil
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrStorageUnavailable, err)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storageError("ping", err)
	}
	return nil
}

// UpsertBudget stores the budget for (userID, month), replacing any previous
// amount, and returns the amount now on record.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, userID int64, month core.MonthKey, amount core.Money) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO budgets (user_id, month_key, amount_cents) VALUES (?, ?, ?)
		ON CONFLICT (user_id, month_key) DO UPDATE SET amount_cents = excluded.amount_cents
		RETURNING amount_cents`,
		userID, month.String(), amount.Cents).Scan(&cents)
	if err != nil {
		return core.Money{}, storageError("upsert budget", err)
	}

	slog.InfoContext(ctx, "Budget saved to SQLite",
		"user_id", userID,
		"month", month.String(),
		"amount_cents", cents)

	return core.Money{Cents: cents}, nil
}

// GetBudget returns the budget for (userID, month), or zero when none is set.
func (r *SQLiteRepository) GetBudget(ctx context.Context, userID int64, month core.MonthKey) (core.Money, error) {
	cents, err := budgetCents(ctx, r.db, userID, month)
	if err != nil {
		return core.Money{}, storageError("get budget", err)
	}
	return core.Money{Cents: cents}, nil
}

// InsertExpense appends e and returns its id.
func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.Expense) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (user_id, item, cost_cents, quantity, added_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Item, e.Cost.Cents, e.Quantity, formatTimestamp(e.AddedAt))
	if err != nil {
		return 0, storageError("insert expense", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageError("insert expense", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", id,
		"user_id", e.UserID,
		"item", e.Item,
		"cost_cents", e.Cost.Cents,
		"quantity", e.Quantity)

	return id, nil
}

// ListExpenses returns every expense of userID, newest first. Rows added at
// the same instant keep insertion order.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, item, cost_cents, quantity, added_at
		FROM expenses
		WHERE user_id = ?
		ORDER BY added_at DESC, id ASC`, userID)
	if err != nil {
		return nil, storageError("list expenses", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		var (
			e       core.Expense
			cents   int64
			addedAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Item, &cents, &e.Quantity, &addedAt); err != nil {
			return nil, storageError("scan expense", err)
		}
		e.Cost = core.Money{Cents: cents}
		e.AddedAt, err = parseTimestamp(addedAt)
		if err != nil {
			return nil, storageError("scan expense", fmt.Errorf("expense %d: %w", e.ID, err))
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list expenses", err)
	}
	return expenses, nil
}

// MonthTotals reads the budget and the expense sum for (userID, month) from
// one snapshot.
func (r *SQLiteRepository) MonthTotals(ctx context.Context, userID int64, month core.MonthKey) (budget, spent core.Money, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Money{}, core.Money{}, storageError("month totals", err)
	}
	defer tx.Rollback()

	b, err := budgetCents(ctx, tx, userID, month)
	if err != nil {
		return core.Money{}, core.Money{}, storageError("month totals", err)
	}
	s, err := spentCents(ctx, tx, userID, month)
	if err != nil {
		return core.Money{}, core.Money{}, storageError("month totals", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Money{}, core.Money{}, storageError("month totals", err)
	}
	return core.Money{Cents: b}, core.Money{Cents: s}, nil
}

// DeleteUserLedger removes every budget and expense of userID atomically.
func (r *SQLiteRepository) DeleteUserLedger(ctx context.Context, userID int64) (ResetResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ResetResult{}, storageError("reset ledger", err)
	}
	defer tx.Rollback()

	var result ResetResult
	res, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE user_id = ?", userID)
	if err != nil {
		return ResetResult{}, storageError("reset ledger", err)
	}
	if result.Expenses, err = res.RowsAffected(); err != nil {
		return ResetResult{}, storageError("reset ledger", err)
	}

	res, err = tx.ExecContext(ctx, "DELETE FROM budgets WHERE user_id = ?", userID)
	if err != nil {
		return ResetResult{}, storageError("reset ledger", err)
	}
	if result.Budgets, err = res.RowsAffected(); err != nil {
		return ResetResult{}, storageError("reset ledger", err)
	}

	if err := tx.Commit(); err != nil {
		return ResetResult{}, storageError("reset ledger", err)
	}

	slog.InfoContext(ctx, "Ledger reset in SQLite",
		"user_id", userID,
		"budgets_deleted", result.Budgets,
		"expenses_deleted", result.Expenses)

	return result, nil
}

func budgetCents(ctx context.Context, q queryer, userID int64, month core.MonthKey) (int64, error) {
	var cents int64
	err := q.QueryRowContext(ctx,
		"SELECT amount_cents FROM budgets WHERE user_id = ? AND month_key = ?",
		userID, month.String()).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return cents, err
}

// spentCents windows on the stored local timestamp text: a month's rows sort
// between "YYYY-MM" and the next month's key.
func spentCents(ctx context.Context, q queryer, userID int64, month core.MonthKey) (int64, error) {
	var cents int64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_cents), 0) FROM expenses
		WHERE user_id = ? AND added_at >= ? AND added_at < ?`,
		userID, month.String(), month.Next().String()).Scan(&cents)
	return cents, err
}
