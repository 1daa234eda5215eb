package worker

import (
	"context"
	"fmt"
	"log/slog"

	"budgettracker/internal/amqp"
	"budgettracker/internal/core"

	"github.com/prometheus/client_golang/prometheus"
)

// BalanceReader computes a user's balance for an explicit month.
// *services.BalanceCalculator implements it.
type BalanceReader interface {
	BalanceFor(ctx context.Context, userID int64, month core.MonthKey) (core.Balance, error)
}

// OverspendWorker consumes ledger events and warns when a write leaves a
// month's remaining balance below zero.
type OverspendWorker struct {
	balances BalanceReader
	events   *prometheus.CounterVec
	alerts   prometheus.Counter
}

// NewOverspendWorker registers the worker's metrics on reg. A nil reg skips
// registration.
func NewOverspendWorker(balances BalanceReader, reg prometheus.Registerer) *OverspendWorker {
	w := &OverspendWorker{
		balances: balances,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budgettracker_worker_events_total",
			Help: "Ledger events handled by the worker, by type and outcome.",
		}, []string{"type", "outcome"}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "budgettracker_overspend_alerts_total",
			Help: "Ledger writes that left a month overspent.",
		}),
	}
	if reg != nil {
		reg.MustRegister(w.events, w.alerts)
	}
	return w
}

// HandleLedgerEvent processes one event. Storage errors are returned so the
// delivery is requeued; events that can never succeed are dropped.
func (w *OverspendWorker) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	switch event.Type {
	case amqp.EventLedgerReset:
		slog.InfoContext(ctx, "Ledger reset observed", "user_id", event.UserID)
		w.events.WithLabelValues(string(event.Type), "ok").Inc()
		return nil
	case amqp.EventBudgetSet, amqp.EventExpenseAdded:
	default:
		w.events.WithLabelValues(string(event.Type), "ignored").Inc()
		return nil
	}

	month, err := core.ParseMonthKey(event.Month)
	if err != nil {
		slog.WarnContext(ctx, "Dropping ledger event with invalid month",
			"type", event.Type,
			"user_id", event.UserID,
			"month", event.Month)
		w.events.WithLabelValues(string(event.Type), "dropped").Inc()
		return nil
	}

	balance, err := w.balances.BalanceFor(ctx, event.UserID, month)
	if err != nil {
		w.events.WithLabelValues(string(event.Type), "error").Inc()
		return fmt.Errorf("balance for user %d %s: %w", event.UserID, month, err)
	}

	if balance.Overspent() {
		w.alerts.Inc()
		slog.WarnContext(ctx, "Monthly budget exceeded",
			"user_id", event.UserID,
			"month", month.String(),
			"budget", balance.Budget.String(),
			"total_expenses", balance.TotalExpenses.String(),
			"remaining", balance.Remaining.String(),
			"trigger", event.Type)
	} else {
		slog.DebugContext(ctx, "Balance within budget",
			"user_id", event.UserID,
			"month", month.String(),
			"remaining", balance.Remaining.String())
	}

	w.events.WithLabelValues(string(event.Type), "ok").Inc()
	return nil
}
