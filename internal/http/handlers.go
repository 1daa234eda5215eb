package http

import (
	"context"
	"net/http"
	"time"

	"budgettracker/internal/core"
	applog "budgettracker/internal/log"
)

// handleHealth is the liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready only when the store answers
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.ledger.Ping(ctx); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err.Error())
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthParam(r)
	if err != nil {
		writeError(w, r, applog.OpGetBudget, err)
		return
	}

	budget, err := s.ledger.GetBudget(r.Context(), userIDFromContext(r.Context()), month)
	s.metrics.ObserveOperation(applog.OpGetBudget, err)
	if err != nil {
		writeError(w, r, applog.OpGetBudget, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetResponse{Amount: amount(budget.Amount)})
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpSetBudget, err)
		return
	}
	value, err := parseMoneyField(req.Amount)
	if err != nil {
		writeError(w, r, applog.OpSetBudget, err)
		return
	}
	month, err := parseMonthParam(r)
	if err != nil {
		writeError(w, r, applog.OpSetBudget, err)
		return
	}

	budget, err := s.ledger.SetBudget(r.Context(), userIDFromContext(r.Context()), value, month)
	s.metrics.ObserveOperation(applog.OpSetBudget, err)
	if err != nil {
		writeError(w, r, applog.OpSetBudget, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetResponse{
		Message: "Budget set successfully",
		Amount:  amount(budget.Amount),
	})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.ledger.ListExpenses(r.Context(), userIDFromContext(r.Context()))
	s.metrics.ObserveOperation(applog.OpList, err)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseResponses(expenses))
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpAddExpense, err)
		return
	}
	cost, err := parseMoneyField(req.Cost)
	if err != nil {
		writeError(w, r, applog.OpAddExpense, err)
		return
	}
	quantity, err := parseQuantityField(req.Quantity)
	if err != nil {
		writeError(w, r, applog.OpAddExpense, err)
		return
	}

	expense, err := s.ledger.AddExpense(r.Context(), userIDFromContext(r.Context()), req.Item, cost, quantity)
	s.metrics.ObserveOperation(applog.OpAddExpense, err)
	if err != nil {
		writeError(w, r, applog.OpAddExpense, err)
		return
	}
	writeJSON(w, http.StatusOK, expenseCreatedResponse{Message: "Expense added", ID: expense.ID})
}

// handleBalance serves the current month unless ?month=YYYY-MM is given
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthParam(r)
	if err != nil {
		writeError(w, r, applog.OpBalance, err)
		return
	}

	userID := userIDFromContext(r.Context())
	var balance core.Balance
	if month.IsZero() {
		balance, err = s.balances.GetBalance(r.Context(), userID)
	} else {
		balance, err = s.balances.BalanceFor(r.Context(), userID, month)
	}
	s.metrics.ObserveOperation(applog.OpBalance, err)
	if err != nil {
		writeError(w, r, applog.OpBalance, err)
		return
	}
	writeJSON(w, http.StatusOK, newBalanceResponse(balance))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	result, err := s.ledger.Reset(r.Context(), userIDFromContext(r.Context()))
	s.metrics.ObserveOperation(applog.OpReset, err)
	if err != nil {
		writeError(w, r, applog.OpReset, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Ledger reset",
		applog.FieldOperation, applog.OpReset,
		"budgets_deleted", result.Budgets,
		"expenses_deleted", result.Expenses)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Data reset successfully"})
}
