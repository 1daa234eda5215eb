package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"budgettracker/internal/core"
	applog "budgettracker/internal/log"
)

// dateLayout renders expense timestamps in responses.
const dateLayout = "2006-01-02 15:04:05"

type messageResponse struct {
	Message string `json:"message"`
}

type budgetResponse struct {
	Message string      `json:"message,omitempty"`
	Amount  json.Number `json:"amount"`
}

type expenseCreatedResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

type expenseResponse struct {
	ID       int64       `json:"id"`
	Item     string      `json:"item"`
	Cost     json.Number `json:"cost"`
	Quantity int         `json:"quantity"`
	Date     string      `json:"date"`
}

type balanceResponse struct {
	Budget        json.Number `json:"budget"`
	TotalExpenses json.Number `json:"total_expenses"`
	Remaining     json.Number `json:"remaining"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// amount renders m as an exact JSON number.
func amount(m core.Money) json.Number {
	return json.Number(m.String())
}

func newExpenseResponses(expenses []core.Expense) []expenseResponse {
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, expenseResponse{
			ID:       e.ID,
			Item:     e.Item,
			Cost:     amount(e.Cost),
			Quantity: e.Quantity,
			Date:     e.AddedAt.Format(dateLayout),
		})
	}
	return out
}

func newBalanceResponse(b core.Balance) balanceResponse {
	return balanceResponse{
		Budget:        amount(b.Budget),
		TotalExpenses: amount(b.TotalExpenses),
		Remaining:     amount(b.Remaining),
	}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the error body for err. Input errors echo their message;
// anything else is logged and answered with a generic one.
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusBadRequest:
		writeErrorMessage(w, status, err.Error())
		return
	case http.StatusServiceUnavailable:
		writeErrorMessage(w, status, "storage unavailable")
	default:
		writeErrorMessage(w, status, "internal server error")
	}

	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogError(r.Context(), "Ledger operation failed", err, operation, nil)
}
