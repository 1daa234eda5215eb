package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a ledger change. It is also the routing key.
type EventType string

const (
	EventBudgetSet    EventType = "budget.set"
	EventExpenseAdded EventType = "expense.added"
	EventLedgerReset  EventType = "ledger.reset"
)

func (t EventType) Valid() bool {
	switch t {
	case EventBudgetSet, EventExpenseAdded, EventLedgerReset:
		return true
	}
	return false
}

// LedgerEvent is a lightweight notification published after a ledger write
// commits. Consumers read current state from the store; the event only says
// what changed and for whom.
type LedgerEvent struct {
	Type        EventType `json:"type"`
	UserID      int64     `json:"user_id"`
	Month       string    `json:"month"`
	AmountCents *int64    `json:"amount_cents,omitempty"`
	ExpenseID   *int64    `json:"expense_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewBudgetSetEvent(userID int64, month string, amountCents int64) *LedgerEvent {
	return &LedgerEvent{
		Type:        EventBudgetSet,
		UserID:      userID,
		Month:       month,
		AmountCents: &amountCents,
		Timestamp:   time.Now(),
	}
}

func NewExpenseAddedEvent(userID int64, month string, expenseID, costCents int64) *LedgerEvent {
	return &LedgerEvent{
		Type:        EventExpenseAdded,
		UserID:      userID,
		Month:       month,
		AmountCents: &costCents,
		ExpenseID:   &expenseID,
		Timestamp:   time.Now(),
	}
}

func NewLedgerResetEvent(userID int64, month string) *LedgerEvent {
	return &LedgerEvent{
		Type:      EventLedgerReset,
		UserID:    userID,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects unknown types or owners.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if !e.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.UserID <= 0 {
		return nil, fmt.Errorf("event without user id")
	}
	return &e, nil
}
