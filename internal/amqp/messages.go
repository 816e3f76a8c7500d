package amqp

import (
	"encoding/json"
	"time"

	"conti/internal/core"
)

// EventType identifies what happened in the ledger.
type EventType string

const (
	EventExpenseMaterialized EventType = "expense.materialized"
	EventExpenseRecorded     EventType = "expense.recorded"
	EventSettlementRecorded  EventType = "settlement.recorded"
)

// LedgerEvent is a lightweight notification. Consumers fetch the full record
// from storage by ID.
type LedgerEvent struct {
	Type         EventType `json:"type"`
	ID           string    `json:"id"`
	DefinitionID string    `json:"definition_id,omitempty"`
	DueDate      string    `json:"due_date,omitempty"`
	Period       string    `json:"period"`
	AmountCents  int64     `json:"amount_cents"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewExpenseMaterializedEvent describes an expense created from a recurring definition.
func NewExpenseMaterializedEvent(e core.Expense) *LedgerEvent {
	return &LedgerEvent{
		Type:         EventExpenseMaterialized,
		ID:           e.ID,
		DefinitionID: e.SourceRecurringID,
		DueDate:      e.SourceDueDate.String(),
		Period:       core.PeriodOf(e.Date).Label,
		AmountCents:  e.Amount.Cents,
		Timestamp:    time.Now(),
	}
}

// NewExpenseRecordedEvent describes a one-off expense entered by a user.
func NewExpenseRecordedEvent(e core.Expense) *LedgerEvent {
	return &LedgerEvent{
		Type:        EventExpenseRecorded,
		ID:          e.ID,
		Period:      core.PeriodOf(e.Date).Label,
		AmountCents: e.Amount.Cents,
		Timestamp:   time.Now(),
	}
}

// NewSettlementRecordedEvent describes a newly recorded settlement.
func NewSettlementRecordedEvent(s core.Settlement) *LedgerEvent {
	return &LedgerEvent{
		Type:        EventSettlementRecorded,
		ID:          s.ID,
		Period:      s.PeriodLabel,
		AmountCents: s.Amount.Cents,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes an event.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
