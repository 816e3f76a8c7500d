package storage

import (
	"context"
	"errors"

	"conti/internal/core"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an expense for the same
	// (recurring definition, due date) pair, or the same ID, already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned by AdvanceRecurringDefinition when the stored
	// next due date no longer matches the expected one.
	ErrConflict = errors.New("concurrent modification")
)

// Ports consumed by the services layer.
type (
	DefinitionStore interface {
		GetRecurringDefinition(ctx context.Context, id string) (core.RecurringDefinition, error)
		// ListRecurringDefinitions returns all definitions when ownerID is empty.
		ListRecurringDefinitions(ctx context.Context, ownerID string) ([]core.RecurringDefinition, error)
		CreateRecurringDefinition(ctx context.Context, def core.RecurringDefinition) error
		UpdateRecurringDefinition(ctx context.Context, def core.RecurringDefinition) error
		// AdvanceRecurringDefinition sets next_due_date to to only if it is
		// currently from. Otherwise it returns ErrConflict.
		AdvanceRecurringDefinition(ctx context.Context, id string, from, to core.Date) error
		DeleteRecurringDefinition(ctx context.Context, id string) error
	}

	ExpenseStore interface {
		CreateExpense(ctx context.Context, e core.Expense) error
		GetExpense(ctx context.Context, id string) (core.Expense, error)
		// ListExpenses returns expenses dated inside the period, newest first.
		ListExpenses(ctx context.Context, period core.Period) ([]core.Expense, error)
	}

	SettlementStore interface {
		CreateSettlement(ctx context.Context, s core.Settlement) error
		// ListSettlements returns settlements labelled with the period, newest first.
		ListSettlements(ctx context.Context, period core.Period) ([]core.Settlement, error)
	}

	// Gateway is the full persistence collaborator.
	Gateway interface {
		DefinitionStore
		ExpenseStore
		SettlementStore
		Ping(ctx context.Context) error
		Close() error
	}
)
