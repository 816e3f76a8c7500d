package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"conti/internal/core"
	"conti/internal/storage/memory"
)

var errStorageDown = errors.New("storage down")

// faultyStore wraps the memory store and fails selected operations.
type faultyStore struct {
	*memory.Store
	mu               sync.Mutex
	failCreate       int
	failAdvance      int
	failListExpenses bool
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.New()}
}

func (f *faultyStore) CreateExpense(ctx context.Context, e core.Expense) error {
	f.mu.Lock()
	fail := f.failCreate > 0
	if fail {
		f.failCreate--
	}
	f.mu.Unlock()
	if fail {
		return errStorageDown
	}
	return f.Store.CreateExpense(ctx, e)
}

func (f *faultyStore) AdvanceRecurringDefinition(ctx context.Context, id string, from, to core.Date) error {
	f.mu.Lock()
	fail := f.failAdvance > 0
	if fail {
		f.failAdvance--
	}
	f.mu.Unlock()
	if fail {
		return errStorageDown
	}
	return f.Store.AdvanceRecurringDefinition(ctx, id, from, to)
}

func (f *faultyStore) ListExpenses(ctx context.Context, p core.Period) ([]core.Expense, error) {
	if f.failListExpenses {
		return nil, errStorageDown
	}
	return f.Store.ListExpenses(ctx, p)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu          sync.Mutex
	expenses    []core.Expense
	recorded    []core.Expense
	settlements []core.Settlement
	err         error
}

func (p *recordingPublisher) PublishExpenseRecorded(_ context.Context, e core.Expense) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorded = append(p.recorded, e)
	return p.err
}

func (p *recordingPublisher) PublishExpenseMaterialized(_ context.Context, e core.Expense) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expenses = append(p.expenses, e)
	return p.err
}

func (p *recordingPublisher) PublishSettlementRecorded(_ context.Context, s core.Settlement) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settlements = append(p.settlements, s)
	return p.err
}

func monthlyRent(id string, due core.Date) core.RecurringDefinition {
	return core.RecurringDefinition{
		ID:           id,
		OwnerUserID:  "alice",
		Amount:       core.Cents(120000),
		Category:     "Rent",
		Location:     "Flat",
		Frequency:    core.EveryMonth(),
		SplitPolicy:  core.EqualSplit(),
		Participants: []string{"alice", "bob"},
		NextDueDate:  due,
	}
}

func mustCreate(t *testing.T, s interface {
	CreateRecurringDefinition(context.Context, core.RecurringDefinition) error
}, def core.RecurringDefinition) {
	t.Helper()
	if err := s.CreateRecurringDefinition(context.Background(), def); err != nil {
		t.Fatalf("create definition: %v", err)
	}
}
