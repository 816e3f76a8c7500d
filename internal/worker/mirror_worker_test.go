package worker

import (
	"context"
	"errors"
	"testing"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/storage/memory"
)

type fakeMirror struct {
	expenses    []string
	settlements []string
	fail        error
}

func (f *fakeMirror) AppendExpense(_ context.Context, e core.Expense) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.expenses = append(f.expenses, e.ID)
	return "Expenses!A" + e.ID, nil
}

func (f *fakeMirror) AppendSettlement(_ context.Context, s core.Settlement) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.settlements = append(f.settlements, s.ID)
	return "Settlements!A" + s.ID, nil
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	expenses := []core.Expense{
		{ID: "e1", Date: core.NewDate(2025, 1, 5), Amount: core.Cents(1000), Category: "food"},
		{ID: "e2", Date: core.NewDate(2025, 1, 20), Amount: core.Cents(2500), Category: "rent",
			SourceRecurringID: "def-1", SourceDueDate: core.NewDate(2025, 1, 20)},
		{ID: "e3", Date: core.NewDate(2025, 2, 2), Amount: core.Cents(700), Category: "food"},
	}
	for _, e := range expenses {
		e.PayerUserID = "alice"
		e.Participants = []string{"alice", "bob"}
		if err := store.CreateExpense(ctx, e); err != nil {
			t.Fatalf("CreateExpense(%s) error = %v", e.ID, err)
		}
	}
	st := core.Settlement{
		ID: "s1", Date: core.NewDate(2025, 1, 25), Amount: core.Cents(500),
		FromUserID: "bob", ToUserID: "alice", PeriodLabel: "2025-01",
	}
	if err := store.CreateSettlement(ctx, st); err != nil {
		t.Fatalf("CreateSettlement() error = %v", err)
	}
	return store
}

func TestHandleEvent(t *testing.T) {
	tests := []struct {
		name            string
		event           amqp.LedgerEvent
		wantExpenses    int
		wantSettlements int
	}{
		{"materialized expense", amqp.LedgerEvent{Type: amqp.EventExpenseMaterialized, ID: "e2", Period: "2025-01"}, 1, 0},
		{"one-off expense", amqp.LedgerEvent{Type: amqp.EventExpenseRecorded, ID: "e1", Period: "2025-01"}, 1, 0},
		{"recorded settlement", amqp.LedgerEvent{Type: amqp.EventSettlementRecorded, ID: "s1", Period: "2025-01"}, 0, 1},
		{"missing expense is dropped", amqp.LedgerEvent{Type: amqp.EventExpenseMaterialized, ID: "nope"}, 0, 0},
		{"settlement in other period is dropped", amqp.LedgerEvent{Type: amqp.EventSettlementRecorded, ID: "s1", Period: "2025-02"}, 0, 0},
		{"bad period is dropped", amqp.LedgerEvent{Type: amqp.EventSettlementRecorded, ID: "s1", Period: "January"}, 0, 0},
		{"unknown type", amqp.LedgerEvent{Type: "expense.deleted", ID: "e1"}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mirror := &fakeMirror{}
			w := NewMirrorWorker(seedStore(t), mirror, nil)

			ev := tt.event
			if err := w.HandleEvent(context.Background(), &ev); err != nil {
				t.Fatalf("HandleEvent() error = %v", err)
			}
			if len(mirror.expenses) != tt.wantExpenses {
				t.Errorf("mirrored expenses = %v, want %d", mirror.expenses, tt.wantExpenses)
			}
			if len(mirror.settlements) != tt.wantSettlements {
				t.Errorf("mirrored settlements = %v, want %d", mirror.settlements, tt.wantSettlements)
			}
		})
	}
}

func TestHandleEventMirrorFailureRequeues(t *testing.T) {
	down := errors.New("quota exceeded")
	w := NewMirrorWorker(seedStore(t), &fakeMirror{fail: down}, nil)

	err := w.HandleEvent(context.Background(), &amqp.LedgerEvent{Type: amqp.EventExpenseMaterialized, ID: "e1"})
	if !errors.Is(err, down) {
		t.Fatalf("HandleEvent() error = %v, want %v", err, down)
	}
}

func TestSyncPeriod(t *testing.T) {
	mirror := &fakeMirror{}
	w := NewMirrorWorker(seedStore(t), mirror, nil)
	jan, _ := core.ParsePeriod("2025-01")

	synced, failed, err := w.SyncPeriod(context.Background(), jan)
	if err != nil {
		t.Fatalf("SyncPeriod() error = %v", err)
	}
	if synced != 3 || failed != 0 {
		t.Errorf("SyncPeriod() = (%d, %d), want (3, 0)", synced, failed)
	}
	if len(mirror.expenses) != 2 || mirror.expenses[0] != "e1" || mirror.expenses[1] != "e2" {
		t.Errorf("expenses mirrored = %v, want oldest first [e1 e2]", mirror.expenses)
	}
	if len(mirror.settlements) != 1 {
		t.Errorf("settlements mirrored = %v, want [s1]", mirror.settlements)
	}
}

func TestSyncPeriodCountsFailures(t *testing.T) {
	w := NewMirrorWorker(seedStore(t), &fakeMirror{fail: errors.New("down")}, nil)
	jan, _ := core.ParsePeriod("2025-01")

	synced, failed, err := w.SyncPeriod(context.Background(), jan)
	if err != nil {
		t.Fatalf("SyncPeriod() error = %v", err)
	}
	if synced != 0 || failed != 3 {
		t.Errorf("SyncPeriod() = (%d, %d), want (0, 3)", synced, failed)
	}
}

func TestStartupSyncCheck(t *testing.T) {
	mirror := &fakeMirror{}
	w := NewMirrorWorker(seedStore(t), mirror, nil)

	if err := w.StartupSyncCheck(context.Background(), core.NewDate(2025, 2, 14)); err != nil {
		t.Fatalf("StartupSyncCheck() error = %v", err)
	}
	if len(mirror.expenses) != 3 {
		t.Errorf("expenses mirrored = %v, want all three across January and February", mirror.expenses)
	}
	if len(mirror.settlements) != 1 {
		t.Errorf("settlements mirrored = %v, want [s1]", mirror.settlements)
	}
}
