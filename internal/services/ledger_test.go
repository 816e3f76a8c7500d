package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"conti/internal/core"
	"conti/internal/storage"
	"conti/internal/storage/memory"
)

func newTestLedger(members ...string) (*Ledger, *recordingPublisher, *memory.Store) {
	store := memory.New()
	pub := &recordingPublisher{}
	l := NewLedger(store, pub, nil, members)
	l.now = func() time.Time { return time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC) }
	return l, pub, store
}

func TestLedgerDefinitionLifecycle(t *testing.T) {
	l, _, _ := newTestLedger()
	ctx := context.Background()

	def := monthlyRent("", core.NewDate(2025, 1, 31))
	created, err := l.CreateDefinition(ctx, def)
	if err != nil {
		t.Fatalf("CreateDefinition() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated ID")
	}

	created.Amount = core.Cents(125000)
	created.Frequency = core.EveryNDays(14)
	updated, err := l.UpdateDefinition(ctx, created)
	if err != nil {
		t.Fatalf("UpdateDefinition() error = %v", err)
	}
	if updated.Amount.Cents != 125000 || updated.Frequency != core.EveryNDays(14) {
		t.Errorf("update not applied: %+v", updated)
	}

	dates, err := l.UpcomingDates(ctx, created.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []core.Date{core.NewDate(2025, 1, 31), core.NewDate(2025, 2, 14), core.NewDate(2025, 2, 28)}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Errorf("upcoming[%d] = %s, want %s", i, dates[i], want[i])
		}
	}

	exp, err := l.Materialize(ctx, created.ID, core.Date{})
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	if err := l.DeleteDefinition(ctx, created.ID); err != nil {
		t.Fatalf("DeleteDefinition() error = %v", err)
	}
	if _, err := l.GetDefinition(ctx, created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetDefinition() after delete error = %v", err)
	}
	if _, err := l.GetExpense(ctx, exp.ID); err != nil {
		t.Errorf("materialized expense should survive deletion: %v", err)
	}
}

func TestLedgerMaterializePinnedDueDate(t *testing.T) {
	l, pub, _ := newTestLedger()
	ctx := context.Background()
	def, err := l.CreateDefinition(ctx, monthlyRent("rent", core.NewDate(2025, 1, 31)))
	if err != nil {
		t.Fatal(err)
	}
	due := def.NextDueDate

	if _, err := l.Materialize(ctx, "rent", due); err != nil {
		t.Fatalf("first call error = %v", err)
	}
	if _, err := l.Materialize(ctx, "rent", due); !errors.Is(err, core.ErrAlreadyMaterialized) {
		t.Fatalf("retry error = %v, want ErrAlreadyMaterialized", err)
	}
	if _, err := l.Materialize(ctx, "rent", core.NewDate(2025, 6, 30)); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("future due date error = %v, want ErrValidation", err)
	}
	if len(pub.expenses) != 1 {
		t.Errorf("published %d events, want 1", len(pub.expenses))
	}
}

func TestLedgerMaterializeBackfillsEarlierOccurrence(t *testing.T) {
	l, pub, store := newTestLedger()
	ctx := context.Background()
	if _, err := l.CreateDefinition(ctx, monthlyRent("rent", core.NewDate(2025, 3, 1))); err != nil {
		t.Fatal(err)
	}
	feb := core.NewDate(2025, 2, 1)

	exp, err := l.Materialize(ctx, "rent", feb)
	if err != nil {
		t.Fatalf("backfill error = %v", err)
	}
	if exp.ID != OccurrenceID("rent", feb) || !exp.Date.Equal(feb) {
		t.Errorf("backfilled expense = %+v", exp)
	}
	expenses, _ := store.ListExpenses(ctx, core.MonthPeriod(2025, 2))
	if len(expenses) != 1 {
		t.Fatalf("February has %d expenses, want 1", len(expenses))
	}
	def, _ := l.GetDefinition(ctx, "rent")
	if !def.NextDueDate.Equal(core.NewDate(2025, 3, 1)) {
		t.Errorf("backfill moved the schedule to %s", def.NextDueDate)
	}

	again, err := l.Materialize(ctx, "rent", feb)
	if !errors.Is(err, core.ErrAlreadyMaterialized) {
		t.Fatalf("repeat backfill error = %v, want ErrAlreadyMaterialized", err)
	}
	if again.ID != exp.ID {
		t.Errorf("repeat backfill returned %q, want stored %q", again.ID, exp.ID)
	}
	if len(pub.expenses) != 1 {
		t.Errorf("published %d events, want 1", len(pub.expenses))
	}
}

func TestLedgerValidation(t *testing.T) {
	l, _, _ := newTestLedger("alice", "bob")
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"non-member participant", func() error {
			def := monthlyRent("", core.NewDate(2025, 1, 31))
			def.Participants = []string{"alice", "mallory"}
			_, err := l.CreateDefinition(ctx, def)
			return err
		}},
		{"zero amount", func() error {
			def := monthlyRent("", core.NewDate(2025, 1, 31))
			def.Amount = core.Money{}
			_, err := l.CreateDefinition(ctx, def)
			return err
		}},
		{"materialized source on manual expense", func() error {
			e := expense("", "alice", "bob", 100, 3, core.EqualSplit())
			e.SourceRecurringID = "rent"
			_, err := l.RecordExpense(ctx, e)
			return err
		}},
		{"three participants", func() error {
			e := expense("", "alice", "bob", 100, 3, core.EqualSplit())
			e.Participants = append(e.Participants, "bob2")
			_, err := l.RecordExpense(ctx, e)
			return err
		}},
		{"definition owned by outsider of the pair", func() error {
			def := monthlyRent("", core.NewDate(2025, 1, 31))
			def.SplitPolicy = core.OwnedBy("carol")
			_, err := l.CreateDefinition(ctx, def)
			return err
		}},
		{"custom interval past the cap", func() error {
			def := monthlyRent("", core.NewDate(2025, 1, 31))
			def.Frequency = core.EveryNDays(core.MaxIntervalDays + 1)
			_, err := l.CreateDefinition(ctx, def)
			return err
		}},
		{"schedule runs past year 9999", func() error {
			_, err := l.CreateDefinition(ctx, monthlyRent("", core.NewDate(9999, 12, 15)))
			return err
		}},
		{"advance preview past year 9999", func() error {
			_, err := l.AdvanceSchedule(core.NewDate(9999, 12, 31), core.EveryWeek())
			return err
		}},
		{"self settlement", func() error {
			_, err := l.RecordSettlement(ctx, settlement("alice", "alice", 100, "2025-01"))
			return err
		}},
		{"upcoming out of range", func() error {
			_, err := l.UpcomingDates(ctx, "x", 0)
			return err
		}},
		{"invalid frequency preview", func() error {
			_, err := l.AdvanceSchedule(core.NewDate(2025, 1, 1), core.EveryNDays(0))
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, core.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestLedgerRecordExpensePublishes(t *testing.T) {
	l, pub, _ := newTestLedger()
	got, err := l.RecordExpense(context.Background(), expense("", "alice", "bob", 4200, 12, core.EqualSplit()))
	if err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}
	if len(pub.recorded) != 1 || pub.recorded[0].ID != got.ID {
		t.Fatalf("published %+v, want the recorded expense", pub.recorded)
	}
	if len(pub.expenses) != 0 {
		t.Errorf("one-off expense published as materialized")
	}
}

func TestLedgerRecordSettlement(t *testing.T) {
	l, pub, _ := newTestLedger()
	ctx := context.Background()

	s := settlement("bob", "alice", 1000, "")
	s.ID = ""
	s.Date = core.NewDate(2025, 2, 3)
	got, err := l.RecordSettlement(ctx, s)
	if err != nil {
		t.Fatalf("RecordSettlement() error = %v", err)
	}
	if got.PeriodLabel != "2025-02" {
		t.Errorf("period label = %q, want 2025-02", got.PeriodLabel)
	}
	if got.ID == "" || got.CreatedAt.IsZero() {
		t.Errorf("expected ID and timestamp to be set: %+v", got)
	}
	if len(pub.settlements) != 1 {
		t.Errorf("published %d settlements, want 1", len(pub.settlements))
	}

	list, err := l.ListSettlements(ctx, core.MonthPeriod(2025, 2))
	if err != nil || len(list) != 1 {
		t.Fatalf("ListSettlements() = %v, %v", list, err)
	}
}

func TestLedgerComputeBalances(t *testing.T) {
	l, _, _ := newTestLedger()
	ctx := context.Background()

	if _, err := l.RecordExpense(ctx, expense("", "alice", "bob", 2000, 10, core.EqualSplit())); err != nil {
		t.Fatal(err)
	}
	r, err := l.ComputeBalances(ctx, jan)
	if err != nil {
		t.Fatalf("ComputeBalances() error = %v", err)
	}
	if r.Owes("bob", "alice").Cents != 1000 {
		t.Errorf("bob owes alice %d, want 1000", r.Owes("bob", "alice").Cents)
	}

	if _, err := l.RecordSettlement(ctx, settlement("bob", "alice", 1000, "2025-01")); err != nil {
		t.Fatal(err)
	}
	r, err = l.ComputeBalances(ctx, jan)
	if err != nil {
		t.Fatal(err)
	}
	for u, n := range r.Nets {
		if !n.IsZero() {
			t.Errorf("net[%s] = %d after settlement", u, n.Cents)
		}
	}

	_, err = l.ComputeBalances(ctx, core.MonthPeriod(2025, 3))
	if !errors.Is(err, core.ErrPeriodEmpty) {
		t.Errorf("empty period error = %v", err)
	}
}

func TestLedgerComputeBalancesForPeriods(t *testing.T) {
	l, _, _ := newTestLedger()
	ctx := context.Background()
	if _, err := l.RecordExpense(ctx, expense("", "alice", "bob", 2000, 10, core.EqualSplit())); err != nil {
		t.Fatal(err)
	}

	periods := []core.Period{jan, jan.Next(), jan.Next().Next(), jan.Prev(), jan}
	reports, err := l.ComputeBalancesForPeriods(ctx, periods)
	if err != nil {
		t.Fatalf("ComputeBalancesForPeriods() error = %v", err)
	}
	if len(reports) != len(periods) {
		t.Fatalf("got %d reports", len(reports))
	}
	for i, r := range reports {
		if r.Period.Label != periods[i].Label {
			t.Errorf("report %d is for %s, want %s", i, r.Period.Label, periods[i].Label)
		}
	}
	if reports[0].Empty() || reports[4].Empty() || !reports[1].Empty() || !reports[3].Empty() {
		t.Error("unexpected emptiness across periods")
	}
}

func TestLedgerComputeBalancesStorageFailure(t *testing.T) {
	store := newFaultyStore()
	store.failListExpenses = true
	l := NewLedger(store, nil, nil, nil)

	_, err := l.ComputeBalancesForPeriods(context.Background(), []core.Period{jan, jan.Next()})
	if !core.IsPersistence(err) {
		t.Fatalf("error = %v, want persistence error", err)
	}
}
