// Package storagetest holds a conformance suite run against every
// storage.Gateway implementation.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"conti/internal/core"
	"conti/internal/storage"
)

// Definition returns a valid monthly definition owned by alice.
func Definition(id string, due core.Date) core.RecurringDefinition {
	return core.RecurringDefinition{
		ID:           id,
		OwnerUserID:  "alice",
		Amount:       core.Cents(4500),
		Category:     "Utilities",
		Location:     "Home",
		Description:  "Broadband",
		Frequency:    core.EveryMonth(),
		SplitPolicy:  core.EqualSplit(),
		Participants: []string{"alice", "bob"},
		NextDueDate:  due,
	}
}

// Expense returns a valid one-off expense paid by payer.
func Expense(id string, date core.Date, cents int64, payer string) core.Expense {
	return core.Expense{
		ID:           id,
		Date:         date,
		Amount:       core.Cents(cents),
		Category:     "Groceries",
		Location:     "Market",
		SplitPolicy:  core.EqualSplit(),
		Participants: []string{"alice", "bob"},
		PayerUserID:  payer,
	}
}

// Run exercises gw. newGateway must return an empty gateway.
func Run(t *testing.T, newGateway func(t *testing.T) storage.Gateway) {
	t.Run("definitions", func(t *testing.T) { testDefinitions(t, newGateway(t)) })
	t.Run("advance compare-and-swap", func(t *testing.T) { testAdvance(t, newGateway(t)) })
	t.Run("expenses", func(t *testing.T) { testExpenses(t, newGateway(t)) })
	t.Run("occurrence uniqueness", func(t *testing.T) { testOccurrenceUniqueness(t, newGateway(t)) })
	t.Run("settlements", func(t *testing.T) { testSettlements(t, newGateway(t)) })
	t.Run("delete keeps expenses", func(t *testing.T) { testDeleteKeepsExpenses(t, newGateway(t)) })
}

func testDefinitions(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	d := Definition("def-1", core.NewDate(2025, 1, 31))
	d.SplitPolicy = core.OwnedBy("bob")
	d.Frequency = core.EveryNDays(10)
	if err := gw.CreateRecurringDefinition(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gw.CreateRecurringDefinition(ctx, d); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("second create: expected ErrDuplicate, got %v", err)
	}
	other := Definition("def-2", core.NewDate(2025, 1, 1))
	other.OwnerUserID = "bob"
	if err := gw.CreateRecurringDefinition(ctx, other); err != nil {
		t.Fatalf("create other: %v", err)
	}

	got, err := gw.GetRecurringDefinition(ctx, "def-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != d.Amount || got.Frequency != d.Frequency || !got.SplitPolicy.Equal(d.SplitPolicy) ||
		!got.NextDueDate.Equal(d.NextDueDate) || len(got.Participants) != 2 || got.Description != "Broadband" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	all, err := gw.ListRecurringDefinitions(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("list all: %d (err=%v)", len(all), err)
	}
	if all[0].ID != "def-2" {
		t.Fatalf("list should be ordered by next due date, got %s first", all[0].ID)
	}
	mine, err := gw.ListRecurringDefinitions(ctx, "alice")
	if err != nil || len(mine) != 1 || mine[0].ID != "def-1" {
		t.Fatalf("list by owner: %+v (err=%v)", mine, err)
	}

	got.Amount = core.Cents(5000)
	got.Category = "Internet"
	if err := gw.UpdateRecurringDefinition(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = gw.GetRecurringDefinition(ctx, "def-1")
	if got.Amount.Cents != 5000 || got.Category != "Internet" {
		t.Fatalf("update not persisted: %+v", got)
	}

	missing := Definition("nope", core.NewDate(2025, 1, 1))
	if err := gw.UpdateRecurringDefinition(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update missing: expected ErrNotFound, got %v", err)
	}
	if _, err := gw.GetRecurringDefinition(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing: expected ErrNotFound, got %v", err)
	}
	if err := gw.DeleteRecurringDefinition(ctx, "def-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := gw.DeleteRecurringDefinition(ctx, "def-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete twice: expected ErrNotFound, got %v", err)
	}
}

func testAdvance(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	from := core.NewDate(2025, 1, 31)
	to := core.NewDate(2025, 2, 28)
	if err := gw.CreateRecurringDefinition(ctx, Definition("def-1", from)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gw.AdvanceRecurringDefinition(ctx, "def-1", from, to); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := gw.AdvanceRecurringDefinition(ctx, "def-1", from, to); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("stale advance: expected ErrConflict, got %v", err)
	}
	if err := gw.AdvanceRecurringDefinition(ctx, "missing", from, to); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("advance missing: expected ErrNotFound, got %v", err)
	}
	got, _ := gw.GetRecurringDefinition(ctx, "def-1")
	if !got.NextDueDate.Equal(to) {
		t.Fatalf("next due date = %s, want %s", got.NextDueDate, to)
	}
}

func testExpenses(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	jan := core.MonthPeriod(2025, 1)
	for _, e := range []core.Expense{
		Expense("e1", core.NewDate(2025, 1, 3), 2000, "alice"),
		Expense("e2", core.NewDate(2025, 1, 20), 1001, "bob"),
		Expense("e3", core.NewDate(2025, 2, 1), 500, "alice"),
		Expense("e0", core.NewDate(2024, 12, 31), 700, "alice"),
	} {
		if err := gw.CreateExpense(ctx, e); err != nil {
			t.Fatalf("create %s: %v", e.ID, err)
		}
	}
	if err := gw.CreateExpense(ctx, Expense("e1", core.NewDate(2025, 1, 3), 1, "alice")); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("duplicate id: expected ErrDuplicate, got %v", err)
	}

	got, err := gw.ListExpenses(ctx, jan)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "e2" || got[1].ID != "e1" {
		t.Fatalf("expected [e2 e1] newest first, got %+v", got)
	}

	e, err := gw.GetExpense(ctx, "e2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Amount.Cents != 1001 || e.PayerUserID != "bob" || e.IsMaterialized() {
		t.Fatalf("round trip mismatch: %+v", e)
	}
	if _, err := gw.GetExpense(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing: expected ErrNotFound, got %v", err)
	}
}

func testOccurrenceUniqueness(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	due := core.NewDate(2025, 1, 31)
	e := Expense("m1", due, 4500, "alice")
	e.SourceRecurringID = "def-1"
	e.SourceDueDate = due
	if err := gw.CreateExpense(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}
	e.ID = "m2"
	if err := gw.CreateExpense(ctx, e); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("same occurrence: expected ErrDuplicate, got %v", err)
	}
	e.ID = "m3"
	e.SourceDueDate = core.NewDate(2025, 2, 28)
	if err := gw.CreateExpense(ctx, e); err != nil {
		t.Fatalf("next occurrence: %v", err)
	}
	got, err := gw.GetExpense(ctx, "m1")
	if err != nil || got.SourceRecurringID != "def-1" || !got.SourceDueDate.Equal(due) {
		t.Fatalf("back reference lost: %+v (err=%v)", got, err)
	}
}

func testSettlements(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	s1 := core.Settlement{ID: "s1", Date: core.NewDate(2025, 2, 2), Amount: core.Cents(1000), FromUserID: "bob", ToUserID: "alice", PeriodLabel: "2025-01"}
	s2 := core.Settlement{ID: "s2", Date: core.NewDate(2025, 2, 5), Amount: core.Cents(200), FromUserID: "bob", ToUserID: "alice", PeriodLabel: "2025-01"}
	s3 := core.Settlement{ID: "s3", Date: core.NewDate(2025, 1, 5), Amount: core.Cents(300), FromUserID: "alice", ToUserID: "bob", PeriodLabel: "2024-12"}
	for _, s := range []core.Settlement{s1, s2, s3} {
		if err := gw.CreateSettlement(ctx, s); err != nil {
			t.Fatalf("create %s: %v", s.ID, err)
		}
	}
	if err := gw.CreateSettlement(ctx, s1); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("duplicate settlement: expected ErrDuplicate, got %v", err)
	}

	// Settlements are selected by label, not by date.
	got, err := gw.ListSettlements(ctx, core.MonthPeriod(2025, 1))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s2" || got[1].ID != "s1" {
		t.Fatalf("expected [s2 s1], got %+v", got)
	}
	if got[1].Amount.Cents != 1000 || got[1].FromUserID != "bob" {
		t.Fatalf("round trip mismatch: %+v", got[1])
	}
}

func testDeleteKeepsExpenses(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	due := core.NewDate(2025, 1, 31)
	if err := gw.CreateRecurringDefinition(ctx, Definition("def-1", due)); err != nil {
		t.Fatalf("create definition: %v", err)
	}
	e := Expense("m1", due, 4500, "alice")
	e.SourceRecurringID = "def-1"
	e.SourceDueDate = due
	if err := gw.CreateExpense(ctx, e); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if err := gw.DeleteRecurringDefinition(ctx, "def-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := gw.GetExpense(ctx, "m1"); err != nil {
		t.Fatalf("materialized expense should survive definition delete: %v", err)
	}
}
