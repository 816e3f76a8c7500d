package google

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"conti/internal/core"
)

// fakeValues is an in-memory spreadsheet keyed by sheet name.
type fakeValues struct {
	sheets    map[string][][]any
	gets      int
	failWrite bool
}

func newFakeValues() *fakeValues {
	return &fakeValues{sheets: make(map[string][][]any)}
}

func (f *fakeValues) Get(_ context.Context, rng string) ([][]any, error) {
	f.gets++
	sheet, _, _ := strings.Cut(rng, "!")
	var out [][]any
	for _, r := range f.sheets[sheet] {
		out = append(out, r[:1])
	}
	return out, nil
}

func (f *fakeValues) Update(_ context.Context, rng string, rows [][]any) error {
	if f.failWrite {
		return errors.New("quota exceeded")
	}
	sheet, cells, _ := strings.Cut(rng, "!")
	start, _, _ := strings.Cut(cells, ":")
	var row int
	for i, ch := range start {
		if ch >= '0' && ch <= '9' {
			row = atoi(start[i:])
			break
		}
	}
	for len(f.sheets[sheet]) < row {
		f.sheets[sheet] = append(f.sheets[sheet], []any{""})
	}
	f.sheets[sheet][row-1] = rows[0]
	return nil
}

func atoi(s string) int {
	n := 0
	for _, ch := range s {
		n = n*10 + int(ch-'0')
	}
	return n
}

func rent(id string, due core.Date) core.Expense {
	return core.Expense{
		ID:                id,
		SourceRecurringID: "def-1",
		SourceDueDate:     due,
		Date:              due,
		Amount:            core.Cents(120000),
		Category:          "Rent",
		SplitPolicy:       core.EqualSplit(),
		Participants:      []string{"alice", "bob"},
		PayerUserID:       "alice",
	}
}

func TestAppendExpenseWritesHeaderThenRows(t *testing.T) {
	fv := newFakeValues()
	c := newClient(fv, Config{})
	ctx := context.Background()

	ref, err := c.AppendExpense(ctx, rent("e1", core.NewDate(2025, 1, 31)))
	if err != nil {
		t.Fatalf("AppendExpense: %v", err)
	}
	if ref != "2025 Expenses!A2:L2" {
		t.Errorf("ref = %q", ref)
	}
	ref, err = c.AppendExpense(ctx, rent("e2", core.NewDate(2025, 2, 28)))
	if err != nil {
		t.Fatalf("AppendExpense: %v", err)
	}
	if ref != "2025 Expenses!A3:L3" {
		t.Errorf("ref = %q", ref)
	}

	rows := fv.sheets["2025 Expenses"]
	if len(rows) != 3 || rows[0][0] != "ID" {
		t.Fatalf("rows = %v", rows)
	}
	got := toStrings(rows[1])
	want := []string{"e1", "2025-01-31", "2025-01", "Rent", "", "", "1200.00", "alice", "alice, bob", "equal", "def-1", "2025-01-31"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("row = %v, want %v", got, want)
	}
	if fv.gets != 1 {
		t.Errorf("column A read %d times, want 1 (cached)", fv.gets)
	}
}

func TestAppendIsIdempotent(t *testing.T) {
	fv := newFakeValues()
	c := newClient(fv, Config{})
	ctx := context.Background()
	e := rent("e1", core.NewDate(2025, 1, 31))

	first, _ := c.AppendExpense(ctx, e)
	// A fresh client sees the row through column A.
	c2 := newClient(fv, Config{})
	second, err := c2.AppendExpense(ctx, e)
	if err != nil {
		t.Fatalf("AppendExpense: %v", err)
	}
	if first != second || len(fv.sheets["2025 Expenses"]) != 2 {
		t.Errorf("duplicate row written: %q vs %q, rows=%d", first, second, len(fv.sheets["2025 Expenses"]))
	}
}

func TestAppendSettlementUsesYearSheet(t *testing.T) {
	fv := newFakeValues()
	c := newClient(fv, Config{SettlementsSheet: "Payments"})
	s := core.Settlement{
		ID: "s1", Date: core.NewDate(2024, 12, 30), Amount: core.Cents(1001),
		FromUserID: "bob", ToUserID: "alice", PeriodLabel: "2024-12",
	}
	ref, err := c.AppendSettlement(context.Background(), s)
	if err != nil {
		t.Fatalf("AppendSettlement: %v", err)
	}
	if ref != "2024 Payments!A2:F2" {
		t.Errorf("ref = %q", ref)
	}
	if got := toStrings(fv.sheets["2024 Payments"][1]); got[5] != "10.01" {
		t.Errorf("amount = %q", got[5])
	}
}

func TestAppendRejectsInvalidRecords(t *testing.T) {
	c := newClient(newFakeValues(), Config{})
	_, err := c.AppendSettlement(context.Background(), core.Settlement{ID: "s1"})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestWriteFailureInvalidatesIndex(t *testing.T) {
	fv := newFakeValues()
	c := newClient(fv, Config{})
	ctx := context.Background()
	if _, err := c.AppendExpense(ctx, rent("e1", core.NewDate(2025, 1, 31))); err != nil {
		t.Fatal(err)
	}

	fv.failWrite = true
	if _, err := c.AppendExpense(ctx, rent("e2", core.NewDate(2025, 2, 28))); err == nil {
		t.Fatal("expected write error")
	}
	fv.failWrite = false
	if _, err := c.AppendExpense(ctx, rent("e2", core.NewDate(2025, 2, 28))); err != nil {
		t.Fatal(err)
	}
	if fv.gets != 2 {
		t.Errorf("column A reads = %d, want 2 after failure", fv.gets)
	}
}

func TestIndexExpires(t *testing.T) {
	fv := newFakeValues()
	c := newClient(fv, Config{})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = c.AppendExpense(ctx, rent("e1", core.NewDate(2025, 1, 31)))
	now = now.Add(c.cacheValidDuration + time.Second)
	_, _ = c.AppendExpense(ctx, rent("e2", core.NewDate(2025, 2, 28)))
	c.InvalidateRowCache()
	_, _ = c.AppendExpense(ctx, rent("e3", core.NewDate(2025, 3, 28)))

	if fv.gets != 3 {
		t.Errorf("column A reads = %d, want 3", fv.gets)
	}
	if n := len(fv.sheets["2025 Expenses"]); n != 4 {
		t.Errorf("rows = %d, want 4", n)
	}
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{}); err == nil || !strings.Contains(err.Error(), "spreadsheet") {
		t.Errorf("err = %v, want missing spreadsheet id", err)
	}
	if _, err := New(ctx, Config{SpreadsheetID: "sheet"}); err == nil || !strings.Contains(err.Error(), "credentials") {
		t.Errorf("err = %v, want missing credentials", err)
	}
	if _, err := New(ctx, Config{SpreadsheetID: "sheet", CredentialsFile: t.TempDir() + "/missing.json"}); err == nil {
		t.Error("expected error for unreadable credentials file")
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Expenses", 2025, "2025 Expenses"},
		{"2024 Expenses", 2025, "2024 Expenses"},
		{" Settlements ", 2026, "2026 Settlements"},
		{"", 2025, ""},
		{"20xx Bad", 2025, "2025 20xx Bad"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestColumnLetter(t *testing.T) {
	for n, want := range map[int]string{1: "A", 6: "F", 12: "L", 26: "Z", 27: "AA", 52: "AZ"} {
		if got := columnLetter(n); got != want {
			t.Errorf("columnLetter(%d) = %q, want %q", n, got, want)
		}
	}
}
