package services

import (
	"errors"
	"testing"

	"conti/internal/core"

	"github.com/shopspring/decimal"
)

var jan = core.MonthPeriod(2025, 1)

func expense(id, payer, other string, cents int64, day int, policy core.SplitPolicy) core.Expense {
	return core.Expense{
		ID:           id,
		Date:         core.NewDate(2025, 1, day),
		Amount:       core.Cents(cents),
		Category:     "Groceries",
		SplitPolicy:  policy,
		Participants: []string{payer, other},
		PayerUserID:  payer,
	}
}

func settlement(from, to string, cents int64, label string) core.Settlement {
	return core.Settlement{
		ID:          from + "-" + to,
		Date:        core.NewDate(2025, 1, 28),
		Amount:      core.Cents(cents),
		FromUserID:  from,
		ToUserID:    to,
		PeriodLabel: label,
	}
}

func TestComputeBalances(t *testing.T) {
	tests := []struct {
		name        string
		expenses    []core.Expense
		settlements []core.Settlement
		wantNets    map[string]int64
		wantOwes    int64 // what bob owes alice
		wantXfers   int
	}{
		{
			name:      "equal split, one payer",
			expenses:  []core.Expense{expense("e1", "alice", "bob", 2000, 5, core.EqualSplit())},
			wantNets:  map[string]int64{"alice": 1000, "bob": -1000},
			wantOwes:  1000,
			wantXfers: 1,
		},
		{
			name:      "odd cent goes to the non-payer",
			expenses:  []core.Expense{expense("e1", "alice", "bob", 1001, 5, core.EqualSplit())},
			wantNets:  map[string]int64{"alice": 501, "bob": -501},
			wantOwes:  501,
			wantXfers: 1,
		},
		{
			name: "payments in both directions offset",
			expenses: []core.Expense{
				expense("e1", "alice", "bob", 2000, 5, core.EqualSplit()),
				expense("e2", "bob", "alice", 600, 6, core.EqualSplit()),
			},
			wantNets:  map[string]int64{"alice": 700, "bob": -700},
			wantOwes:  700,
			wantXfers: 1,
		},
		{
			name: "settlement clears the period",
			expenses: []core.Expense{
				expense("e1", "alice", "bob", 2000, 5, core.EqualSplit()),
			},
			settlements: []core.Settlement{settlement("bob", "alice", 1000, "2025-01")},
			wantNets:    map[string]int64{"alice": 0, "bob": 0},
			wantOwes:    0,
			wantXfers:   0,
		},
		{
			name: "settlement for another period is ignored",
			expenses: []core.Expense{
				expense("e1", "alice", "bob", 2000, 5, core.EqualSplit()),
			},
			settlements: []core.Settlement{settlement("bob", "alice", 1000, "2024-12")},
			wantNets:    map[string]int64{"alice": 1000, "bob": -1000},
			wantOwes:    1000,
			wantXfers:   1,
		},
		{
			name: "owned by the other participant",
			expenses: []core.Expense{
				expense("e1", "alice", "bob", 4500, 5, core.OwnedBy("bob")),
			},
			wantNets:  map[string]int64{"alice": 4500, "bob": -4500},
			wantOwes:  4500,
			wantXfers: 1,
		},
		{
			name: "percentage",
			expenses: []core.Expense{
				expense("e1", "alice", "bob", 1000, 5, core.PercentageSplit(decimal.NewFromInt(30))),
			},
			wantNets:  map[string]int64{"alice": 300, "bob": -300},
			wantOwes:  300,
			wantXfers: 1,
		},
		{
			name: "expenses outside the period are skipped",
			expenses: []core.Expense{
				expense("e1", "alice", "bob", 2000, 5, core.EqualSplit()),
				{
					ID: "feb", Date: core.NewDate(2025, 2, 1), Amount: core.Cents(9999),
					Category: "Rent", SplitPolicy: core.EqualSplit(),
					Participants: []string{"alice", "bob"}, PayerUserID: "bob",
				},
			},
			wantNets:  map[string]int64{"alice": 1000, "bob": -1000},
			wantOwes:  1000,
			wantXfers: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ComputeBalances(tt.expenses, tt.settlements, jan)
			if err != nil {
				t.Fatalf("ComputeBalances() error = %v", err)
			}
			for u, want := range tt.wantNets {
				if got := r.Nets[u].Cents; got != want {
					t.Errorf("net[%s] = %d, want %d", u, got, want)
				}
			}
			if got := r.Owes("bob", "alice").Cents; got != tt.wantOwes {
				t.Errorf("Owes(bob, alice) = %d, want %d", got, tt.wantOwes)
			}
			if got := r.Owes("alice", "bob").Cents; got != -tt.wantOwes {
				t.Errorf("Owes(alice, bob) = %d, want %d", got, -tt.wantOwes)
			}
			if len(r.Transfers) != tt.wantXfers {
				t.Errorf("got %d transfers, want %d: %+v", len(r.Transfers), tt.wantXfers, r.Transfers)
			}
			if tt.wantXfers == 1 {
				x := r.Transfers[0]
				if x.From != "bob" || x.To != "alice" || x.Amount.Cents != tt.wantOwes {
					t.Errorf("transfer = %+v", x)
				}
			}
		})
	}
}

func TestComputeBalancesEmptyPeriod(t *testing.T) {
	r, err := ComputeBalances(nil, nil, jan)
	if !errors.Is(err, core.ErrPeriodEmpty) {
		t.Fatalf("error = %v, want ErrPeriodEmpty", err)
	}
	if r == nil || !r.Empty() || len(r.Nets) != 0 || len(r.Transfers) != 0 {
		t.Fatalf("expected an empty report, got %+v", r)
	}
	if r.Period.Label != "2025-01" {
		t.Errorf("report period = %q", r.Period.Label)
	}
}

func TestComputeBalancesInvalidSplit(t *testing.T) {
	bad := expense("e1", "alice", "bob", 1000, 5, core.EqualSplit())
	bad.Participants = []string{"alice", "bob", "carol"}
	_, err := ComputeBalances([]core.Expense{bad}, nil, jan)
	if !errors.Is(err, core.ErrInvalidPolicy) {
		t.Fatalf("error = %v, want ErrInvalidPolicy", err)
	}
}

func TestComputeBalancesManyUsers(t *testing.T) {
	expenses := []core.Expense{
		expense("e1", "alice", "bob", 3000, 2, core.EqualSplit()),
		expense("e2", "carol", "bob", 5000, 3, core.EqualSplit()),
		expense("e3", "dave", "alice", 1234, 4, core.PercentageSplit(decimal.NewFromInt(75))),
		expense("e4", "carol", "dave", 777, 9, core.OwnedBy("dave")),
		expense("e5", "bob", "erin", 4100, 11, core.EqualSplit()),
	}
	settlements := []core.Settlement{settlement("bob", "carol", 500, "2025-01")}

	r, err := ComputeBalances(expenses, settlements, jan)
	if err != nil {
		t.Fatal(err)
	}

	var sum int64
	nonzero := 0
	for _, n := range r.Nets {
		sum += n.Cents
		if n.Cents != 0 {
			nonzero++
		}
	}
	if sum != 0 {
		t.Fatalf("nets sum to %d, want 0", sum)
	}
	if len(r.Transfers) > nonzero-1 {
		t.Errorf("%d transfers for %d nonzero users", len(r.Transfers), nonzero)
	}

	// Applying the transfers clears every balance.
	after := map[string]int64{}
	for u, n := range r.Nets {
		after[u] = n.Cents
	}
	for _, x := range r.Transfers {
		if x.Amount.Cents <= 0 {
			t.Errorf("non-positive transfer %+v", x)
		}
		after[x.From] += x.Amount.Cents
		after[x.To] -= x.Amount.Cents
	}
	for u, n := range after {
		if n != 0 {
			t.Errorf("%s left with %d after transfers", u, n)
		}
	}

	// Pairwise entries agree with the nets.
	perUser := map[string]int64{}
	for p, v := range r.Pairwise {
		perUser[p.A] -= v.Cents
		perUser[p.B] += v.Cents
	}
	for u, n := range r.Nets {
		if perUser[u] != n.Cents {
			t.Errorf("pairwise total for %s = %d, net = %d", u, perUser[u], n.Cents)
		}
	}

	if r.Total.Cents != 3000+5000+1234+777+4100 || r.ExpenseCount != 5 || r.SettlementCount != 1 {
		t.Errorf("unexpected totals: %+v", r)
	}
}

func TestSettleDeterministic(t *testing.T) {
	nets := map[string]core.Money{
		"alice": core.Cents(500),
		"bob":   core.Cents(500),
		"carol": core.Cents(-500),
		"dave":  core.Cents(-500),
	}
	want := []Transfer{
		{From: "carol", To: "alice", Amount: core.Cents(500)},
		{From: "dave", To: "bob", Amount: core.Cents(500)},
	}
	for i := 0; i < 10; i++ {
		got := Settle(nets)
		if len(got) != len(want) {
			t.Fatalf("Settle() = %+v", got)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("transfer %d = %+v, want %+v", j, got[j], want[j])
			}
		}
	}
}
