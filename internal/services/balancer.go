package services

import (
	"fmt"
	"sort"

	"conti/internal/core"
)

// Pair is an unordered pair of users stored with A < B.
type Pair struct {
	A, B string
}

func pairOf(x, y string) (Pair, bool) {
	if x < y {
		return Pair{A: x, B: y}, false
	}
	return Pair{A: y, B: x}, true
}

// Transfer is a payment that moves money from a debtor to a creditor.
type Transfer struct {
	From   string
	To     string
	Amount core.Money
}

// BalanceReport is derived on demand and never persisted.
type BalanceReport struct {
	Period core.Period
	// Nets is positive for users who are owed money, negative for users who owe.
	Nets map[string]core.Money
	// Pairwise holds, for each pair, what A owes B. Negative means B owes A.
	Pairwise        map[Pair]core.Money
	Transfers       []Transfer
	Total           core.Money
	ExpenseCount    int
	SettlementCount int
}

// Empty reports whether nothing fell inside the period.
func (r *BalanceReport) Empty() bool {
	return r.ExpenseCount == 0 && r.SettlementCount == 0
}

// Owes returns what debtor owes creditor, signed.
func (r *BalanceReport) Owes(debtor, creditor string) core.Money {
	p, swapped := pairOf(debtor, creditor)
	v := r.Pairwise[p]
	if swapped {
		return v.Neg()
	}
	return v
}

// Users lists everyone with a net entry, sorted.
func (r *BalanceReport) Users() []string {
	out := make([]string, 0, len(r.Nets))
	for u := range r.Nets {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (r *BalanceReport) addDebt(debtor, creditor string, amt core.Money) {
	if debtor == creditor || amt.IsZero() {
		return
	}
	p, swapped := pairOf(debtor, creditor)
	if swapped {
		amt = amt.Neg()
	}
	r.Pairwise[p] = r.Pairwise[p].Add(amt)
}

// ComputeBalances reduces the expenses dated in period and the settlements
// labelled with period to per-user nets, pairwise balances and a minimal
// list of transfers that clears every net.
//
// An empty period yields a valid empty report together with
// core.ErrPeriodEmpty. An expense whose split cannot be resolved fails the
// whole computation with core.ErrInvalidPolicy.
func ComputeBalances(expenses []core.Expense, settlements []core.Settlement, period core.Period) (*BalanceReport, error) {
	r := &BalanceReport{
		Period:   period,
		Nets:     map[string]core.Money{},
		Pairwise: map[Pair]core.Money{},
	}

	for _, e := range expenses {
		if !period.Contains(e.Date) {
			continue
		}
		shares, err := ResolveSplit(e.Amount, e.SplitPolicy, e.Participants, e.PayerUserID)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		r.ExpenseCount++
		r.Total = r.Total.Add(e.Amount)
		for _, u := range e.Participants {
			if _, ok := r.Nets[u]; !ok {
				r.Nets[u] = core.Money{}
			}
		}
		for u, share := range shares {
			if u == e.PayerUserID {
				continue
			}
			r.Nets[e.PayerUserID] = r.Nets[e.PayerUserID].Add(share)
			r.Nets[u] = r.Nets[u].Sub(share)
			r.addDebt(u, e.PayerUserID, share)
		}
	}

	for _, s := range settlements {
		if s.PeriodLabel != period.Label {
			continue
		}
		r.SettlementCount++
		r.Nets[s.FromUserID] = r.Nets[s.FromUserID].Add(s.Amount)
		r.Nets[s.ToUserID] = r.Nets[s.ToUserID].Sub(s.Amount)
		r.addDebt(s.FromUserID, s.ToUserID, s.Amount.Neg())
	}

	if r.Empty() {
		return r, core.ErrPeriodEmpty
	}
	r.Transfers = Settle(r.Nets)
	return r, nil
}

type position struct {
	user   string
	amount int64
}

// Settle greedily matches the largest debtor with the largest creditor until
// every net is zero. Ties are broken by user ID. At most (users with a
// nonzero net - 1) transfers are produced. nets must sum to zero.
func Settle(nets map[string]core.Money) []Transfer {
	var debtors, creditors []position
	for u, n := range nets {
		switch {
		case n.Cents < 0:
			debtors = append(debtors, position{u, -n.Cents})
		case n.Cents > 0:
			creditors = append(creditors, position{u, n.Cents})
		}
	}

	largestFirst := func(ps []position) {
		sort.Slice(ps, func(i, j int) bool {
			if ps[i].amount != ps[j].amount {
				return ps[i].amount > ps[j].amount
			}
			return ps[i].user < ps[j].user
		})
	}

	var out []Transfer
	for len(debtors) > 0 && len(creditors) > 0 {
		largestFirst(debtors)
		largestFirst(creditors)
		d, c := &debtors[0], &creditors[0]
		x := d.amount
		if c.amount < x {
			x = c.amount
		}
		out = append(out, Transfer{From: d.user, To: c.user, Amount: core.Cents(x)})
		d.amount -= x
		c.amount -= x
		if d.amount == 0 {
			debtors = debtors[1:]
		}
		if c.amount == 0 {
			creditors = creditors[1:]
		}
	}
	return out
}
