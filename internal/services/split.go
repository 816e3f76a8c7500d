package services

import (
	"fmt"

	"conti/internal/core"

	"github.com/shopspring/decimal"
)

// Shares maps a user ID to the amount that user owes for an expense.
type Shares map[string]core.Money

// Total sums the shares.
func (s Shares) Total() core.Money {
	var t core.Money
	for _, m := range s {
		t = t.Add(m)
	}
	return t
}

// ResolveSplit divides amount between exactly two distinct participants
// according to policy. The returned shares always sum to amount.
//
//   - equal: halves; an odd cent goes to the non-payer.
//   - percentage(p): the non-payer owes amount*p/100 rounded half-up to the
//     cent; the payer absorbs the residual.
//   - owned(u): u owes everything, the other participant nothing.
func ResolveSplit(amount core.Money, policy core.SplitPolicy, participants []string, payer string) (Shares, error) {
	if len(participants) != 2 || participants[0] == participants[1] {
		return nil, fmt.Errorf("%w: need exactly 2 distinct participants, got %v", core.ErrInvalidPolicy, participants)
	}
	var other string
	switch payer {
	case participants[0]:
		other = participants[1]
	case participants[1]:
		other = participants[0]
	default:
		return nil, fmt.Errorf("%w: payer %q is not a participant", core.ErrInvalidPolicy, payer)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	var otherShare core.Money
	switch policy.Kind {
	case core.SplitEqual:
		otherShare = amount.Sub(core.Cents(amount.Cents / 2))
	case core.SplitPercentage:
		// Shift is exact; Round(0) is half away from zero.
		c := decimal.NewFromInt(amount.Cents).Mul(policy.Percent).Shift(-2).Round(0)
		otherShare = core.Cents(c.IntPart())
	case core.SplitOwned:
		switch policy.Owner {
		case other:
			otherShare = amount
		case payer:
			otherShare = core.Money{}
		default:
			return nil, fmt.Errorf("%w: owner %q is not a participant", core.ErrInvalidPolicy, policy.Owner)
		}
	}

	return Shares{
		other: otherShare,
		payer: amount.Sub(otherShare),
	}, nil
}
