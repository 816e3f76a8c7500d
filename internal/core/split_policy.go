package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SplitKind names a split rule.
type SplitKind string

const (
	SplitEqual      SplitKind = "equal"
	SplitPercentage SplitKind = "percentage"
	SplitOwned      SplitKind = "owned"
)

var hundred = decimal.NewFromInt(100)

// SplitPolicy describes how an amount is divided between participants.
//
// For SplitPercentage, Percent is the share owed by the payer's counterpart.
// For SplitOwned, Owner owes the full amount.
type SplitPolicy struct {
	Kind    SplitKind
	Percent decimal.Decimal
	Owner   string
}

func EqualSplit() SplitPolicy { return SplitPolicy{Kind: SplitEqual} }

func PercentageSplit(p decimal.Decimal) SplitPolicy {
	return SplitPolicy{Kind: SplitPercentage, Percent: p}
}

func OwnedBy(userID string) SplitPolicy { return SplitPolicy{Kind: SplitOwned, Owner: userID} }

// Validate checks the policy shape. Whether it fits a set of participants is
// checked when the split is resolved.
func (p SplitPolicy) Validate() error {
	switch p.Kind {
	case SplitEqual:
	case SplitPercentage:
		if p.Percent.IsNegative() || p.Percent.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage %s out of range 0..100", ErrInvalidPolicy, p.Percent)
		}
	case SplitOwned:
		if strings.TrimSpace(p.Owner) == "" {
			return fmt.Errorf("%w: owner required", ErrInvalidPolicy)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPolicy, p.Kind)
	}
	return nil
}

// String returns the storage form: equal, percentage:<p> or owned:<user>.
func (p SplitPolicy) String() string {
	switch p.Kind {
	case SplitPercentage:
		return string(SplitPercentage) + ":" + p.Percent.String()
	case SplitOwned:
		return string(SplitOwned) + ":" + p.Owner
	}
	return string(p.Kind)
}

// ParseSplitPolicy parses the storage form. "50/50" is accepted as equal.
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "50/50" {
		return EqualSplit(), nil
	}
	kind, arg, _ := strings.Cut(s, ":")
	p := SplitPolicy{Kind: SplitKind(strings.ToLower(kind))}
	switch p.Kind {
	case SplitPercentage:
		d, err := decimal.NewFromString(strings.ReplaceAll(arg, ",", "."))
		if err != nil {
			return SplitPolicy{}, fmt.Errorf("%w: bad percentage %q", ErrInvalidPolicy, arg)
		}
		p.Percent = d
	case SplitOwned:
		p.Owner = arg
	}
	if err := p.Validate(); err != nil {
		return SplitPolicy{}, err
	}
	return p, nil
}

func (p SplitPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *SplitPolicy) UnmarshalText(b []byte) error {
	v, err := ParseSplitPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
