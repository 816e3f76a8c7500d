package core

import (
	"fmt"
	"strconv"
	"strings"
)

// FrequencyKind names a recurrence rule.
type FrequencyKind string

const (
	Weekly  FrequencyKind = "weekly"
	Monthly FrequencyKind = "monthly"
	Yearly  FrequencyKind = "yearly"
	Custom  FrequencyKind = "custom"
)

// MaxIntervalDays caps custom intervals at roughly a century.
const MaxIntervalDays = 36500

// Frequency is how often a recurring definition repeats. IntervalDays is only
// meaningful for Custom.
type Frequency struct {
	Kind         FrequencyKind
	IntervalDays int
}

func EveryWeek() Frequency { return Frequency{Kind: Weekly} }
func EveryMonth() Frequency { return Frequency{Kind: Monthly} }
func EveryYear() Frequency { return Frequency{Kind: Yearly} }
func EveryNDays(n int) Frequency { return Frequency{Kind: Custom, IntervalDays: n} }

func (f Frequency) Validate() error {
	switch f.Kind {
	case Weekly, Monthly, Yearly:
		if f.IntervalDays != 0 {
			return fmt.Errorf("%w: %s takes no interval", ErrInvalidFrequency, f.Kind)
		}
	case Custom:
		if f.IntervalDays < 1 {
			return fmt.Errorf("%w: custom interval must be at least 1 day", ErrInvalidFrequency)
		}
		if f.IntervalDays > MaxIntervalDays {
			return fmt.Errorf("%w: custom interval must be at most %d days", ErrInvalidFrequency, MaxIntervalDays)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFrequency, f.Kind)
	}
	return nil
}

// String returns the storage form: weekly, monthly, yearly or custom:<n>.
func (f Frequency) String() string {
	if f.Kind == Custom {
		return string(Custom) + ":" + strconv.Itoa(f.IntervalDays)
	}
	return string(f.Kind)
}

// DisplayName is the label shown to users.
func (f Frequency) DisplayName() string {
	switch f.Kind {
	case Weekly:
		return "Weekly"
	case Monthly:
		return "Monthly"
	case Yearly:
		return "Yearly"
	case Custom:
		if f.IntervalDays == 1 {
			return "Every day"
		}
		return "Every " + strconv.Itoa(f.IntervalDays) + " days"
	}
	return string(f.Kind)
}

// ParseFrequency parses the storage form. It is case-insensitive.
func ParseFrequency(s string) (Frequency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	kind, arg, hasArg := strings.Cut(s, ":")
	f := Frequency{Kind: FrequencyKind(kind)}
	if hasArg {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return Frequency{}, fmt.Errorf("%w: bad interval %q", ErrInvalidFrequency, arg)
		}
		f.IntervalDays = n
	}
	if err := f.Validate(); err != nil {
		return Frequency{}, err
	}
	return f, nil
}

func (f Frequency) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Frequency) UnmarshalText(b []byte) error {
	p, err := ParseFrequency(string(b))
	if err != nil {
		return err
	}
	*f = p
	return nil
}
