// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for schedule advancement.
// Each frequency kind (weekly, monthly, yearly, custom) has its own strategy
// that computes the next due date from the current one.

package services

import (
	"fmt"

	"conti/internal/core"
)

// Advancer is the strategy interface for moving a due date one period forward.
// Implementations must be pure and must always return a strictly later date.
type Advancer interface {
	Advance(d core.Date, f core.Frequency) core.Date
}

// WeeklyAdvancer adds seven days.
type WeeklyAdvancer struct{}

func (WeeklyAdvancer) Advance(d core.Date, _ core.Frequency) core.Date {
	return d.AddDays(7)
}

// MonthlyAdvancer adds one calendar month, clamping the day to the end of
// the target month (Jan 31 -> Feb 28/29).
type MonthlyAdvancer struct{}

func (MonthlyAdvancer) Advance(d core.Date, _ core.Frequency) core.Date {
	return d.AddMonthsClamped(1)
}

// YearlyAdvancer adds one year. Feb 29 becomes Feb 28 on non-leap years.
type YearlyAdvancer struct{}

func (YearlyAdvancer) Advance(d core.Date, _ core.Frequency) core.Date {
	return d.AddMonthsClamped(12)
}

// CustomAdvancer adds the frequency's interval in days.
type CustomAdvancer struct{}

func (CustomAdvancer) Advance(d core.Date, f core.Frequency) core.Date {
	n := f.IntervalDays
	if n < 1 {
		n = 1
	}
	return d.AddDays(n)
}

// advanceStrategies maps frequency kinds to their advancers.
var advanceStrategies = map[core.FrequencyKind]Advancer{
	core.Weekly:  WeeklyAdvancer{},
	core.Monthly: MonthlyAdvancer{},
	core.Yearly:  YearlyAdvancer{},
	core.Custom:  CustomAdvancer{},
}

// GetAdvancer returns the advancer for a frequency kind.
func GetAdvancer(kind core.FrequencyKind) (Advancer, error) {
	a, ok := advanceStrategies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", core.ErrInvalidFrequency, kind)
	}
	return a, nil
}

// AdvanceSchedule returns the due date that follows d under f.
//
// It panics where TryAdvanceSchedule fails. Stored definitions are checked
// with TryAdvanceSchedule before they reach it.
func AdvanceSchedule(d core.Date, f core.Frequency) core.Date {
	next, err := TryAdvanceSchedule(d, f)
	if err != nil {
		panic(err)
	}
	return next
}

// TryAdvanceSchedule is AdvanceSchedule for untrusted input. It fails with
// core.ErrInvalidDate when the following date would leave the calendar.
func TryAdvanceSchedule(d core.Date, f core.Frequency) (core.Date, error) {
	if err := f.Validate(); err != nil {
		return core.Date{}, err
	}
	a, err := GetAdvancer(f.Kind)
	if err != nil {
		return core.Date{}, err
	}
	next := a.Advance(d, f)
	if err := next.Validate(); err != nil || !next.After(d) {
		return core.Date{}, fmt.Errorf("%w: no %s due date after %s before year %d",
			core.ErrInvalidDate, f, d, core.MaxYear+1)
	}
	return next, nil
}

// AdvanceN applies AdvanceSchedule n times.
//
// Month-based frequencies step from the clamped date, so a definition due on
// Jan 31 goes Feb 28, Mar 28, ... exactly as repeated materialization would.
func AdvanceN(d core.Date, f core.Frequency, n int) core.Date {
	for i := 0; i < n; i++ {
		d = AdvanceSchedule(d, f)
	}
	return d
}

// IsDue reports whether the definition's next occurrence is on or before today.
func IsDue(def core.RecurringDefinition, today core.Date) bool {
	return !def.NextDueDate.After(today)
}

// Upcoming lists the next n due dates of def, starting with NextDueDate.
// The list is shorter when the schedule runs past year 9999.
func Upcoming(def core.RecurringDefinition, n int) []core.Date {
	out := make([]core.Date, 0, n)
	d := def.NextDueDate
	for i := 0; i < n; i++ {
		out = append(out, d)
		next, err := TryAdvanceSchedule(d, def.Frequency)
		if err != nil {
			break
		}
		d = next
	}
	return out
}
