package core

import (
	"fmt"
	"time"
)

// PeriodLayout is the label format of a month period.
const PeriodLayout = "2006-01"

// Period is a half-open date range [Start, End) with a label.
type Period struct {
	Label string
	Start Date
	End   Date
}

// MonthPeriod returns the calendar month containing year/month.
func MonthPeriod(year int, month time.Month) Period {
	start := NewDate(year, int(month), 1)
	return Period{
		Label: start.Format(PeriodLayout),
		Start: start,
		End:   start.AddMonthsClamped(1),
	}
}

// PeriodOf returns the month period containing d.
func PeriodOf(d Date) Period {
	return MonthPeriod(d.Year(), time.Month(d.Month()))
}

// ParsePeriod parses a YYYY-MM label.
func ParsePeriod(label string) (Period, error) {
	t, err := time.ParseInLocation(PeriodLayout, label, time.UTC)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: want YYYY-MM", label)
	}
	return MonthPeriod(t.Year(), t.Month()), nil
}

// Contains reports whether d falls inside the period.
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start) && d.Before(p.End)
}

func (p Period) Next() Period { return PeriodOf(p.End) }
func (p Period) Prev() Period { return PeriodOf(p.Start.AddDays(-1)) }

func (p Period) String() string { return p.Label }
