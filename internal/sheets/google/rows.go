package google

import (
	"fmt"
	"strconv"
	"strings"

	"conti/internal/core"
)

var (
	expenseHeader = []any{
		"ID", "Date", "Period", "Category", "Description", "Location",
		"Amount", "Payer", "Participants", "Split", "Recurring ID", "Due Date",
	}
	settlementHeader = []any{"ID", "Date", "Period", "From", "To", "Amount"}
)

// expenseRow lays out an expense in expenseHeader order. Amounts are exact
// decimal strings so the sheet never sees a float.
func expenseRow(e core.Expense) []any {
	due := ""
	if e.IsMaterialized() {
		due = e.SourceDueDate.String()
	}
	return []any{
		e.ID,
		e.Date.String(),
		core.PeriodOf(e.Date).Label,
		e.Category,
		e.Description,
		e.Location,
		e.Amount.Decimal().StringFixed(2),
		e.PayerUserID,
		strings.Join(e.Participants, ", "),
		e.SplitPolicy.String(),
		e.SourceRecurringID,
		due,
	}
}

func settlementRow(s core.Settlement) []any {
	return []any{
		s.ID,
		s.Date.String(),
		s.PeriodLabel,
		s.FromUserID,
		s.ToUserID,
		s.Amount.Decimal().StringFixed(2),
	}
}

// columnLetter converts a 1-based column index to A1 notation.
func columnLetter(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// rowRange is the A1 range covering width columns of row.
func rowRange(sheet string, row, width int) string {
	return fmt.Sprintf("%s!A%d:%s%d", sheet, row, columnLetter(width), row)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
