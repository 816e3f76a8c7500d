package sheets

import (
	"context"

	"conti/internal/core"
)

// Mirror is an append-only spreadsheet copy of the ledger. Appending a
// record that is already present returns its existing row reference.
type Mirror interface {
	AppendExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
	AppendSettlement(ctx context.Context, s core.Settlement) (rowRef string, err error)
}
