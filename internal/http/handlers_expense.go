package http

import (
	"net/http"

	"conti/internal/core"
	"conti/internal/log"
)

// handleListExpenses lists a month's expenses, newest first.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	period, err := ParsePeriodParam(r.URL.Query(), "period", s.now())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	items, err := s.ledger.ListExpenses(r.Context(), period)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	out := make([]expenseResponse, 0, len(items))
	var total core.Money
	for _, e := range items {
		out = append(out, s.expenseJSON(e))
		total = total.Add(e.Amount)
	}
	NewJSONResponse().Body(map[string]any{
		"period":   period.Label,
		"total":    s.money(total),
		"expenses": out,
	}).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.GetExpense(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(s.expenseJSON(e)).Write(w)
}

// handleCreateExpense records a one-off expense.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	e, err := req.toExpense()
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	e, err = s.ledger.RecordExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	s.invalidatePeriod(core.PeriodOf(e.Date).Label)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense recorded",
		log.FieldExpenseID, e.ID,
		log.FieldAmountCents, e.Amount.Cents,
		log.FieldPeriod, core.PeriodOf(e.Date).Label)

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+e.ID).
		Body(s.expenseJSON(e)).
		Write(w)
}
