package http

import (
	"errors"
	"net/http"

	"conti/internal/core"
	"conti/internal/log"
)

func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	owner := sanitizeInput(r.URL.Query().Get("owner"))
	defs, err := s.ledger.ListDefinitions(r.Context(), owner)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	out := make([]definitionResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, s.definitionJSON(d))
	}
	NewJSONResponse().Body(map[string]any{"recurring": out}).Write(w)
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := s.ledger.GetDefinition(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(s.definitionJSON(def)).Write(w)
}

func (s *Server) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var req definitionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	def, err := req.toDefinition("")
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	def, err = s.ledger.CreateDefinition(r.Context(), def)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/recurring/"+def.ID).
		Body(s.definitionJSON(def)).
		Write(w)
}

// handleUpdateDefinition replaces a definition. Expenses it already produced
// keep their values.
func (s *Server) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req definitionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	def, err := req.toDefinition(id)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	def, err = s.ledger.UpdateDefinition(r.Context(), def)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Recurring definition updated",
		log.FieldRecurrentID, def.ID)
	NewJSONResponse().Body(s.definitionJSON(def)).Write(w)
}

func (s *Server) handleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteDefinition(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleMaterialize generates the expense for the definition's due date. An
// optional due_date pins the occurrence so a retried request reports
// already_materialized instead of generating the following one. An earlier
// due_date with no expense yet is backfilled.
func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var due core.Date
	var req materializeRequest
	if err := DecodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, log.OpMaterialize, err)
		return
	}
	if req.DueDate != "" {
		d, err := ParseDateParam("due_date", req.DueDate)
		if err != nil {
			writeError(w, r, log.OpMaterialize, err)
			return
		}
		due = d
	}

	exp, err := s.ledger.Materialize(r.Context(), id, due)
	switch {
	case errors.Is(err, core.ErrAlreadyMaterialized):
		NewJSONResponse().Body(map[string]any{
			"status":        "already_materialized",
			"definition_id": id,
		}).Write(w)
		return
	case err != nil:
		writeError(w, r, log.OpMaterialize, err)
		return
	}

	s.invalidatePeriod(core.PeriodOf(exp.Date).Label)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+exp.ID).
		Body(map[string]any{
			"status":  "materialized",
			"expense": s.expenseJSON(exp),
		}).
		Write(w)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	n, err := ParseIntParam(r.URL.Query(), "n", 6)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	dates, err := s.ledger.UpcomingDates(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"definition_id": r.PathValue("id"),
		"dates":         dates,
	}).Write(w)
}
