package http

import (
	"net/http"

	"conti/internal/log"
)

// handleListSettlements returns a period's settlement history, newest first.
func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	period, err := ParsePeriodParam(r.URL.Query(), "period", s.now())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	items, err := s.ledger.ListSettlements(r.Context(), period)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	out := make([]settlementResponse, 0, len(items))
	for _, st := range items {
		out = append(out, s.settlementJSON(st))
	}
	NewJSONResponse().Body(map[string]any{
		"period":      period.Label,
		"settlements": out,
	}).Write(w)
}

func (s *Server) handleCreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	st, err := req.toSettlement()
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	st, err = s.ledger.RecordSettlement(r.Context(), st)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	s.invalidatePeriod(st.PeriodLabel)
	NewJSONResponse().Status(http.StatusCreated).Body(s.settlementJSON(st)).Write(w)
}
