package http

import (
	"context"
	"errors"
	"net/http"

	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/services"
)

// handleBalances reports one period, or every month between from and to.
// An empty period is not an error: the report says so in its empty flag.
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("from") || q.Has("to") {
		s.handleBalanceRange(w, r)
		return
	}

	period, err := ParsePeriodParam(q, "period", s.now())
	if err != nil {
		writeError(w, r, log.OpBalance, err)
		return
	}
	report, err := s.balanceReport(r.Context(), period)
	if err != nil {
		writeError(w, r, log.OpBalance, err)
		return
	}
	NewJSONResponse().Body(s.balanceJSON(report)).Write(w)
}

func (s *Server) handleBalanceRange(w http.ResponseWriter, r *http.Request) {
	periods, err := ParsePeriodRange(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, log.OpBalance, err)
		return
	}

	reports := make([]*services.BalanceReport, len(periods))
	var missing []core.Period
	var missingIdx []int
	for i, p := range periods {
		if cached, ok := s.reports.Get(p.Label); ok {
			reports[i] = cached
			continue
		}
		missing = append(missing, p)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) > 0 {
		computed, err := s.ledger.ComputeBalancesForPeriods(r.Context(), missing)
		if err != nil {
			writeError(w, r, log.OpBalance, err)
			return
		}
		for j, rep := range computed {
			reports[missingIdx[j]] = rep
			s.reports.Set(rep.Period.Label, rep)
		}
	}

	out := make([]balanceResponse, 0, len(reports))
	for _, rep := range reports {
		out = append(out, s.balanceJSON(rep))
	}
	NewJSONResponse().Body(map[string]any{"balances": out}).Write(w)
}

// balanceReport serves a period from the cache, computing it on a miss.
func (s *Server) balanceReport(ctx context.Context, period core.Period) (*services.BalanceReport, error) {
	if cached, ok := s.reports.Get(period.Label); ok {
		return cached, nil
	}
	report, err := s.ledger.ComputeBalances(ctx, period)
	if err != nil && !errors.Is(err, core.ErrPeriodEmpty) {
		return nil, err
	}
	s.reports.Set(period.Label, report)
	return report, nil
}
