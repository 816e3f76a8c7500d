package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"conti/internal/core"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks the storage collaborator.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"storage": "ok"}
	status, code := "ready", http.StatusOK
	if err := s.ledger.Ping(ctx); err != nil {
		checks["storage"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	stats := s.reports.Stats()
	checks["balance_cache_entries"] = strconv.Itoa(s.reports.Size())
	checks["balance_cache_hits"] = strconv.FormatInt(stats.Hits, 10)
	checks["balance_cache_misses"] = strconv.FormatInt(stats.Misses, 10)

	NewJSONResponse().Status(code).Body(map[string]any{
		"status": status,
		"checks": checks,
	}).Write(w)
}

// handleAdvanceSchedule previews one schedule step.
func (s *Server) handleAdvanceSchedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := ParseDateParam("date", q.Get("date"))
	if err != nil {
		writeError(w, r, "advance_schedule", err)
		return
	}
	freq, err := core.ParseFrequency(q.Get("frequency"))
	if err != nil {
		writeError(w, r, "advance_schedule", &core.ValidationError{Field: "frequency", Reason: err.Error(), Err: err})
		return
	}
	next, err := s.ledger.AdvanceSchedule(date, freq)
	if err != nil {
		writeError(w, r, "advance_schedule", err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"date":      date,
		"frequency": freq.String(),
		"next":      next,
	}).Write(w)
}
