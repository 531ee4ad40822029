package api

import (
	"net/http"

	"github.com/MikeSquared-Agency/CallAudit/internal/store"
)

type ReportsHandler struct {
	store store.Store
}

func NewReportsHandler(s store.Store) *ReportsHandler {
	return &ReportsHandler{store: s}
}

func (h *ReportsHandler) AgentPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.store.AgentPerformance(r.Context(), r.URL.Query().Get("client"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if perf == nil {
		perf = []*store.AgentPerformance{}
	}
	writeJSON(w, http.StatusOK, perf)
}

// Summary returns per-week status counts, newest week first.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	weeks, err := h.store.WeekSummaries(r.Context(), r.URL.Query().Get("client"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if weeks == nil {
		weeks = []*store.WeekSummary{}
	}
	writeJSON(w, http.StatusOK, weeks)
}
