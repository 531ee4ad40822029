package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MikeSquared-Agency/CallAudit/internal/rubric"
	"github.com/MikeSquared-Agency/CallAudit/internal/scoring"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
	"github.com/MikeSquared-Agency/CallAudit/internal/week"
)

type SelectionsHandler struct {
	store   store.Store
	runner  SelectionRunner
	catalog *rubric.Catalog
	logger  *slog.Logger
	now     func() time.Time
}

func NewSelectionsHandler(s store.Store, runner SelectionRunner, catalog *rubric.Catalog, logger *slog.Logger) *SelectionsHandler {
	return &SelectionsHandler{store: s, runner: runner, catalog: catalog, logger: logger, now: time.Now}
}

type weekResponse struct {
	ReferenceDate        string `json:"reference_date"`
	WeekStart            string `json:"week_start"`
	WeekEnd              string `json:"week_end"`
	WorkingDaysRemaining int    `json:"working_days_remaining"`
}

func (h *SelectionsHandler) Week(w http.ResponseWriter, r *http.Request) {
	ref := week.DefaultReference(h.now())
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := week.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ref = d
	}
	win := week.Compute(ref)
	writeJSON(w, http.StatusOK, weekResponse{
		ReferenceDate:        week.Format(ref),
		WeekStart:            win.StartDate(),
		WeekEnd:              win.EndDate(),
		WorkingDaysRemaining: win.WorkingDaysRemaining,
	})
}

type ingestRequest struct {
	Recordings []*store.Recording `json:"recordings"`
}

func (h *SelectionsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for i, rec := range req.Recordings {
		if rec == nil || rec.ClientCode == "" || rec.AgentID == "" {
			writeError(w, http.StatusBadRequest, "recording "+strconv.Itoa(i)+": client_code and agent_id are required")
			return
		}
	}
	n, err := h.store.UpsertRecordings(r.Context(), req.Recordings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"upserted": n})
}

type runRequest struct {
	Date string `json:"date"`
}

// Run triggers selection for one day. An empty body selects the default
// reference day.
func (h *SelectionsHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var day time.Time
	if req.Date != "" {
		d, err := week.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		day = d
	}

	res, err := h.runner.RunDay(r.Context(), day)
	if err != nil {
		h.logger.Error("manual selection run failed", "date", req.Date, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SelectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SelectionFilter{
		ClientCode: q.Get("client"),
		AgentID:    q.Get("agent"),
	}
	if v := q.Get("week_start"); v != "" {
		d, err := week.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.WeekStart = &d
	}
	if v := q.Get("date"); v != "" {
		d, err := week.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.FileDate = &d
	}
	if v := q.Get("status"); v != "" {
		st, err := store.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &st
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	sels, err := h.store.ListSelections(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Campaign is derived, so it is filtered after the query.
	campaign := rubric.Campaign(q.Get("campaign"))
	out := make([]*store.Selection, 0, len(sels))
	for _, sel := range sels {
		h.annotate(sel)
		if campaign != "" && rubric.Campaign(sel.Campaign) != campaign {
			continue
		}
		out = append(out, sel)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SelectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	sel, err := h.store.GetSelection(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sel == nil {
		writeError(w, http.StatusNotFound, "selection not found")
		return
	}
	h.annotate(sel)
	writeJSON(w, http.StatusOK, sel)
}

type updateSelectionRequest struct {
	Status *string `json:"status"`
	Score  *int    `json:"score"`
	Notes  *string `json:"notes"`
}

func (h *SelectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req updateSelectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var upd store.SelectionUpdate
	if req.Status != nil {
		st, err := store.ParseStatus(*req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		upd.Status = &st
	}
	if req.Score != nil {
		if *req.Score < 0 || *req.Score > scoring.MaxScore {
			writeError(w, http.StatusBadRequest, "score must be between 0 and 100")
			return
		}
		upd.Score = req.Score
	}
	upd.Notes = req.Notes

	found, err := h.store.UpdateSelection(r.Context(), id, upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "selection not found")
		return
	}

	sel, err := h.store.GetSelection(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sel == nil {
		writeError(w, http.StatusNotFound, "selection not found")
		return
	}
	h.logger.Info("selection updated", "selection_id", id, "reviewer", r.Header.Get(ReviewerHeader), "status", sel.Status)
	h.annotate(sel)
	writeJSON(w, http.StatusOK, sel)
}

func (h *SelectionsHandler) annotate(sel *store.Selection) {
	if h.catalog == nil {
		return
	}
	sel.Campaign = string(h.catalog.CampaignFor(sel.ClientCode, sel.AgentID, sel.ProjectID))
}
