package api

import (
	"io"
	"net/http"

	"github.com/MikeSquared-Agency/CallAudit/internal/evaluation"
	"github.com/MikeSquared-Agency/CallAudit/internal/rubric"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
)

type EvaluationsHandler struct {
	evaluator Evaluator
}

func NewEvaluationsHandler(ev Evaluator) *EvaluationsHandler {
	return &EvaluationsHandler{evaluator: ev}
}

// Submit scores a raw judgment document for a selection. The body is passed
// through untouched so fenced or otherwise wrapped documents still parse.
func (h *EvaluationsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.evaluator.Evaluate(r.Context(), id, payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *EvaluationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	res, err := h.evaluator.Results(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type correctionRequest struct {
	General    []store.Judgment `json:"general"`
	HighImpact []store.Judgment `json:"high_impact"`
	Score      *int             `json:"score"`
}

type correctionResponse struct {
	Changed bool                `json:"changed"`
	Change  *store.ChangeRecord `json:"change,omitempty"`
}

func (h *EvaluationsHandler) Correct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req correctionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	change, err := h.evaluator.RecordCorrection(r.Context(), evaluation.Correction{
		SelectionID: id,
		General:     req.General,
		HighImpact:  req.HighImpact,
		Score:       req.Score,
		Actor:       r.Header.Get(ReviewerHeader),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, correctionResponse{Changed: change != nil, Change: change})
}

type previewRequest struct {
	RubricID       rubric.ID        `json:"rubric_id"`
	General        []store.Judgment `json:"general"`
	HighImpact     []store.Judgment `json:"high_impact"`
	Transcript     string           `json:"transcript"`
	Unintelligible bool             `json:"unintelligible"`
}

func (h *EvaluationsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RubricID == "" {
		writeError(w, http.StatusBadRequest, "rubric_id is required")
		return
	}

	set := store.JudgmentSet{General: req.General, HighImpact: req.HighImpact}
	p, err := h.evaluator.Preview(req.RubricID, set, req.Transcript, req.Unintelligible)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
