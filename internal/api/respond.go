package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/CallAudit/internal/evaluation"
	"github.com/MikeSquared-Agency/CallAudit/internal/rubric"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors to HTTP statuses. Anything
// unrecognised is a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var retry *evaluation.RetryableError
	switch {
	case errors.As(err, &retry):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":     err.Error(),
			"retryable": true,
		})
	case errors.Is(err, rubric.ErrConfigurationMissing):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, evaluation.ErrSelectionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrOriginalMissing),
		errors.Is(err, store.ErrStaleEvaluation),
		errors.Is(err, store.ErrEvaluationCorrected):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, evaluation.ErrInvalidScore), errors.Is(err, store.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
