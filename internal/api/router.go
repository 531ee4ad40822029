package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/CallAudit/internal/config"
	"github.com/MikeSquared-Agency/CallAudit/internal/evaluation"
	"github.com/MikeSquared-Agency/CallAudit/internal/rubric"
	"github.com/MikeSquared-Agency/CallAudit/internal/selection"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
)

// SelectionRunner runs selection for one day. The scheduler implements it
// so manual runs never overlap scheduled ones.
type SelectionRunner interface {
	RunDay(ctx context.Context, day time.Time) (*selection.Result, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, selectionID uuid.UUID, payload []byte) (*evaluation.Outcome, error)
	RecordCorrection(ctx context.Context, c evaluation.Correction) (*store.ChangeRecord, error)
	Results(ctx context.Context, selectionID uuid.UUID) (*evaluation.Results, error)
	Preview(id rubric.ID, set store.JudgmentSet, transcript string, unintelligible bool) (*evaluation.Preview, error)
}

func NewRouter(s store.Store, runner SelectionRunner, ev Evaluator, catalog *rubric.Catalog, srv config.ServerConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	if len(srv.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: srv.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", ReviewerHeader},
			MaxAge:         300,
		}))
	}
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(srv.RateLimitPerMinute))

	selections := NewSelectionsHandler(s, runner, catalog, logger)
	evaluations := NewEvaluationsHandler(ev)
	reports := NewReportsHandler(s)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/week", selections.Week)
		r.Get("/selections", selections.List)
		r.Get("/selections/{id}", selections.Get)
		r.Get("/selections/{id}/evaluation", evaluations.Get)
		r.Post("/scoring/preview", evaluations.Preview)
		r.Get("/agents/performance", reports.AgentPerformance)
		r.Get("/summary", reports.Summary)

		r.Group(func(r chi.Router) {
			r.Use(ReviewerMiddleware)
			r.Patch("/selections/{id}", selections.Update)
			r.Patch("/selections/{id}/evaluation", evaluations.Correct)
		})

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(srv.AdminToken))
			r.Post("/recordings", selections.Ingest)
			r.Post("/selections/run", selections.Run)
			r.Post("/selections/{id}/evaluation", evaluations.Submit)
		})
	})

	return r
}

// NewMetricsRouter serves health and the collectors registered on g.
func NewMetricsRouter(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return r
}
