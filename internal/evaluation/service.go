// Package evaluation turns judgment documents into stored, scored
// evaluations and records reviewer corrections against them.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/MikeSquared-Agency/CallAudit/internal/hermes"
	"github.com/MikeSquared-Agency/CallAudit/internal/metrics"
	"github.com/MikeSquared-Agency/CallAudit/internal/overrides"
	"github.com/MikeSquared-Agency/CallAudit/internal/rubric"
	"github.com/MikeSquared-Agency/CallAudit/internal/scoring"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
)

var (
	ErrSelectionNotFound = errors.New("selection not found")
	ErrInvalidScore      = errors.New("score must be between 0 and 100")
)

// SystemEvaluator is recorded as the evaluator of machine-scored results.
const SystemEvaluator = "system"

// Store is the persistence the service needs.
type Store interface {
	GetSelection(ctx context.Context, id uuid.UUID) (*store.Selection, error)
	SaveEvaluation(ctx context.Context, ev *store.Evaluation) error
	GetEvaluation(ctx context.Context, recordingID int64) (*store.Evaluation, error)
	ApplyCorrection(ctx context.Context, ev *store.Evaluation, change *store.ChangeRecord) error
	ListChanges(ctx context.Context, selectionID uuid.UUID) ([]*store.ChangeRecord, error)
}

// Outcome is the result of scoring one judgment document.
type Outcome struct {
	Evaluation *store.Evaluation   `json:"evaluation"`
	Result     scoring.Result      `json:"result"`
	Overrides  []overrides.Applied `json:"overrides,omitempty"`
	Campaign   rubric.Campaign     `json:"campaign"`
}

// Correction is a reviewer's replacement judgment set. A nil Score means
// the score is recomputed from the judgments.
type Correction struct {
	SelectionID uuid.UUID
	General     []store.Judgment
	HighImpact  []store.Judgment
	Score       *int
	Actor       string
}

// Results is an evaluation together with its change history.
type Results struct {
	Selection  *store.Selection      `json:"selection"`
	Evaluation *store.Evaluation     `json:"evaluation"`
	Changes    []*store.ChangeRecord `json:"changes"`
}

// Preview is a scoring dry run.
type Preview struct {
	RubricID  rubric.ID           `json:"rubric_id"`
	Judgments store.JudgmentSet   `json:"judgments"`
	Overrides []overrides.Applied `json:"overrides,omitempty"`
	Result    scoring.Result      `json:"result"`
}

type Service struct {
	store   Store
	catalog *rubric.Catalog
	engine  *overrides.Engine
	hermes  hermes.Client
	metrics *metrics.Metrics
	logger  *slog.Logger

	inflight singleflight.Group
}

func NewService(s Store, catalog *rubric.Catalog, engine *overrides.Engine, h hermes.Client, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   s,
		catalog: catalog,
		engine:  engine,
		hermes:  h,
		metrics: m,
		logger:  logger,
	}
}

// Evaluate scores a judgment document for a selection and persists it.
// Concurrent calls for the same recording share a single execution, and
// the first stored result stays recorded as the original.
func (s *Service) Evaluate(ctx context.Context, selectionID uuid.UUID, payload []byte) (*Outcome, error) {
	sel, err := s.store.GetSelection(ctx, selectionID)
	if err != nil {
		return nil, fmt.Errorf("get selection: %w", err)
	}
	if sel == nil {
		return nil, ErrSelectionNotFound
	}

	r, campaign, err := s.catalog.Resolve(sel.ClientCode, sel.AgentID, sel.ProjectID)
	if err != nil {
		return nil, err
	}

	p, err := ParsePayload(payload, r)
	if err != nil {
		s.logger.Warn("judgment payload rejected", "selection_id", sel.ID, "error", err)
		return nil, err
	}

	key := strconv.FormatInt(sel.RecordingID, 10)
	v, err, shared := s.inflight.Do(key, func() (interface{}, error) {
		return s.score(ctx, sel, r, p)
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*Outcome)
	out.Campaign = campaign
	if shared {
		s.logger.Debug("evaluation shared with in-flight call", "recording_id", sel.RecordingID)
	}
	return &out, nil
}

func (s *Service) score(ctx context.Context, sel *store.Selection, r *rubric.Rubric, p *Payload) (*Outcome, error) {
	set := p.Judgments.Clone()
	var applied []overrides.Applied
	if p.Unintelligible {
		applied = s.engine.MarkUnintelligible(r, &set)
	} else {
		applied = s.engine.Apply(r, &set, p.Transcript)
	}

	res := scoring.Calculate(r, set.General, set.HighImpact)
	score := res.Score
	if p.Unintelligible {
		score = scoring.MaxScore
	}

	judgments := res.Judgments()
	ev := &store.Evaluation{
		RecordingID:       sel.RecordingID,
		SelectionID:       sel.ID,
		RubricID:          string(r.ID),
		Judgments:         judgments,
		Score:             score,
		OriginalJudgments: judgments.Clone(),
		OriginalScore:     score,
		Summary:           p.Summary,
		Transcript:        p.Transcript,
		Unintelligible:    p.Unintelligible,
		Evaluator:         SystemEvaluator,
	}
	if err := s.store.SaveEvaluation(ctx, ev); err != nil {
		if errors.Is(err, store.ErrEvaluationCorrected) {
			s.logger.Warn("re-score refused, evaluation has reviewer corrections",
				"selection_id", sel.ID, "recording_id", sel.RecordingID)
		}
		return nil, fmt.Errorf("save evaluation: %w", err)
	}

	s.metrics.RecordScore(string(r.ID), score)
	rules := make([]string, 0, len(applied))
	for _, a := range applied {
		s.metrics.RecordOverride(string(a.Rule))
		rules = append(rules, string(a.Rule)+":"+a.Key)
	}

	if s.hermes != nil {
		if err := s.hermes.Publish(hermes.SubjectEvaluationScored(sel.ID.String()), hermes.EvaluationScoredEvent{
			SelectionID:      sel.ID.String(),
			RecordingID:      sel.RecordingID,
			RubricID:         string(r.ID),
			Score:            score,
			HighImpactFailed: res.HighImpactFailed,
			Unintelligible:   p.Unintelligible,
			Overrides:        rules,
		}); err != nil {
			s.logger.Warn("publish evaluation scored", "selection_id", sel.ID, "error", err)
		}
	}

	s.logger.Info("evaluation scored",
		"selection_id", sel.ID,
		"recording_id", sel.RecordingID,
		"rubric_id", r.ID,
		"score", score,
		"high_impact_failed", res.HighImpactFailed,
		"overrides", len(applied),
	)

	return &Outcome{Evaluation: ev, Result: res, Overrides: applied}, nil
}

// RecordCorrection replaces the current judgments of a scored selection.
// A change record is written only when at least one criterion's outcome
// differs from the current set; the original result is never modified.
// Without an explicit score an unintelligible recording keeps the maximum.
// A correction racing another one fails with store.ErrStaleEvaluation.
// It returns the change record, or nil when nothing changed.
func (s *Service) RecordCorrection(ctx context.Context, c Correction) (*store.ChangeRecord, error) {
	if c.Score != nil && (*c.Score < 0 || *c.Score > scoring.MaxScore) {
		return nil, ErrInvalidScore
	}

	sel, err := s.store.GetSelection(ctx, c.SelectionID)
	if err != nil {
		return nil, fmt.Errorf("get selection: %w", err)
	}
	if sel == nil {
		return nil, ErrSelectionNotFound
	}
	ev, err := s.store.GetEvaluation(ctx, sel.RecordingID)
	if err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	if ev == nil {
		return nil, store.ErrOriginalMissing
	}
	r, err := s.catalog.Rubric(rubric.ID(ev.RubricID))
	if err != nil {
		return nil, err
	}

	res := scoring.Calculate(r, c.General, c.HighImpact)
	next := res.Judgments()
	score := res.Score
	switch {
	case c.Score != nil:
		score = *c.Score
	case ev.Unintelligible:
		score = scoring.MaxScore
	}

	var change *store.ChangeRecord
	if diffs := Diff(ev.Judgments, next); len(diffs) > 0 {
		change = &store.ChangeRecord{
			ID:           uuid.New(),
			EvaluationID: ev.ID,
			SelectionID:  sel.ID,
			Actor:        c.Actor,
			Changes:      diffs,
			ScoreBefore:  ev.Score,
			ScoreAfter:   score,
		}
	}

	ev.Judgments = next
	ev.Score = score
	ev.Evaluator = c.Actor
	if err := s.store.ApplyCorrection(ctx, ev, change); err != nil {
		if errors.Is(err, store.ErrStaleEvaluation) {
			s.logger.Warn("correction lost a race, evaluation changed since read",
				"selection_id", sel.ID, "actor", c.Actor)
		}
		return nil, fmt.Errorf("apply correction: %w", err)
	}
	s.metrics.RecordCorrection(change != nil)

	if change != nil {
		if s.hermes != nil {
			if err := s.hermes.Publish(hermes.SubjectEvaluationCorrected(sel.ID.String()), hermes.EvaluationCorrectedEvent{
				SelectionID:  sel.ID.String(),
				EvaluationID: ev.ID.String(),
				Actor:        c.Actor,
				ScoreBefore:  change.ScoreBefore,
				ScoreAfter:   change.ScoreAfter,
				Changes:      len(change.Changes),
				CorrectedAt:  time.Now().UTC(),
			}); err != nil {
				s.logger.Warn("publish evaluation corrected", "selection_id", sel.ID, "error", err)
			}
		}
		s.logger.Info("evaluation corrected",
			"selection_id", sel.ID,
			"actor", c.Actor,
			"changes", len(change.Changes),
			"score_before", change.ScoreBefore,
			"score_after", change.ScoreAfter,
		)
	}
	return change, nil
}

// Results returns the selection, its evaluation and the change history.
// The evaluation is nil when the selection has not been scored yet.
func (s *Service) Results(ctx context.Context, selectionID uuid.UUID) (*Results, error) {
	sel, err := s.store.GetSelection(ctx, selectionID)
	if err != nil {
		return nil, fmt.Errorf("get selection: %w", err)
	}
	if sel == nil {
		return nil, ErrSelectionNotFound
	}
	ev, err := s.store.GetEvaluation(ctx, sel.RecordingID)
	if err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	changes, err := s.store.ListChanges(ctx, sel.ID)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	if changes == nil {
		changes = []*store.ChangeRecord{}
	}
	return &Results{Selection: sel, Evaluation: ev, Changes: changes}, nil
}

// Preview applies overrides and scores a judgment set without persisting
// anything. An empty transcript skips the transcript rules.
func (s *Service) Preview(id rubric.ID, set store.JudgmentSet, transcript string, unintelligible bool) (*Preview, error) {
	r, err := s.catalog.Rubric(id)
	if err != nil {
		return nil, err
	}

	working := set.Clone()
	var applied []overrides.Applied
	switch {
	case unintelligible:
		applied = s.engine.MarkUnintelligible(r, &working)
	case transcript != "":
		applied = s.engine.Apply(r, &working, transcript)
	}

	res := scoring.Calculate(r, working.General, working.HighImpact)
	if unintelligible {
		res.Score = scoring.MaxScore
	}
	return &Preview{
		RubricID:  id,
		Judgments: res.Judgments(),
		Overrides: applied,
		Result:    res,
	}, nil
}
