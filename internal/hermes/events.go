package hermes

import (
	"encoding/json"
	"time"

	"github.com/MikeSquared-Agency/CallAudit/internal/store"
)

type SelectionCompletedEvent struct {
	Date        string `json:"date"`
	WeekStart   string `json:"week_start"`
	WeekEnd     string `json:"week_end"`
	Inserted    int    `json:"inserted"`
	Skipped     int    `json:"skipped"`
	TotalAgents int    `json:"total_agents"`
	// Quotas by client; -1 marks the unbounded client.
	Quotas map[string]int `json:"quotas"`
}

type EvaluationScoredEvent struct {
	SelectionID      string   `json:"selection_id"`
	RecordingID      int64    `json:"recording_id"`
	RubricID         string   `json:"rubric_id"`
	Score            int      `json:"score"`
	HighImpactFailed bool     `json:"high_impact_failed"`
	Unintelligible   bool     `json:"unintelligible"`
	Overrides        []string `json:"overrides,omitempty"`
}

type EvaluationCorrectedEvent struct {
	SelectionID  string    `json:"selection_id"`
	EvaluationID string    `json:"evaluation_id"`
	Actor        string    `json:"actor"`
	ScoreBefore  int       `json:"score_before"`
	ScoreAfter   int       `json:"score_after"`
	Changes      int       `json:"changes"`
	CorrectedAt  time.Time `json:"corrected_at"`
}

type RecordingsDiscoveredEvent struct {
	Recordings []*store.Recording `json:"recordings"`
}

// JudgmentReadyEvent carries the judgment source's document verbatim.
type JudgmentReadyEvent struct {
	SelectionID string          `json:"selection_id"`
	Payload     json.RawMessage `json:"payload"`
}
