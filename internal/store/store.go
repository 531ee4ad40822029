package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SelectionStatus string

const (
	StatusSelected  SelectionStatus = "selected"
	StatusInReview  SelectionStatus = "in_review"
	StatusCompleted SelectionStatus = "completed"
	StatusSkipped   SelectionStatus = "skipped"
)

// ParseStatus rejects any value outside the selection lifecycle.
func ParseStatus(s string) (SelectionStatus, error) {
	switch st := SelectionStatus(s); st {
	case StatusSelected, StatusInReview, StatusCompleted, StatusSkipped:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Recording is a candidate call recording produced by the discovery and
// enrichment collaborators. The audit core never mutates it.
type Recording struct {
	ID                  int64     `json:"id"`
	ClientCode          string    `json:"client_code"`
	AgentID             string    `json:"agent_id"`
	AgentName           string    `json:"agent_name,omitempty"`
	ProjectID           *int      `json:"project_id,omitempty"`
	CallDurationSeconds *int      `json:"call_duration_seconds,omitempty"`
	FileSizeBytes       int64     `json:"file_size_bytes"`
	FileDate            time.Time `json:"file_date"`
	FileName            string    `json:"file_name,omitempty"`
	FilePath            string    `json:"file_path,omitempty"`
}

type Selection struct {
	ID          uuid.UUID       `json:"id"`
	RecordingID int64           `json:"recording_id"`
	AgentID     string          `json:"agent_id"`
	AgentName   string          `json:"agent_name,omitempty"`
	ClientCode  string          `json:"client_code"`
	WeekStart   time.Time       `json:"week_start"`
	WeekEnd     time.Time       `json:"week_end"`
	Status      SelectionStatus `json:"status"`
	Score       *int            `json:"score,omitempty"`
	Notes       string          `json:"notes,omitempty"`

	// QuotaExempt selections are excluded from the one-per-agent-per-week rule.
	QuotaExempt bool `json:"quota_exempt"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Joined from recordings
	FileDate            *time.Time `json:"file_date,omitempty"`
	ProjectID           *int       `json:"project_id,omitempty"`
	CallDurationSeconds *int       `json:"call_duration_seconds,omitempty"`

	// Filled by callers that resolve the campaign for display.
	Campaign string `json:"campaign,omitempty"`
}

type SelectionFilter struct {
	WeekStart  *time.Time
	ClientCode string
	AgentID    string
	Status     *SelectionStatus
	FileDate   *time.Time
	Limit      int
	Offset     int
}

type SelectionUpdate struct {
	Status *SelectionStatus
	Score  *int
	Notes  *string
}

// Judgment is the outcome for one rubric criterion. When NotApplicable is
// set, Satisfied carries no meaning for scoring.
type Judgment struct {
	Key              string `json:"key"`
	Label            string `json:"label,omitempty"`
	Weight           int    `json:"weight,omitempty"`
	Satisfied        bool   `json:"satisfied"`
	NotApplicable    bool   `json:"not_applicable"`
	Rationale        string `json:"rationale,omitempty"`
	Quote            string `json:"quote,omitempty"`
	TimestampSeconds *int   `json:"timestamp_seconds,omitempty"`
}

type JudgmentSet struct {
	General    []Judgment `json:"general"`
	HighImpact []Judgment `json:"high_impact"`
}

// Clone returns a deep copy so audit snapshots never alias the working set.
func (s JudgmentSet) Clone() JudgmentSet {
	out := JudgmentSet{
		General:    make([]Judgment, len(s.General)),
		HighImpact: make([]Judgment, len(s.HighImpact)),
	}
	copy(out.General, s.General)
	copy(out.HighImpact, s.HighImpact)
	for i := range out.General {
		out.General[i].TimestampSeconds = cloneInt(s.General[i].TimestampSeconds)
	}
	for i := range out.HighImpact {
		out.HighImpact[i].TimestampSeconds = cloneInt(s.HighImpact[i].TimestampSeconds)
	}
	return out
}

// GeneralByKey returns a pointer into the set, or nil.
func (s *JudgmentSet) GeneralByKey(key string) *Judgment {
	for i := range s.General {
		if s.General[i].Key == key {
			return &s.General[i]
		}
	}
	return nil
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type Evaluation struct {
	ID          uuid.UUID `json:"id"`
	RecordingID int64     `json:"recording_id"`
	SelectionID uuid.UUID `json:"selection_id"`
	RubricID    string    `json:"rubric_id"`

	Judgments JudgmentSet `json:"judgments"`
	Score     int         `json:"score"`

	// Written on first scoring only.
	OriginalJudgments JudgmentSet `json:"original_judgments"`
	OriginalScore     int         `json:"original_score"`

	Summary        string `json:"summary,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	Unintelligible bool   `json:"unintelligible"`
	Evaluator      string `json:"evaluator,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CriterionChange struct {
	Key   string `json:"key"`
	Kind  string `json:"kind"`
	Label string `json:"label"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// ChangeRecord is one reviewer edit event. Records are append-only.
type ChangeRecord struct {
	ID           uuid.UUID         `json:"id"`
	EvaluationID uuid.UUID         `json:"evaluation_id"`
	SelectionID  uuid.UUID         `json:"selection_id"`
	Actor        string            `json:"actor"`
	Changes      []CriterionChange `json:"changes"`
	ScoreBefore  int               `json:"score_before"`
	ScoreAfter   int               `json:"score_after"`
	CreatedAt    time.Time         `json:"created_at"`
}

type AgentPerformance struct {
	AgentID       string    `json:"agent_id"`
	AgentName     string    `json:"agent_name"`
	ClientCode    string    `json:"client_code"`
	TotalAudits   int       `json:"total_audits"`
	Completed     int       `json:"completed"`
	InReview      int       `json:"in_review"`
	Skipped       int       `json:"skipped"`
	AvgScore      *float64  `json:"avg_score,omitempty"`
	MinScore      *int      `json:"min_score,omitempty"`
	MaxScore      *int      `json:"max_score,omitempty"`
	LastAuditWeek time.Time `json:"last_audit_week"`
}

type WeekSummary struct {
	WeekStart time.Time `json:"week_start"`
	WeekEnd   time.Time `json:"week_end"`
	Total     int       `json:"total"`
	Selected  int       `json:"selected"`
	InReview  int       `json:"in_review"`
	Completed int       `json:"completed"`
	Skipped   int       `json:"skipped"`
	AvgScore  *float64  `json:"avg_score,omitempty"`
}

type Store interface {
	// Recordings (written by the discovery collaborator)
	UpsertRecordings(ctx context.Context, recs []*Recording) (int, error)
	ListCandidates(ctx context.Context, from, to time.Time) ([]*Recording, error)
	GetRecording(ctx context.Context, id int64) (*Recording, error)

	// Selections
	CreateSelection(ctx context.Context, sel *Selection) error
	GetSelection(ctx context.Context, id uuid.UUID) (*Selection, error)
	ListSelections(ctx context.Context, filter SelectionFilter) ([]*Selection, error)
	UpdateSelection(ctx context.Context, id uuid.UUID, upd SelectionUpdate) (bool, error)
	LatestSelectedDay(ctx context.Context) (time.Time, error)

	// Evaluations
	SaveEvaluation(ctx context.Context, ev *Evaluation) error
	GetEvaluation(ctx context.Context, recordingID int64) (*Evaluation, error)
	ApplyCorrection(ctx context.Context, ev *Evaluation, change *ChangeRecord) error
	ListChanges(ctx context.Context, selectionID uuid.UUID) ([]*ChangeRecord, error)

	// Reporting
	AgentPerformance(ctx context.Context, clientCode string) ([]*AgentPerformance, error)
	WeekSummaries(ctx context.Context, clientCode string) ([]*WeekSummary, error)

	Close() error
}
