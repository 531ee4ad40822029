package evaluation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/MikeSquared-Agency/CallAudit/internal/rubric"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
)

// ErrMalformedPayload means the judgment source returned something that is
// not a judgment document. The source may do better on a second attempt.
var ErrMalformedPayload = errors.New("malformed judgment payload")

// RetryableError marks failures the caller may retry by asking the judgment
// source again.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Payload is a parsed judgment document.
type Payload struct {
	Judgments      store.JudgmentSet
	Transcript     string
	Unintelligible bool
	Summary        string
}

type rawJudgment struct {
	Satisfied *bool    `json:"cumple"`
	NA        bool     `json:"na"`
	Rationale string   `json:"observacion"`
	Quote     string   `json:"cita"`
	Timestamp *float64 `json:"timestamp"`
}

type rawPayload struct {
	Unintelligible bool                    `json:"call_unintelligible"`
	Transcript     string                  `json:"transcription"`
	General        map[string]*rawJudgment `json:"general"`
	HighImpact     map[string]*rawJudgment `json:"high_impact"`
	Summary        string                  `json:"resumen"`
}

var fence = []byte("```")

// stripFence removes a surrounding markdown code fence, with or without a
// json language tag.
func stripFence(data []byte) []byte {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("```json")) {
		data = data[len("```json"):]
	} else if bytes.HasPrefix(data, fence) {
		data = data[len(fence):]
	}
	data = bytes.TrimSuffix(bytes.TrimSpace(data), fence)
	return bytes.TrimSpace(data)
}

// ParsePayload decodes a judgment document for r. Judgments come out in
// rubric order carrying the rubric's labels and weights; keys the rubric
// does not define are dropped, and absent keys stay absent so scoring can
// apply its defaults. A document without a general section is rejected
// unless it flags the recording as unintelligible.
func ParsePayload(data []byte, r *rubric.Rubric) (*Payload, error) {
	var raw rawPayload
	if err := json.Unmarshal(stripFence(data), &raw); err != nil {
		return nil, &RetryableError{Err: fmt.Errorf("%w: %v", ErrMalformedPayload, err)}
	}
	if raw.General == nil && !raw.Unintelligible {
		return nil, &RetryableError{Err: fmt.Errorf("%w: missing general section", ErrMalformedPayload)}
	}

	p := &Payload{
		Transcript:     raw.Transcript,
		Unintelligible: raw.Unintelligible,
		Summary:        raw.Summary,
		Judgments: store.JudgmentSet{
			General:    make([]store.Judgment, 0, len(r.General)),
			HighImpact: make([]store.Judgment, 0, len(r.HighImpact)),
		},
	}

	for _, crit := range r.General {
		rj, ok := raw.General[crit.Key]
		if !ok || rj == nil {
			continue
		}
		j := rj.judgment(crit)
		j.Weight = crit.Weight
		p.Judgments.General = append(p.Judgments.General, j)
	}
	for _, crit := range r.HighImpact {
		rj, ok := raw.HighImpact[crit.Key]
		if !ok || rj == nil {
			continue
		}
		j := rj.judgment(crit)
		// High-impact criteria have no N/A outcome and default to met.
		j.NotApplicable = false
		if rj.Satisfied == nil {
			j.Satisfied = true
		}
		p.Judgments.HighImpact = append(p.Judgments.HighImpact, j)
	}
	return p, nil
}

func (rj *rawJudgment) judgment(crit rubric.Criterion) store.Judgment {
	j := store.Judgment{
		Key:           crit.Key,
		Label:         crit.Label,
		NotApplicable: rj.NA,
		Rationale:     rj.Rationale,
		Quote:         rj.Quote,
	}
	if rj.Satisfied != nil {
		j.Satisfied = *rj.Satisfied
	}
	if rj.Timestamp != nil && *rj.Timestamp >= 0 {
		ts := int(math.Round(*rj.Timestamp))
		j.TimestampSeconds = &ts
	}
	return j
}
