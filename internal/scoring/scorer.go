package scoring

import (
	"github.com/MikeSquared-Agency/CallAudit/internal/rubric"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
)

// MaxScore is awarded to recordings the judgment source flags as
// unintelligible.
const MaxScore = 100

// Resolved is one criterion after matching a judgment against the rubric.
type Resolved struct {
	Key              string `json:"key"`
	Label            string `json:"label"`
	Weight           int    `json:"weight,omitempty"`
	Satisfied        bool   `json:"satisfied"`
	NotApplicable    bool   `json:"not_applicable"`
	Missing          bool   `json:"missing,omitempty"`
	Rationale        string `json:"rationale,omitempty"`
	Quote            string `json:"quote,omitempty"`
	TimestampSeconds *int   `json:"timestamp_seconds,omitempty"`
}

// Result captures the complete scoring output for one judgment set.
type Result struct {
	Score            int        `json:"score"`
	ProvisionalScore int        `json:"provisional_score"`
	ApplicableWeight int        `json:"applicable_weight"`
	EarnedWeight     int        `json:"earned_weight"`
	HighImpactFailed bool       `json:"high_impact_failed"`
	FailedHighImpact []string   `json:"failed_high_impact,omitempty"`
	General          []Resolved `json:"general"`
	HighImpact       []Resolved `json:"high_impact"`
}

// Calculate scores a judgment set against r. Criteria are walked in rubric
// order and judgments are matched by key; keys the rubric does not know are
// ignored. A missing general judgment counts as applicable and unsatisfied,
// a missing high-impact judgment as satisfied. Any unsatisfied high-impact
// criterion forces the score to zero.
func Calculate(r *rubric.Rubric, general, highImpact []store.Judgment) Result {
	genByKey := indexJudgments(general)
	hiByKey := indexJudgments(highImpact)

	res := Result{
		General:    make([]Resolved, 0, len(r.General)),
		HighImpact: make([]Resolved, 0, len(r.HighImpact)),
	}

	for _, crit := range r.HighImpact {
		rv := Resolved{Key: crit.Key, Label: crit.Label, Satisfied: true}
		if j, ok := hiByKey[crit.Key]; ok {
			rv.Satisfied = j.Satisfied
			copyDetail(&rv, j)
		} else {
			rv.Missing = true
		}
		if !rv.Satisfied {
			res.HighImpactFailed = true
			res.FailedHighImpact = append(res.FailedHighImpact, crit.Key)
		}
		res.HighImpact = append(res.HighImpact, rv)
	}

	for _, crit := range r.General {
		rv := Resolved{Key: crit.Key, Label: crit.Label, Weight: crit.Weight}
		if j, ok := genByKey[crit.Key]; ok {
			rv.NotApplicable = j.NotApplicable
			rv.Satisfied = j.Satisfied && !j.NotApplicable
			copyDetail(&rv, j)
		} else {
			rv.Missing = true
		}
		res.General = append(res.General, rv)
	}

	res.ApplicableWeight, res.EarnedWeight = sumWeights(res.General)
	res.ProvisionalScore = weightedScore(res.EarnedWeight, res.ApplicableWeight)
	res.Score = res.ProvisionalScore
	if res.HighImpactFailed {
		res.Score = 0
	}
	return res
}

// Judgments converts the resolved criteria back into a judgment set with
// labels and weights filled from the rubric.
func (res Result) Judgments() store.JudgmentSet {
	set := store.JudgmentSet{
		General:    make([]store.Judgment, 0, len(res.General)),
		HighImpact: make([]store.Judgment, 0, len(res.HighImpact)),
	}
	for _, rv := range res.General {
		set.General = append(set.General, rv.judgment())
	}
	for _, rv := range res.HighImpact {
		set.HighImpact = append(set.HighImpact, rv.judgment())
	}
	return set
}

func (rv Resolved) judgment() store.Judgment {
	return store.Judgment{
		Key:              rv.Key,
		Label:            rv.Label,
		Weight:           rv.Weight,
		Satisfied:        rv.Satisfied,
		NotApplicable:    rv.NotApplicable,
		Rationale:        rv.Rationale,
		Quote:            rv.Quote,
		TimestampSeconds: rv.TimestampSeconds,
	}
}

func indexJudgments(js []store.Judgment) map[string]store.Judgment {
	m := make(map[string]store.Judgment, len(js))
	for _, j := range js {
		if _, dup := m[j.Key]; dup {
			continue
		}
		m[j.Key] = j
	}
	return m
}

func copyDetail(rv *Resolved, j store.Judgment) {
	rv.Rationale = j.Rationale
	rv.Quote = j.Quote
	rv.TimestampSeconds = j.TimestampSeconds
}
