// Package overrides adjusts raw criterion judgments using signals read from
// the call transcript. Every rule only moves a criterion toward
// not-applicable or a neutral outcome, never toward failure.
package overrides

import (
	"github.com/MikeSquared-Agency/CallAudit/internal/rubric"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
)

type Rule string

const (
	RuleUnintelligible Rule = "unintelligible"
	RuleThirdParty     Rule = "third_party"
	RuleDroppedCall    Rule = "dropped_call"
	RuleNoObjection    Rule = "no_objection"
	RuleUnverifiable   Rule = "audio_unverifiable"
)

const (
	noteUnintelligible = "N/A: grabación ininteligible o defectuosa, no es atribuible al agente"
	noteThirdParty     = "N/A: llamada atendida por un tercero, no el titular"
	noteDroppedCall    = "N/A: llamada cortada prematuramente, el agente no tuvo oportunidad"
	noteNoObjection    = "N/A: el cliente no presentó ninguna objeción, no hay nada que manejar"
	noteUnverifiable   = "N/A: no es posible verificarlo desde el audio de la grabación"
)

// Applied records one criterion an override changed.
type Applied struct {
	Rule Rule   `json:"rule"`
	Key  string `json:"key"`
}

// Signals are the transcript predicates the engine consults.
type Signals struct {
	ThirdParty  Signal
	DroppedCall Signal
	Objection   Signal
}

func DefaultSignals() Signals {
	return Signals{
		ThirdParty:  ThirdPartySignal(),
		DroppedCall: NewDroppedCallSignal(),
		Objection:   ObjectionSignal(),
	}
}

type Engine struct {
	signals      Signals
	objectionKey string
	unverifiable []string
}

// NewEngine builds an engine. objectionKey names the objection-handling
// criterion; unverifiable lists criteria that cannot be heard in a recording.
func NewEngine(signals Signals, objectionKey string, unverifiable []string) *Engine {
	return &Engine{
		signals:      signals,
		objectionKey: objectionKey,
		unverifiable: unverifiable,
	}
}

// NewEngineFromCatalog wires the default signals to the catalog-wide
// criterion settings.
func NewEngineFromCatalog(c *rubric.Catalog) *Engine {
	return NewEngine(DefaultSignals(), c.ObjectionCriterion(), c.AudioUnverifiable())
}

// MarkUnintelligible forces every general criterion of r to not-applicable
// and every high-impact criterion to satisfied, adding entries for criteria
// the set lacks.
func (e *Engine) MarkUnintelligible(r *rubric.Rubric, set *store.JudgmentSet) []Applied {
	var applied []Applied

	general := make([]store.Judgment, 0, len(r.General))
	for _, crit := range r.General {
		general = append(general, store.Judgment{
			Key:           crit.Key,
			Label:         crit.Label,
			Weight:        crit.Weight,
			NotApplicable: true,
			Rationale:     noteUnintelligible,
		})
		applied = append(applied, Applied{Rule: RuleUnintelligible, Key: crit.Key})
	}

	highImpact := make([]store.Judgment, 0, len(r.HighImpact))
	for _, crit := range r.HighImpact {
		highImpact = append(highImpact, store.Judgment{
			Key:       crit.Key,
			Label:     crit.Label,
			Satisfied: true,
			Rationale: noteUnintelligible,
		})
	}

	set.General = general
	set.HighImpact = highImpact
	return applied
}

// Apply runs the transcript rules in order: third-party answerer, dropped
// call, no objection, audio-unverifiable. Each rule skips criteria that are
// already not-applicable, so a later rule never revisits an earlier one's
// work. Only judgments present in set are touched.
func (e *Engine) Apply(r *rubric.Rubric, set *store.JudgmentSet, transcript string) []Applied {
	var applied []Applied

	if e.signals.ThirdParty != nil && e.signals.ThirdParty.Detect(transcript) {
		for _, key := range r.ThirdPartySensitive {
			j := set.GeneralByKey(key)
			if j == nil || j.NotApplicable {
				continue
			}
			forceNA(j, noteThirdParty)
			applied = append(applied, Applied{Rule: RuleThirdParty, Key: key})
		}
	}

	if e.signals.DroppedCall != nil && e.signals.DroppedCall.Detect(transcript) {
		for _, key := range r.ClosingPhase {
			j := set.GeneralByKey(key)
			// Criteria the agent already met before the cutoff keep their credit.
			if j == nil || j.NotApplicable || j.Satisfied {
				continue
			}
			forceNA(j, noteDroppedCall)
			applied = append(applied, Applied{Rule: RuleDroppedCall, Key: key})
		}
	}

	if e.objectionKey != "" {
		j := set.GeneralByKey(e.objectionKey)
		if j != nil && !j.NotApplicable && !j.Satisfied &&
			(e.signals.Objection == nil || !e.signals.Objection.Detect(transcript)) {
			forceNA(j, noteNoObjection)
			applied = append(applied, Applied{Rule: RuleNoObjection, Key: e.objectionKey})
		}
	}

	for _, key := range e.unverifiable {
		j := set.GeneralByKey(key)
		if j == nil || j.NotApplicable || j.Satisfied {
			continue
		}
		forceNA(j, noteUnverifiable)
		applied = append(applied, Applied{Rule: RuleUnverifiable, Key: key})
	}

	return applied
}

func forceNA(j *store.Judgment, note string) {
	j.NotApplicable = true
	j.Rationale = note
}
