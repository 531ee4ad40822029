package evaluation

import "github.com/MikeSquared-Agency/CallAudit/internal/store"

const (
	KindGeneral    = "general"
	KindHighImpact = "high_impact"

	labelMet    = "Cumple"
	labelNotMet = "No Cumple"
)

func outcomeLabel(satisfied bool) string {
	if satisfied {
		return labelMet
	}
	return labelNotMet
}

// Diff lists the criteria whose outcome differs between two judgment sets,
// matched by key. A high-impact criterion counts whenever its satisfied
// value flips. A general criterion counts only when the new judgment is
// applicable, so marking an item N/A is not reported as a change.
func Diff(before, after store.JudgmentSet) []store.CriterionChange {
	var changes []store.CriterionChange

	prevHI := make(map[string]store.Judgment, len(before.HighImpact))
	for _, j := range before.HighImpact {
		prevHI[j.Key] = j
	}
	for _, j := range after.HighImpact {
		old, ok := prevHI[j.Key]
		if !ok || old.Satisfied == j.Satisfied {
			continue
		}
		changes = append(changes, store.CriterionChange{
			Key:   j.Key,
			Kind:  KindHighImpact,
			Label: j.Label,
			From:  outcomeLabel(old.Satisfied),
			To:    outcomeLabel(j.Satisfied),
		})
	}

	prevGen := make(map[string]store.Judgment, len(before.General))
	for _, j := range before.General {
		prevGen[j.Key] = j
	}
	for _, j := range after.General {
		old, ok := prevGen[j.Key]
		if !ok || j.NotApplicable || old.Satisfied == j.Satisfied {
			continue
		}
		changes = append(changes, store.CriterionChange{
			Key:   j.Key,
			Kind:  KindGeneral,
			Label: j.Label,
			From:  outcomeLabel(old.Satisfied),
			To:    outcomeLabel(j.Satisfied),
		})
	}
	return changes
}
