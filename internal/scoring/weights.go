package scoring

import "math"

// sumWeights returns the weight of applicable criteria and the part of it
// that was earned.
func sumWeights(general []Resolved) (applicable, earned int) {
	for _, rv := range general {
		if rv.NotApplicable {
			continue
		}
		applicable += rv.Weight
		if rv.Satisfied {
			earned += rv.Weight
		}
	}
	return applicable, earned
}

// weightedScore redistributes the weight of not-applicable criteria across
// the applicable ones:
//
//	score = round(100 * earned / applicable)
//
// An empty applicable set scores 0.
func weightedScore(earned, applicable int) int {
	if applicable <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(earned) / float64(applicable)))
}
