package scoring

import (
	"fmt"
	"math"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

// Fixed content-score weights. The three domain dimensions carry 0.15, 0.10,
// 0.10 in the order returned by domain.DomainDimensions.
var coreWeights = map[string]float64{
	domain.DimCommunication: 0.15,
	domain.DimRelevance:     0.15,
	domain.DimSpecificity:   0.20,
	domain.DimConsistency:   0.15,
}

var domainWeights = []float64{0.15, 0.10, 0.10}

// dimensionWeights returns the full 7-dimension weight map for a route.
func dimensionWeights(route domain.Route) map[string]float64 {
	w := make(map[string]float64, 7)
	for k, v := range coreWeights {
		w[k] = v
	}
	for i, d := range domain.DomainDimensions(route) {
		w[d] = domainWeights[i]
	}
	return w
}

// WeightedFormula computes the documented fixed weighted content score over
// the rubric, skipping excluded dimensions. When dimensions are excluded the
// remaining weights are renormalized by 1/(1-excludedSum) so they still sum
// to 1.0, preserving the relative emphasis the route design places on each
// dimension rather than flattening to a plain average.
func WeightedFormula(route domain.Route, rubric domain.RubricScores, excluded []string) float64 {
	weights := dimensionWeights(route)
	skip := make(map[string]struct{}, len(excluded))
	excludedSum := 0.0
	for _, d := range excluded {
		skip[d] = struct{}{}
		excludedSum += weights[d]
	}
	if excludedSum >= 1.0 {
		return 0
	}
	total := 0.0
	for dim, w := range weights {
		if _, ok := skip[dim]; ok {
			continue
		}
		total += rubric[dim] * (w / (1.0 - excludedSum))
	}
	return total
}

// ValidateAndCorrect detects known LLM scoring failure patterns and corrects
// the content score. Corrections apply in a fixed order (all-zero,
// zero-domain pattern, healthy-core floor, word-count floor, formula
// consistency) and are cumulative; each appends a human-readable warning so
// every anomaly stays auditable. It only runs when the rubric carries all
// seven dimensions.
func ValidateAndCorrect(route domain.Route, rubric domain.RubricScores, providerContent float64, answerWordCount int) domain.ScoreValidationResult {
	result := domain.ScoreValidationResult{
		IsValid:               true,
		OriginalContentScore:  providerContent,
		CorrectedContentScore: providerContent,
	}

	domainDims := domain.DomainDimensions(route)
	coreMean := meanOf(rubric, domain.CoreDimensions)

	// 1. All-zero rubric: a literal zero across every dimension is a scoring
	// failure, never a true signal.
	if allZero(rubric, append(append([]string{}, domain.CoreDimensions...), domainDims...)) {
		floor := 0.0
		if answerWordCount > 10 {
			floor = 30
		}
		result.CorrectedContentScore = floor
		result.IsValid = false
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("all-zero rubric detected; substituted word-count floor %.0f", floor))
		observability.ScoreCorrectionsTotal.WithLabelValues("all_zero").Inc()
	}

	// 2. Zero-domain pattern: every domain dimension zero while the core is
	// healthy means the question was purely factual; the domain dimensions
	// simply do not apply.
	zeroDomainFired := false
	if allZero(rubric, domainDims) && coreMean >= 60 {
		zeroDomainFired = true
		result.HasZeroDimensionPattern = true
		result.ExcludedDimensions = append(result.ExcludedDimensions, domainDims...)
		result.CorrectedContentScore = math.Round(coreMean)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("zero-domain pattern: recomputed content score as core mean %.1f", coreMean))
		observability.ScoreCorrectionsTotal.WithLabelValues("zero_domain").Inc()
	}

	// 3. Healthy-core floor: a genuinely strong answer must never be tanked
	// below 50 by one noisy dimension.
	if coreMean >= 70 && result.CorrectedContentScore < 50 {
		result.CorrectedContentScore = 50
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("healthy-core floor applied (core mean %.1f)", coreMean))
		observability.ScoreCorrectionsTotal.WithLabelValues("healthy_core_floor").Inc()
	}

	// 4. Word-count floor.
	if answerWordCount > 10 && result.CorrectedContentScore < 30 {
		result.CorrectedContentScore = 30
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("word-count floor applied (%d words)", answerWordCount))
		observability.ScoreCorrectionsTotal.WithLabelValues("word_count_floor").Inc()
	}

	// 5. Formula consistency: recompute the content score from the fixed
	// weighted formula and discard the provider's number when it strays more
	// than 30 points, unless the zero-domain pattern already replaced it.
	if !zeroDomainFired {
		formula := WeightedFormula(route, rubric, nil)
		if math.Abs(providerContent-formula) > 30 {
			result.CorrectedContentScore = math.Round(formula)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("provider score %.0f diverged from formula %.1f; using formula", providerContent, formula))
			observability.ScoreCorrectionsTotal.WithLabelValues("formula_mismatch").Inc()
		}
	}

	if result.CorrectedContentScore != result.OriginalContentScore {
		result.IsValid = false
	}
	return result
}

func meanOf(rubric domain.RubricScores, dims []string) float64 {
	if len(dims) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range dims {
		sum += rubric[d]
	}
	return sum / float64(len(dims))
}

func allZero(rubric domain.RubricScores, dims []string) bool {
	for _, d := range dims {
		if rubric[d] != 0 {
			return false
		}
	}
	return true
}
