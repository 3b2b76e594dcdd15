// Package fusion cross-validates the three feedback classifiers and resolves
// a single validation judgment per solution/feedback pair.
package fusion

import (
	"github.com/hale-dev/chainfill/internal/analysis"
)

// Consistency tier boundaries. At or above agreeTier every classifier
// concurs; below reviewTier the disagreement is treated as insufficient
// evidence rather than arbitrated.
const (
	agreeTier  = 0.9
	reviewTier = 0.7
)

// fallbackConfidence is the confidence attached to a conservative-fallback
// result. Deliberately mid-scale: the pair was examined, not validated.
const fallbackConfidence = 0.5

// methodWeights is the fixed vote weighting for the middle tier. Pattern
// matching is cheapest and most precise on explicit feedback, so it carries
// half the vote.
var methodWeights = map[string]float64{
	analysis.MethodPattern:   0.5,
	analysis.MethodSemantic:  0.35,
	analysis.MethodTechnical: 0.15,
}

// ValidationResult is the resolved judgment for one solution/feedback pair.
type ValidationResult struct {
	Sentiment            analysis.Sentiment
	Confidence           float64
	PrimaryMethod        string
	ConsistencyScore     float64
	RequiresManualReview bool
}

// Engine resolves classifier outcomes into a ValidationResult. Stateless and
// pure; safe for concurrent use across pairs.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

type methodOutcome struct {
	name string
	out  analysis.Outcome
}

// Resolve fuses the three classifier outcomes for one pair.
//
// The consistency score is pairwise sentiment agreement over the three
// method pairs. A deferred or failed classifier never contributes a
// fabricated signal: its pairs count as non-agreements, which lowers the
// achievable consistency and pushes the pair toward conservative fallback.
func (e *Engine) Resolve(pattern, semantic, technical analysis.Outcome) ValidationResult {
	methods := []methodOutcome{
		{analysis.MethodPattern, pattern},
		{analysis.MethodSemantic, semantic},
		{analysis.MethodTechnical, technical},
	}

	agreements := 0
	for i := 0; i < len(methods); i++ {
		for j := i + 1; j < len(methods); j++ {
			a, b := methods[i].out, methods[j].out
			if a.Status == analysis.StatusOK && b.Status == analysis.StatusOK &&
				a.Signal.Sentiment == b.Signal.Sentiment {
				agreements++
			}
		}
	}
	consistency := float64(agreements) / 3.0

	switch {
	case consistency >= agreeTier:
		name, sig := highestConfidence(methods)
		return ValidationResult{
			Sentiment:        sig.Sentiment,
			Confidence:       sig.Confidence,
			PrimaryMethod:    name,
			ConsistencyScore: consistency,
		}
	case consistency >= reviewTier:
		sentiment, confidence := weightedVote(methods)
		return ValidationResult{
			Sentiment:        sentiment,
			Confidence:       confidence,
			PrimaryMethod:    analysis.MethodWeighted,
			ConsistencyScore: consistency,
		}
	default:
		return ValidationResult{
			Sentiment:            analysis.SentimentNeutral,
			Confidence:           fallbackConfidence,
			PrimaryMethod:        analysis.MethodFallback,
			ConsistencyScore:     consistency,
			RequiresManualReview: true,
		}
	}
}

// highestConfidence picks the computed signal with the single highest
// confidence. Ties resolve in method order: pattern, semantic, technical.
func highestConfidence(methods []methodOutcome) (string, analysis.Signal) {
	name := analysis.MethodFallback
	var best analysis.Signal
	bestScore := -1.0
	for _, m := range methods {
		if m.out.Status != analysis.StatusOK {
			continue
		}
		if m.out.Signal.Confidence > bestScore {
			name, best, bestScore = m.name, m.out.Signal, m.out.Signal.Confidence
		}
	}
	return name, best
}

// weightedVote sums weight*confidence per sentiment class over the computed
// signals and adopts the winner. The returned confidence is the winning mass
// normalized by the total weight of the methods that voted.
func weightedVote(methods []methodOutcome) (analysis.Sentiment, float64) {
	scores := make(map[analysis.Sentiment]float64, 4)
	totalWeight := 0.0
	for _, m := range methods {
		if m.out.Status != analysis.StatusOK {
			continue
		}
		w := methodWeights[m.name]
		scores[m.out.Signal.Sentiment] += w * m.out.Signal.Confidence
		totalWeight += w
	}
	if totalWeight == 0.0 {
		return analysis.SentimentNeutral, 0.0
	}

	// Fixed class order keeps ties deterministic.
	order := []analysis.Sentiment{
		analysis.SentimentPositive,
		analysis.SentimentNegative,
		analysis.SentimentPartial,
		analysis.SentimentNeutral,
	}
	winner := analysis.SentimentNeutral
	bestScore := -1.0
	for _, s := range order {
		if scores[s] > bestScore {
			winner, bestScore = s, scores[s]
		}
	}
	return winner, bestScore / totalWeight
}
