package analysis

import "strings"

// patternNorm is the marker count at which pattern confidence saturates.
const patternNorm = 3.0

var positiveMarkers = []string{
	"that worked",
	"it worked",
	"works now",
	"working now",
	"that fixed it",
	"fixed it",
	"problem solved",
	"perfect",
	"exactly what i needed",
	"thank you",
	"thanks",
	"great",
	"awesome",
	"all good now",
	"no more errors",
	"passes now",
	"builds now",
	"success",
}

var negativeMarkers = []string{
	"didn't work",
	"did not work",
	"doesn't work",
	"does not work",
	"not working",
	"still failing",
	"still fails",
	"still broken",
	"same error",
	"same problem",
	"still getting",
	"no luck",
	"that broke",
	"made it worse",
	"still doesn't",
	"nope",
	"wrong",
}

var partialMarkers = []string{
	"partially",
	"partly",
	"better but",
	"works but",
	"almost",
	"closer",
	"some progress",
	"improved but",
	"one error left",
	"fewer errors",
	"mostly working",
}

// solutionMarkers flag an assistant message as a solution attempt: imperative
// fix language and concrete commands.
var solutionMarkers = []string{
	"run ",
	"try ",
	"install",
	"restart",
	"update ",
	"change ",
	"replace ",
	"add ",
	"remove ",
	"set ",
	"you should",
	"you need to",
	"the fix is",
	"to fix",
	"this should fix",
	"instead of",
	"```",
}

// qualityMarkers raise the solution quality score: signs of a concrete,
// actionable answer rather than a vague suggestion.
var qualityMarkers = []string{
	"```",
	"step 1",
	"first,",
	"then ",
	"npm ",
	"pip ",
	"go ",
	"git ",
	"docker ",
	"$ ",
}

// PatternAnalyzer classifies feedback text by scanning curated marker sets.
// Deterministic and purely in-memory; it is also the cheap path that flags
// solution attempts during chain building.
type PatternAnalyzer struct{}

func NewPatternAnalyzer() *PatternAnalyzer {
	return &PatternAnalyzer{}
}

// AnalyzeFeedback scores feedback text against the positive/negative/partial
// marker sets. Confidence is matched markers over patternNorm, capped at 1.0.
// No markers at all yields a zero-confidence neutral signal.
func (a *PatternAnalyzer) AnalyzeFeedback(text string) Signal {
	lower := strings.ToLower(text)

	pos := countMarkers(lower, positiveMarkers)
	neg := countMarkers(lower, negativeMarkers)
	part := countMarkers(lower, partialMarkers)

	// Partial wins outright when present alongside a polar marker: "works
	// but" style feedback contains positive fragments by construction.
	if part > 0 && part >= pos-1 && part >= neg-1 {
		return Signal{Sentiment: SentimentPartial, Confidence: clamp01(float64(part) / patternNorm)}
	}

	switch {
	case pos > neg:
		return Signal{Sentiment: SentimentPositive, Confidence: clamp01(float64(pos) / patternNorm)}
	case neg > pos:
		return Signal{Sentiment: SentimentNegative, Confidence: clamp01(float64(neg) / patternNorm)}
	case pos > 0: // equal non-zero counts: conflicting evidence
		return Signal{Sentiment: SentimentNeutral, Confidence: clamp01(float64(pos) / patternNorm)}
	default:
		return Signal{Sentiment: SentimentNeutral, Confidence: 0.0}
	}
}

// IsSolutionAttempt reports whether assistant message content looks like a
// proposed fix.
func (a *PatternAnalyzer) IsSolutionAttempt(content string) bool {
	lower := strings.ToLower(content)
	return countMarkers(lower, solutionMarkers) > 0
}

// QualityScore rates a solution attempt on concreteness, bounded to
// [1.0, 3.0]. Base score 1.0, plus 0.5 per distinct quality marker.
func (a *PatternAnalyzer) QualityScore(content string) float64 {
	lower := strings.ToLower(content)
	score := 1.0 + 0.5*float64(countMarkers(lower, qualityMarkers))
	if score > 3.0 {
		return 3.0
	}
	return score
}

func countMarkers(lower string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}
