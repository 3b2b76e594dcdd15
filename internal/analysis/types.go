// Package analysis holds the three feedback classifiers: keyword/regex
// pattern scanning, embedding-based semantic comparison, and technical-domain
// indicator scoring. Implementations live here, away from the fusion layer
// that dispatches them, so an orchestration function and an implementation
// function can never collide on a name.
package analysis

// Sentiment is the resolved polarity of a user's feedback on a solution.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentPartial  Sentiment = "partial"
	SentimentNeutral  Sentiment = "neutral"
)

// Method names identify which classifier (or resolution policy) produced a
// validation result. These values are persisted; do not rename.
const (
	MethodPattern   = "pattern"
	MethodSemantic  = "semantic"
	MethodTechnical = "technical"
	MethodWeighted  = "weighted_combination"
	MethodFallback  = "conservative_fallback"
)

// Domain is the technical area a solution attempt addresses.
type Domain string

const (
	DomainBuildSystem Domain = "build_system"
	DomainTesting     Domain = "testing"
	DomainRuntime     Domain = "runtime"
	DomainDeployment  Domain = "deployment"
	DomainGeneral     Domain = "general"
)

// Signal is one classifier's judgment of a feedback message.
type Signal struct {
	Sentiment  Sentiment
	Confidence float64
}

// OutcomeStatus distinguishes a computed signal from an absent one.
type OutcomeStatus string

const (
	StatusOK       OutcomeStatus = "ok"
	StatusDeferred OutcomeStatus = "deferred"
	StatusFailed   OutcomeStatus = "failed"
)

// Outcome is a tagged classifier result. A classifier that could not run
// (e.g. embedding service unavailable after retries) returns Deferred rather
// than a fabricated neutral signal, so downstream fusion can tell
// "computed and neutral" apart from "not computed".
type Outcome struct {
	Status OutcomeStatus
	Signal Signal
	Reason string
}

// OK wraps a computed signal.
func OK(sig Signal) Outcome {
	return Outcome{Status: StatusOK, Signal: sig}
}

// Deferred marks a signal as absent for a retryable reason.
func Deferred(reason string) Outcome {
	return Outcome{Status: StatusDeferred, Reason: reason}
}

// Failed marks a signal as absent for a non-retryable reason.
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

func clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
