package analysis

import "strings"

// technicalNorm is the indicator count at which technical confidence saturates.
const technicalNorm = 2.0

// solutionKeywordThreshold is the minimum domain keyword co-occurrence for the
// technical analyzer to flag a solution attempt on its own.
const solutionKeywordThreshold = 2

var domainKeywords = map[Domain][]string{
	DomainBuildSystem: {
		"build", "compile", "compilation", "webpack", "npm install", "yarn",
		"gradle", "maven", "makefile", "cmake", "package.json", "go build",
		"cargo", "dependency", "dependencies", "linker", "bundler",
	},
	DomainTesting: {
		"test", "tests", "jest", "pytest", "go test", "unit test", "assertion",
		"coverage", "spec", "mock", "fixture", "flaky", "test suite",
	},
	DomainRuntime: {
		"error", "exception", "crash", "panic", "segfault", "stack trace",
		"traceback", "undefined", "null pointer", "nil pointer", "timeout",
		"memory leak", "race condition", "runtime",
	},
	DomainDeployment: {
		"deploy", "deployment", "docker", "dockerfile", "kubernetes", "k8s",
		"helm", "terraform", "ci", "pipeline", "release", "rollback",
		"container", "ingress", "production",
	},
}

// toolDomains maps recorded tool usage onto domains. Tool names come from
// transcript tool_use blocks.
var toolDomains = map[string]Domain{
	"Bash":    DomainRuntime,
	"Edit":    DomainBuildSystem,
	"Write":   DomainBuildSystem,
	"TestRun": DomainTesting,
	"Deploy":  DomainDeployment,
}

// domainIndicators holds per-domain feedback phrases, keyed by domain then
// sentiment. DomainGeneral falls through to phrasing that is not
// domain-specific.
var domainIndicators = map[Domain]map[Sentiment][]string{
	DomainBuildSystem: {
		SentimentPositive: {"build passes", "builds now", "compiles", "build succeeded", "clean build", "compiled fine"},
		SentimentNegative: {"build fails", "build failed", "won't compile", "compilation error", "still failing to build", "linker error"},
		SentimentPartial:  {"builds but", "compiles but", "fewer build errors", "one build error left"},
	},
	DomainTesting: {
		SentimentPositive: {"tests pass", "all tests pass", "all green", "suite passes", "test passes now"},
		SentimentNegative: {"tests fail", "test failed", "still failing", "assertion failed", "suite is red"},
		SentimentPartial:  {"most tests pass", "fewer failures", "one test still failing", "passes locally but"},
	},
	DomainRuntime: {
		SentimentPositive: {"no more errors", "error is gone", "runs now", "no longer crashes", "works at runtime"},
		SentimentNegative: {"same error", "still crashes", "still throwing", "new error", "still panics", "same stack trace"},
		SentimentPartial:  {"different error", "crashes less", "error changed", "further along now"},
	},
	DomainDeployment: {
		SentimentPositive: {"deployed successfully", "deploy worked", "pipeline is green", "container starts", "rolled out"},
		SentimentNegative: {"deploy failed", "deployment failed", "pipeline failed", "container won't start", "rollback"},
		SentimentPartial:  {"deploys but", "stage passed but", "works in staging but"},
	},
	DomainGeneral: {
		SentimentPositive: {"that worked", "works", "solved", "fixed", "looks good"},
		SentimentNegative: {"didn't work", "doesn't work", "not fixed", "still broken"},
		SentimentPartial:  {"partially", "better but", "almost"},
	},
}

// TechnicalContextAnalyzer classifies a solution message into a technical
// domain and scores feedback against that domain's indicator phrases.
type TechnicalContextAnalyzer struct{}

func NewTechnicalContextAnalyzer() *TechnicalContextAnalyzer {
	return &TechnicalContextAnalyzer{}
}

// ClassifyDomain scores keyword co-occurrence in the solution content plus
// recorded tool usage. Ties (including the all-zero case) default to general.
func (a *TechnicalContextAnalyzer) ClassifyDomain(content string, tools []string) Domain {
	lower := strings.ToLower(content)

	scores := make(map[Domain]int, len(domainKeywords))
	for domain, keywords := range domainKeywords {
		scores[domain] = countMarkers(lower, keywords)
	}
	for _, tool := range tools {
		if d, ok := toolDomains[tool]; ok {
			scores[d]++
		}
	}

	best := DomainGeneral
	bestScore := 0
	tied := false
	for _, domain := range []Domain{DomainBuildSystem, DomainTesting, DomainRuntime, DomainDeployment} {
		s := scores[domain]
		if s > bestScore {
			best, bestScore, tied = domain, s, false
		} else if s == bestScore && s > 0 {
			tied = true
		}
	}
	if bestScore == 0 || tied {
		return DomainGeneral
	}
	return best
}

// AnalyzeFeedback scores feedback text against the given domain's indicator
// phrases. Confidence is matched indicators over technicalNorm, capped at 1.0.
// Feedback that matches none of the domain-specific phrases is rescored
// against the general indicators before giving up, so domain classification
// never suppresses plain "that worked" style replies.
func (a *TechnicalContextAnalyzer) AnalyzeFeedback(domain Domain, text string) Signal {
	indicators, ok := domainIndicators[domain]
	if !ok {
		indicators = domainIndicators[DomainGeneral]
	}
	lower := strings.ToLower(text)

	pos := countMarkers(lower, indicators[SentimentPositive])
	neg := countMarkers(lower, indicators[SentimentNegative])
	part := countMarkers(lower, indicators[SentimentPartial])

	if pos+neg+part == 0 && domain != DomainGeneral {
		general := domainIndicators[DomainGeneral]
		pos = countMarkers(lower, general[SentimentPositive])
		neg = countMarkers(lower, general[SentimentNegative])
		part = countMarkers(lower, general[SentimentPartial])
	}

	if part > 0 && part >= pos && part >= neg {
		return Signal{Sentiment: SentimentPartial, Confidence: clamp01(float64(part) / technicalNorm)}
	}

	switch {
	case pos > neg:
		return Signal{Sentiment: SentimentPositive, Confidence: clamp01(float64(pos) / technicalNorm)}
	case neg > pos:
		return Signal{Sentiment: SentimentNegative, Confidence: clamp01(float64(neg) / technicalNorm)}
	default:
		return Signal{Sentiment: SentimentNeutral, Confidence: 0.0}
	}
}

// IsSolutionAttempt reports whether the content has enough technical keyword
// density to look like a proposed fix, independent of the pattern markers.
func (a *TechnicalContextAnalyzer) IsSolutionAttempt(content string, tools []string) bool {
	lower := strings.ToLower(content)
	total := 0
	for _, keywords := range domainKeywords {
		total += countMarkers(lower, keywords)
	}
	for _, tool := range tools {
		if _, ok := toolDomains[tool]; ok {
			total++
		}
	}
	return total >= solutionKeywordThreshold
}
