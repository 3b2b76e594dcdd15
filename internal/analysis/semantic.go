package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// semanticNeutralFloor is the best-cluster similarity below which the
// semantic analyzer reports neutral: the feedback resembles none of the
// curated clusters well enough to call.
const semanticNeutralFloor = 0.6

// Embedder is the external embedding function. Deterministic for identical
// input, fixed dimensionality per deployment.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorCache memoizes embeddings by content hash. Entries are immutable
// once written; concurrent insert races resolve first-writer-wins.
type VectorCache interface {
	Get(key string) ([]float32, bool)
	Set(key string, vec []float32)
}

// Curated example phrases per sentiment cluster. Centroids of their
// embeddings are the reference points feedback is compared against.
var clusterPhrases = map[Sentiment][]string{
	SentimentPositive: {
		"that worked perfectly, thank you",
		"the fix worked, everything passes now",
		"great, the error is gone",
		"that solved it",
		"works exactly as expected now",
	},
	SentimentNegative: {
		"that didn't work, still getting the same error",
		"no, it's still broken",
		"the problem is still there after trying that",
		"that made things worse",
		"still failing with the same message",
	},
	SentimentPartial: {
		"that helped a bit but there's still one error",
		"it's better but not fully fixed",
		"some of the tests pass now but not all",
		"closer, but still not quite working",
		"progress, though a different error appears now",
	},
}

// SemanticAnalyzer compares embedded feedback text against precomputed
// reference-cluster centroids by cosine similarity.
type SemanticAnalyzer struct {
	embedder  Embedder
	cache     VectorCache
	centroids map[Sentiment][]float32
}

func NewSemanticAnalyzer(embedder Embedder, cache VectorCache) *SemanticAnalyzer {
	return &SemanticAnalyzer{
		embedder: embedder,
		cache:    cache,
	}
}

// Prime embeds the curated cluster phrases and computes per-cluster
// centroids. Must be called once before AnalyzeFeedback; centroids are
// cached by content hash so repeated runs reuse prior embeddings.
func (a *SemanticAnalyzer) Prime(ctx context.Context) error {
	centroids := make(map[Sentiment][]float32, len(clusterPhrases))
	for sentiment, phrases := range clusterPhrases {
		var sum []float32
		for _, phrase := range phrases {
			vec, err := a.embed(ctx, phrase)
			if err != nil {
				return fmt.Errorf("embed cluster phrase: %w", err)
			}
			if sum == nil {
				sum = make([]float32, len(vec))
			}
			if len(vec) != len(sum) {
				return fmt.Errorf("inconsistent embedding dimensionality: %d vs %d", len(vec), len(sum))
			}
			for i, v := range vec {
				sum[i] += v
			}
		}
		n := float32(len(phrases))
		for i := range sum {
			sum[i] /= n
		}
		centroids[sentiment] = sum
	}
	a.centroids = centroids
	return nil
}

// AnalyzeFeedback embeds the feedback text and scores it against each
// cluster centroid. Embedding failures return a Deferred outcome; the
// scores map is returned even then (empty) so callers need no nil checks.
func (a *SemanticAnalyzer) AnalyzeFeedback(ctx context.Context, text string) (Outcome, map[Sentiment]float64) {
	scores := make(map[Sentiment]float64, 3)

	if a.centroids == nil {
		return Failed("semantic analyzer not primed"), scores
	}

	vec, err := a.embed(ctx, text)
	if err != nil {
		return Deferred(fmt.Sprintf("embed feedback: %v", err)), scores
	}

	best := SentimentNeutral
	bestScore := -1.0
	for sentiment, centroid := range a.centroids {
		sim := SimilarityFromCosine(CosineSimilarity(vec, centroid))
		scores[sentiment] = sim
		if sim > bestScore {
			best, bestScore = sentiment, sim
		}
	}

	if bestScore < semanticNeutralFloor {
		return OK(Signal{Sentiment: SentimentNeutral, Confidence: clamp01(bestScore)}), scores
	}
	return OK(Signal{Sentiment: best, Confidence: clamp01(bestScore)}), scores
}

func (a *SemanticAnalyzer) embed(ctx context.Context, text string) ([]float32, error) {
	key := ContentHash(text)
	if vec, ok := a.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := a.embedder.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding function returned empty vector")
	}
	a.cache.Set(key, vec)
	return vec, nil
}

// ContentHash returns the canonical cache key for a piece of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CosineSimilarity computes the cosine of the angle between two vectors,
// in [-1, 1]. Mismatched or zero-norm inputs score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0.0 || normB == 0.0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SimilarityFromCosine maps cosine similarity from [-1, 1] onto [0, 1].
// Opposite vectors map to 0, orthogonal to 0.5, identical to 1. The output
// is clamped so accumulated float error can never push it outside the range:
// a conversion that collapses to zero anywhere on the input range silently
// zeroes every semantic result downstream.
func SimilarityFromCosine(cos float64) float64 {
	if math.IsNaN(cos) {
		return 0.0
	}
	return clamp01((cos + 1.0) / 2.0)
}
