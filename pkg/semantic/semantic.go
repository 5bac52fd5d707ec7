// Package semantic detects whether successive iteration steps are
// repeating themselves, either textually or (when an embedding
// provider is wired in) semantically.
package semantic

import (
	"context"
	"math"
	"strings"
)

// Method names the path that produced a similarity result.
type Method string

const (
	MethodExact       Method = "exact"
	MethodEmbedding    Method = "embedding"
	MethodUnavailable Method = "unavailable"
)

// Result is the outcome of a single repetition check.
type Result struct {
	IsRepeated bool
	Similarity float64
	Method     Method
}

// Options configures one detectSemanticRepetition call.
type Options struct {
	Threshold     float64 // similarity threshold in [0.7, 0.95]; default 0.85
	UseEmbedding  bool
	MaxTextLength int // default 2000
}

func (o Options) withDefaults() Options {
	if o.Threshold == 0 {
		o.Threshold = 0.85
	}
	if o.Threshold < 0.7 {
		o.Threshold = 0.7
	}
	if o.Threshold > 0.95 {
		o.Threshold = 0.95
	}
	if o.MaxTextLength <= 0 {
		o.MaxTextLength = 2000
	}
	return o
}

// EmbeddingProvider is implemented by whatever model client can turn
// text into a vector. Detection works without one; it just can't
// detect anything beyond exact repeats.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

func normalize(text string, maxLen int) string {
	fields := strings.Fields(strings.TrimSpace(text))
	joined := strings.Join(fields, " ")
	if len(joined) > maxLen {
		joined = joined[:maxLen]
	}
	return joined
}

// DetectSemanticRepetition compares current against previous. An exact
// match (after normalization) is always reported as repeated with
// similarity 1.0. Otherwise, if opts.UseEmbedding is set and provider
// is non-nil, cosine similarity of the two embeddings is compared
// against the threshold. With no provider or embeddings disabled, the
// check degrades to "cannot tell" rather than a false positive.
func DetectSemanticRepetition(ctx context.Context, current, previous string, opts Options, provider EmbeddingProvider) Result {
	opts = opts.withDefaults()

	current = normalize(current, opts.MaxTextLength)
	previous = normalize(previous, opts.MaxTextLength)

	if current == previous {
		return Result{IsRepeated: true, Similarity: 1.0, Method: MethodExact}
	}

	if opts.UseEmbedding && provider != nil {
		curVec, err1 := provider.Embed(ctx, current)
		prevVec, err2 := provider.Embed(ctx, previous)
		if err1 == nil && err2 == nil {
			sim := cosineSimilarity(curVec, prevVec)
			return Result{IsRepeated: sim >= opts.Threshold, Similarity: sim, Method: MethodEmbedding}
		}
	}

	return Result{IsRepeated: false, Similarity: 0, Method: MethodUnavailable}
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
