package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSemanticRepetition_ExactMatch(t *testing.T) {
	r := DetectSemanticRepetition(context.Background(), "  run the tests  ", "run the tests", Options{}, nil)
	assert.True(t, r.IsRepeated)
	assert.Equal(t, 1.0, r.Similarity)
	assert.Equal(t, MethodExact, r.Method)
}

func TestDetectSemanticRepetition_NoProviderIsUnavailable(t *testing.T) {
	r := DetectSemanticRepetition(context.Background(), "run the tests", "build the project", Options{UseEmbedding: true}, nil)
	assert.False(t, r.IsRepeated)
	assert.Equal(t, MethodUnavailable, r.Method)
}

type fakeEmbedder struct {
	vectors map[string][]float64
}

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	return f.vectors[text], nil
}

func TestDetectSemanticRepetition_EmbeddingAboveThreshold(t *testing.T) {
	provider := fakeEmbedder{vectors: map[string][]float64{
		"run the tests":       {1, 0, 0},
		"execute the tests":   {0.99, 0.01, 0},
	}}
	r := DetectSemanticRepetition(context.Background(), "run the tests", "execute the tests",
		Options{UseEmbedding: true, Threshold: 0.9}, provider)
	assert.True(t, r.IsRepeated)
	assert.Equal(t, MethodEmbedding, r.Method)
}

func TestDetectSemanticRepetition_EmbeddingBelowThreshold(t *testing.T) {
	provider := fakeEmbedder{vectors: map[string][]float64{
		"run the tests":  {1, 0, 0},
		"delete the repo": {0, 1, 0},
	}}
	r := DetectSemanticRepetition(context.Background(), "run the tests", "delete the repo",
		Options{UseEmbedding: true, Threshold: 0.9}, provider)
	assert.False(t, r.IsRepeated)
}

func TestTrajectoryTracker_IsStuckRequiresThreeOfLastFive(t *testing.T) {
	tr := NewTrajectoryTracker(10)
	results := []bool{true, false, true, true, false}
	for _, rep := range results {
		tr.Record(Result{IsRepeated: rep, Similarity: 0.5})
	}
	assert.True(t, tr.IsStuck())
}

func TestTrajectoryTracker_NotStuckBelowThreshold(t *testing.T) {
	tr := NewTrajectoryTracker(10)
	results := []bool{true, false, false, true, false}
	for _, rep := range results {
		tr.Record(Result{IsRepeated: rep, Similarity: 0.5})
	}
	assert.False(t, tr.IsStuck())
}

func TestTrajectoryTracker_TrendIncreasing(t *testing.T) {
	tr := NewTrajectoryTracker(10)
	sims := []float64{0.1, 0.2, 0.8, 0.9}
	for _, s := range sims {
		tr.Record(Result{Similarity: s})
	}
	assert.Equal(t, TrendIncreasing, tr.Trend())
}

func TestTrajectoryTracker_EvictsOldestBeyondCapacity(t *testing.T) {
	tr := NewTrajectoryTracker(3)
	for i := 0; i < 5; i++ {
		tr.Record(Result{Similarity: float64(i)})
	}
	tr.mu.Lock()
	n := len(tr.steps)
	tr.mu.Unlock()
	assert.Equal(t, 3, n)
}
