package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError_MatchesKnownSubstrings(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("rate limit exceeded")))
	assert.True(t, IsRateLimitError(errors.New("429 Too Many Requests")))
	assert.True(t, IsRateLimitError(errors.New("quota exceeded for this month")))
	assert.False(t, IsRateLimitError(errors.New("connection refused")))
	assert.False(t, IsRateLimitError(nil))
}

func TestModelLimiter_ShrinksOnFailure(t *testing.T) {
	m := NewModelLimiter(Policy{ReductionFactor: 0.5, RecoveryFactor: 1.1, RecoveryInterval: time.Hour})
	m.RecordFailure("anthropic", "claude-x", 10, errors.New("rate limit exceeded"))
	assert.Equal(t, 5, m.LearnedLimit("anthropic", "claude-x", 10))
}

func TestModelLimiter_IgnoresNonRateLimitFailures(t *testing.T) {
	m := NewModelLimiter(Policy{})
	m.RecordFailure("anthropic", "claude-x", 10, errors.New("network timeout"))
	assert.Equal(t, 10, m.LearnedLimit("anthropic", "claude-x", 10))
}

func TestModelLimiter_RecoversAfterInterval(t *testing.T) {
	m := NewModelLimiter(Policy{ReductionFactor: 0.5, RecoveryFactor: 2.0, RecoveryInterval: time.Millisecond})
	m.RecordFailure("openai", "gpt-4", 10, errors.New("429"))
	assert.Equal(t, 5, m.LearnedLimit("openai", "gpt-4", 10))

	time.Sleep(2 * time.Millisecond)
	m.RecordSuccess("openai", "gpt-4", 10)
	assert.Equal(t, 10, m.LearnedLimit("openai", "gpt-4", 10))
}

func TestModelLimiter_NeverGrowsPastOriginal(t *testing.T) {
	m := NewModelLimiter(Policy{ReductionFactor: 0.9, RecoveryFactor: 10, RecoveryInterval: time.Millisecond})
	time.Sleep(2 * time.Millisecond)
	m.RecordSuccess("openai", "gpt-4", 10)
	assert.Equal(t, 10, m.LearnedLimit("openai", "gpt-4", 10))
}

func TestModelLimiter_Reset(t *testing.T) {
	m := NewModelLimiter(Policy{ReductionFactor: 0.5, RecoveryInterval: time.Hour})
	m.RecordFailure("openai", "gpt-4", 10, errors.New("429"))
	assert.Equal(t, 5, m.LearnedLimit("openai", "gpt-4", 10))
	m.Reset("openai", "gpt-4")
	assert.Equal(t, 10, m.LearnedLimit("openai", "gpt-4", 10))
}

func TestGetEffectiveLimit_PrefersSmaller(t *testing.T) {
	m := NewModelLimiter(Policy{})
	limit := m.GetEffectiveLimit("openai", "gpt-4", 10, 3)
	assert.Equal(t, 3, limit)
}

func TestBudgetLimiter_ShrinkAndRecover(t *testing.T) {
	b := NewBudgetLimiter(8, Policy{ReductionFactor: 0.5, RecoveryFactor: 2, RecoveryInterval: time.Millisecond})
	b.RecordFailure(errors.New("rate limit"))
	assert.Equal(t, 4, b.LearnedLimit())

	time.Sleep(2 * time.Millisecond)
	b.RecordSuccess()
	assert.Equal(t, 8, b.LearnedLimit())

	snap := b.Snapshot()
	assert.Equal(t, 8, snap.BaseLimit)
	assert.Equal(t, ReasonRecovery, snap.LastReason)
}

func TestBudgetLimiter_Reset(t *testing.T) {
	b := NewBudgetLimiter(8, Policy{ReductionFactor: 0.5, RecoveryInterval: time.Hour})
	b.RecordFailure(errors.New("429"))
	assert.Equal(t, 4, b.LearnedLimit())
	b.Reset()
	assert.Equal(t, 8, b.LearnedLimit())
}
