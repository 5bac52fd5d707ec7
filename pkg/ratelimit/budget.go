package ratelimit

import (
	"sync"
)

// BudgetSnapshot reports the current state of a BudgetLimiter.
type BudgetSnapshot struct {
	Enabled     bool
	BaseLimit   int
	LearnedLimit int
	SampleCount int
	LastReason  Reason
}

// BudgetLimiter mirrors ModelLimiter but scoped to a single global
// totalMaxLlm budget shared across every (provider, model).
type BudgetLimiter struct {
	mu          sync.Mutex
	policy      Policy
	enabled     bool
	limit       *learnedLimit
	sampleCount int
	lastReason  Reason
}

// NewBudgetLimiter creates a budget limiter for baseLimit under policy.
func NewBudgetLimiter(baseLimit int, policy Policy) *BudgetLimiter {
	return &BudgetLimiter{
		policy:  policy.withDefaults(),
		enabled: true,
		limit:   newLearnedLimit(baseLimit),
	}
}

// RecordFailure shrinks the total budget if err is a rate-limit error.
func (b *BudgetLimiter) RecordFailure(err error) {
	if !IsRateLimitError(err) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit.shrink(b.policy)
	b.sampleCount++
	b.lastReason = ReasonShrink429
	shrinkEvents.WithLabelValues("budget").Inc()
	learnedBudgetLimit.Set(float64(b.limit.current))
}

// RecordSuccess marks a clean sample and applies recovery if due.
func (b *BudgetLimiter) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit.successSinceTry = true
	b.sampleCount++
	if b.limit.maybeGrow(b.policy) {
		b.lastReason = ReasonRecovery
		learnedBudgetLimit.Set(float64(b.limit.current))
	}
}

// LearnedLimit returns the current learned total-budget limit.
func (b *BudgetLimiter) LearnedLimit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit.current
}

// Snapshot reports the limiter's current state for diagnostics.
func (b *BudgetLimiter) Snapshot() BudgetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BudgetSnapshot{
		Enabled:      b.enabled,
		BaseLimit:    b.limit.original,
		LearnedLimit: b.limit.current,
		SampleCount:  b.sampleCount,
		LastReason:   b.lastReason,
	}
}

// Reset restores the learned limit to its original base value.
func (b *BudgetLimiter) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = newLearnedLimit(b.limit.original)
	b.lastReason = ReasonReset
}

// SetEnabled toggles whether the limiter is consulted; callers decide
// what "disabled" means for their own call sites.
func (b *BudgetLimiter) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}
