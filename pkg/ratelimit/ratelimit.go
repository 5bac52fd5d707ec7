// Package ratelimit implements the adaptive, process-local concurrency
// limiters layered on top of the static per-(provider, model) and
// total-budget presets: shrink hard on a 429, recover slowly once
// traffic is clean again.
package ratelimit

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// rateLimitPattern is the canonical classifier: any of these substrings
// (case-insensitive) or a literal "429" marks an error as a rate limit.
var rateLimitPattern = regexp.MustCompile(`(?i)rate limit|too many requests|quota|\b429\b`)

// IsRateLimitError reports whether err's text should trigger a shrink.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	return rateLimitPattern.MatchString(err.Error())
}

// IsRateLimitStatus reports whether an HTTP status code is a rate-limit response.
func IsRateLimitStatus(statusCode int) bool {
	return statusCode == 429
}

// Reason records why a limit last changed.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonShrink429 Reason = "shrink_429"
	ReasonRecovery  Reason = "recovery"
	ReasonReset     Reason = "reset"
)

// Policy controls shrink/grow rates, shared by both the per-model and
// total-budget limiters.
type Policy struct {
	ReductionFactor    float64       // e.g. 0.5
	RecoveryFactor     float64       // e.g. 1.05
	RecoveryInterval   time.Duration // e.g. 120s
}

func (p Policy) withDefaults() Policy {
	if p.ReductionFactor <= 0 || p.ReductionFactor >= 1 {
		p.ReductionFactor = 0.5
	}
	if p.RecoveryFactor <= 1 {
		p.RecoveryFactor = 1.05
	}
	if p.RecoveryInterval <= 0 {
		p.RecoveryInterval = 120 * time.Second
	}
	return p
}

// learnedLimit is the mutable state backing one learned concurrency value.
type learnedLimit struct {
	original        int
	current         int
	last429At       time.Time
	lastRecoveryAt  time.Time
	successSinceTry bool
	count429        int
}

func newLearnedLimit(original int) *learnedLimit {
	return &learnedLimit{original: original, current: original, lastRecoveryAt: time.Now()}
}

func (l *learnedLimit) shrink(policy Policy) {
	l.current = int(math.Max(math.Floor(float64(l.current)*policy.ReductionFactor), 1))
	l.last429At = time.Now()
	l.count429++
	l.successSinceTry = false
}

// maybeGrow applies the recovery rule if a full interval has passed
// with no new 429 and at least one success observed.
func (l *learnedLimit) maybeGrow(policy Policy) bool {
	if time.Since(l.lastRecoveryAt) < policy.RecoveryInterval {
		return false
	}
	if !l.successSinceTry {
		l.lastRecoveryAt = time.Now()
		return false
	}
	grown := int(math.Ceil(float64(l.current) * policy.RecoveryFactor))
	if grown > l.original {
		grown = l.original
	}
	l.current = grown
	l.lastRecoveryAt = time.Now()
	l.successSinceTry = false
	return true
}

// ModelLimiter tracks a learned concurrency limit per (provider, model).
type ModelLimiter struct {
	mu     sync.Mutex
	policy Policy
	limits map[string]*learnedLimit
}

// NewModelLimiter creates a limiter using policy for every tracked model.
func NewModelLimiter(policy Policy) *ModelLimiter {
	return &ModelLimiter{policy: policy.withDefaults(), limits: make(map[string]*learnedLimit)}
}

func modelKey(provider, model string) string {
	return strings.ToLower(provider) + "/" + strings.ToLower(model)
}

func (m *ModelLimiter) entry(provider, model string, preset int) *learnedLimit {
	key := modelKey(provider, model)
	l, ok := m.limits[key]
	if !ok {
		l = newLearnedLimit(preset)
		m.limits[key] = l
	}
	return l
}

// RecordFailure shrinks the learned limit for (provider, model) if err
// is classified as a rate-limit error.
func (m *ModelLimiter) RecordFailure(provider, model string, preset int, err error) {
	if !IsRateLimitError(err) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.entry(provider, model, preset)
	l.shrink(m.policy)
	shrinkEvents.WithLabelValues("model").Inc()
	reportModelLimit(provider, model, l.current)
}

// RecordSuccess marks a clean sample for (provider, model) and applies
// the recovery tick if due.
func (m *ModelLimiter) RecordSuccess(provider, model string, preset int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.entry(provider, model, preset)
	l.successSinceTry = true
	if l.maybeGrow(m.policy) {
		reportModelLimit(provider, model, l.current)
	}
}

// LearnedLimit returns the current learned concurrency for (provider, model).
func (m *ModelLimiter) LearnedLimit(provider, model string, preset int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry(provider, model, preset).current
}

// GetEffectiveLimit returns the smaller of the learned limit and an
// externally supplied peer-partitioned limit (registry.GetModelParallelLimit).
func (m *ModelLimiter) GetEffectiveLimit(provider, model string, preset, peerPartitioned int) int {
	learned := m.LearnedLimit(provider, model, preset)
	if peerPartitioned > 0 && peerPartitioned < learned {
		return peerPartitioned
	}
	return learned
}

// Reset clears the learned state for one (provider, model), or every
// tracked model if provider and model are both empty.
func (m *ModelLimiter) Reset(provider, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if provider == "" && model == "" {
		m.limits = make(map[string]*learnedLimit)
		return
	}
	delete(m.limits, modelKey(provider, model))
}

// ParseStatusFromText extracts the first whitespace-separated number in
// [100, 600) as an HTTP status code, e.g.
// "request failed: 429 Too Many Requests" -> 429, ok=true.
func ParseStatusFromText(s string) (int, bool) {
	fields := strings.Fields(s)
	for _, f := range fields {
		f = strings.Trim(f, ":,()")
		if n, err := strconv.Atoi(f); err == nil && n >= 100 && n < 600 {
			return n, true
		}
	}
	return 0, false
}
