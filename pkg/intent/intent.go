// Package intent classifies a task description into a coarse intent
// category and maps that category to a fixed iteration budget.
package intent

import (
	"math"
	"regexp"
	"strings"
)

// Intent is one of the three recognized task categories.
type Intent string

const (
	Declarative Intent = "declarative"
	Procedural  Intent = "procedural"
	Reasoning   Intent = "reasoning"
)

var keywordGroups = map[Intent][]string{
	Declarative: {"find", "what is", "lookup", "list", "show"},
	Procedural:  {"implement", "deploy", "refactor", "build", "fix", "write"},
	Reasoning:   {"analyze", "compare", "why", "trade-off", "tradeoff", "evaluate"},
}

// Budget is the fixed per-intent iteration and scaling profile.
type Budget struct {
	MaxIterations         int
	TimeoutMultiplier     float64
	ParallelismMultiplier float64
	RepetitionTolerance   float64
}

var budgets = map[Intent]Budget{
	Declarative: {MaxIterations: 6, TimeoutMultiplier: 1.0, ParallelismMultiplier: 1.0, RepetitionTolerance: 0.6},
	Procedural:  {MaxIterations: 10, TimeoutMultiplier: 1.5, ParallelismMultiplier: 0.8, RepetitionTolerance: 0.4},
	Reasoning:   {MaxIterations: 12, TimeoutMultiplier: 2.0, ParallelismMultiplier: 1.2, RepetitionTolerance: 0.3},
}

// Classification is the result of Classify.
type Classification struct {
	Intent     Intent
	Confidence float64
}

// Classify lower-cases task (and optionally goal) and counts
// word-boundary matches against each intent's keyword group. The
// intent with the most matches wins; ties favor Declarative,
// Procedural, Reasoning in that order. Zero matches defaults to
// Declarative with confidence 0.4.
func Classify(task, goal string, referenceCount int) Classification {
	text := strings.ToLower(task + " " + goal)

	wins := map[Intent]int{}
	total := 0
	for _, in := range []Intent{Declarative, Procedural, Reasoning} {
		count := 0
		for _, kw := range keywordGroups[in] {
			count += countWordMatches(text, kw)
		}
		wins[in] = count
		total += count
	}

	best := Declarative
	bestCount := -1
	for _, in := range []Intent{Declarative, Procedural, Reasoning} {
		if wins[in] > bestCount {
			bestCount = wins[in]
			best = in
		}
	}

	if total == 0 {
		return Classification{Intent: Declarative, Confidence: 0.4}
	}

	confidence := math.Min(0.9, float64(wins[best])/float64(total)+0.3)
	return Classification{Intent: best, Confidence: confidence}
}

func countWordMatches(text, phrase string) int {
	if !strings.Contains(phrase, " ") {
		pattern := `\b` + regexp.QuoteMeta(phrase) + `\b`
		re := regexp.MustCompile(pattern)
		return len(re.FindAllString(text, -1))
	}
	return strings.Count(text, phrase)
}

// GetBudget returns the fixed budget profile for an intent.
func GetBudget(in Intent) Budget {
	if b, ok := budgets[in]; ok {
		return b
	}
	return budgets[Declarative]
}

// AppliedLimits is the result of applying an intent's budget to a
// caller-requested configuration.
type AppliedLimits struct {
	MaxIterations      int
	TimeoutMs          int
	ParallelismLimit   int
	EffectiveThreshold float64
}

// ApplyIntentLimits clamps requestedMaxIterations to the intent's
// budget ceiling and scales timeout/parallelism accordingly.
func ApplyIntentLimits(in Intent, requestedMaxIterations, baseTimeoutMs, baseParallelism int, baseThreshold float64) AppliedLimits {
	b := GetBudget(in)

	maxIter := requestedMaxIterations
	if maxIter <= 0 || maxIter > b.MaxIterations {
		maxIter = b.MaxIterations
	}

	timeout := int(math.Round(float64(baseTimeoutMs) * b.TimeoutMultiplier))
	parallelism := int(math.Round(float64(baseParallelism) * b.ParallelismMultiplier))
	if parallelism < 1 {
		parallelism = 1
	}

	return AppliedLimits{
		MaxIterations:      maxIter,
		TimeoutMs:          timeout,
		ParallelismLimit:   parallelism,
		EffectiveThreshold: EffectiveThreshold(baseThreshold, b.RepetitionTolerance),
	}
}

// EffectiveThreshold applies the tolerance adjustment to a base
// repetition threshold.
func EffectiveThreshold(base, tolerance float64) float64 {
	return base + (tolerance-0.5)*0.2
}
