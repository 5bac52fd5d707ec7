package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Declarative(t *testing.T) {
	c := Classify("find the definition of UserService", "", 0)
	assert.Equal(t, Declarative, c.Intent)
	assert.Greater(t, c.Confidence, 0.3)
}

func TestClassify_Procedural(t *testing.T) {
	c := Classify("implement and deploy the new auth middleware", "", 0)
	assert.Equal(t, Procedural, c.Intent)
}

func TestClassify_Reasoning(t *testing.T) {
	c := Classify("analyze the trade-off between caching strategies and compare them", "", 0)
	assert.Equal(t, Reasoning, c.Intent)
}

func TestClassify_DefaultsToDeclarativeWithLowConfidence(t *testing.T) {
	c := Classify("hello there", "", 0)
	assert.Equal(t, Declarative, c.Intent)
	assert.Equal(t, 0.4, c.Confidence)
}

func TestApplyIntentLimits_ClampsToIntentCeiling(t *testing.T) {
	limits := ApplyIntentLimits(Declarative, 100, 10000, 4, 0.85)
	assert.Equal(t, 6, limits.MaxIterations)
	assert.Equal(t, 10000, limits.TimeoutMs)
	assert.Equal(t, 4, limits.ParallelismLimit)
}

func TestApplyIntentLimits_ScalesTimeoutAndParallelism(t *testing.T) {
	limits := ApplyIntentLimits(Reasoning, 5, 10000, 4, 0.85)
	assert.Equal(t, 5, limits.MaxIterations)
	assert.Equal(t, 20000, limits.TimeoutMs)
	assert.Equal(t, 5, limits.ParallelismLimit)
}

func TestEffectiveThreshold(t *testing.T) {
	assert.InDelta(t, 0.87, EffectiveThreshold(0.85, 0.6), 0.0001)
	assert.InDelta(t, 0.81, EffectiveThreshold(0.85, 0.3), 0.0001)
}
