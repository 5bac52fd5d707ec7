package runtimeconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultProfile(t *testing.T) {
	cfg, warnings := Load(ProfileDefault)
	assert.Equal(t, CurrentConfigVersion, cfg.ConfigVersion)
	assert.Equal(t, 12, cfg.TotalMaxLLM)
	assert.Empty(t, warnings)
}

func TestLoad_StableProfileIsMoreConservative(t *testing.T) {
	cfg, _ := Load(ProfileStable)
	assert.Equal(t, 6, cfg.TotalMaxLLM)
	assert.Equal(t, 2, cfg.PerModelDefaultMax)
}

func TestLoad_LegacyOverrideAppliesToBothTotalAndBudget(t *testing.T) {
	t.Setenv("PI_MAX_LLM_CALLS", "20")
	cfg, _ := Load(ProfileDefault)
	assert.Equal(t, 20, cfg.TotalMaxLLM)
	assert.Equal(t, 20, cfg.BudgetTotal)
}

func TestLoad_UnifiedOverrideWinsOverLegacyAndPerRole(t *testing.T) {
	t.Setenv("PI_MAX_LLM_CALLS", "20")
	t.Setenv("PI_LLM_LIMIT_TOTAL", "10")
	t.Setenv("PI_LIMIT_TOTAL_MAX_LLM", "5")
	cfg, _ := Load(ProfileDefault)
	assert.Equal(t, 5, cfg.TotalMaxLLM)
}

func TestLoad_ClampsOutOfRangeValues(t *testing.T) {
	t.Setenv("PI_LIMIT_TOTAL_MAX_LLM", "9999")
	cfg, _ := Load(ProfileDefault)
	assert.Equal(t, 64, cfg.TotalMaxLLM)
}

func TestLoad_IgnoresUnparseableEnvValues(t *testing.T) {
	t.Setenv("PI_LIMIT_TOTAL_MAX_LLM", "not-a-number")
	cfg, _ := Load(ProfileDefault)
	assert.Equal(t, 12, cfg.TotalMaxLLM)
}

func TestValidate_WarnsWhenPerModelExceedsTotal(t *testing.T) {
	cfg := defaultsFor(ProfileDefault)
	cfg.PerModelDefaultMax = cfg.TotalMaxLLM + 1
	warnings := Validate(cfg)
	assert.NotEmpty(t, warnings)
}

func TestValidate_WarnsWhenHeartbeatTimeoutTooTight(t *testing.T) {
	cfg := defaultsFor(ProfileDefault)
	cfg.HeartbeatTimeoutMs = cfg.HeartbeatIntervalMs
	warnings := Validate(cfg)
	assert.NotEmpty(t, warnings)
}
