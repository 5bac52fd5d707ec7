// Package runtimeconfig loads the concurrency-control knobs shared by
// pkg/registry, pkg/distlock, pkg/queuebus, pkg/ratelimit, and
// pkg/stealer from a profile baseline, then layers environment
// variable overrides on top in ascending priority order.
package runtimeconfig

import (
	"fmt"
	"os"
	"strconv"

	"dario.cat/mergo"
)

// Profile selects a baseline set of defaults.
type Profile string

const (
	ProfileDefault Profile = "default"
	ProfileStable  Profile = "stable"
)

// CurrentConfigVersion is bumped whenever a field is added or a
// default changes in a way that invalidates cached assumptions.
const CurrentConfigVersion = 2

// Config bundles every tunable for the concurrency-control stack.
type Config struct {
	ConfigVersion int
	Profile       Profile

	TotalMaxLLM         int
	PerModelDefaultMax  int
	BudgetTotal         int

	HeartbeatIntervalMs int64
	HeartbeatTimeoutMs  int64
	WriteDebounceMs     int64

	MaxStealableEntries int
	StealLockTTLMs      int64
	StealMinPending     int

	VerificationTimeoutMs int
}

func defaultsFor(profile Profile) Config {
	base := Config{
		ConfigVersion:         CurrentConfigVersion,
		Profile:               profile,
		TotalMaxLLM:           12,
		PerModelDefaultMax:    4,
		BudgetTotal:           12,
		HeartbeatIntervalMs:   2000,
		HeartbeatTimeoutMs:    10000,
		WriteDebounceMs:       5000,
		MaxStealableEntries:   20,
		StealLockTTLMs:        30000,
		StealMinPending:       2,
		VerificationTimeoutMs: 30000,
	}
	if profile == ProfileStable {
		// The stable profile trades throughput for predictability: lower
		// concurrency ceilings and longer heartbeat windows so a single
		// flaky instance can't starve its peers.
		base.TotalMaxLLM = 6
		base.PerModelDefaultMax = 2
		base.BudgetTotal = 6
		base.HeartbeatIntervalMs = 3000
		base.HeartbeatTimeoutMs = 15000
	}
	return base
}

// Load builds a Config for profile, then applies environment overrides
// in ascending priority: legacy single-total vars, then per-role vars,
// then the unified PI_LIMIT_* vars, each later layer winning over the
// earlier ones via mergo's override merge.
func Load(profile Profile) (Config, []string) {
	return LoadForRoot(profile, "")
}

// LoadForRoot is Load, additionally layering runtimeRoot's optional
// coordinator.json overrides in as the baseline beneath every
// environment tier (an operator file sets a durable default; any
// environment variable still wins over it). An empty runtimeRoot
// skips the file lookup entirely.
func LoadForRoot(profile Profile, runtimeRoot string) (Config, []string) {
	if profile == "" {
		profile = ProfileDefault
	}
	cfg := defaultsFor(profile)

	if runtimeRoot != "" {
		if o, err := LoadOverridesFile(runtimeRoot); err == nil {
			cfg = o.Apply(cfg)
		}
	}

	legacy := legacyOverrides()
	_ = mergo.Merge(&cfg, legacy, mergo.WithOverride)

	perRole := perRoleOverrides()
	_ = mergo.Merge(&cfg, perRole, mergo.WithOverride)

	unified := unifiedOverrides()
	_ = mergo.Merge(&cfg, unified, mergo.WithOverride)

	cfg = clamp(cfg)
	return cfg, Validate(cfg)
}

func legacyOverrides() Config {
	var c Config
	if v, ok := intEnv("PI_MAX_LLM_CALLS"); ok {
		c.TotalMaxLLM = v
		c.BudgetTotal = v
	}
	return c
}

func perRoleOverrides() Config {
	var c Config
	if v, ok := intEnv("PI_LLM_LIMIT_TOTAL"); ok {
		c.TotalMaxLLM = v
	}
	if v, ok := intEnv("PI_LLM_LIMIT_PER_MODEL"); ok {
		c.PerModelDefaultMax = v
	}
	if v, ok := intEnv("PI_LLM_LIMIT_BUDGET"); ok {
		c.BudgetTotal = v
	}
	return c
}

func unifiedOverrides() Config {
	var c Config
	if v, ok := intEnv("PI_LIMIT_TOTAL_MAX_LLM"); ok {
		c.TotalMaxLLM = v
	}
	if v, ok := intEnv("PI_LIMIT_PER_MODEL_DEFAULT_MAX"); ok {
		c.PerModelDefaultMax = v
	}
	if v, ok := intEnv("PI_LIMIT_BUDGET_TOTAL"); ok {
		c.BudgetTotal = v
	}
	if v, ok := int64Env("PI_LIMIT_HEARTBEAT_INTERVAL_MS"); ok {
		c.HeartbeatIntervalMs = v
	}
	if v, ok := int64Env("PI_LIMIT_HEARTBEAT_TIMEOUT_MS"); ok {
		c.HeartbeatTimeoutMs = v
	}
	if v, ok := int64Env("PI_LIMIT_WRITE_DEBOUNCE_MS"); ok {
		c.WriteDebounceMs = v
	}
	if v, ok := intEnv("PI_LIMIT_MAX_STEALABLE_ENTRIES"); ok {
		c.MaxStealableEntries = v
	}
	if v, ok := int64Env("PI_LIMIT_STEAL_LOCK_TTL_MS"); ok {
		c.StealLockTTLMs = v
	}
	if v, ok := intEnv("PI_LIMIT_VERIFICATION_TIMEOUT_MS"); ok {
		c.VerificationTimeoutMs = v
	}
	return c
}

func intEnv(name string) (int, bool) {
	raw, set := os.LookupEnv(name)
	if !set || raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func int64Env(name string) (int64, bool) {
	raw, set := os.LookupEnv(name)
	if !set || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// clamp keeps every numeric field within a sane operating range
// regardless of what the environment supplied.
func clamp(c Config) Config {
	c.TotalMaxLLM = clampInt(c.TotalMaxLLM, 1, 64)
	c.PerModelDefaultMax = clampInt(c.PerModelDefaultMax, 1, 32)
	c.BudgetTotal = clampInt(c.BudgetTotal, 1, 64)
	c.HeartbeatIntervalMs = clampInt64(c.HeartbeatIntervalMs, 500, 30000)
	c.HeartbeatTimeoutMs = clampInt64(c.HeartbeatTimeoutMs, 2000, 120000)
	c.WriteDebounceMs = clampInt64(c.WriteDebounceMs, 100, 30000)
	c.MaxStealableEntries = clampInt(c.MaxStealableEntries, 1, 200)
	c.StealLockTTLMs = clampInt64(c.StealLockTTLMs, 1000, 300000)
	c.StealMinPending = clampInt(c.StealMinPending, 0, 100)
	c.VerificationTimeoutMs = clampInt(c.VerificationTimeoutMs, 1000, 120000)
	return c
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt64(v, min, max int64) int64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Validate returns advisory warnings about configurations that will
// load and run but are likely misconfigured.
func Validate(c Config) []string {
	var warnings []string
	if c.PerModelDefaultMax > c.TotalMaxLLM {
		warnings = append(warnings, fmt.Sprintf("per-model default max (%d) exceeds total max LLM calls (%d)", c.PerModelDefaultMax, c.TotalMaxLLM))
	}
	if c.BudgetTotal > c.TotalMaxLLM {
		warnings = append(warnings, fmt.Sprintf("budget total (%d) exceeds total max LLM calls (%d)", c.BudgetTotal, c.TotalMaxLLM))
	}
	if c.HeartbeatTimeoutMs < c.HeartbeatIntervalMs*2 {
		warnings = append(warnings, "heartbeat timeout is less than twice the heartbeat interval; peers may flap between alive and dead")
	}
	if c.StealLockTTLMs < c.HeartbeatIntervalMs {
		warnings = append(warnings, "steal lock TTL is shorter than the heartbeat interval; steals may expire before the hand-off completes")
	}
	return warnings
}
