// Package coordinator wires the instance registry, distributed lock
// manager, queue-state bus, adaptive rate limiters, and work stealer
// into a single entry point for a host process.
package coordinator

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pi-agent/concore/pkg/distlock"
	"github.com/pi-agent/concore/pkg/queuebus"
	"github.com/pi-agent/concore/pkg/ratelimit"
	"github.com/pi-agent/concore/pkg/registry"
	"github.com/pi-agent/concore/pkg/runtimeconfig"
	"github.com/pi-agent/concore/pkg/stealer"
)

// Coordinator bundles one process's concurrency-control stack.
type Coordinator struct {
	Config     runtimeconfig.Config
	Warnings   []string
	Registry   *registry.Registry
	Locks      *distlock.Manager
	Queue      *queuebus.Bus
	Models     *ratelimit.ModelLimiter
	Budget     *ratelimit.BudgetLimiter
	Stealer    *stealer.Stealer
	Presets    ratelimit.Presets
	instanceID string
}

// presetsFileName is the operator-edited model-concurrency preset
// table, read from the same runtime root as coordinator.json.
const presetsFileName = "presets.yaml"

// New builds and registers a Coordinator rooted at runtimeRoot
// (typically ~/.pi/runtime), loading config for profile and
// registering this process's instance record.
func New(runtimeRoot string, profile runtimeconfig.Profile, sessionID, cwd string) (*Coordinator, error) {
	cfg, warnings := runtimeconfig.LoadForRoot(profile, runtimeRoot)

	// locks and bus are assigned once the instance ID is known below; the
	// cleanup closures passed to registry.New capture these variables by
	// reference and only fire after the heartbeat ticker starts.
	var locks *distlock.Manager
	var bus *queuebus.Bus

	reg := registry.New(runtimeRoot, registry.Config{
		HeartbeatIntervalMs: cfg.HeartbeatIntervalMs,
		HeartbeatTimeoutMs:  cfg.HeartbeatTimeoutMs,
		WriteDebounceMs:     cfg.WriteDebounceMs,
	}, registry.CleanupHooks{
		CleanupQueueStates: func() {
			if bus == nil {
				return
			}
			live, err := reg.GetActiveInstances()
			if err != nil {
				return
			}
			liveIDs := make(map[string]bool, len(live))
			for _, inst := range live {
				liveIDs[inst.InstanceID] = true
			}
			bus.CleanupQueueStates(liveIDs)
		},
		CleanupExpiredLocks: func() {
			if locks == nil {
				return
			}
			locks.CleanupExpiredLocks()
		},
	})

	instanceID, err := reg.Register(sessionID, cwd)
	if err != nil {
		return nil, fmt.Errorf("coordinator: register instance: %w", err)
	}

	locks = distlock.New(runtimeRoot, instanceID)
	bus = queuebus.New(runtimeRoot, instanceID, cfg.HeartbeatIntervalMs, cfg.MaxStealableEntries)
	presets := ratelimit.LoadPresetsFile(filepath.Join(runtimeRoot, presetsFileName))

	c := &Coordinator{
		Config:     cfg,
		Warnings:   warnings,
		Registry:   reg,
		Locks:      locks,
		Queue:      bus,
		Models:     ratelimit.NewModelLimiter(ratelimit.Policy{}),
		Budget:     ratelimit.NewBudgetLimiter(cfg.BudgetTotal, ratelimit.Policy{}),
		Stealer:    stealer.New(reg, bus, locks, instanceID, time.Duration(cfg.StealLockTTLMs)*time.Millisecond),
		Presets:    presets,
		instanceID: instanceID,
	}
	return c, nil
}

// EffectiveModelLimit resolves the smallest of the preset-seeded
// learned limit, this instance's share of the model-specific active
// count, and the learned total budget — the three-way minimum §5
// calls the effective limit.
func (c *Coordinator) EffectiveModelLimit(provider, model string) (int, error) {
	preset := c.Presets.Lookup(provider, model)
	peerPartitioned, err := c.Registry.GetModelParallelLimit(provider, model, preset)
	if err != nil {
		return 0, fmt.Errorf("coordinator: model parallel limit: %w", err)
	}
	effective := c.Models.GetEffectiveLimit(provider, model, preset, peerPartitioned)
	if budgetLimit := c.Budget.LearnedLimit(); budgetLimit > 0 && budgetLimit < effective {
		effective = budgetLimit
	}
	return effective, nil
}

// InstanceID returns this process's registry instance ID.
func (c *Coordinator) InstanceID() string {
	return c.instanceID
}

// Close unregisters this instance and stops its heartbeat ticker.
func (c *Coordinator) Close() error {
	return c.Registry.Unregister()
}

// Snapshot is a point-in-time view of this coordinator's state, for
// status reporting.
type Snapshot struct {
	InstanceID      string
	Profile         runtimeconfig.Profile
	ContendingPeers int
	BudgetLimit     ratelimit.BudgetSnapshot
	StealStats      stealer.Snapshot
}

// Snapshot collects a point-in-time view across the wired components.
func (c *Coordinator) Snapshot() (Snapshot, error) {
	contending, err := c.Registry.GetContendingInstanceCount()
	if err != nil {
		return Snapshot{}, fmt.Errorf("coordinator: snapshot: %w", err)
	}
	return Snapshot{
		InstanceID:      c.instanceID,
		Profile:         c.Config.Profile,
		ContendingPeers: contending,
		BudgetLimit:     c.Budget.Snapshot(),
		StealStats:      c.Stealer.Stats(),
	}, nil
}
