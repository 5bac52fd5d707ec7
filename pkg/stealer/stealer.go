// Package stealer lets an idle instance pick a stealable task from a
// busier peer's published queue state, holding a short-lived
// per-peer distributed lock while it chooses so only one instance at a
// time selects from the same peer.
package stealer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pi-agent/concore/pkg/distlock"
	"github.com/pi-agent/concore/pkg/queuebus"
	"github.com/pi-agent/concore/pkg/registry"
)

// EnvEnable disables stealing entirely when set to "false"; stealing
// is on by default.
const EnvEnable = "PI_ENABLE_WORK_STEALING"

const defaultLockTTL = 30 * time.Second

const minPendingToSteal = 2

// Stats tracks a rolling window of steal attempts for this instance.
type Stats struct {
	mu         sync.Mutex
	attempts   int
	successes  int
	latencies  []time.Duration
	maxSamples int
}

func newStats(maxSamples int) *Stats {
	if maxSamples <= 0 {
		maxSamples = 100
	}
	return &Stats{maxSamples: maxSamples}
}

func (s *Stats) record(success bool, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if success {
		s.successes++
	}
	s.latencies = append(s.latencies, d)
	if len(s.latencies) > s.maxSamples {
		s.latencies = s.latencies[len(s.latencies)-s.maxSamples:]
	}
}

// Snapshot is a point-in-time read of stealing statistics.
type Snapshot struct {
	Attempts     int
	Successes    int
	AvgLatencyMs float64
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.latencies {
		sum += d
	}
	avg := 0.0
	if len(s.latencies) > 0 {
		avg = float64(sum.Milliseconds()) / float64(len(s.latencies))
	}
	return Snapshot{Attempts: s.attempts, Successes: s.successes, AvgLatencyMs: avg}
}

// Stolen describes one task claimed from a peer.
type Stolen struct {
	FromInstanceID string
	Entry          queuebus.StealableEntry
}

// Stealer coordinates idle-capacity detection and cross-instance work
// stealing for one process.
type Stealer struct {
	reg     *registry.Registry
	bus     *queuebus.Bus
	locks   *distlock.Manager
	selfID  string
	lockTTL time.Duration
	stats   *Stats
}

// New builds a Stealer. lockTTL of 0 selects the 30s default.
func New(reg *registry.Registry, bus *queuebus.Bus, locks *distlock.Manager, selfID string, lockTTL time.Duration) *Stealer {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Stealer{reg: reg, bus: bus, locks: locks, selfID: selfID, lockTTL: lockTTL, stats: newStats(100)}
}

// Disabled reports whether stealing is turned off via the environment.
func Disabled() bool {
	return strings.EqualFold(os.Getenv(EnvEnable), "false")
}

// IsIdle reports whether this instance currently has no pending work
// of its own and so is a candidate to steal from a busier peer.
func (s *Stealer) IsIdle(myPendingTaskCount, myActiveOrchestrations int) bool {
	return myPendingTaskCount == 0 && myActiveOrchestrations == 0
}

// FindStealCandidate picks the live peer with the largest pending
// queue among those with more than minPendingToSteal tasks waiting.
func (s *Stealer) FindStealCandidate() (queuebus.State, bool, error) {
	states, err := s.bus.PeerStates()
	if err != nil {
		return queuebus.State{}, false, fmt.Errorf("stealer: peer states: %w", err)
	}

	sort.SliceStable(states, func(i, j int) bool {
		return states[i].PendingTaskCount > states[j].PendingTaskCount
	})

	for _, st := range states {
		if st.PendingTaskCount > minPendingToSteal && len(st.StealableEntries) > 0 {
			return st, true, nil
		}
	}
	return queuebus.State{}, false, nil
}

// SafeStealWork attempts to claim the highest-priority stealable entry
// from a busy peer. It is a no-op (ok=false, nil error) when stealing
// is disabled, no candidate exists, or the per-peer steal lock is
// already held by someone else. The chosen entry is returned to the
// caller; nothing is written to the peer's queue state or elsewhere,
// and the lock is released before returning, so the peer is not told
// about the claim by this call.
func (s *Stealer) SafeStealWork() (Stolen, bool, error) {
	if Disabled() {
		return Stolen{}, false, nil
	}

	start := time.Now()
	candidate, found, err := s.FindStealCandidate()
	if err != nil {
		return Stolen{}, false, err
	}
	if !found {
		return Stolen{}, false, nil
	}

	resource := "steal:" + candidate.InstanceID
	lockID, err := s.locks.TryAcquireLock(context.Background(), resource, s.lockTTL, 0)
	if err != nil {
		s.stats.record(false, time.Since(start))
		if errors.Is(err, distlock.ErrLockHeld) {
			return Stolen{}, false, nil
		}
		return Stolen{}, false, fmt.Errorf("stealer: acquire steal lock: %w", err)
	}
	defer func() { _ = s.locks.ReleaseLock(resource, lockID) }()

	entry := candidate.StealableEntries[0]
	for _, e := range candidate.StealableEntries {
		if queuebus.PriorityRankOf(e.Priority) > queuebus.PriorityRankOf(entry.Priority) {
			entry = e
		}
	}

	s.stats.record(true, time.Since(start))
	return Stolen{FromInstanceID: candidate.InstanceID, Entry: entry}, true, nil
}

// Stats returns the rolling attempt/success/latency snapshot.
func (s *Stealer) Stats() Snapshot {
	return s.stats.Snapshot()
}
