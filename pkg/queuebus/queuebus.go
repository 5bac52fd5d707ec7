// Package queuebus broadcasts per-instance workload snapshots as JSON
// files so peers can discover idle capacity and stealable work without
// a shared process or network service.
package queuebus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pi-agent/concore/pkg/storagelock"
)

// Priority orders stealable entries; higher values are preferred.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

var priorityRank = map[string]Priority{
	"background": PriorityBackground,
	"low":        PriorityLow,
	"normal":     PriorityNormal,
	"high":       PriorityHigh,
	"critical":   PriorityCritical,
}

// PriorityRankOf returns the ordering rank of a stealable entry's
// priority label, for callers outside this package that need to
// compare entries (e.g. pkg/stealer picking the best candidate).
func PriorityRankOf(label string) Priority {
	return priorityRank[label]
}

// StealableEntry describes one task a peer is willing to let another
// instance pick up.
type StealableEntry struct {
	ID                 string    `json:"id"`
	ToolName           string    `json:"toolName"`
	Priority           string    `json:"priority"`
	EnqueuedAt         time.Time `json:"enqueuedAt"`
	EstimatedDurationMs int64    `json:"estimatedDurationMs,omitempty"`
	EstimatedRounds    int       `json:"estimatedRounds,omitempty"`
}

// State is the JSON record one instance publishes about its own workload.
type State struct {
	InstanceID           string           `json:"instanceId"`
	Timestamp            time.Time        `json:"timestamp"`
	PendingTaskCount     int              `json:"pendingTaskCount"`
	ActiveOrchestrations int              `json:"activeOrchestrations"`
	AvgLatencyMs         float64          `json:"avgLatencyMs,omitempty"`
	StealableEntries     []StealableEntry `json:"stealableEntries"`
}

// Bus owns the queue-states directory for one runtime root.
type Bus struct {
	root                string
	instanceID          string
	heartbeatIntervalMs int64
	maxStealable         int
}

// New creates a Bus. heartbeatIntervalMs must match the registry's own
// interval: staleness filtering is defined in multiples of it.
func New(runtimeRoot, instanceID string, heartbeatIntervalMs int64, maxStealable int) *Bus {
	if maxStealable <= 0 {
		maxStealable = 20
	}
	return &Bus{
		root:                filepath.Join(runtimeRoot, "queue-states"),
		instanceID:          instanceID,
		heartbeatIntervalMs: heartbeatIntervalMs,
		maxStealable:         maxStealable,
	}
}

func (b *Bus) path(instanceID string) string {
	return filepath.Join(b.root, instanceID+".json")
}

// Publish writes this instance's current workload snapshot, sorting
// stealable entries by descending priority and truncating to the
// configured cap.
func (b *Bus) Publish(pendingTaskCount, activeOrchestrations int, avgLatencyMs float64, entries []StealableEntry) error {
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return err
	}

	sorted := make([]StealableEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return priorityRank[sorted[i].Priority] > priorityRank[sorted[j].Priority]
	})
	if len(sorted) > b.maxStealable {
		sorted = sorted[:b.maxStealable]
	}

	state := State{
		InstanceID:           b.instanceID,
		Timestamp:            time.Now(),
		PendingTaskCount:     pendingTaskCount,
		ActiveOrchestrations: activeOrchestrations,
		AvgLatencyMs:         avgLatencyMs,
		StealableEntries:     sorted,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	path := b.path(b.instanceID)
	return storagelock.WithFileLock(path, func() error {
		return storagelock.AtomicWriteTextFile(path, string(data))
	}, storagelock.Options{MaxWaitMs: 1000, PollMs: 10, StaleMs: 5000})
}

// PeerStates reads every other instance's snapshot, skipping its own
// file and any record older than twice the heartbeat interval.
func (b *Bus) PeerStates() ([]State, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	maxAge := 2 * time.Duration(b.heartbeatIntervalMs) * time.Millisecond
	var states []State
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.root, e.Name()))
		if err != nil {
			continue
		}
		var s State
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		if s.InstanceID == b.instanceID {
			continue
		}
		if time.Since(s.Timestamp) > maxAge {
			continue
		}
		states = append(states, s)
	}
	return states, nil
}

// CheckRemoteCapacity reports whether at least one peer has spare
// cycles: no pending tasks and fewer than 2 active orchestrations.
func (b *Bus) CheckRemoteCapacity() (bool, error) {
	states, err := b.PeerStates()
	if err != nil {
		return false, err
	}
	for _, s := range states {
		if s.PendingTaskCount == 0 && s.ActiveOrchestrations < 2 {
			return true, nil
		}
	}
	return false, nil
}

// CleanupQueueStates prunes queue-state files left by any instance:
// a file older than the staleness window whose instance ID is not in
// liveInstanceIDs is removed, and so is a file that does not parse.
// Called from the registry heartbeat tick via CleanupHooks.
func (b *Bus) CleanupQueueStates(liveInstanceIDs map[string]bool) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return
	}
	maxAge := 2 * time.Duration(b.heartbeatIntervalMs) * time.Millisecond
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(b.root, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var s State
		if err := json.Unmarshal(data, &s); err != nil {
			_ = os.Remove(path)
			continue
		}
		if !liveInstanceIDs[s.InstanceID] && time.Since(s.Timestamp) > maxAge {
			_ = os.Remove(path)
		}
	}
}
