package registry

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/pi-agent/concore/pkg/storagelock"
)

// runHeartbeat is the background ticker started by Register. It always
// advances the in-memory lastHeartbeat timestamp, but rewrites the file
// at most once per WriteDebounceMs — cheap enough to tick every couple
// of seconds without hammering the filesystem.
func (r *Registry) runHeartbeat() {
	defer r.wg.Done()

	interval := time.Duration(r.cfg.HeartbeatIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.mu.Lock()
	stopCh := r.stopCh
	r.mu.Unlock()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Registry) tick() {
	r.mu.Lock()
	r.record.LastHeartbeat = time.Now()
	due := time.Since(r.lastWriteAt) >= time.Duration(r.cfg.WriteDebounceMs)*time.Millisecond
	r.mu.Unlock()

	if due {
		if err := r.writeRecordNow(); err != nil {
			slog.Warn("registry: heartbeat write failed", "error", err)
		}
	}

	r.cleanupDeadInstances()
	if r.hooks.CleanupQueueStates != nil {
		r.hooks.CleanupQueueStates()
	}
	if r.hooks.CleanupExpiredLocks != nil {
		r.hooks.CleanupExpiredLocks()
	}
}

// writeRecordNow serializes the current in-memory record and persists
// it via the storage lock + atomic-rename contract, regardless of
// debounce state. Used by Register and every state mutator.
func (r *Registry) writeRecordNow() error {
	r.mu.Lock()
	record := r.record
	path := r.instancePath(record.InstanceID)
	r.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	err = storagelock.WithFileLock(path, func() error {
		return storagelock.AtomicWriteTextFile(path, string(data))
	}, storagelock.Options{MaxWaitMs: 2000, PollMs: 25, StaleMs: 5000})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.lastWriteAt = time.Now()
	r.mu.Unlock()
	return nil
}

// mutate applies fn to the in-memory record under lock, then persists
// it immediately. State changes other than the heartbeat tick itself
// are not debounced: they are rewritten on every change.
func (r *Registry) mutate(fn func(*Instance)) error {
	r.mu.Lock()
	if !r.registered {
		r.mu.Unlock()
		return nil
	}
	fn(&r.record)
	r.mu.Unlock()
	return r.writeRecordNow()
}

// readInstanceFile reads and parses one instance file. A parse failure
// or a vanished file is reported via ok=false rather than an error:
// torn reads and races are expected and the caller's response is
// uniformly "skip, and let the next sweep reap it if it's actually dead".
func readInstanceFile(path string) (Instance, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Instance{}, false
	}
	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return Instance{}, false
	}
	return inst, true
}
