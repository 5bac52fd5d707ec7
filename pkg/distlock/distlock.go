// Package distlock implements file-based distributed locks with
// TTL-governed expiry instead of mtime-based staleness: a lock is dead
// the instant its ExpiresAt passes, regardless of clock skew on the
// write itself.
package distlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/pi-agent/concore/pkg/storagelock"
)

// ErrLockHeld is returned when a resource is held by a live, unexpired owner.
var ErrLockHeld = errors.New("distlock: resource is locked")

// Lock is the on-disk record for one held resource.
type Lock struct {
	Resource   string    `json:"resource"`
	LockID     string    `json:"lockId"`
	Owner      string    `json:"owner"` // registry instance ID
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (l Lock) expired() bool { return time.Now().After(l.ExpiresAt) }

// Manager owns the locks directory for one runtime root.
type Manager struct {
	root  string
	owner string // this process's registry instance ID, stamped on every lock it acquires
}

// New creates a Manager rooted at runtimeRoot/locks, attributing every
// lock this process acquires to ownerInstanceID.
func New(runtimeRoot, ownerInstanceID string) *Manager {
	return &Manager{root: filepath.Join(runtimeRoot, "locks"), owner: ownerInstanceID}
}

func (m *Manager) lockPath(resource string) string {
	return filepath.Join(m.root, resource+".lock")
}

// TryAcquireLock attempts to create resource's lock file with the
// given TTL. If the resource is already locked by a live owner it
// retries with exponential backoff (capped at 100ms) up to maxRetries
// times before giving up with ErrLockHeld.
func (m *Manager) TryAcquireLock(ctx context.Context, resource string, ttl time.Duration, maxRetries int) (string, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("distlock: ensure locks dir: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.25

	var lockID string
	attempt := 0
	op := func() error {
		attempt++
		id, err := m.tryOnce(resource, ttl)
		if err == nil {
			lockID = id
			return nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return backoff.Permanent(err)
		}
		if attempt > maxRetries {
			return backoff.Permanent(err)
		}
		return err
	}

	bctx := backoff.WithContext(b, ctx)
	if err := backoff.Retry(op, bctx); err != nil {
		return "", err
	}
	return lockID, nil
}

// tryOnce makes a single acquisition attempt, stealing an expired lock
// via rename-then-unlink rather than a direct unlink so a concurrent
// stealer never races a true unlink against a fresh acquirer.
func (m *Manager) tryOnce(resource string, ttl time.Duration) (string, error) {
	path := m.lockPath(resource)
	lock := Lock{
		Resource:   resource,
		LockID:     uuid.NewString(),
		Owner:      m.owner,
		AcquiredAt: time.Now(),
		ExpiresAt:  time.Now().Add(ttl),
	}
	data, err := json.Marshal(lock)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		if _, werr := f.Write(data); werr != nil {
			f.Close()
			os.Remove(path)
			return "", werr
		}
		f.Close()
		return lock.LockID, nil
	}
	if !os.IsExist(err) {
		return "", err
	}

	existing, ok := readLockFile(path)
	if !ok {
		// Corrupt or vanished: safe to attempt a steal.
		if m.steal(path, data) {
			return lock.LockID, nil
		}
		return "", ErrLockHeld
	}
	if !existing.expired() {
		return "", ErrLockHeld
	}
	if m.steal(path, data) {
		return lock.LockID, nil
	}
	return "", ErrLockHeld
}

// steal replaces an expired lock file. It renames the old file aside,
// creates the new one with O_EXCL, and only then unlinks the stale
// copy; if the create fails the old file is renamed back. Between the
// rename and the create the lock path briefly does not exist.
func (m *Manager) steal(path string, data []byte) bool {
	stalePath := path + ".stale"
	if err := os.Rename(path, stalePath); err != nil {
		return false
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		// Someone else won the race; put the aside file back and give up.
		_ = os.Rename(stalePath, path)
		return false
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(path)
		_ = os.Rename(stalePath, path)
		return false
	}
	_ = os.Remove(stalePath)
	return true
}

// ReleaseLock removes resource's lock file, but only if lockID still
// matches the current holder: a lock this process lost ownership of
// (because it expired and was stolen) must never be released out from
// under the new owner.
func (m *Manager) ReleaseLock(resource, lockID string) error {
	path := m.lockPath(resource)
	existing, ok := readLockFile(path)
	if !ok {
		return nil
	}
	if existing.LockID != lockID {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("distlock: release %s: %w", resource, err)
	}
	return nil
}

// RenewLock extends an owned lock's TTL in place via the same
// storagelock + atomic-write contract the registry uses for its own
// state file, so a renewal is never torn by a concurrent reader.
func (m *Manager) RenewLock(resource, lockID string, ttl time.Duration) error {
	path := m.lockPath(resource)
	return storagelock.WithFileLock(path, func() error {
		existing, ok := readLockFile(path)
		if !ok || existing.LockID != lockID {
			return ErrLockHeld
		}
		existing.ExpiresAt = time.Now().Add(ttl)
		data, err := json.Marshal(existing)
		if err != nil {
			return err
		}
		return storagelock.AtomicWriteTextFile(path, string(data))
	}, storagelock.Options{MaxWaitMs: 1000, PollMs: 10, StaleMs: 5000})
}

// CleanupExpiredLocks removes every lock file in the directory whose
// TTL has passed. Safe for any instance to run periodically; races on
// the unlink are ignored.
func (m *Manager) CleanupExpiredLocks() {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(m.root, e.Name())
		lock, ok := readLockFile(path)
		if !ok || lock.expired() {
			_ = os.Remove(path)
		}
	}
}

func readLockFile(path string) (Lock, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lock{}, false
	}
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return Lock{}, false
	}
	return l, true
}
