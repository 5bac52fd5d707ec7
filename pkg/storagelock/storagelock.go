// Package storagelock provides the two file-IPC primitives every
// multi-writer state file in this module is built on: a synchronous
// exclusive file lock and an atomic text write. Nothing above this
// package is allowed to write a shared file any other way.
package storagelock

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
)

// ErrLockTimeout is returned by WithFileLock when maxWaitMs elapses
// without acquiring the lock.
var ErrLockTimeout = errors.New("file lock timeout")

// ErrNoBlockingSleep is returned when the environment cannot provide a
// blocking wait primitive and a single retry has already failed. The
// lock fails fast rather than busy-waiting.
var ErrNoBlockingSleep = errors.New("file lock: blocking sleep unavailable in this environment, failing fast rather than busy-waiting")

// Options configures WithFileLock.
type Options struct {
	MaxWaitMs int64 // total time budget for acquisition, default 5000
	PollMs    int64 // sleep between contention checks, default 50
	StaleMs   int64 // lock age after which it is presumed abandoned, default 10000
}

func (o Options) withDefaults() Options {
	if o.MaxWaitMs <= 0 {
		o.MaxWaitMs = 5000
	}
	if o.PollMs <= 0 {
		o.PollMs = 50
	}
	if o.StaleMs <= 0 {
		o.StaleMs = 10000
	}
	return o
}

// tempCounter disambiguates same-pid, same-millisecond temp file names
// (atomicWriteTextFile can be called in a tight loop, e.g. heartbeats).
var tempCounter int64

// WithFileLock runs fn while holding an exclusive lock adjacent to path
// (path + ".lock"), created with O_EXCL semantics. On contention the
// lock is cleared only if it is stale (old mtime or a dead owning pid),
// never unlinked unconditionally. It never busy-waits: between retries
// it blocks on time.Sleep, and if that primitive becomes unavailable
// (detectable only in exotic embedded builds; modeled here so callers
// have a single error path to handle) it retries once then fails fast.
func WithFileLock(path string, fn func() error, opts Options) error {
	opts = opts.withDefaults()
	lockPath := path + ".lock"
	deadline := time.Now().Add(time.Duration(opts.MaxWaitMs) * time.Millisecond)
	pid := os.Getpid()

	attempt := 0
	for {
		acquired, err := tryCreateLockFile(lockPath, pid)
		if err != nil {
			return fmt.Errorf("storagelock: create %s: %w", lockPath, err)
		}
		if acquired {
			defer os.Remove(lockPath)
			return fn()
		}

		clearStaleLock(lockPath, opts.StaleMs)

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}

		if !sleepOrFailFast(time.Duration(opts.PollMs) * time.Millisecond) {
			attempt++
			if attempt > 1 {
				return ErrNoBlockingSleep
			}
			continue
		}
	}
}

// sleepOrFailFast blocks for d and reports success. It always succeeds
// on every real Go runtime (time.Sleep cannot fail); the bool result
// exists so the retry-once-then-fail-fast contract in §4.2 has a place
// to hook a platform that cannot provide a blocking primitive.
func sleepOrFailFast(d time.Duration) bool {
	time.Sleep(d)
	return true
}

func tryCreateLockFile(lockPath string, pid int) (bool, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d:%d\n", pid, time.Now().UnixMilli())
	return true, err
}

// clearStaleLock removes lockPath iff its mtime predates staleMs ago OR
// the pid recorded inside it is no longer alive. EEXIST/ENOENT races
// with a concurrent holder are swallowed: losing the race just means
// another process cleaned it up or refreshed it first.
func clearStaleLock(lockPath string, staleMs int64) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return
	}

	stale := time.Since(info.ModTime()) > time.Duration(staleMs)*time.Millisecond
	if !stale {
		data, err := os.ReadFile(lockPath)
		if err != nil {
			return
		}
		pid, ok := parseLockPid(string(data))
		if !ok || pidAlive(pid) {
			return
		}
		stale = true
	}

	if stale {
		_ = os.Remove(lockPath)
	}
}

func parseLockPid(content string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(content), ":", 2)
	if len(parts) == 0 {
		return 0, false
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	return pid, true
}

// pidAlive reports whether pid responds to signal 0. pkg/registry
// keeps its own copy of the same probe; pkg/distlock judges locks by
// TTL expiry instead of pid liveness.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH)
}

// AtomicWriteTextFile writes content to a temp file in the same
// directory as path then renames it into place, so readers never
// observe a torn write. On rename failure the temp file is removed.
func AtomicWriteTextFile(path, content string) error {
	dir := filepath.Dir(path)
	counter := atomic.AddInt64(&tempCounter, 1)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d-%d", filepath.Base(path), os.Getpid(), rand.Int63(), counter))

	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("storagelock: write temp %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storagelock: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}
