package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	root := t.TempDir()
	return New(root, Config{HeartbeatIntervalMs: 50, HeartbeatTimeoutMs: 500, WriteDebounceMs: 10}, CleanupHooks{})
}

func TestRegister_IsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	id1, err := r.Register("session-abcdef", "/work")
	require.NoError(t, err)
	id2, err := r.Register("session-abcdef", "/work")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	require.NoError(t, r.Unregister())
}

func TestRegister_WritesInstanceFile(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Register("session-abcdef", "/work")
	require.NoError(t, err)
	defer r.Unregister()

	path := filepath.Join(r.root, "instances", id+".lock")
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestUnregister_RemovesInstanceFile(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Register("session-abcdef", "/work")
	require.NoError(t, err)

	require.NoError(t, r.Unregister())
	path := filepath.Join(r.root, "instances", id+".lock")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestIsAlive_DeadPidIsNotAlive(t *testing.T) {
	r := newTestRegistry(t)
	inst := Instance{PID: 2147483000, LastHeartbeat: time.Now()}
	assert.False(t, r.IsAlive(inst))
}

func TestIsAlive_ExpiredHeartbeatIsNotAlive(t *testing.T) {
	r := newTestRegistry(t)
	inst := Instance{PID: os.Getpid(), LastHeartbeat: time.Now().Add(-time.Hour)}
	assert.False(t, r.IsAlive(inst))
}

func TestIsAlive_LiveSelfIsAlive(t *testing.T) {
	r := newTestRegistry(t)
	inst := Instance{PID: os.Getpid(), LastHeartbeat: time.Now()}
	assert.True(t, r.IsAlive(inst))
}

func TestGetContendingInstanceCount_AlwaysCountsSelf(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("session-abcdef", "/work")
	require.NoError(t, err)
	defer r.Unregister()

	count, err := r.GetContendingInstanceCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetContendingInstanceCount_CountsPeersWithWork(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("session-abcdef", "/work")
	require.NoError(t, err)
	defer r.Unregister()

	require.NoError(t, r.SetActiveModel("openai", "gpt-4"))

	peer := Instance{
		InstanceID:         "sess-peer0001-pid999-abc-defg",
		PID:                os.Getpid(),
		LastHeartbeat:      time.Now(),
		ActiveRequestCount: 1,
	}
	writePeerFile(t, r, peer)

	count, err := r.GetContendingInstanceCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCleanupDeadInstances_RemovesDeadAndCorruptFiles(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("session-abcdef", "/work")
	require.NoError(t, err)
	defer r.Unregister()

	dead := Instance{
		InstanceID:    "sess-dead0001-pid999-abc-defg",
		PID:           2147483000,
		LastHeartbeat: time.Now(),
	}
	writePeerFile(t, r, dead)

	corruptPath := filepath.Join(r.instancesDir(), "corrupt.lock")
	require.NoError(t, os.WriteFile(corruptPath, []byte("not json"), 0o644))

	r.cleanupDeadInstances()

	_, err = os.Stat(r.instancePath(dead.InstanceID))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(corruptPath)
	assert.True(t, os.IsNotExist(err))
}

func TestGetActiveInstancesForModel_MatchesPrefixAndGlob(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("session-abcdef", "/work")
	require.NoError(t, err)
	defer r.Unregister()

	require.NoError(t, r.SetActiveModel("openai", "gpt-4-turbo"))

	instances, err := r.GetActiveInstancesForModel("openai", "gpt-4")
	require.NoError(t, err)
	assert.Len(t, instances, 1)

	instances, err = r.GetActiveInstancesForModel("openai", "gpt-*")
	require.NoError(t, err)
	assert.Len(t, instances, 1)

	instances, err = r.GetActiveInstancesForModel("openai", "claude-3")
	require.NoError(t, err)
	assert.Len(t, instances, 0)
}

func TestGetModelParallelLimit_SplitsAcrossCallers(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("session-abcdef", "/work")
	require.NoError(t, err)
	defer r.Unregister()
	require.NoError(t, r.SetActiveModel("openai", "gpt-4"))

	peer := Instance{
		InstanceID:    "sess-peer0002-pid999-abc-defg",
		PID:           os.Getpid(),
		LastHeartbeat: time.Now(),
		ActiveModels:  []ActiveModel{{Provider: "openai", Model: "gpt-4"}},
	}
	writePeerFile(t, r, peer)

	limit, err := r.GetModelParallelLimit("openai", "gpt-4", 10)
	require.NoError(t, err)
	assert.Equal(t, 5, limit)
}

func TestGetMyParallelLimit_FloorsAtOne(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("session-abcdef", "/work")
	require.NoError(t, err)
	defer r.Unregister()

	limit, err := r.GetMyParallelLimit(1)
	require.NoError(t, err)
	assert.Equal(t, 1, limit)
}

func TestGetDynamicParallelLimit_FavorsLowerPendingShare(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("session-abcdef", "/work")
	require.NoError(t, err)
	defer r.Unregister()

	busyPeer := Instance{
		InstanceID:       "sess-peer0003-pid999-abc-defg",
		PID:              os.Getpid(),
		LastHeartbeat:    time.Now(),
		PendingTaskCount: 9,
	}
	writePeerFile(t, r, busyPeer)

	slot, err := r.GetDynamicParallelLimit(10, 0)
	require.NoError(t, err)
	assert.Greater(t, slot, 5)
}

func writePeerFile(t *testing.T, r *Registry, inst Instance) {
	t.Helper()
	data, err := json.MarshalIndent(inst, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(r.instancePath(inst.InstanceID), data, 0o644))
}
