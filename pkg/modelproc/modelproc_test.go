package modelproc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pi-agent/concore/pkg/loopengine"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-model")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCallModel_ReturnsTrimmedStdout(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\necho '  hello from model  '\n")
	c := New(script)

	out, err := c.CallModel(context.Background(), "prompt text", loopengine.ModelHandle{Provider: "anthropic", ID: "claude-x"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello from model", out)
}

func TestCallModel_SubstitutesProviderAndModelInArgs(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\necho \"$1 $2\"\n")
	c := New(script, "%PROVIDER%", "%MODEL%")

	out, err := c.CallModel(context.Background(), "prompt", loopengine.ModelHandle{Provider: "anthropic", ID: "claude-x"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "anthropic claude-x", out)
}

func TestCallModel_ErrorsOnEmptyOutput(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\n")
	c := New(script)

	_, err := c.CallModel(context.Background(), "prompt", loopengine.ModelHandle{}, time.Second)
	assert.Error(t, err)
}

func TestCallModel_IdleTimeoutKillsHungProcess(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\nsleep 5\necho too late\n")
	c := New(script)

	start := time.Now()
	_, err := c.CallModel(context.Background(), "prompt", loopengine.ModelHandle{}, 100*time.Millisecond)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
