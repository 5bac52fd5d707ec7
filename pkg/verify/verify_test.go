package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_RejectsShellMetacharacters(t *testing.T) {
	for _, cmd := range []string{"npm test; rm -rf /", "npm test | cat", "npm test && echo hi", "echo $(whoami)"} {
		_, err := Tokenize(cmd)
		assert.ErrorIs(t, err, ErrShellMetacharacter, cmd)
	}
}

func TestTokenize_SplitsOnWhitespace(t *testing.T) {
	tokens, err := Tokenize("npm test --watch=false")
	require.NoError(t, err)
	assert.Equal(t, []string{"npm", "test", "--watch=false"}, tokens)
}

func TestIsAllowed_MatchesKnownPrefixes(t *testing.T) {
	list := AllowList()
	assert.True(t, IsAllowed([]string{"npm", "test", "--watch=false"}, list))
	assert.True(t, IsAllowed([]string{"pytest", "-k", "foo"}, list))
	assert.False(t, IsAllowed([]string{"rm", "-rf", "/"}, list))
}

func TestRedactSecrets_MasksKnownKeys(t *testing.T) {
	input := `api_key=sk-abc123 token: "tok_xyz" password=hunter2 ok=fine`
	out := RedactSecrets(input)
	assert.Contains(t, out, MaskedValue)
	assert.NotContains(t, out, "sk-abc123")
	assert.NotContains(t, out, "tok_xyz")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "ok=fine")
}

func TestRun_RejectsCommandNotOnAllowList(t *testing.T) {
	_, err := Run(context.Background(), "curl http://example.com", Options{})
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestRun_ExecutesAllowedCommand(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-verify-tool")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho ok\nexit 0\n"), 0o755))

	t.Setenv(EnvAllowListVar, script)

	result, err := Run(context.Background(), script, Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Contains(t, result.Stdout, "ok")
}

func TestRun_TimesOutAndKillsProcess(t *testing.T) {
	t.Setenv(EnvAllowListVar, "sleep")
	result, err := Run(context.Background(), "sleep 5", Options{Timeout: 50 * time.Millisecond, GracePeriod: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.False(t, result.Passed)
}
