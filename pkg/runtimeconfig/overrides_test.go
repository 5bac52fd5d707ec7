package runtimeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesFile_MissingFileIsZeroValue(t *testing.T) {
	o, err := LoadOverridesFile(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Overrides{}, o)
}

func TestLoadOverridesFile_ParsesYamlContent(t *testing.T) {
	dir := t.TempDir()
	content := "# operator override\nprofile: stable\ntotalMaxLlm: 9\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, OverridesFileName), []byte(content), 0o644))

	o, err := LoadOverridesFile(dir)
	require.NoError(t, err)
	assert.Equal(t, ProfileStable, o.Profile)
	assert.Equal(t, 9, o.TotalMaxLLM)
}

func TestLoadOverridesFile_ParsesStrictJsonContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, OverridesFileName), []byte(`{"totalMaxLlm": 7}`), 0o644))

	o, err := LoadOverridesFile(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, o.TotalMaxLLM)
}

func TestLoadForRoot_FileSetsBaselineBeneathEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, OverridesFileName), []byte(`{"totalMaxLlm": 9}`), 0o644))

	cfg, _ := LoadForRoot(ProfileDefault, dir)
	assert.Equal(t, 9, cfg.TotalMaxLLM)

	t.Setenv("PI_LIMIT_TOTAL_MAX_LLM", "3")
	cfg, _ = LoadForRoot(ProfileDefault, dir)
	assert.Equal(t, 3, cfg.TotalMaxLLM)
}

func TestRuntimeDir_DefaultsUnderHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	dir, err := RuntimeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".pi", "runtime"), dir)
}

func TestRuntimeDir_EnvOverrideExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv(EnvRuntimeDir, "~/custom-runtime")
	dir, err := RuntimeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "custom-runtime"), dir)
}
