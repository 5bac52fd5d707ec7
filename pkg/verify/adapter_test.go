package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopVerifier_ReportsFailureFeedback(t *testing.T) {
	t.Setenv(EnvAllowListVar, "false")
	v := LoopVerifier{}
	passed, feedback, err := v.Verify(context.Background(), "false", 2*time.Second)
	require.NoError(t, err)
	assert.False(t, passed)
	assert.Contains(t, feedback, "exit code")
}

func TestLoopVerifier_ReportsSuccess(t *testing.T) {
	t.Setenv(EnvAllowListVar, "true")
	v := LoopVerifier{}
	passed, _, err := v.Verify(context.Background(), "true", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, passed)
}
