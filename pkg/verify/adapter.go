package verify

import (
	"context"
	"fmt"
	"time"
)

// LoopVerifier adapts Run to the loopengine.Verifier interface so a
// host process can wire pkg/verify directly into loopengine.NewEngine
// without loopengine importing this package.
type LoopVerifier struct{}

// Verify runs command under the allow-list and reports pass/fail plus
// a short feedback string summarizing a failure.
func (LoopVerifier) Verify(ctx context.Context, command string, timeout time.Duration) (bool, string, error) {
	result, err := Run(ctx, command, Options{Timeout: timeout})
	if err != nil {
		return false, "", err
	}
	if result.Passed {
		return true, "", nil
	}
	if result.TimedOut {
		return false, fmt.Sprintf("command timed out after %dms", result.DurationMs), nil
	}
	feedback := fmt.Sprintf("exit code %d", result.ExitCode)
	if result.Stderr != "" {
		feedback += ": " + truncate(result.Stderr, 500)
	}
	return false, feedback, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
