// Package modelproc implements the iteration loop engine's Collaborator
// contract by shelling out to a configurable subprocess: the prompt is
// written to stdin, and the model's reply is whatever the subprocess
// writes to stdout. This is the default, swappable implementation a
// host process wires in when it has no SDK client of its own — most
// commonly a thin wrapper script around a provider CLI.
package modelproc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pi-agent/concore/pkg/loopengine"
)

// Collaborator runs Command with the prompt on stdin for every call.
// %PROVIDER% and %MODEL% in Args are substituted with the requested
// model's provider and ID before each invocation, so one Collaborator
// can serve every (provider, model) pair a run asks for.
type Collaborator struct {
	Command string
	Args    []string
}

// New builds a Collaborator that runs command with args for every
// model call.
func New(command string, args ...string) *Collaborator {
	return &Collaborator{Command: command, Args: args}
}

// CallModel implements loopengine.Collaborator using an idle timeout:
// the clock resets every time the subprocess writes output, rather
// than bounding the call's total wall-clock time. A model that is
// still actively streaming never gets killed mid-response; one that
// goes silent for longer than timeout does. This resolves the open
// question left by §9: computeModelTimeoutMs's contract is idle-based.
func (c *Collaborator) CallModel(ctx context.Context, prompt string, model loopengine.ModelHandle, timeout time.Duration) (string, error) {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		a = strings.ReplaceAll(a, "%PROVIDER%", model.Provider)
		a = strings.ReplaceAll(a, "%MODEL%", model.ID)
		args[i] = a
	}

	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Stdin = strings.NewReader(prompt)

	var out bytes.Buffer
	tracker := &idleTracker{w: &out, lastByte: time.Now()}
	cmd.Stdout = tracker
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// After the process is killed, stop waiting on stdout/stderr once
	// WaitDelay passes, even if a grandchild still holds the pipes open.
	cmd.WaitDelay = 500 * time.Millisecond

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("modelproc: start %s: %w", c.Command, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				return "", fmt.Errorf("modelproc: %s: %w: %s", c.Command, err, stderr.String())
			}
			text := strings.TrimSpace(out.String())
			if text == "" {
				return "", fmt.Errorf("modelproc: %s produced no output", c.Command)
			}
			return text, nil
		case <-ticker.C:
			if tracker.idleFor() > timeout {
				_ = cmd.Process.Kill()
				<-done
				return "", fmt.Errorf("modelproc: %s: idle timeout after %s", c.Command, timeout)
			}
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			<-done
			return "", ctx.Err()
		}
	}
}

const idlePollInterval = 200 * time.Millisecond

// idleTracker wraps a writer and records the last time any bytes were
// written to it, so the caller can compute how long the stream has
// gone silent.
type idleTracker struct {
	w        *bytes.Buffer
	lastByte time.Time
}

func (t *idleTracker) Write(p []byte) (int, error) {
	t.lastByte = time.Now()
	return t.w.Write(p)
}

func (t *idleTracker) idleFor() time.Duration {
	return time.Since(t.lastByte)
}
