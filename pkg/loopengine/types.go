// Package loopengine drives the multi-round iteration loop that calls
// a model, parses its structured contract, validates and normalizes
// feedback, detects stagnation, and decides when to stop.
package loopengine

import (
	"context"
	"time"
)

// Reference is one piece of context material available for citation.
type Reference struct {
	Title   string
	Source  string
	Content string
}

// ModelHandle identifies which model backs a run.
type ModelHandle struct {
	Provider      string
	ID            string
	ThinkingLevel string // "", "low", "medium", "high"
}

// VerificationPolicy controls when the verification command runs.
type VerificationPolicy string

const (
	VerifyAlways   VerificationPolicy = "always"
	VerifyDoneOnly VerificationPolicy = "done_only"
	VerifyEveryN   VerificationPolicy = "every_n"
)

// Config bounds one run's behavior.
type Config struct {
	MaxIterations               int // [1, 16]
	TimeoutMs                   int // [10_000, 600_000]
	VerificationTimeoutMs       int // [1_000, 120_000]
	RequireCitation             bool
	EnableSemanticStagnation    bool
	SemanticRepetitionThreshold float64
	VerificationPolicy          VerificationPolicy // default done_only
	VerifyEveryNIterations      int                 // used when VerificationPolicy == VerifyEveryN
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 || c.MaxIterations > 16 {
		c.MaxIterations = 16
	}
	if c.TimeoutMs < 10_000 || c.TimeoutMs > 600_000 {
		c.TimeoutMs = 60_000
	}
	if c.VerificationTimeoutMs < 1_000 || c.VerificationTimeoutMs > 120_000 {
		c.VerificationTimeoutMs = 30_000
	}
	if c.SemanticRepetitionThreshold == 0 {
		c.SemanticRepetitionThreshold = 0.85
	}
	if c.VerificationPolicy == "" {
		c.VerificationPolicy = VerifyDoneOnly
	}
	if c.VerifyEveryNIterations <= 0 {
		c.VerifyEveryNIterations = 3
	}
	return c
}

// Collaborator calls the model subprocess/SDK and returns its raw text
// output.
type Collaborator interface {
	CallModel(ctx context.Context, prompt string, model ModelHandle, timeout time.Duration) (string, error)
}

// Verifier runs a verification command and reports whether it passed.
type Verifier interface {
	Verify(ctx context.Context, command string, timeout time.Duration) (passed bool, feedback string, err error)
}

// EmbeddingProvider is reused from pkg/semantic's interface shape so
// callers can wire the same client in both places.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// RunInput bundles every input to one iteration run.
type RunInput struct {
	Task                string
	Goal                string
	VerificationCommand string
	Config              Config
	References          []Reference
	Model               ModelHandle
	WorkDir             string
	Intent              string // optional, from pkg/intent
	RepetitionTolerance float64
}

// StopReason names why a run terminated.
type StopReason string

const (
	StopModelDone      StopReason = "model_done"
	StopIterationError StopReason = "iteration_error"
	StopStagnation     StopReason = "stagnation"
	StopMaxIterations  StopReason = "max_iterations"
)

// Summary is the machine-readable record of a completed run.
type Summary struct {
	RunID          string     `json:"runId"`
	Task           string     `json:"task"`
	Completed      bool       `json:"completed"`
	StopReason     StopReason `json:"stopReason"`
	IterationCount int        `json:"iterationCount"`
	Model          ModelHandle `json:"model"`
	LogPath        string     `json:"logPath"`
	SummaryPath    string     `json:"summaryPath"`
	Preview        string     `json:"preview"`
	Intent         string     `json:"intent,omitempty"`
	RepeatedCount  int        `json:"repeatedCount"`
	FinishedAt     time.Time  `json:"finishedAt"`
}
