package loopengine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pi-agent/concore/pkg/semantic"
)

// computeModelTimeoutMs derives the per-call timeout from the user's
// requested budget, stretched for higher thinking levels since slower
// models need more wall-clock headroom for the same iteration budget.
func computeModelTimeoutMs(userTimeoutMs int, thinkingLevel string) int {
	switch thinkingLevel {
	case "high":
		return userTimeoutMs * 2
	case "medium":
		return userTimeoutMs + userTimeoutMs/2
	default:
		return userTimeoutMs
	}
}

// Engine drives one iteration run end to end.
type Engine struct {
	collaborator Collaborator
	verifier     Verifier
	embedder     semantic.EmbeddingProvider
}

// NewEngine builds an Engine. verifier and embedder may be nil.
func NewEngine(collaborator Collaborator, verifier Verifier, embedder semantic.EmbeddingProvider) *Engine {
	return &Engine{collaborator: collaborator, verifier: verifier, embedder: embedder}
}

// Run drives the iteration loop to completion or termination, writing
// an NDJSON log and a summary snapshot under runDir.
func (e *Engine) Run(ctx context.Context, runDir string, in RunInput) (Summary, error) {
	cfg := in.Config.withDefaults()

	runID := uuid.NewString()
	logger, err := newRunLogger(runDir, runID)
	if err != nil {
		return Summary{}, fmt.Errorf("open run log: %w", err)
	}
	defer logger.close()

	tracker := semantic.NewTrajectoryTracker(0)
	semOpts := semantic.Options{Threshold: cfg.SemanticRepetitionThreshold, UseEmbedding: cfg.EnableSemanticStagnation && e.embedder != nil}

	const baseRepetitionTolerance = 1
	effectiveThreshold := int(math.Max(1, math.Round(baseRepetitionTolerance*(2+in.RepetitionTolerance))))

	var (
		previousOutput      string
		consecutiveFailures int
		feedback            []string
		stopReason          StopReason
		completed           bool
		repeatedCount       int
		consecutiveRepeats  int
		lastResult          ParsedContract
		iterationsRun       int
	)

	goalPresent := in.Goal != ""

	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		iterationsRun = iter
		prompt := BuildPrompt(iter, cfg.MaxIterations, in, previousOutput, feedback)

		timeout := time.Duration(computeModelTimeoutMs(cfg.TimeoutMs, in.Model.ThinkingLevel)) * time.Millisecond
		raw, callErr := e.collaborator.CallModel(ctx, prompt, in.Model, timeout)
		if callErr != nil {
			consecutiveFailures++
			lastResult = ParsedContract{}
			if consecutiveFailures >= 2 {
				stopReason = StopIterationError
				break
			}
			feedback = NormalizeFeedback([]string{"iteration failed: " + callErr.Error()})
			continue
		}

		parsed := ParseContract(raw)
		lastResult = parsed

		issues := append([]string{}, parsed.ParseErrors...)
		issues = append(issues, ValidateContract(parsed.LoopJSON, len(in.References), cfg.RequireCitation, goalPresent)...)

		status := strings.ToLower(parsed.LoopJSON.Status)
		runVerification := e.shouldVerify(cfg, iter, status)
		var verifyPassed *bool
		if runVerification && in.VerificationCommand != "" && e.verifier != nil {
			passed, vfeedback, verr := e.verifier.Verify(ctx, in.VerificationCommand, time.Duration(cfg.VerificationTimeoutMs)*time.Millisecond)
			if verr != nil {
				issues = append(issues, "verification error: "+verr.Error())
			} else {
				verifyPassed = &passed
				if !passed {
					issues = append(issues, "verification failed: "+vfeedback)
				}
			}
		}

		// Downgrade a premature "done" to "continue" when issues remain.
		if status == "done" && len(issues) > 0 {
			status = "continue"
		}

		stagnationHit := false
		if previousOutput != "" {
			result := semantic.DetectSemanticRepetition(ctx, parsed.ResultBody, previousOutput, semOpts, e.embedder)
			tracker.Record(result)
			if result.IsRepeated {
				repeatedCount++
				consecutiveRepeats++
			} else {
				consecutiveRepeats = 0
			}
			stagnationHit = tracker.IsStuck() || consecutiveRepeats >= effectiveThreshold
		}

		feedback = NormalizeFeedback(issues)

		verifyPassedCopy := verifyPassed
		_ = logger.appendIteration(IterationRecord{
			Iteration:     iter,
			Timestamp:     time.Now(),
			Prompt:        prompt,
			RawResponse:   raw,
			Status:        status,
			GoalStatus:    parsed.LoopJSON.GoalStatus,
			VerifyPassed:  verifyPassedCopy,
			StagnationHit: stagnationHit,
			Issues:        issues,
		})

		previousOutput = parsed.ResultBody
		consecutiveFailures = 0

		if status == "done" && len(issues) == 0 {
			completed = true
			stopReason = StopModelDone
			break
		}

		deterministicGoal := goalPresent || in.VerificationCommand != ""
		if stagnationHit && !deterministicGoal {
			stopReason = StopStagnation
			break
		}

		if iter == cfg.MaxIterations {
			stopReason = StopMaxIterations
		}
	}

	summary := Summary{
		RunID:          runID,
		Task:           in.Task,
		Completed:      completed,
		StopReason:     stopReason,
		IterationCount: iterationsRun,
		Model:          in.Model,
		LogPath:        logger.logPath(),
		Intent:         in.Intent,
		RepeatedCount:  repeatedCount,
		Preview:        previewOf(lastResult.ResultBody),
	}
	summary.SummaryPath = runDir + "/" + runID + ".summary.json"
	summary.FinishedAt = time.Now()

	if err := writeSummary(runDir, summary); err != nil {
		return summary, fmt.Errorf("write summary: %w", err)
	}

	return summary, nil
}

func (e *Engine) shouldVerify(cfg Config, iter int, status string) bool {
	switch cfg.VerificationPolicy {
	case VerifyAlways:
		return true
	case VerifyEveryN:
		return iter%cfg.VerifyEveryNIterations == 0 || status == "done"
	default: // VerifyDoneOnly
		return status == "done"
	}
}

func previewOf(s string) string {
	const maxPreview = 300
	s = strings.TrimSpace(s)
	if len(s) > maxPreview {
		return s[:maxPreview]
	}
	return s
}
