package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pi-agent/concore/pkg/intent"
	"github.com/pi-agent/concore/pkg/loopengine"
	"github.com/pi-agent/concore/pkg/modelproc"
	"github.com/pi-agent/concore/pkg/runtimeconfig"
	"github.com/pi-agent/concore/pkg/verify"
)

func newRunCmd() *cobra.Command {
	var (
		task               string
		goal               string
		verifyCmd          string
		modelCommand       string
		provider           string
		model              string
		maxIterations      int
		timeoutSeconds     int
		requireCitation    bool
		semanticStagnation bool
		runDir             string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive one iteration-loop run against a subprocess model",
		RunE: func(cmd *cobra.Command, args []string) error {
			if task == "" {
				return fmt.Errorf("--task is required")
			}
			if modelCommand == "" {
				return fmt.Errorf("--model-command is required (a subprocess that reads the prompt on stdin and writes the reply to stdout)")
			}
			if runDir == "" {
				root, err := runtimeconfig.RuntimeDir()
				if err != nil {
					return fmt.Errorf("resolve runtime dir: %w", err)
				}
				runDir = root + "/runs"
			}

			classification := intent.Classify(task, goal, 0)
			budget := intent.GetBudget(classification.Intent)
			applied := intent.ApplyIntentLimits(classification.Intent, maxIterations, timeoutSeconds*1000, 1, 0.5)

			collaborator := modelproc.New(modelCommand)

			var verifier loopengine.Verifier
			if verifyCmd != "" {
				verifier = verify.LoopVerifier{}
			}

			engine := loopengine.NewEngine(collaborator, verifier, nil)

			in := loopengine.RunInput{
				Task:                task,
				Goal:                goal,
				VerificationCommand: verifyCmd,
				Model:               loopengine.ModelHandle{Provider: provider, ID: model},
				Intent:              string(classification.Intent),
				RepetitionTolerance: budget.RepetitionTolerance,
				Config: loopengine.Config{
					MaxIterations:            applied.MaxIterations,
					TimeoutMs:                applied.TimeoutMs,
					RequireCitation:          requireCitation,
					EnableSemanticStagnation: semanticStagnation,
				},
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(applied.MaxIterations)*time.Duration(applied.TimeoutMs)*time.Millisecond)
			defer cancel()

			summary, err := engine.Run(ctx, runDir, in)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			printSummary(cmd, summary, classification)
			return nil
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "task description (required)")
	cmd.Flags().StringVar(&goal, "goal", "", "optional goal to satisfy")
	cmd.Flags().StringVar(&verifyCmd, "verify", "", "optional allow-listed verification command")
	cmd.Flags().StringVar(&modelCommand, "model-command", "", "subprocess to invoke for each model call (required)")
	cmd.Flags().StringVar(&provider, "provider", "anthropic", "model provider label")
	cmd.Flags().StringVar(&model, "model", "claude", "model id label")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "cap on iterations (0 selects the intent's budget)")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 60, "per-iteration base timeout in seconds")
	cmd.Flags().BoolVar(&requireCitation, "require-citation", false, "require at least one citation when references are loaded")
	cmd.Flags().BoolVar(&semanticStagnation, "semantic-stagnation", false, "enable embedding-based stagnation detection")
	cmd.Flags().StringVar(&runDir, "run-dir", "", "directory for run artifacts (defaults to <runtime dir>/runs)")
	return cmd
}

func printSummary(cmd *cobra.Command, summary loopengine.Summary, classification intent.Classification) {
	out := cmd.OutOrStdout()

	stopColor := color.New(color.FgGreen)
	switch summary.StopReason {
	case loopengine.StopStagnation:
		stopColor = color.New(color.FgYellow)
	case loopengine.StopIterationError:
		stopColor = color.New(color.FgRed)
	case loopengine.StopMaxIterations:
		stopColor = color.New(color.FgYellow)
	}

	fmt.Fprintf(out, "run %s (intent=%s, confidence=%.2f)\n", summary.RunID, classification.Intent, classification.Confidence)
	fmt.Fprintf(out, "  completed:  %v\n", summary.Completed)
	stopColor.Fprintf(out, "  stop reason: %s\n", summary.StopReason)
	fmt.Fprintf(out, "  iterations:  %d\n", summary.IterationCount)
	fmt.Fprintf(out, "  log:         %s\n", summary.LogPath)
	fmt.Fprintf(out, "  summary:     %s\n", summary.SummaryPath)
	fmt.Fprintf(out, "  preview:     %s\n", summary.Preview)
}
