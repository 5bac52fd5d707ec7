package loopengine

import (
	"fmt"
	"strings"
)

const previousOutputCap = 9000

// BuildPrompt assembles the iteration prompt: a header declaring the
// iteration count, the task and optional goal/verification command,
// the contract rules, the reference pack, the truncated previous
// output, up to 4 normalized validation issues, and the closing
// template for the LOOP_JSON/RESULT contract.
func BuildPrompt(iteration, maxIterations int, in RunInput, previousOutput string, feedback []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Iteration %d/%d\n\n", iteration, maxIterations)
	fmt.Fprintf(&b, "Task: %s\n", in.Task)
	if in.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", in.Goal)
	}
	if in.VerificationCommand != "" {
		fmt.Fprintf(&b, "Verification command: %s\n", in.VerificationCommand)
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- STATUS: done only if the task is fully complete.\n")
	if in.Goal != "" {
		b.WriteString("- If a goal exists, GOAL_STATUS=met is required before status=done.\n")
	}
	if len(in.References) > 0 {
		b.WriteString("- Cite [R#] when you use a reference.\n")
	}

	if len(in.References) > 0 {
		b.WriteString("\nReferences:\n")
		for i, ref := range in.References {
			fmt.Fprintf(&b, "[R%d] %s\nSource: %s\n%s\n\n", i+1, ref.Title, ref.Source, ref.Content)
		}
	}

	if previousOutput != "" {
		truncated := previousOutput
		if len(truncated) > previousOutputCap {
			truncated = truncated[:previousOutputCap]
		}
		fmt.Fprintf(&b, "\nPrevious iteration:\n%s\n", truncated)
	}

	if len(feedback) > 0 {
		b.WriteString("\nAddress the following before continuing:\n")
		for _, f := range feedback {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	b.WriteString("\nRespond with exactly one fenced LOOP_JSON block followed by a RESULT block:\n")
	b.WriteString("<LOOP_JSON>\n```json\n{\"status\": \"continue|done\", \"goal_status\": \"met|not_met|unknown\", \"summary\": \"...\", \"next_actions\": [\"...\"], \"citations\": [\"R1\"]}\n```\n</LOOP_JSON>\n")
	b.WriteString("<RESULT>\n...\n</RESULT>\n")

	return b.String()
}
