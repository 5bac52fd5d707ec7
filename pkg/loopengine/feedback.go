package loopengine

import (
	"sort"
	"strings"
)

// feedbackCategory buckets a normalized issue for priority sorting.
type feedbackCategory int

const (
	categoryDoneNotMet feedbackCategory = iota
	categoryVerification
	categoryGoal
	categoryCitation
	categoryOther
)

var knownPatterns = []struct {
	contains string
	rewrite  string
	category feedbackCategory
}{
	{"rejected by system validation", "Address the validation issues below before declaring done.", categoryDoneNotMet},
	{"verification", "Fix the verification failure before declaring done.", categoryVerification},
	{"goal_status", "Set goal_status to met only once the stated goal is satisfied.", categoryGoal},
	{"goal exists but goal_status", "Set goal_status to met only once the stated goal is satisfied.", categoryGoal},
	{"citation", "Cite the reference you used with a valid [R#] marker.", categoryCitation},
	{"next_actions", "List at least one concrete next action.", categoryOther},
	{"summary must not be empty", "Provide a non-empty summary of what changed.", categoryOther},
	{"invalid status", "Use status=continue or status=done, nothing else.", categoryOther},
}

// NormalizeFeedback dedupes issues, rewrites recognized patterns into
// short imperative sentences, sorts by priority (done-but-not-met >
// verification > goal > citation > other), and caps the result at 4
// items.
func NormalizeFeedback(issues []string) []string {
	type item struct {
		text     string
		category feedbackCategory
	}

	seen := make(map[string]bool)
	var items []item
	for _, issue := range issues {
		text := issue
		category := categoryOther
		for _, kp := range knownPatterns {
			if containsFold(issue, kp.contains) {
				text = kp.rewrite
				category = kp.category
				break
			}
		}
		if seen[text] {
			continue
		}
		seen[text] = true
		items = append(items, item{text: text, category: category})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].category < items[j].category
	})

	if len(items) > 4 {
		items = items[:4]
	}

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.text
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
