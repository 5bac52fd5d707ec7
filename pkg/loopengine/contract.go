package loopengine

import (
	"encoding/json"
	"regexp"
	"strings"
)

// LoopJSON is the machine contract a model response must embed.
type LoopJSON struct {
	Status      string   `json:"status"` // continue | done
	GoalStatus  string   `json:"goal_status,omitempty"`
	Summary     string   `json:"summary"`
	NextActions []string `json:"next_actions"`
	Citations   []string `json:"citations,omitempty"`
}

// ParsedContract is the outcome of parsing one model response.
type ParsedContract struct {
	LoopJSON    LoopJSON
	ResultBody  string
	ParseErrors []string
	UsedLegacy  bool
}

var (
	loopJSONPattern = regexp.MustCompile(`(?s)<LOOP_JSON>\s*(?:` + "```json" + `)?\s*(\{.*?\})\s*(?:` + "```" + `)?\s*</LOOP_JSON>`)
	resultPattern   = regexp.MustCompile(`(?s)<RESULT>(.*?)</RESULT>`)

	legacyStatusPattern     = regexp.MustCompile(`(?im)^STATUS:\s*(\w+)\s*$`)
	legacyGoalStatusPattern = regexp.MustCompile(`(?im)^GOAL_STATUS:\s*(\w+)\s*$`)
	legacyCitationsPattern  = regexp.MustCompile(`(?im)^CITATIONS:\s*(.*)$`)
	citationTokenPattern    = regexp.MustCompile(`(?i)^R(\d+)$`)
)

// ParseContract extracts the LOOP_JSON block and RESULT body from raw
// model output, tolerating a surrounding ```json fence. If no
// LOOP_JSON block is found, it falls back to legacy line-anchored
// STATUS:/GOAL_STATUS:/CITATIONS: regexes and treats the entire output
// as the result body.
func ParseContract(raw string) ParsedContract {
	var errs []string

	if m := loopJSONPattern.FindStringSubmatch(raw); m != nil {
		var lj LoopJSON
		if err := json.Unmarshal([]byte(m[1]), &lj); err != nil {
			errs = append(errs, "malformed LOOP_JSON block: "+err.Error())
		} else {
			body := ""
			if rm := resultPattern.FindStringSubmatch(raw); rm != nil {
				body = strings.TrimSpace(rm[1])
			}
			return ParsedContract{LoopJSON: lj, ResultBody: body, ParseErrors: errs}
		}
	}

	// Legacy fallback.
	lj := LoopJSON{Status: "continue"}
	if m := legacyStatusPattern.FindStringSubmatch(raw); m != nil {
		lj.Status = strings.ToLower(m[1])
	} else {
		errs = append(errs, "missing STATUS line")
	}
	if m := legacyGoalStatusPattern.FindStringSubmatch(raw); m != nil {
		lj.GoalStatus = strings.ToLower(m[1])
	}
	if m := legacyCitationsPattern.FindStringSubmatch(raw); m != nil {
		for _, c := range strings.Split(m[1], ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				lj.Citations = append(lj.Citations, c)
			}
		}
	}
	lj.Summary = strings.TrimSpace(raw)
	if lj.Summary == "" {
		errs = append(errs, "empty response body")
	}
	lj.NextActions = []string{"continue"}

	return ParsedContract{LoopJSON: lj, ResultBody: strings.TrimSpace(raw), ParseErrors: errs, UsedLegacy: true}
}

// ValidateContract applies the structural rules beyond JSON shape:
// status must be continue/done, goal_status must be valid when
// present, summary and next_actions must be non-empty, and citations
// must be well-formed normalized R# tokens within range.
func ValidateContract(lj LoopJSON, referenceCount int, requireCitation bool, goalPresent bool) []string {
	var issues []string

	status := strings.ToLower(lj.Status)
	if status != "continue" && status != "done" {
		issues = append(issues, "invalid status value")
	}

	if lj.GoalStatus != "" {
		gs := strings.ToLower(lj.GoalStatus)
		if gs != "met" && gs != "not_met" && gs != "unknown" {
			issues = append(issues, "invalid goal_status value")
		}
	}

	if strings.TrimSpace(lj.Summary) == "" {
		issues = append(issues, "summary must not be empty")
	}
	if len(lj.NextActions) == 0 {
		issues = append(issues, "next_actions must not be empty")
	}

	if requireCitation && referenceCount > 0 && len(lj.Citations) == 0 {
		issues = append(issues, "citation required but none provided")
	}
	for _, c := range lj.Citations {
		m := citationTokenPattern.FindStringSubmatch(c)
		if m == nil {
			issues = append(issues, "malformed citation: "+c)
			continue
		}
		n := atoiSafe(m[1])
		if n < 1 || n > referenceCount {
			issues = append(issues, "citation out of range: "+c)
		}
	}

	if goalPresent && status == "done" && strings.ToLower(lj.GoalStatus) != "met" {
		issues = append(issues, "goal exists but goal_status is not met")
	}

	return issues
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
