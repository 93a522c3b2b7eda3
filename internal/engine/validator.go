package engine

import (
	"fmt"
	"strings"

	"steward/internal/domain"
)

// requiredFields lists the seven handoff content elements in report order.
var requiredFields = []string{
	"executive_summary",
	"deliverables_manifest",
	"key_decisions",
	"known_issues",
	"resource_utilization",
	"action_items",
	"completeness_report",
}

func contentField(c domain.HandoffContent, name string) string {
	switch name {
	case "executive_summary":
		return c.ExecutiveSummary
	case "deliverables_manifest":
		return c.DeliverablesManifest
	case "key_decisions":
		return c.KeyDecisions
	case "known_issues":
		return c.KnownIssues
	case "resource_utilization":
		return c.ResourceUtilization
	case "action_items":
		return c.ActionItems
	case "completeness_report":
		return c.CompletenessReport
	}
	return ""
}

// ValidationResult is the outcome of scoring a handoff's content.
type ValidationResult struct {
	Score   int            `json:"score"`
	Passed  bool           `json:"passed"`
	Reasons []string       `json:"reasons,omitempty"`
	Fields  map[string]int `json:"fields"`
}

// ValidateContent scores the seven required content elements. Each field
// earns 0 when empty, 25 when present but under its minimum length, 75 at
// the minimum, and 100 at twice the minimum. The handoff passes only when
// every field meets its minimum and the overall score meets the threshold.
func (e Engine) ValidateContent(c domain.HandoffContent) ValidationResult {
	minField := e.Config.Handoffs.MinFieldLength
	minSummary := e.Config.Handoffs.MinSummaryLength

	res := ValidationResult{Fields: make(map[string]int, len(requiredFields))}
	total := 0
	allMet := true
	for _, name := range requiredFields {
		min := minField
		if name == "executive_summary" {
			min = minSummary
		}
		v := strings.TrimSpace(contentField(c, name))
		score := 0
		switch {
		case v == "":
			res.Reasons = append(res.Reasons, fmt.Sprintf("%s is missing", name))
			allMet = false
		case len(v) < min:
			score = 25
			res.Reasons = append(res.Reasons, fmt.Sprintf("%s too short: %d chars, min %d", name, len(v), min))
			allMet = false
		case len(v) < 2*min:
			score = 75
		default:
			score = 100
		}
		res.Fields[name] = score
		total += score
	}
	res.Score = total / len(requiredFields)
	res.Passed = allMet && res.Score >= e.Config.Handoffs.PassThreshold
	return res
}
