package engine

import (
	"strings"
	"testing"
)

func TestValidateContentPasses(t *testing.T) {
	env := newTestEnv(t)
	res := env.ValidateContent(validContent())
	if !res.Passed {
		t.Fatalf("result = %+v", res)
	}
	if res.Score != 100 {
		t.Fatalf("score = %d", res.Score)
	}
	if len(res.Reasons) != 0 {
		t.Fatalf("reasons = %v", res.Reasons)
	}
}

func TestValidateContentEmptyFields(t *testing.T) {
	env := newTestEnv(t)
	c := validContent()
	c.KnownIssues = ""
	c.ActionItems = "   "
	res := env.ValidateContent(c)
	if res.Passed {
		t.Fatalf("result = %+v", res)
	}
	if res.Fields["known_issues"] != 0 || res.Fields["action_items"] != 0 {
		t.Fatalf("fields = %v", res.Fields)
	}
	missing := 0
	for _, r := range res.Reasons {
		if strings.Contains(r, "is missing") {
			missing++
		}
	}
	if missing != 2 {
		t.Fatalf("reasons = %v", res.Reasons)
	}
}

func TestValidateContentShortFieldNeverPasses(t *testing.T) {
	env := newTestEnv(t)
	// Six strong fields cannot buy a pass for one short field, whatever the
	// aggregate score says.
	c := validContent()
	c.KeyDecisions = "went with sqlite"
	res := env.ValidateContent(c)
	if res.Passed {
		t.Fatalf("result = %+v", res)
	}
	if res.Fields["key_decisions"] != 25 {
		t.Fatalf("fields = %v", res.Fields)
	}
	if res.Score <= env.Config.Handoffs.PassThreshold {
		t.Fatalf("score = %d; this case exists to prove threshold alone is not enough", res.Score)
	}
}

func TestValidateContentSummaryUsesLongerMinimum(t *testing.T) {
	env := newTestEnv(t)
	c := validContent()
	// 60 chars clears the 50-char field minimum but not the 100-char
	// summary minimum.
	c.ExecutiveSummary = strings.Repeat("ok ", 20)
	res := env.ValidateContent(c)
	if res.Passed {
		t.Fatalf("result = %+v", res)
	}
	found := false
	for _, r := range res.Reasons {
		if strings.Contains(r, "executive_summary too short") {
			found = true
		}
	}
	if !found {
		t.Fatalf("reasons = %v", res.Reasons)
	}
}

func TestValidateContentScoreBands(t *testing.T) {
	env := newTestEnv(t)
	c := validContent()
	// At the minimum but under twice it: present and acceptable, not strong.
	c.ResourceUtilization = strings.Repeat("a", 60)
	res := env.ValidateContent(c)
	if res.Fields["resource_utilization"] != 75 {
		t.Fatalf("fields = %v", res.Fields)
	}
	if !res.Passed {
		t.Fatalf("result = %+v", res)
	}
}
