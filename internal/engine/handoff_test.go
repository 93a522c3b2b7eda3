package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"steward/internal/domain"
	"steward/internal/phase"
)

func TestSubmitHandoffAdvancesPhase(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})

	h := env.submit(t, d.Key, phase.HandoffLeadToPlan)
	if h.Status != "accepted" || h.FromPhase != phase.LeadApproval || h.ToPhase != phase.PlanDesign {
		t.Fatalf("handoff = %+v", h)
	}

	got, err := env.Repo.GetDirective(context.Background(), d.Key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != phase.PlanDesign {
		t.Fatalf("phase = %s, want %s", got.Phase, phase.PlanDesign)
	}
	if got.Status != "active" {
		t.Fatalf("status = %s, want active after first acceptance", got.Status)
	}
	if got.Progress != 20 {
		t.Fatalf("progress = %d, want 20", got.Progress)
	}
}

func TestSubmitHandoffRejectsOutOfOrder(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})

	_, err := env.SubmitHandoff(context.Background(), HandoffSubmitOptions{
		DirectiveID: d.Key, Type: phase.HandoffPlanToExec, Content: validContent(), ActorID: "plan-1",
	})
	var pov PhaseOrderViolation
	if !errors.As(err, &pov) {
		t.Fatalf("err = %v, want PhaseOrderViolation", err)
	}
	if pov.Expected != phase.HandoffLeadToPlan || pov.Submitted != phase.HandoffPlanToExec {
		t.Fatalf("violation = %+v", pov)
	}

	// The directive stays exactly where it was, but the attempt is on record.
	got, _ := env.Repo.GetDirective(context.Background(), d.Key)
	if got.Phase != phase.LeadApproval || got.Progress != 0 {
		t.Fatalf("directive mutated by rejected handoff: %+v", got)
	}
	hs, err := env.Repo.ListHandoffs(context.Background(), d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(hs) != 1 || hs[0].Status != "rejected" {
		t.Fatalf("handoffs = %+v", hs)
	}
}

func TestSubmitHandoffRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})
	_, err := env.SubmitHandoff(context.Background(), HandoffSubmitOptions{
		DirectiveID: d.Key, Type: "EXEC-TO-LEAD", Content: validContent(), ActorID: "exec-1",
	})
	var iv HandoffIntegrityViolation
	if !errors.As(err, &iv) {
		t.Fatalf("err = %v, want HandoffIntegrityViolation", err)
	}
}

func TestSubmitHandoffShortSummaryFails(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})

	content := validContent()
	content.ExecutiveSummary = "Done, ship it"
	_, err := env.SubmitHandoff(context.Background(), HandoffSubmitOptions{
		DirectiveID: d.Key, Type: phase.HandoffLeadToPlan, Content: content, ActorID: "lead-1",
	})
	var cvf ContentValidationFailure
	if !errors.As(err, &cvf) {
		t.Fatalf("err = %v, want ContentValidationFailure", err)
	}
	found := false
	for _, r := range cvf.Reasons {
		if strings.Contains(r, "executive_summary too short") {
			found = true
		}
	}
	if !found {
		t.Fatalf("reasons = %v", cvf.Reasons)
	}
	got, _ := env.Repo.GetDirective(context.Background(), d.Key)
	if got.Phase != phase.LeadApproval {
		t.Fatalf("phase advanced on failed validation: %s", got.Phase)
	}
}

func TestSubmitHandoffForceOverride(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})

	content := domain.HandoffContent{ExecutiveSummary: "Emergency hotfix, details to follow"}
	h, err := env.SubmitHandoff(context.Background(), HandoffSubmitOptions{
		DirectiveID: d.Key, Type: phase.HandoffLeadToPlan, Content: content,
		Force: true, ActorID: "lead-1",
	})
	if err != nil {
		t.Fatalf("forced submit: %v", err)
	}
	if h.Status != "accepted" || h.ValidationPassed {
		t.Fatalf("forced handoff = %+v", h)
	}

	evts, err := env.Repo.LatestEvents(context.Background(), 10, "handoff.accepted.override", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("override events = %d, want 1", len(evts))
	}
}

func TestSubmitHandoffDuplicateTypeRejected(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})
	env.submit(t, d.Key, phase.HandoffLeadToPlan)

	// The phase has moved on, so a repeat of the same type is out of order.
	_, err := env.SubmitHandoff(context.Background(), HandoffSubmitOptions{
		DirectiveID: d.Key, Type: phase.HandoffLeadToPlan, Content: validContent(), ActorID: "lead-1",
	})
	var pov PhaseOrderViolation
	if !errors.As(err, &pov) {
		t.Fatalf("err = %v, want PhaseOrderViolation", err)
	}
}

func TestFullLifecycleCompletes(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})
	env.advanceToCompleted(t, d.Key)

	got, err := env.Repo.GetDirective(context.Background(), d.Key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != phase.Completed || got.Status != "completed" {
		t.Fatalf("directive = %+v", got)
	}
	if got.Progress != 100 {
		t.Fatalf("progress = %d, want 100", got.Progress)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestOrchestratorCompletionGatedOnChildren(t *testing.T) {
	env := newTestEnv(t)
	orch := env.createDirective(t, DirectiveCreateOptions{Kind: "orchestrator"})
	child := env.createDirective(t, DirectiveCreateOptions{Title: "child work", Kind: "child", ParentID: orch.ID})

	for _, ht := range []string{
		phase.HandoffLeadToPlan, phase.HandoffPlanToExec, phase.HandoffExecToPlan, phase.HandoffPlanToLead,
	} {
		env.submit(t, orch.Key, ht)
	}

	// Child at 0%: the final handoff must hit the completion gate.
	_, err := env.SubmitHandoff(context.Background(), HandoffSubmitOptions{
		DirectiveID: orch.Key, Type: phase.HandoffLeadFinalApproval, Content: validContent(), ActorID: "lead-1",
	})
	var pme ProgressMismatchError
	if !errors.As(err, &pme) {
		t.Fatalf("err = %v, want ProgressMismatchError", err)
	}
	if len(pme.IncompleteChildren) != 1 || pme.IncompleteChildren[0] != child.Key {
		t.Fatalf("incomplete children = %v", pme.IncompleteChildren)
	}

	env.advanceToCompleted(t, child.Key)
	env.submit(t, orch.Key, phase.HandoffLeadFinalApproval)

	got, _ := env.Repo.GetDirective(context.Background(), orch.Key)
	if got.Status != "completed" || got.Progress != 100 {
		t.Fatalf("orchestrator = %+v", got)
	}
}

func TestDuplicateAcceptanceLosesToUniqueIndex(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})
	env.submit(t, d.Key, phase.HandoffLeadToPlan)

	// The partial unique index rejects a second accepted row of a satisfied
	// type regardless of who writes it.
	tx, err := env.DB.Begin()
	if err != nil {
		t.Fatal(err)
	}
	dup := domain.Handoff{
		ID: "dup-1", DirectiveID: d.ID, Type: phase.HandoffLeadToPlan,
		FromPhase: phase.LeadApproval, ToPhase: phase.PlanDesign,
		Status: "accepted", Content: validContent(),
		CreatedBy: "exec-2", CreatedAt: env.clock.Now().UTC().Format(time.RFC3339),
	}
	err = env.Repo.InsertHandoff(context.Background(), tx, dup)
	tx.Rollback()
	if err == nil {
		t.Fatal("second accepted row of the same type inserted")
	}
	if !strings.Contains(err.Error(), "UNIQUE constraint") {
		t.Fatalf("constraint error = %v", err)
	}

	// A submitter working from a stale phase read takes the same exit: one
	// acceptance wins, the loser gets an integrity violation.
	if _, err := env.DB.Exec(`UPDATE directives SET phase=? WHERE id=?`, phase.LeadApproval, d.ID); err != nil {
		t.Fatal(err)
	}
	_, err = env.SubmitHandoff(context.Background(), HandoffSubmitOptions{
		DirectiveID: d.Key, Type: phase.HandoffLeadToPlan, Content: validContent(), ActorID: "exec-2",
	})
	var hiv HandoffIntegrityViolation
	if !errors.As(err, &hiv) {
		t.Fatalf("err = %v, want HandoffIntegrityViolation", err)
	}

	hs, err := env.Repo.ListHandoffs(context.Background(), d.ID)
	if err != nil {
		t.Fatal(err)
	}
	accepted := 0
	for _, h := range hs {
		if h.Type == phase.HandoffLeadToPlan && h.Status == "accepted" {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted rows = %d, want exactly 1", accepted)
	}
}
