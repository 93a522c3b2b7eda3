package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"steward/internal/domain"
)

func (env *testEnv) createDecision(t *testing.T, directive, title string, blocking bool) domain.Decision {
	t.Helper()
	d, err := env.CreateDecision(context.Background(), DecisionCreateOptions{
		DirectiveID: directive, Title: title, Blocking: blocking, ActorID: "plan-1",
	})
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	return d
}

func TestSweepAnnotatesAgedDecisions(t *testing.T) {
	env := newTestEnv(t)
	dir := env.createDirective(t, DirectiveCreateOptions{})
	aged := env.createDecision(t, dir.Key, "Choose the storage driver", false)

	env.clock.Advance(30 * time.Hour)
	fresh := env.createDecision(t, dir.Key, "Name the release", false)

	res, err := env.SweepEscalations(context.Background(), SweepOptions{ActorID: "monitor"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Checked != 2 || res.Escalated != 1 {
		t.Fatalf("result = %+v", res)
	}

	got, err := env.Repo.GetDecision(context.Background(), aged.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "pending" {
		t.Fatalf("sweep changed status to %s", got.Status)
	}
	if !got.RequiresUrgentReview || got.EscalationJSON == nil {
		t.Fatalf("aged decision not annotated: %+v", got)
	}
	var esc domain.Escalation
	if err := json.Unmarshal([]byte(*got.EscalationJSON), &esc); err != nil {
		t.Fatal(err)
	}
	if esc.Strategy != "notify-chairman" || esc.AgeHours < 30 {
		t.Fatalf("escalation = %+v", esc)
	}
	if esc.Urgency != "high" {
		t.Fatalf("urgency = %s, want high under twice the timeout", esc.Urgency)
	}

	if fresh, _ := env.Repo.GetDecision(context.Background(), fresh.ID); fresh.EscalationJSON != nil {
		t.Fatal("fresh decision annotated")
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	dir := env.createDirective(t, DirectiveCreateOptions{})
	env.createDecision(t, dir.Key, "Pick the region", false)
	env.clock.Advance(25 * time.Hour)

	if _, err := env.SweepEscalations(context.Background(), SweepOptions{ActorID: "monitor"}); err != nil {
		t.Fatal(err)
	}
	res, err := env.SweepEscalations(context.Background(), SweepOptions{ActorID: "monitor"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Escalated != 0 || res.AlreadyEscalated != 1 {
		t.Fatalf("second sweep = %+v", res)
	}
	evts, err := env.Repo.LatestEvents(context.Background(), 10, "decision.escalated", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("escalation events = %d, want 1", len(evts))
	}
}

func TestSweepExemptsBlockingDecisions(t *testing.T) {
	env := newTestEnv(t)
	dir := env.createDirective(t, DirectiveCreateOptions{})
	blocking := env.createDecision(t, dir.Key, "Halt for legal review", true)
	env.clock.Advance(48 * time.Hour)

	res, err := env.SweepEscalations(context.Background(), SweepOptions{ActorID: "monitor"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Escalated != 0 || len(res.SkippedBlocking) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.SkippedBlocking[0] != blocking.ID {
		t.Fatalf("skipped = %v, want %s", res.SkippedBlocking, blocking.ID)
	}
	got, _ := env.Repo.GetDecision(context.Background(), blocking.ID)
	if got.EscalationJSON != nil || got.RequiresUrgentReview {
		t.Fatalf("blocking decision annotated: %+v", got)
	}
}

func TestSweepDryRunWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	dir := env.createDirective(t, DirectiveCreateOptions{})
	dec := env.createDecision(t, dir.Key, "Approve the budget", false)
	env.clock.Advance(72 * time.Hour)

	res, err := env.SweepEscalations(context.Background(), SweepOptions{DryRun: true, ActorID: "monitor"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Escalated != 1 || len(res.Decisions) != 1 {
		t.Fatalf("dry run = %+v", res)
	}
	if res.Decisions[0].Urgency != "critical" {
		t.Fatalf("urgency = %s, want critical past twice the timeout", res.Decisions[0].Urgency)
	}
	got, _ := env.Repo.GetDecision(context.Background(), dec.ID)
	if got.EscalationJSON != nil || got.RequiresUrgentReview {
		t.Fatalf("dry run wrote state: %+v", got)
	}
	evts, _ := env.Repo.LatestEvents(context.Background(), 10, "decision.escalated", "", "")
	if len(evts) != 0 {
		t.Fatal("dry run emitted events")
	}
}

func TestSweepCustomTimeout(t *testing.T) {
	env := newTestEnv(t)
	dir := env.createDirective(t, DirectiveCreateOptions{})
	env.createDecision(t, dir.Key, "Quick call on naming", false)
	env.clock.Advance(2 * time.Hour)

	res, err := env.SweepEscalations(context.Background(), SweepOptions{Timeout: time.Hour, ActorID: "monitor"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Escalated != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSweepCollectsBadTimestampWithoutAborting(t *testing.T) {
	env := newTestEnv(t)
	dir := env.createDirective(t, DirectiveCreateOptions{})
	broken := env.createDecision(t, dir.Key, "Row with mangled timestamp", false)
	healthy := env.createDecision(t, dir.Key, "Row that still escalates", false)
	if _, err := env.DB.Exec(`UPDATE decisions SET created_at='not-a-time' WHERE id=?`, broken.ID); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(30 * time.Hour)

	res, err := env.SweepEscalations(context.Background(), SweepOptions{ActorID: "monitor"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Escalated != 1 {
		t.Fatalf("healthy decision not escalated: %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].DecisionID != broken.ID {
		t.Fatalf("errors = %+v, want one for %s", res.Errors, broken.ID)
	}
	if res.Errors[0].Error == "" {
		t.Fatal("error entry without a message")
	}
	if got, _ := env.Repo.GetDecision(context.Background(), healthy.ID); got.EscalationJSON == nil {
		t.Fatal("healthy decision not annotated")
	}
}

func TestSweepResultSerializesFailures(t *testing.T) {
	res := SweepResult{
		Checked:         2,
		SkippedBlocking: []string{"dec-blocking"},
		Errors:          []SweepError{{DecisionID: "dec-broken", Error: "parse created_at"}},
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		SkippedBlocking []string `json:"skipped_blocking"`
		Errors          []struct {
			DecisionID string `json:"decision_id"`
			Error      string `json:"error"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Errors) != 1 || decoded.Errors[0].DecisionID != "dec-broken" {
		t.Fatalf("errors lost in serialization: %s", data)
	}
	if len(decoded.SkippedBlocking) != 1 || decoded.SkippedBlocking[0] != "dec-blocking" {
		t.Fatalf("skipped ids lost in serialization: %s", data)
	}
}

func TestResolutionStillWorksAfterEscalation(t *testing.T) {
	env := newTestEnv(t)
	dir := env.createDirective(t, DirectiveCreateOptions{})
	dec := env.createDecision(t, dir.Key, "Sign off the rollout", false)
	env.clock.Advance(30 * time.Hour)

	if _, err := env.SweepEscalations(context.Background(), SweepOptions{ActorID: "monitor"}); err != nil {
		t.Fatal(err)
	}
	got, err := env.ResolveDecision(context.Background(), dec.ID, "rejected", "lead-1")
	if err != nil {
		t.Fatalf("resolve after escalation: %v", err)
	}
	if got.Status != "rejected" {
		t.Fatalf("status = %s", got.Status)
	}
}
