package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"steward/internal/domain"
	"steward/internal/events"
)

// SweepOptions tune one escalation pass. A zero Timeout falls back to the
// configured escalation.timeout_hours.
type SweepOptions struct {
	Timeout time.Duration
	DryRun  bool
	ActorID string
}

// EscalatedDecision is one decision annotated during a sweep.
type EscalatedDecision struct {
	DecisionID string  `json:"decision_id"`
	AgeHours   float64 `json:"age_hours"`
	Urgency    string  `json:"urgency"`
}

// SweepError is one per-decision failure collected during a sweep, in a
// form callers can serialize.
type SweepError struct {
	DecisionID string `json:"decision_id"`
	Error      string `json:"error"`
}

// SweepResult summarizes one escalation pass. Errors holds per-decision
// failures; a failing decision never aborts the rest of the batch.
type SweepResult struct {
	Checked          int                 `json:"checked"`
	Escalated        int                 `json:"escalated"`
	AlreadyEscalated int                 `json:"already_escalated"`
	SkippedBlocking  []string            `json:"skipped_blocking,omitempty"`
	DryRun           bool                `json:"dry_run"`
	Decisions        []EscalatedDecision `json:"decisions,omitempty"`
	Errors           []SweepError        `json:"errors,omitempty"`
}

func (r *SweepResult) fail(err DecisionProcessingError) {
	r.Errors = append(r.Errors, SweepError{DecisionID: err.DecisionID, Error: err.Err.Error()})
}

// SweepEscalations annotates pending decisions that have aged past the
// timeout. It attaches escalation metadata and raises the urgent-review flag
// but never resolves anything: approval and rejection stay with the
// authority actor. Blocking decisions are exempt; they already halt their
// directive and need no flag.
func (e Engine) SweepEscalations(ctx context.Context, opts SweepOptions) (SweepResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(e.Config.Escalation.TimeoutHours) * time.Hour
	}
	now := e.now().UTC()
	res := SweepResult{DryRun: opts.DryRun}

	blocking, err := e.Repo.PendingBlockingDecisions(ctx)
	if err != nil {
		return res, err
	}
	for _, d := range blocking {
		a, err := age(now, d.CreatedAt)
		if err != nil {
			res.fail(DecisionProcessingError{DecisionID: d.ID, Err: err})
			continue
		}
		if a >= timeout {
			res.SkippedBlocking = append(res.SkippedBlocking, d.ID)
		}
	}

	pending, err := e.Repo.PendingNonBlockingDecisions(ctx)
	if err != nil {
		return res, err
	}
	for _, d := range pending {
		res.Checked++
		a, err := age(now, d.CreatedAt)
		if err != nil {
			res.fail(DecisionProcessingError{DecisionID: d.ID, Err: err})
			continue
		}
		if a < timeout {
			continue
		}
		if d.EscalationJSON != nil {
			res.AlreadyEscalated++
			continue
		}
		esc := domain.Escalation{
			Strategy:    e.Config.Escalation.Strategy,
			EscalatedAt: now.Format(time.RFC3339),
			AgeHours:    a.Hours(),
			Urgency:     urgencyFor(a, timeout),
		}
		res.Decisions = append(res.Decisions, EscalatedDecision{
			DecisionID: d.ID, AgeHours: esc.AgeHours, Urgency: esc.Urgency,
		})
		if opts.DryRun {
			res.Escalated++
			continue
		}
		if err := e.annotate(ctx, d, esc, opts.ActorID); err != nil {
			res.fail(DecisionProcessingError{DecisionID: d.ID, Err: err})
			continue
		}
		res.Escalated++
	}
	return res, nil
}

// annotate writes the escalation metadata and its event in one small
// transaction per decision, so one bad row cannot poison the batch.
func (e Engine) annotate(ctx context.Context, d domain.Decision, esc domain.Escalation, actorID string) error {
	data, err := json.Marshal(esc)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AnnotateDecisionEscalation(ctx, tx, d.ID, string(data)); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "decision.escalated", "decision", d.ID, actorID, events.EventPayload{
		"strategy": esc.Strategy, "age_hours": esc.AgeHours, "urgency": esc.Urgency,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func age(now time.Time, createdAt string) (time.Duration, error) {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return 0, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return now.Sub(t), nil
}

func urgencyFor(a, timeout time.Duration) string {
	if a >= 2*timeout {
		return "critical"
	}
	return "high"
}
