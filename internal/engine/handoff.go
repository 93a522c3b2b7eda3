package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"steward/internal/domain"
	"steward/internal/events"
	"steward/internal/phase"
)

// HandoffSubmitOptions are parameters for submitting a phase handoff.
type HandoffSubmitOptions struct {
	DirectiveID string
	Type        string
	Content     domain.HandoffContent
	// Force accepts the handoff despite failed content validation. The
	// phase-order and duplicate checks still apply.
	Force   bool
	ActorID string
}

// SubmitHandoff validates and records a handoff, advancing the directive's
// phase on acceptance. Rejected handoffs are persisted too so the audit
// trail shows every attempt.
func (e Engine) SubmitHandoff(ctx context.Context, opts HandoffSubmitOptions) (domain.Handoff, error) {
	if !phase.KnownHandoffType(opts.Type) {
		return domain.Handoff{}, HandoffIntegrityViolation{HandoffType: opts.Type, Reason: "unknown handoff type"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Handoff{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDirectiveTx(ctx, tx, opts.DirectiveID)
	if err != nil {
		return domain.Handoff{}, err
	}
	if phase.Terminal(d.Phase) {
		return domain.Handoff{}, HandoffIntegrityViolation{
			DirectiveKey: d.Key, HandoffType: opts.Type,
			Reason: fmt.Sprintf("directive is %s", d.Status),
		}
	}

	now := e.now().UTC().Format(time.RFC3339)
	expected, err := phase.HandoffTypeFor(d.Phase)
	if err != nil {
		return domain.Handoff{}, err
	}
	toPhase, err := phase.Next(d.Phase)
	if err != nil {
		return domain.Handoff{}, err
	}

	h := domain.Handoff{
		ID:          uuid.New().String(),
		DirectiveID: d.ID,
		Type:        opts.Type,
		FromPhase:   d.Phase,
		ToPhase:     toPhase,
		Content:     opts.Content,
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		ResolvedAt:  &now,
	}

	if opts.Type != expected {
		h.Status = "rejected"
		h.Reasons = []string{fmt.Sprintf("expected %s from phase %s", expected, d.Phase)}
		if err := e.recordRejection(ctx, tx, d, h); err != nil {
			return h, err
		}
		if err := tx.Commit(); err != nil {
			return h, err
		}
		return h, PhaseOrderViolation{
			DirectiveKey: d.Key, CurrentPhase: d.Phase,
			Submitted: opts.Type, Expected: expected,
		}
	}

	accepted, err := e.Repo.AcceptedHandoffTypes(ctx, tx, d.ID)
	if err != nil {
		return h, err
	}
	if accepted[opts.Type] {
		h.Status = "rejected"
		h.Reasons = []string{"handoff type already accepted for this directive"}
		if err := e.recordRejection(ctx, tx, d, h); err != nil {
			return h, err
		}
		if err := tx.Commit(); err != nil {
			return h, err
		}
		return h, HandoffIntegrityViolation{
			DirectiveKey: d.Key, HandoffType: opts.Type,
			Reason: "already accepted for this directive",
		}
	}

	vr := e.ValidateContent(opts.Content)
	h.ValidationScore = vr.Score
	h.ValidationPassed = vr.Passed
	h.Reasons = vr.Reasons
	if !vr.Passed && !opts.Force {
		h.Status = "rejected"
		if err := e.recordRejection(ctx, tx, d, h); err != nil {
			return h, err
		}
		if err := tx.Commit(); err != nil {
			return h, err
		}
		return h, ContentValidationFailure{
			DirectiveKey: d.Key, HandoffType: opts.Type,
			Score: vr.Score, Reasons: vr.Reasons,
		}
	}

	h.Status = "accepted"
	if err := e.Repo.InsertHandoff(ctx, tx, h); err != nil {
		// Partial unique index on (directive_id, handoff_type) for accepted
		// rows makes the loser of a concurrent duplicate fail here.
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return h, HandoffIntegrityViolation{
				DirectiveKey: d.Key, HandoffType: opts.Type,
				Reason: "concurrent submission already accepted",
			}
		}
		return h, fmt.Errorf("insert handoff: %w", err)
	}

	if d.Status == "draft" {
		d.Status = "active"
	}
	d.Phase = toPhase
	d.UpdatedAt = now

	rep, err := e.computeProgress(ctx, tx, d)
	if err != nil {
		return h, err
	}
	if toPhase == phase.Completed {
		if !rep.CanComplete {
			return h, ProgressMismatchError{
				DirectiveKey: d.Key, Percent: rep.Percent,
				MissingTypes:       rep.MissingTypes,
				IncompleteChildren: incompleteChildKeys(rep.Children),
			}
		}
		d.Status = "completed"
		d.CompletedAt = &now
	}
	d.Progress = rep.Percent
	if err := e.Repo.UpdateDirective(ctx, tx, d); err != nil {
		return h, err
	}
	if d.ParentID != nil {
		if err := e.refreshParentProgress(ctx, tx, *d.ParentID, now); err != nil {
			return h, err
		}
	}

	evtType := "handoff.accepted"
	payload := events.EventPayload{
		"directive": d.Key, "handoff_type": h.Type,
		"score": vr.Score, "from_phase": h.FromPhase, "to_phase": h.ToPhase,
	}
	if !vr.Passed {
		evtType = "handoff.accepted.override"
		payload["reasons"] = vr.Reasons
	}
	if err := e.Events.Append(ctx, tx, evtType, "handoff", h.ID, opts.ActorID, payload); err != nil {
		return h, err
	}
	if err := e.Events.Append(ctx, tx, "directive.phase.advanced", "directive", d.Key, opts.ActorID, events.EventPayload{
		"from": h.FromPhase, "to": h.ToPhase, "progress": d.Progress,
	}); err != nil {
		return h, err
	}
	if d.Status == "completed" {
		if err := e.Events.Append(ctx, tx, "directive.completed", "directive", d.Key, opts.ActorID, nil); err != nil {
			return h, err
		}
	}
	if err := tx.Commit(); err != nil {
		return h, err
	}
	return h, nil
}

func (e Engine) recordRejection(ctx context.Context, tx *sql.Tx, d domain.Directive, h domain.Handoff) error {
	if err := e.Repo.InsertHandoff(ctx, tx, h); err != nil {
		return fmt.Errorf("record rejected handoff: %w", err)
	}
	return e.Events.Append(ctx, tx, "handoff.rejected", "handoff", h.ID, h.CreatedBy, events.EventPayload{
		"directive": d.Key, "handoff_type": h.Type, "reasons": h.Reasons,
	})
}

func (e Engine) refreshParentProgress(ctx context.Context, tx *sql.Tx, parentID, now string) error {
	parent, err := e.Repo.GetDirectiveTx(ctx, tx, parentID)
	if err != nil {
		return fmt.Errorf("parent: %w", err)
	}
	rep, err := e.computeProgress(ctx, tx, parent)
	if err != nil {
		return err
	}
	if parent.Progress == rep.Percent {
		return nil
	}
	parent.Progress = rep.Percent
	parent.UpdatedAt = now
	return e.Repo.UpdateDirective(ctx, tx, parent)
}

func incompleteChildKeys(children []ChildProgress) []string {
	var keys []string
	for _, c := range children {
		if !c.CanComplete {
			keys = append(keys, c.Key)
		}
	}
	return keys
}
