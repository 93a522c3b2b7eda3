package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"steward/internal/domain"
	"steward/internal/events"
	"steward/internal/phase"
)

// ChildProgress is one child's contribution to an orchestrator rollup.
type ChildProgress struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Phase       string `json:"phase"`
	Status      string `json:"status"`
	Percent     int    `json:"percent"`
	CanComplete bool   `json:"can_complete"`
}

// ProgressReport is the derived progress of a directive. For standalone and
// child directives it is the weighted sum over accepted handoffs; for
// orchestrators it is the rollup over children.
type ProgressReport struct {
	DirectiveKey string          `json:"directive_key"`
	Kind         string          `json:"kind"`
	Percent      int             `json:"percent"`
	Breakdown    map[string]int  `json:"breakdown,omitempty"`
	CanComplete  bool            `json:"can_complete"`
	MissingTypes []string        `json:"missing_handoffs,omitempty"`
	Children     []ChildProgress `json:"children,omitempty"`
}

// ComputeProgress derives a directive's progress from the database, never
// from the cached column.
func (e Engine) ComputeProgress(ctx context.Context, idOrKey string) (ProgressReport, error) {
	d, err := e.Repo.GetDirective(ctx, idOrKey)
	if err != nil {
		return ProgressReport{}, err
	}
	return e.computeProgress(ctx, nil, d)
}

// computeProgress folds accepted handoffs (or children, for orchestrators)
// into a report. With a non-nil tx it reads inside that transaction so the
// completion gate sees its own uncommitted handoff.
func (e Engine) computeProgress(ctx context.Context, tx *sql.Tx, d domain.Directive) (ProgressReport, error) {
	rep := ProgressReport{DirectiveKey: d.Key, Kind: d.Kind}
	if d.Kind == "orchestrator" {
		return e.rollupChildren(ctx, tx, d, rep)
	}

	accepted, err := e.acceptedTypes(ctx, tx, d.ID)
	if err != nil {
		return rep, err
	}
	rep.Breakdown = make(map[string]int, len(phase.Working()))
	for _, p := range phase.Working() {
		ht, err := phase.HandoffTypeFor(p)
		if err != nil {
			return rep, err
		}
		if accepted[ht] {
			w := e.Config.Weight(p)
			rep.Breakdown[p] = w
			rep.Percent += w
		} else {
			rep.Breakdown[p] = 0
			rep.MissingTypes = append(rep.MissingTypes, ht)
		}
	}
	rep.CanComplete = len(rep.MissingTypes) == 0 && rep.Percent == 100
	return rep, nil
}

func (e Engine) rollupChildren(ctx context.Context, tx *sql.Tx, d domain.Directive, rep ProgressReport) (ProgressReport, error) {
	var children []domain.Directive
	var err error
	if tx != nil {
		children, err = e.Repo.ListChildrenTx(ctx, tx, d.ID)
	} else {
		children, err = e.Repo.ListChildren(ctx, d.ID)
	}
	if err != nil {
		return rep, err
	}
	if len(children) == 0 {
		rep.CanComplete = false
		return rep, nil
	}
	complete := 0
	allDone := true
	for _, c := range children {
		cr, err := e.computeProgress(ctx, tx, c)
		if err != nil {
			return rep, err
		}
		if cr.Percent == 100 {
			complete++
		}
		if !cr.CanComplete {
			allDone = false
		}
		rep.Children = append(rep.Children, ChildProgress{
			Key: c.Key, Title: c.Title, Phase: c.Phase, Status: c.Status,
			Percent: cr.Percent, CanComplete: cr.CanComplete,
		})
	}
	// A child counts only when its own derived progress is 100; partial
	// children contribute nothing. Integer division keeps the rollup
	// conservative: one of three children complete reports 33.
	rep.Percent = complete * 100 / len(children)
	rep.CanComplete = allDone && rep.Percent == 100
	return rep, nil
}

func (e Engine) acceptedTypes(ctx context.Context, tx *sql.Tx, directiveID string) (map[string]bool, error) {
	if tx != nil {
		return e.Repo.AcceptedHandoffTypes(ctx, tx, directiveID)
	}
	return e.Repo.AcceptedHandoffTypesRead(ctx, directiveID)
}

// Mismatch kinds reported by Reconcile.
const (
	MismatchMarkedCompleteButIncomplete = "marked_complete_but_incomplete"
	MismatchCompleteButNotMarked        = "complete_but_not_marked"
	MismatchScoreDisagreement           = "score_disagreement"
)

// Mismatch is one stored-versus-derived disagreement found by Reconcile.
type Mismatch struct {
	Kind       string `json:"kind"`
	Stored     int    `json:"stored"`
	Derived    int    `json:"derived"`
	Critical   bool   `json:"critical"`
	Remediated bool   `json:"remediated"`
	Detail     string `json:"detail,omitempty"`
}

// ReconcileReport is the outcome of auditing one directive.
type ReconcileReport struct {
	DirectiveKey string         `json:"directive_key"`
	Progress     ProgressReport `json:"progress"`
	Mismatches   []Mismatch     `json:"mismatches,omitempty"`
	Clean        bool           `json:"clean"`
}

// Reconcile audits a directive's cached progress and status against the
// derived values. With remediate it refreshes a stale cached score; it never
// changes a directive's status in either direction. Every mismatch is
// recorded as a progress.mismatch event.
func (e Engine) Reconcile(ctx context.Context, idOrKey string, remediate bool, actorID string) (ReconcileReport, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ReconcileReport{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDirectiveTx(ctx, tx, idOrKey)
	if err != nil {
		return ReconcileReport{}, err
	}
	rep, err := e.computeProgress(ctx, tx, d)
	if err != nil {
		return ReconcileReport{}, err
	}
	out := ReconcileReport{DirectiveKey: d.Key, Progress: rep}

	if d.Status == "completed" && !rep.CanComplete {
		out.Mismatches = append(out.Mismatches, Mismatch{
			Kind: MismatchMarkedCompleteButIncomplete, Stored: d.Progress, Derived: rep.Percent,
			Critical: true,
			Detail:   fmt.Sprintf("status is completed but derived progress is %d%%", rep.Percent),
		})
	}
	if d.Status != "completed" && d.Status != "abandoned" && rep.CanComplete {
		out.Mismatches = append(out.Mismatches, Mismatch{
			Kind: MismatchCompleteButNotMarked, Stored: d.Progress, Derived: rep.Percent,
			Detail: "all handoffs accepted but directive is not marked completed",
		})
	}
	if d.Progress != rep.Percent {
		m := Mismatch{Kind: MismatchScoreDisagreement, Stored: d.Progress, Derived: rep.Percent}
		if remediate {
			d.Progress = rep.Percent
			d.UpdatedAt = e.now().UTC().Format(time.RFC3339)
			if err := e.Repo.UpdateDirective(ctx, tx, d); err != nil {
				return out, err
			}
			m.Remediated = true
		}
		out.Mismatches = append(out.Mismatches, m)
	}
	out.Clean = len(out.Mismatches) == 0

	for _, m := range out.Mismatches {
		if err := e.Events.Append(ctx, tx, "progress.mismatch", "directive", d.Key, actorID, events.EventPayload{
			"kind": m.Kind, "stored": m.Stored, "derived": m.Derived,
			"critical": m.Critical, "remediated": m.Remediated,
		}); err != nil {
			return out, err
		}
	}
	if err := tx.Commit(); err != nil {
		return out, err
	}
	return out, nil
}

// OverrideComplete force-completes a directive past the progress gate. The
// justification is mandatory and lands in the audit log.
func (e Engine) OverrideComplete(ctx context.Context, idOrKey, justification, actorID string) (domain.Directive, error) {
	if justification == "" {
		return domain.Directive{}, errors.New("override requires a justification")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Directive{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDirectiveTx(ctx, tx, idOrKey)
	if err != nil {
		return d, err
	}
	if phase.Terminal(d.Phase) {
		return d, fmt.Errorf("directive %s is already %s", d.Key, d.Status)
	}
	rep, err := e.computeProgress(ctx, tx, d)
	if err != nil {
		return d, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	d.Phase = phase.Completed
	d.Status = "completed"
	d.Progress = rep.Percent
	d.UpdatedAt = now
	d.CompletedAt = &now
	if err := e.Repo.UpdateDirective(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "progress.override", "directive", d.Key, actorID, events.EventPayload{
		"justification": justification, "derived_progress": rep.Percent,
	}); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "directive.completed", "directive", d.Key, actorID, events.EventPayload{
		"override": true,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}
