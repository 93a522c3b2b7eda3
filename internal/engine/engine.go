package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"steward/internal/config"
	"steward/internal/domain"
	"steward/internal/events"
	"steward/internal/phase"
	"steward/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// DirectiveCreateOptions are parameters for creating a directive.
type DirectiveCreateOptions struct {
	Key         string
	Title       string
	Description string
	Kind        string
	ParentID    string
	Priority    *int
	Category    string
	ActorID     string
}

func (e Engine) CreateDirective(ctx context.Context, opts DirectiveCreateOptions) (domain.Directive, error) {
	if e.Config == nil {
		return domain.Directive{}, errors.New("config not loaded")
	}
	if opts.Title == "" {
		return domain.Directive{}, errors.New("title is required")
	}
	if opts.Kind == "" {
		opts.Kind = "standalone"
	}
	switch opts.Kind {
	case "standalone", "orchestrator":
		if opts.ParentID != "" {
			return domain.Directive{}, fmt.Errorf("%s directive cannot have a parent", opts.Kind)
		}
	case "child":
		if opts.ParentID == "" {
			return domain.Directive{}, errors.New("child directive requires a parent")
		}
	default:
		return domain.Directive{}, fmt.Errorf("unknown directive kind %s", opts.Kind)
	}

	var parent domain.Directive
	if opts.ParentID != "" {
		var err error
		parent, err = e.Repo.GetDirective(ctx, opts.ParentID)
		if err != nil {
			return domain.Directive{}, fmt.Errorf("parent: %w", err)
		}
		// The tree is two levels deep by policy: only an orchestrator may
		// parent, and an orchestrator can never itself be a child.
		if parent.Kind != "orchestrator" {
			return domain.Directive{}, fmt.Errorf("parent %s is %s; only orchestrators may have children", parent.Key, parent.Kind)
		}
		if phase.Terminal(parent.Phase) {
			return domain.Directive{}, fmt.Errorf("parent %s is %s; cannot add children", parent.Key, parent.Status)
		}
	}

	key := opts.Key
	if key == "" {
		var err error
		key, err = e.Repo.NextDirectiveKey(ctx, e.Config.Governance.KeyPrefix)
		if err != nil {
			return domain.Directive{}, err
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	d := domain.Directive{
		ID:          uuid.New().String(),
		Key:         key,
		Title:       opts.Title,
		Description: opts.Description,
		Kind:        opts.Kind,
		Phase:       phase.LeadApproval,
		Status:      "draft",
		Progress:    0,
		Priority:    opts.Priority,
		Category:    opts.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.ParentID != "" {
		d.ParentID = &parent.ID
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Directive{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertDirective(ctx, tx, d); err != nil {
		return domain.Directive{}, fmt.Errorf("insert directive: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "directive.created", "directive", d.Key, opts.ActorID, events.EventPayload{
		"kind": d.Kind, "phase": d.Phase, "status": d.Status,
	}); err != nil {
		return domain.Directive{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Directive{}, err
	}
	return d, nil
}

// AbandonDirective sets the terminal abandoned state. Legal from any
// non-terminal phase; no further transitions afterwards.
func (e Engine) AbandonDirective(ctx context.Context, idOrKey, reason, actorID string) (domain.Directive, error) {
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
	d.Phase = phase.Abandoned
	d.Status = "abandoned"
	d.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateDirective(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "directive.abandoned", "directive", d.Key, actorID, events.EventPayload{
		"reason": reason,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

// DecisionCreateOptions are parameters for raising an authority decision.
type DecisionCreateOptions struct {
	DirectiveID string
	Title       string
	Description string
	Blocking    bool
	ActorID     string
}

func (e Engine) CreateDecision(ctx context.Context, opts DecisionCreateOptions) (domain.Decision, error) {
	if opts.Title == "" {
		return domain.Decision{}, errors.New("title is required")
	}
	dir, err := e.Repo.GetDirective(ctx, opts.DirectiveID)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("directive: %w", err)
	}
	d := domain.Decision{
		ID:          uuid.New().String(),
		DirectiveID: dir.ID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      "pending",
		Blocking:    opts.Blocking,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDecision(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "decision.created", "decision", d.ID, opts.ActorID, events.EventPayload{
		"directive": dir.Key, "title": d.Title, "blocking": d.Blocking,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

// ResolveDecision records the authority actor's verdict. This is the only
// path that changes a decision's status.
func (e Engine) ResolveDecision(ctx context.Context, id, verdict, actorID string) (domain.Decision, error) {
	if verdict != "approved" && verdict != "rejected" {
		return domain.Decision{}, fmt.Errorf("verdict must be approved or rejected, got %s", verdict)
	}
	d, err := e.Repo.GetDecision(ctx, id)
	if err != nil {
		return d, err
	}
	if d.Status != "pending" {
		return d, fmt.Errorf("decision %s is already %s", d.ID, d.Status)
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.ResolveDecision(ctx, tx, id, verdict, actorID, now); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "decision.resolved", "decision", id, actorID, events.EventPayload{
		"verdict": verdict,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	d.Status = verdict
	d.DeciderID = &actorID
	d.ResolvedAt = &now
	return d, nil
}

// EnqueueWorkTask adds a verification/analysis task to the work queue.
func (e Engine) EnqueueWorkTask(ctx context.Context, directiveIDOrKey, kind string, priority int, payloadJSON, actorID string) (domain.WorkTask, error) {
	dir, err := e.Repo.GetDirective(ctx, directiveIDOrKey)
	if err != nil {
		return domain.WorkTask{}, fmt.Errorf("directive: %w", err)
	}
	t := domain.WorkTask{
		ID:          uuid.New().String(),
		DirectiveID: dir.ID,
		Kind:        kind,
		Status:      "pending",
		Priority:    priority,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if payloadJSON != "" {
		t.PayloadJSON = &payloadJSON
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.enqueued", "work_task", t.ID, actorID, events.EventPayload{
		"directive": dir.Key, "kind": kind, "priority": priority,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// RequeueWorkTask moves a failed task back to pending. This is the only
// retry path; the dispatcher never retries on its own.
func (e Engine) RequeueWorkTask(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RequeueWorkTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.requeued", "work_task", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
