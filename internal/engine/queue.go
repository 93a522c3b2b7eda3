package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"steward/internal/domain"
	"steward/internal/repo"
)

// TaskHandler executes one work-queue task and returns a JSON result.
type TaskHandler func(ctx context.Context, e Engine, t domain.WorkTask) (string, error)

// Dispatcher polls the work queue and runs registered handlers. Tasks claim
// in priority order, FIFO within a priority. A failed task stays failed
// until someone requeues it; there is no automatic retry.
type Dispatcher struct {
	Engine       Engine
	Handlers     map[string]TaskHandler
	PollInterval time.Duration
	Logger       *log.Logger
}

func NewDispatcher(e Engine) *Dispatcher {
	interval := time.Duration(e.Config.Queue.PollIntervalSeconds) * time.Second
	return &Dispatcher{
		Engine:       e,
		PollInterval: interval,
		Handlers: map[string]TaskHandler{
			"progress.recompute": handleProgressRecompute,
			"drift.audit":        handleDriftAudit,
		},
	}
}

// Register adds a handler for a task kind, replacing any existing one.
func (d *Dispatcher) Register(kind string, h TaskHandler) {
	d.Handlers[kind] = h
}

// Run polls until ctx is cancelled. Between polls it drains the queue one
// task at a time so a long backlog does not wait a full interval per task.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()
	for {
		for {
			ran, err := d.RunOnce(ctx)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				d.logf("queue: %v", err)
			}
			if !ran {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce claims and executes at most one pending task. It reports whether a
// task was claimed.
func (d *Dispatcher) RunOnce(ctx context.Context) (bool, error) {
	now := d.Engine.now().UTC().Format(time.RFC3339)
	t, err := d.Engine.Repo.ClaimNextWorkTask(ctx, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	result, runErr := d.execute(ctx, t)
	finished := d.Engine.now().UTC().Format(time.RFC3339)
	if runErr != nil {
		terr := TaskExecutionError{TaskID: t.ID, Kind: t.Kind, Err: runErr}
		if err := d.Engine.Repo.FinishWorkTask(ctx, t.ID, "failed", "", runErr.Error(), finished); err != nil {
			return true, err
		}
		d.logf("%v", terr)
		return true, nil
	}
	if err := d.Engine.Repo.FinishWorkTask(ctx, t.ID, "completed", result, "", finished); err != nil {
		return true, err
	}
	return true, nil
}

// execute runs the handler with panic containment: a panicking handler fails
// its task, not the dispatcher.
func (d *Dispatcher) execute(ctx context.Context, t domain.WorkTask) (result string, err error) {
	h, ok := d.Handlers[t.Kind]
	if !ok {
		return "", fmt.Errorf("no handler for task kind %s", t.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, d.Engine, t)
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// handleProgressRecompute refreshes a directive's cached progress from the
// derived value.
func handleProgressRecompute(ctx context.Context, e Engine, t domain.WorkTask) (string, error) {
	rep, err := e.Reconcile(ctx, t.DirectiveID, true, "queue")
	if err != nil {
		return "", err
	}
	return marshalResult(rep)
}

// handleDriftAudit reports mismatches without touching stored state.
func handleDriftAudit(ctx context.Context, e Engine, t domain.WorkTask) (string, error) {
	rep, err := e.Reconcile(ctx, t.DirectiveID, false, "queue")
	if err != nil {
		return "", err
	}
	return marshalResult(rep)
}

func marshalResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
