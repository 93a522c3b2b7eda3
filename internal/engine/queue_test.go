package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"steward/internal/domain"
	"steward/internal/phase"
	"steward/internal/repo"
)

func TestDispatcherRunsRecomputeTask(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})
	env.submit(t, d.Key, phase.HandoffLeadToPlan)
	if _, err := env.DB.Exec(`UPDATE directives SET progress=99 WHERE id=?`, d.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.EnqueueWorkTask(context.Background(), d.Key, "progress.recompute", 0, "", "ops"); err != nil {
		t.Fatal(err)
	}

	disp := NewDispatcher(env.Engine)
	ran, err := disp.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("no task claimed")
	}

	got, _ := env.Repo.GetDirective(context.Background(), d.Key)
	if got.Progress != 20 {
		t.Fatalf("progress = %d, want 20 after recompute", got.Progress)
	}
	tasks, err := env.Repo.ListWorkTasks(context.Background(), "completed", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ResultJSON == nil {
		t.Fatalf("tasks = %+v", tasks)
	}
	var rep ReconcileReport
	if err := json.Unmarshal([]byte(*tasks[0].ResultJSON), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.DirectiveKey != d.Key {
		t.Fatalf("result = %+v", rep)
	}
}

func TestDispatcherPriorityThenFIFO(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})

	var order []string
	for _, spec := range []struct {
		name     string
		priority int
	}{
		{"low-first", 1},
		{"low-second", 1},
		{"high", 5},
	} {
		task, err := env.EnqueueWorkTask(context.Background(), d.Key, "record", spec.priority, `{"name":"`+spec.name+`"}`, "ops")
		if err != nil {
			t.Fatal(err)
		}
		_ = task
		env.clock.Advance(time.Second) // distinct created_at per task
	}

	disp := NewDispatcher(env.Engine)
	disp.Register("record", func(ctx context.Context, e Engine, t domain.WorkTask) (string, error) {
		var p struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal([]byte(*t.PayloadJSON), &p); err != nil {
			return "", err
		}
		order = append(order, p.Name)
		return "{}", nil
	})
	for {
		ran, err := disp.RunOnce(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !ran {
			break
		}
	}
	want := []string{"high", "low-first", "low-second"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDispatcherFailedTaskStaysFailed(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})
	task, err := env.EnqueueWorkTask(context.Background(), d.Key, "flaky", 0, "", "ops")
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	disp := NewDispatcher(env.Engine)
	disp.Register("flaky", func(ctx context.Context, e Engine, t domain.WorkTask) (string, error) {
		calls++
		return "", errors.New("downstream unavailable")
	})

	if ran, err := disp.RunOnce(context.Background()); err != nil || !ran {
		t.Fatalf("first run: ran=%v err=%v", ran, err)
	}
	// No retry: the queue is empty until someone requeues.
	if ran, err := disp.RunOnce(context.Background()); err != nil || ran {
		t.Fatalf("second run: ran=%v err=%v", ran, err)
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	got, _ := env.Repo.GetWorkTask(context.Background(), task.ID)
	if got.Status != "failed" || got.Error == "" {
		t.Fatalf("task = %+v", got)
	}

	if err := env.RequeueWorkTask(context.Background(), task.ID, "ops"); err != nil {
		t.Fatal(err)
	}
	if ran, err := disp.RunOnce(context.Background()); err != nil || !ran {
		t.Fatalf("after requeue: ran=%v err=%v", ran, err)
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
}

func TestDispatcherContainsHandlerPanic(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})
	task, err := env.EnqueueWorkTask(context.Background(), d.Key, "explosive", 0, "", "ops")
	if err != nil {
		t.Fatal(err)
	}
	disp := NewDispatcher(env.Engine)
	disp.Register("explosive", func(ctx context.Context, e Engine, t domain.WorkTask) (string, error) {
		panic("boom")
	})
	if ran, err := disp.RunOnce(context.Background()); err != nil || !ran {
		t.Fatalf("ran=%v err=%v", ran, err)
	}
	got, _ := env.Repo.GetWorkTask(context.Background(), task.ID)
	if got.Status != "failed" {
		t.Fatalf("task = %+v", got)
	}
}

func TestDispatcherUnknownKindFails(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})
	task, err := env.EnqueueWorkTask(context.Background(), d.Key, "no.such.kind", 0, "", "ops")
	if err != nil {
		t.Fatal(err)
	}
	disp := NewDispatcher(env.Engine)
	if ran, err := disp.RunOnce(context.Background()); err != nil || !ran {
		t.Fatalf("ran=%v err=%v", ran, err)
	}
	got, _ := env.Repo.GetWorkTask(context.Background(), task.ID)
	if got.Status != "failed" {
		t.Fatalf("task = %+v", got)
	}
}

func TestRequeueOnlyFailedTasks(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDirective(t, DirectiveCreateOptions{})
	task, err := env.EnqueueWorkTask(context.Background(), d.Key, "drift.audit", 0, "", "ops")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.RequeueWorkTask(context.Background(), task.ID, "ops"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("requeue pending task err = %v", err)
	}
}
