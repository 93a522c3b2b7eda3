package repo

import (
	"context"
	"database/sql"

	"steward/internal/domain"
)

const workTaskColumns = `id,directive_id,kind,status,priority,payload_json,result_json,error,created_at,started_at,finished_at`

func scanWorkTask(row rowScanner) (domain.WorkTask, error) {
	var t domain.WorkTask
	var payload, result, errMsg, startedAt, finishedAt sql.NullString
	err := row.Scan(&t.ID, &t.DirectiveID, &t.Kind, &t.Status, &t.Priority,
		&payload, &result, &errMsg, &t.CreatedAt, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if payload.Valid {
		t.PayloadJSON = &payload.String
	}
	if result.Valid {
		t.ResultJSON = &result.String
	}
	if errMsg.Valid {
		t.Error = errMsg.String
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.String
	}
	if finishedAt.Valid {
		t.FinishedAt = &finishedAt.String
	}
	return t, nil
}

func (r Repo) InsertWorkTask(ctx context.Context, tx *sql.Tx, t domain.WorkTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_tasks(id,directive_id,kind,status,priority,payload_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.DirectiveID, t.Kind, t.Status, t.Priority, nullableStringPtr(t.PayloadJSON), t.CreatedAt)
	return err
}

func (r Repo) GetWorkTask(ctx context.Context, id string) (domain.WorkTask, error) {
	return scanWorkTask(r.DB.QueryRowContext(ctx, `SELECT `+workTaskColumns+` FROM work_tasks WHERE id=?`, id))
}

func (r Repo) ListWorkTasks(ctx context.Context, status string, limit int) ([]domain.WorkTask, error) {
	query := `SELECT ` + workTaskColumns + ` FROM work_tasks WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkTask
	for rows.Next() {
		t, err := scanWorkTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ClaimNextWorkTask atomically picks the highest-priority, oldest pending
// task and marks it in_progress. Returns ErrNotFound when the queue is empty.
func (r Repo) ClaimNextWorkTask(ctx context.Context, startedAt string) (domain.WorkTask, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkTask{}, err
	}
	defer tx.Rollback()
	t, err := scanWorkTask(tx.QueryRowContext(ctx,
		`SELECT `+workTaskColumns+` FROM work_tasks WHERE status='pending' ORDER BY priority DESC, created_at ASC, id ASC LIMIT 1`))
	if err != nil {
		return t, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE work_tasks SET status='in_progress', started_at=? WHERE id=? AND status='pending'`,
		startedAt, t.ID); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.Status = "in_progress"
	t.StartedAt = &startedAt
	return t, nil
}

// FinishWorkTask records the terminal state of an in-progress task in one
// statement so cancellation cannot leave it half updated.
func (r Repo) FinishWorkTask(ctx context.Context, id, status, resultJSON, errMsg, finishedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE work_tasks SET status=?, result_json=?, error=?, finished_at=? WHERE id=? AND status='in_progress'`,
		status, nullable(resultJSON), nullable(errMsg), finishedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RequeueWorkTask resets a failed task to pending. Failed tasks never retry
// unless explicitly re-queued through this path.
func (r Repo) RequeueWorkTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_tasks SET status='pending', error=NULL, started_at=NULL, finished_at=NULL WHERE id=? AND status='failed'`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
