package repo

import (
	"context"
	"database/sql"

	"steward/internal/domain"
)

const decisionColumns = `id,directive_id,title,description,status,blocking,requires_urgent_review,escalation_json,decider_id,created_at,resolved_at`

func scanDecision(row rowScanner) (domain.Decision, error) {
	var d domain.Decision
	var description, escalation, deciderID, resolvedAt sql.NullString
	var blocking, urgent int
	err := row.Scan(&d.ID, &d.DirectiveID, &d.Title, &description, &d.Status, &blocking, &urgent,
		&escalation, &deciderID, &d.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Blocking = blocking != 0
	d.RequiresUrgentReview = urgent != 0
	if description.Valid {
		d.Description = description.String
	}
	if escalation.Valid {
		d.EscalationJSON = &escalation.String
	}
	if deciderID.Valid {
		d.DeciderID = &deciderID.String
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.String
	}
	return d, nil
}

func (r Repo) InsertDecision(ctx context.Context, tx *sql.Tx, d domain.Decision) error {
	blocking := 0
	if d.Blocking {
		blocking = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO decisions(id,directive_id,title,description,status,blocking,created_at) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.DirectiveID, d.Title, nullable(d.Description), d.Status, blocking, d.CreatedAt)
	return err
}

func (r Repo) GetDecision(ctx context.Context, id string) (domain.Decision, error) {
	return scanDecision(r.DB.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE id=?`, id))
}

type DecisionFilters struct {
	DirectiveID string
	Status      string
	Limit       int
}

func (r Repo) ListDecisions(ctx context.Context, f DecisionFilters) ([]domain.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE 1=1`
	var args []any
	if f.DirectiveID != "" {
		query += ` AND directive_id=?`
		args = append(args, f.DirectiveID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// PendingNonBlockingDecisions returns sweep candidates. Blocking decisions
// are excluded in the query itself so the escalation path never sees them.
func (r Repo) PendingNonBlockingDecisions(ctx context.Context) ([]domain.Decision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE status='pending' AND blocking=0 ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// PendingBlockingDecisions returns the decisions exempt from sweeps.
func (r Repo) PendingBlockingDecisions(ctx context.Context) ([]domain.Decision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE status='pending' AND blocking=1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// AnnotateDecisionEscalation writes escalation metadata only. It deliberately
// has no way to touch the status column.
func (r Repo) AnnotateDecisionEscalation(ctx context.Context, tx *sql.Tx, id, escalationJSON string) error {
	res, err := tx.ExecContext(ctx, `UPDATE decisions SET escalation_json=?, requires_urgent_review=1 WHERE id=? AND status='pending'`,
		escalationJSON, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveDecision records the authority's verdict. The only legal transitions
// are pending -> approved and pending -> rejected.
func (r Repo) ResolveDecision(ctx context.Context, tx *sql.Tx, id, status, deciderID, resolvedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE decisions SET status=?, decider_id=?, resolved_at=? WHERE id=? AND status='pending'`,
		status, deciderID, resolvedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
