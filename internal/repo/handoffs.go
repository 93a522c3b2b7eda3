package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"steward/internal/domain"
)

const handoffColumns = `id,directive_id,handoff_type,from_phase,to_phase,status,
executive_summary,deliverables_manifest,key_decisions,known_issues,
resource_utilization,action_items,completeness_report,
validation_score,validation_passed,reasons_json,created_by,created_at,resolved_at`

func scanHandoff(row rowScanner) (domain.Handoff, error) {
	var h domain.Handoff
	var reasons, resolvedAt sql.NullString
	var passed int
	err := row.Scan(&h.ID, &h.DirectiveID, &h.Type, &h.FromPhase, &h.ToPhase, &h.Status,
		&h.Content.ExecutiveSummary, &h.Content.DeliverablesManifest, &h.Content.KeyDecisions,
		&h.Content.KnownIssues, &h.Content.ResourceUtilization, &h.Content.ActionItems,
		&h.Content.CompletenessReport,
		&h.ValidationScore, &passed, &reasons, &h.CreatedBy, &h.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	if err != nil {
		return h, err
	}
	h.ValidationPassed = passed != 0
	if reasons.Valid && reasons.String != "" {
		_ = json.Unmarshal([]byte(reasons.String), &h.Reasons)
	}
	if resolvedAt.Valid {
		h.ResolvedAt = &resolvedAt.String
	}
	return h, nil
}

func (r Repo) InsertHandoff(ctx context.Context, tx *sql.Tx, h domain.Handoff) error {
	var reasons any
	if len(h.Reasons) > 0 {
		b, err := json.Marshal(h.Reasons)
		if err != nil {
			return err
		}
		reasons = string(b)
	}
	passed := 0
	if h.ValidationPassed {
		passed = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO handoffs(`+handoffColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		h.ID, h.DirectiveID, h.Type, h.FromPhase, h.ToPhase, h.Status,
		h.Content.ExecutiveSummary, h.Content.DeliverablesManifest, h.Content.KeyDecisions,
		h.Content.KnownIssues, h.Content.ResourceUtilization, h.Content.ActionItems,
		h.Content.CompletenessReport,
		h.ValidationScore, passed, reasons, h.CreatedBy, h.CreatedAt, nullableStringPtr(h.ResolvedAt))
	return err
}

func (r Repo) GetHandoff(ctx context.Context, id string) (domain.Handoff, error) {
	return scanHandoff(r.DB.QueryRowContext(ctx, `SELECT `+handoffColumns+` FROM handoffs WHERE id=?`, id))
}

func (r Repo) ListHandoffs(ctx context.Context, directiveID string) ([]domain.Handoff, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+handoffColumns+` FROM handoffs WHERE directive_id=? ORDER BY created_at ASC, id ASC`, directiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// AcceptedHandoffTypes returns the set of accepted handoff types for a
// directive, read through the caller's transaction.
func (r Repo) AcceptedHandoffTypes(ctx context.Context, tx *sql.Tx, directiveID string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT handoff_type FROM handoffs WHERE directive_id=? AND status='accepted'`, directiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]bool{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		res[t] = true
	}
	return res, rows.Err()
}

// AcceptedHandoffTypesRead is the read-only variant used outside a write
// transaction (progress queries, reconciliation reports).
func (r Repo) AcceptedHandoffTypesRead(ctx context.Context, directiveID string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT handoff_type FROM handoffs WHERE directive_id=? AND status='accepted'`, directiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]bool{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		res[t] = true
	}
	return res, rows.Err()
}
