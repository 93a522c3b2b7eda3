package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"steward/internal/config"
	"steward/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const directiveColumns = `id,key,title,description,kind,phase,status,progress,priority,category,parent_id,created_at,updated_at,completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDirective(row rowScanner) (domain.Directive, error) {
	var d domain.Directive
	var description, category, parentID, completedAt sql.NullString
	var priority sql.NullInt64
	err := row.Scan(&d.ID, &d.Key, &d.Title, &description, &d.Kind, &d.Phase, &d.Status, &d.Progress,
		&priority, &category, &parentID, &d.CreatedAt, &d.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if description.Valid {
		d.Description = description.String
	}
	if category.Valid {
		d.Category = category.String
	}
	if parentID.Valid {
		d.ParentID = &parentID.String
	}
	if completedAt.Valid {
		d.CompletedAt = &completedAt.String
	}
	if priority.Valid {
		p := int(priority.Int64)
		d.Priority = &p
	}
	return d, nil
}

func (r Repo) InsertDirective(ctx context.Context, tx *sql.Tx, d domain.Directive) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO directives(`+directiveColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Key, d.Title, nullable(d.Description), d.Kind, d.Phase, d.Status, d.Progress,
		nullableIntPtr(d.Priority), nullable(d.Category), nullableStringPtr(d.ParentID),
		d.CreatedAt, d.UpdatedAt, nullableStringPtr(d.CompletedAt))
	return err
}

func (r Repo) UpdateDirective(ctx context.Context, tx *sql.Tx, d domain.Directive) error {
	_, err := tx.ExecContext(ctx, `UPDATE directives SET title=?, description=?, kind=?, phase=?, status=?, progress=?, priority=?, category=?, parent_id=?, updated_at=?, completed_at=? WHERE id=?`,
		d.Title, nullable(d.Description), d.Kind, d.Phase, d.Status, d.Progress,
		nullableIntPtr(d.Priority), nullable(d.Category), nullableStringPtr(d.ParentID),
		d.UpdatedAt, nullableStringPtr(d.CompletedAt), d.ID)
	return err
}

// GetDirective resolves by internal id or human key.
func (r Repo) GetDirective(ctx context.Context, idOrKey string) (domain.Directive, error) {
	return scanDirective(r.DB.QueryRowContext(ctx,
		`SELECT `+directiveColumns+` FROM directives WHERE id=? OR key=?`, idOrKey, idOrKey))
}

// GetDirectiveTx is the in-transaction variant; gating decisions must read
// the latest committed state through the transaction they commit with.
func (r Repo) GetDirectiveTx(ctx context.Context, tx *sql.Tx, idOrKey string) (domain.Directive, error) {
	return scanDirective(tx.QueryRowContext(ctx,
		`SELECT `+directiveColumns+` FROM directives WHERE id=? OR key=?`, idOrKey, idOrKey))
}

type DirectiveFilters struct {
	Status string
	Kind   string
	Phase  string
	Parent string
	Limit  int
}

func (r Repo) ListDirectives(ctx context.Context, f DirectiveFilters) ([]domain.Directive, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Phase != "" {
		clauses = append(clauses, "phase=?")
		args = append(args, f.Phase)
	}
	if f.Parent != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, f.Parent)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + directiveColumns + ` FROM directives ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Directive
	for rows.Next() {
		d, err := scanDirective(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// ListChildren returns every directive whose parent is the given id.
func (r Repo) ListChildren(ctx context.Context, parentID string) ([]domain.Directive, error) {
	return r.listChildren(ctx, r.DB.QueryContext, parentID)
}

func (r Repo) ListChildrenTx(ctx context.Context, tx *sql.Tx, parentID string) ([]domain.Directive, error) {
	return r.listChildren(ctx, tx.QueryContext, parentID)
}

type queryFn func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func (r Repo) listChildren(ctx context.Context, query queryFn, parentID string) ([]domain.Directive, error) {
	rows, err := query(ctx, `SELECT `+directiveColumns+` FROM directives WHERE parent_id=? ORDER BY key ASC`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Directive
	for rows.Next() {
		d, err := scanDirective(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) CountDirectivesByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM directives GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// NextDirectiveKey returns the next free key with the given prefix, SD-001 style.
func (r Repo) NextDirectiveKey(ctx context.Context, prefix string) (string, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM directives WHERE key LIKE ?`, prefix+"-%").Scan(&n)
	if err != nil {
		return "", err
	}
	for i := n + 1; ; i++ {
		key := fmt.Sprintf("%s-%03d", prefix, i)
		var exists int
		err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM directives WHERE key=?`, key).Scan(&exists)
		if err == sql.ErrNoRows {
			return key, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// --- governance config ---

func (r Repo) UpsertConfig(ctx context.Context, cfg *config.Config) error {
	return upsertConfig(ctx, r.DB, nil, cfg)
}

func (r Repo) UpsertConfigTx(ctx context.Context, tx *sql.Tx, cfg *config.Config) error {
	return upsertConfig(ctx, nil, tx, cfg)
}

func upsertConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO governance_config(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), now, now)
	return err
}

func (r Repo) GetConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM governance_config WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
