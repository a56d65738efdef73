package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func whereClause(f TimelineFilters) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("l.created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("l.created_at < $%d", f.To)
	}
	if f.UserID > 0 {
		add("l.user_id = $%d", f.UserID)
	}
	if s := strings.TrimSpace(f.EntityType); s != "" {
		add("l.entity_type = $%d", s)
	}
	if f.EntityID > 0 {
		add("l.entity_id = $%d", f.EntityID)
	}
	if s := strings.TrimSpace(f.Action); s != "" {
		add("l.action = $%d", s)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const entrySelect = `SELECT l.log_id, l.created_at, l.user_id, COALESCE(u.username, ''), l.action, l.entity_type,
    l.entity_id, l.details
FROM audit_logs l
LEFT JOIN users u ON u.user_id = l.user_id`

// Window returns up to limit entries after skipping offset, newest first.
func (r *Repository) Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]Entry, error) {
	where, args := whereClause(f)
	args = append(args, limit, offset)
	sql := fmt.Sprintf("%s%s ORDER BY l.created_at DESC, l.log_id DESC LIMIT $%d OFFSET $%d", entrySelect, where, len(args)-1, len(args))
	return r.query(ctx, sql, args...)
}

// All returns every matching entry, newest first.
func (r *Repository) All(ctx context.Context, f TimelineFilters) ([]Entry, error) {
	where, args := whereClause(f)
	return r.query(ctx, entrySelect+where+" ORDER BY l.created_at DESC, l.log_id DESC", args...)
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.At, &e.UserID, &e.Username, &e.Action, &e.EntityType, &e.EntityID, &e.Details)
		return e, err
	})
}

// ImportHistory groups import actions by kind.
func (r *Repository) ImportHistory(ctx context.Context) ([]ImportRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT action, entity_type, COUNT(*), MAX(created_at)
FROM audit_logs
WHERE action LIKE 'import%'
GROUP BY action, entity_type
ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ImportRecord, error) {
		var rec ImportRecord
		err := row.Scan(&rec.Action, &rec.EntityType, &rec.Count, &rec.LastAt)
		return rec, err
	})
}
