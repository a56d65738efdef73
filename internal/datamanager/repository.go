package datamanager

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/payables/internal/platform/db"
	"github.com/odyssey-erp/payables/internal/shared"
)

// Repository runs registry-driven SQL. Identifiers only ever come from the
// registry and are quoted with pgx.Identifier.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the write surface used inside a transaction.
type TxRepository interface {
	Insert(ctx context.Context, t Table, p prepared) (int64, error)
	Update(ctx context.Context, t Table, id int64, p prepared) error
	Delete(ctx context.Context, t Table, id int64) error
	DeleteAll(ctx context.Context, t Table) (int64, error)
	ClearExclusive(ctx context.Context, t Table, col Column, group any, exceptID int64) error
	InsertAudit(ctx context.Context, log shared.AuditLog) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn within a single transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func selectList(t Table) string {
	cols := t.Visible()
	parts := make([]string, len(cols))
	for i, c := range cols {
		if c.Kind == KindDecimal {
			parts[i] = ident(c.Name) + "::text"
			continue
		}
		parts[i] = ident(c.Name)
	}
	return strings.Join(parts, ", ")
}

func scanRecords(t Table, rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	cols := t.Visible()
	out := []Record{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			v := values[i]
			if c.Kind == KindDecimal && v != nil {
				d, err := decimal.NewFromString(v.(string))
				if err != nil {
					return nil, fmt.Errorf("datamanager: %s.%s: %w", t.Name, c.Name, err)
				}
				v = d
			}
			if n, ok := v.(int32); ok {
				v = int64(n)
			}
			rec[c.Name] = v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of rows in t.
func (r *Repository) Count(ctx context.Context, t Table) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+ident(t.Name)).Scan(&n)
	return n, err
}

// List returns a page of rows ordered by primary key.
func (r *Repository) List(ctx context.Context, t Table, limit, offset int) ([]Record, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT $1 OFFSET $2", selectList(t), ident(t.Name), ident(t.PrimaryKey().Name))
	rows, err := r.pool.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanRecords(t, rows)
}

// All returns every row ordered by primary key.
func (r *Repository) All(ctx context.Context, t Table) ([]Record, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", selectList(t), ident(t.Name), ident(t.PrimaryKey().Name))
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return scanRecords(t, rows)
}

// Get loads one row by primary key.
func (r *Repository) Get(ctx context.Context, t Table, id int64) (Record, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", selectList(t), ident(t.Name), ident(t.PrimaryKey().Name))
	rows, err := r.pool.Query(ctx, sql, id)
	if err != nil {
		return nil, err
	}
	recs, err := scanRecords(t, rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, shared.ErrNotFound
	}
	return recs[0], nil
}

// Options lists primary key and display value pairs of t.
func (r *Repository) Options(ctx context.Context, t Table) ([]Option, error) {
	pk := ident(t.PrimaryKey().Name)
	sql := fmt.Sprintf("SELECT %s, %s::text FROM %s ORDER BY %s", pk, ident(t.Display), ident(t.Name), pk)
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Option, error) {
		var o Option
		err := row.Scan(&o.ID, &o.Label)
		return o, err
	})
}

func placeholders(n, start int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	case db.IsConstraintViolation(err):
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	default:
		return err
	}
}

func (t *txRepo) Insert(ctx context.Context, tbl Table, p prepared) (int64, error) {
	quoted := make([]string, len(p.columns))
	for i, c := range p.columns {
		quoted[i] = ident(c)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s", ident(tbl.Name), strings.Join(quoted, ", "),
		placeholders(len(p.args), 1), ident(tbl.PrimaryKey().Name))
	var id int64
	err := t.tx.QueryRow(ctx, sql, p.args...).Scan(&id)
	return id, mapWriteError(err)
}

func (t *txRepo) Update(ctx context.Context, tbl Table, id int64, p prepared) error {
	sets := make([]string, len(p.columns))
	for i, c := range p.columns {
		sets[i] = fmt.Sprintf("%s = $%d", ident(c), i+1)
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d", ident(tbl.Name), strings.Join(sets, ", "),
		ident(tbl.PrimaryKey().Name), len(p.args)+1)
	tag, err := t.tx.Exec(ctx, sql, append(p.args, id)...)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) Delete(ctx context.Context, tbl Table, id int64) error {
	tag, err := t.tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = $1", ident(tbl.Name), ident(tbl.PrimaryKey().Name)), id)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteAll(ctx context.Context, tbl Table) (int64, error) {
	tag, err := t.tx.Exec(ctx, "DELETE FROM "+ident(tbl.Name))
	if err != nil {
		return 0, mapWriteError(err)
	}
	return tag.RowsAffected(), nil
}

// ClearExclusive sets col to false on every other row of the group. A nil
// group means the group of row exceptID.
func (t *txRepo) ClearExclusive(ctx context.Context, tbl Table, col Column, group any, exceptID int64) error {
	flag, within, pk := ident(col.Name), ident(col.ExclusiveWithin), ident(tbl.PrimaryKey().Name)
	var err error
	if group != nil {
		_, err = t.tx.Exec(ctx, fmt.Sprintf("UPDATE %s SET %s = FALSE WHERE %s AND %s = $1 AND %s <> $2",
			ident(tbl.Name), flag, flag, within, pk), group, exceptID)
	} else {
		_, err = t.tx.Exec(ctx, fmt.Sprintf("UPDATE %[1]s SET %[2]s = FALSE WHERE %[2]s AND %[4]s <> $1 AND %[3]s = (SELECT %[3]s FROM %[1]s WHERE %[4]s = $1)",
			ident(tbl.Name), flag, within, pk), exceptID)
	}
	return mapWriteError(err)
}

func (t *txRepo) InsertAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.InsertAudit(ctx, t.tx, log)
}
