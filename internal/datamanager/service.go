package datamanager

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

// Import modes.
const (
	ModeAppend  = "append"
	ModeReplace = "replace"
)

// Option is a referenced row offered for a foreign key column.
type Option struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Page is one page of table rows.
type Page struct {
	Table      string            `json:"table"`
	Columns    []Column          `json:"columns"`
	Rows       []Record          `json:"rows"`
	Pagination shared.Pagination `json:"pagination"`
}

// TableStat is the row count of a table.
type TableStat struct {
	Table string `json:"table"`
	Count int    `json:"count"`
}

// ImportResult reports an import run.
type ImportResult struct {
	Table    string `json:"table"`
	Mode     string `json:"mode"`
	Imported int    `json:"imported"`
	Deleted  int64  `json:"deleted"`
}

// RepositoryPort is the storage used by the editor.
type RepositoryPort interface {
	Count(ctx context.Context, t Table) (int, error)
	List(ctx context.Context, t Table, limit, offset int) ([]Record, error)
	All(ctx context.Context, t Table) ([]Record, error)
	Get(ctx context.Context, t Table, id int64) (Record, error)
	Options(ctx context.Context, t Table) ([]Option, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Invalidator drops cached report data after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service is the generic table editor.
type Service struct {
	repo   RepositoryPort
	cache  Invalidator
	hash   func(string) (string, error)
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the editor. hash encodes secret columns such as
// password hashes; without it those columns cannot be written.
func NewService(repo RepositoryPort, cache Invalidator, hash func(string) (string, error), logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, hash: hash, logger: logger, now: time.Now}
}

func (s *Service) table(actor shared.Actor, name string) (Table, error) {
	if err := rbac.Authorize(actor, shared.PermDataManage); err != nil {
		return Table{}, err
	}
	return Lookup(name)
}

// writable resolves a table that the editor may change.
func (s *Service) writable(actor shared.Actor, name string) (Table, error) {
	t, err := s.table(actor, name)
	if err != nil {
		return Table{}, err
	}
	if t.ReadOnly {
		return Table{}, fmt.Errorf("%w: %s is read-only", shared.ErrForbidden, t.Name)
	}
	return t, nil
}

// clearExclusive unsets exclusive flags on the sibling rows of a write that
// sets one. id is zero for inserts.
func clearExclusive(ctx context.Context, tx TxRepository, t Table, p prepared, id int64) error {
	for _, col := range t.Columns {
		if col.ExclusiveWithin == "" {
			continue
		}
		if v, ok := p.value(col.Name); !ok || v != true {
			continue
		}
		group, _ := p.value(col.ExclusiveWithin)
		if group == nil && id == 0 {
			continue
		}
		if err := tx.ClearExclusive(ctx, t, col, group, id); err != nil {
			return err
		}
	}
	return nil
}

// Tables lists the editable tables.
func (s *Service) Tables(_ context.Context, actor shared.Actor) ([]Table, error) {
	if err := rbac.Authorize(actor, shared.PermDataManage); err != nil {
		return nil, err
	}
	return append([]Table(nil), registry...), nil
}

// Describe returns the column registry of a table.
func (s *Service) Describe(_ context.Context, actor shared.Actor, name string) (Table, error) {
	return s.table(actor, name)
}

// Stats returns the record count of every table.
func (s *Service) Stats(ctx context.Context, actor shared.Actor) ([]TableStat, error) {
	if err := rbac.Authorize(actor, shared.PermDataManage); err != nil {
		return nil, err
	}
	out := make([]TableStat, 0, len(registry))
	for _, t := range registry {
		n, err := s.repo.Count(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("datamanager: count %s: %w", t.Name, err)
		}
		out = append(out, TableStat{Table: t.Name, Count: n})
	}
	return out, nil
}

// List returns a page of rows.
func (s *Service) List(ctx context.Context, actor shared.Actor, name string, page, perPage int) (Page, error) {
	t, err := s.table(actor, name)
	if err != nil {
		return Page{}, err
	}
	total, err := s.repo.Count(ctx, t)
	if err != nil {
		return Page{}, err
	}
	p := shared.NewPagination(page, perPage, total)
	rows, err := s.repo.List(ctx, t, p.PerPage, shared.Offset(p.Page, p.PerPage))
	if err != nil {
		return Page{}, err
	}
	return Page{Table: t.Name, Columns: t.Visible(), Rows: rows, Pagination: p}, nil
}

// Get returns one row.
func (s *Service) Get(ctx context.Context, actor shared.Actor, name string, id int64) (Record, error) {
	t, err := s.table(actor, name)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, t, id)
}

// Options lists the rows a foreign key column may point at.
func (s *Service) Options(ctx context.Context, actor shared.Actor, name, column string) ([]Option, error) {
	t, err := s.table(actor, name)
	if err != nil {
		return nil, err
	}
	col, ok := t.Column(column)
	if !ok || col.References == "" {
		return nil, fmt.Errorf("%w: %s.%s is not a reference", shared.ErrValidation, name, column)
	}
	target, err := Lookup(col.References)
	if err != nil {
		return nil, err
	}
	return s.repo.Options(ctx, target)
}

func (s *Service) audit(actor shared.Actor, action string, t Table, id int64, details string) shared.AuditLog {
	return shared.AuditLog{UserID: actor.UserID, Action: action, EntityType: t.Name, EntityID: id, Details: details, At: s.now()}
}

// Insert adds a row and returns it as stored.
func (s *Service) Insert(ctx context.Context, actor shared.Actor, name string, values Record) (Record, error) {
	t, err := s.writable(actor, name)
	if err != nil {
		return nil, err
	}
	p, err := prepare(t, values, true, true, s.hash)
	if err != nil {
		return nil, err
	}
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := clearExclusive(ctx, tx, t, p, 0); err != nil {
			return err
		}
		var err error
		if id, err = tx.Insert(ctx, t, p); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, s.audit(actor, shared.AuditCreated, t, id, "Added new record to "+t.Name))
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.repo.Get(ctx, t, id)
}

// Update changes the given columns of a row.
func (s *Service) Update(ctx context.Context, actor shared.Actor, name string, id int64, values Record) (Record, error) {
	t, err := s.writable(actor, name)
	if err != nil {
		return nil, err
	}
	p, err := prepare(t, values, false, true, s.hash)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := clearExclusive(ctx, tx, t, p, id); err != nil {
			return err
		}
		if err := tx.Update(ctx, t, id, p); err != nil {
			return err
		}
		details := fmt.Sprintf("Updated record in %s (%s)", t.Name, strings.Join(p.columns, ", "))
		return tx.InsertAudit(ctx, s.audit(actor, shared.AuditUpdated, t, id, details))
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.repo.Get(ctx, t, id)
}

// Delete removes a row.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, name string, id int64) error {
	t, err := s.writable(actor, name)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Delete(ctx, t, id); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, s.audit(actor, shared.AuditDeleted, t, id, "Deleted record from "+t.Name))
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ExportFileName names an export of table taken at time at.
func ExportFileName(table, format string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", table, at.Format("20060102150405"), format)
}

// Export writes every row of a table as csv or xlsx and returns the file name.
func (s *Service) Export(ctx context.Context, actor shared.Actor, name, format string, w io.Writer) (string, error) {
	t, err := s.table(actor, name)
	if err != nil {
		return "", err
	}
	if format, err = checkFormat(format); err != nil {
		return "", err
	}
	rows, err := s.repo.All(ctx, t)
	if err != nil {
		return "", err
	}
	if format == FormatCSV {
		err = writeCSV(w, t, rows)
	} else {
		err = writeXLSX(w, t, rows)
	}
	if err != nil {
		return "", fmt.Errorf("datamanager: export %s: %w", t.Name, err)
	}
	return ExportFileName(t.Name, format, s.now()), nil
}

// Import loads rows from a csv or xlsx file in one transaction. Unknown
// columns are dropped and empty cells omitted. Replace mode deletes the
// existing rows first.
func (s *Service) Import(ctx context.Context, actor shared.Actor, name, format, mode string, r io.Reader) (ImportResult, error) {
	t, err := s.writable(actor, name)
	if err != nil {
		return ImportResult{}, err
	}
	if format, err = checkFormat(format); err != nil {
		return ImportResult{}, err
	}
	if mode == "" {
		mode = ModeAppend
	}
	if mode != ModeAppend && mode != ModeReplace {
		return ImportResult{}, fmt.Errorf("%w: mode must be append or replace", shared.ErrValidation)
	}
	header, rows, err := readRows(format, r)
	if err != nil {
		return ImportResult{}, err
	}
	batch := make([]prepared, 0, len(rows))
	for i, row := range rows {
		rec := rowRecord(t, header, row)
		if len(rec) == 0 {
			continue
		}
		p, err := prepare(t, rec, true, false, s.hash)
		if err != nil {
			return ImportResult{}, fmt.Errorf("row %d: %w", i+2, err)
		}
		batch = append(batch, p)
	}
	res := ImportResult{Table: t.Name, Mode: mode}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res.Deleted, res.Imported = 0, 0
		if mode == ModeReplace {
			n, err := tx.DeleteAll(ctx, t)
			if err != nil {
				return err
			}
			res.Deleted = n
		}
		for i, p := range batch {
			if err := clearExclusive(ctx, tx, t, p, 0); err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
			if _, err := tx.Insert(ctx, t, p); err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
			res.Imported++
		}
		details := fmt.Sprintf("Imported %d records to %s", res.Imported, t.Name)
		if mode == ModeReplace {
			details += fmt.Sprintf(" (replaced %d)", res.Deleted)
		}
		return tx.InsertAudit(ctx, s.audit(actor, shared.AuditImported, t, 0, details))
	})
	if err != nil {
		return ImportResult{}, err
	}
	s.logger.Info("table import", slog.String("table", t.Name), slog.String("mode", mode), slog.Int("imported", res.Imported))
	s.invalidate(ctx)
	return res, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump report cache", slog.Any("error", err))
	}
}
