package audit

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// RepositoryPort provides the audit queries.
type RepositoryPort interface {
	Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]Entry, error)
	All(ctx context.Context, f TimelineFilters) ([]Entry, error)
	ImportHistory(ctx context.Context) ([]ImportRecord, error)
}

// Service reads the audit trail. Entries are never modified.
type Service struct {
	repo RepositoryPort
}

// NewService builds the audit reader.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit entries.
func (s *Service) Timeline(ctx context.Context, actor shared.Actor, filters TimelineFilters) (Result, error) {
	if err := rbac.Authorize(actor, shared.PermAuditView); err != nil {
		return Result{}, err
	}
	if err := checkRange(filters); err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, filters, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []Entry{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching entry without paging.
func (s *Service) Export(ctx context.Context, actor shared.Actor, filters TimelineFilters) ([]Entry, error) {
	if err := rbac.Authorize(actor, shared.PermAuditView); err != nil {
		return nil, err
	}
	if err := checkRange(filters); err != nil {
		return nil, err
	}
	return s.repo.All(ctx, filters)
}

// ImportHistory lists import runs grouped by kind with the latest time.
func (s *Service) ImportHistory(ctx context.Context, actor shared.Actor) ([]ImportRecord, error) {
	if err := rbac.AuthorizeAny(actor, shared.PermAuditView, shared.PermERPSyncRun, shared.PermDataManage); err != nil {
		return nil, err
	}
	return s.repo.ImportHistory(ctx)
}

func checkRange(f TimelineFilters) error {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return fmt.Errorf("%w: from must not be after to", shared.ErrValidation)
	}
	return nil
}
