package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
	"github.com/aryan0dhankhar/tenantcore/pkg/database"
)

// Scoped confines a Repository to the tenant carried by the request context. Every read
// is filtered by tenant_id and every write stamps it, so records of another tenant behave
// as if they did not exist. Calls without a tenant scope fail with domain.ErrTenantRequired
// before any statement is issued.
type Scoped[T any] struct {
	inner *Repository[T]
}

func NewScoped[T any](inner *Repository[T]) *Scoped[T] {
	return &Scoped[T]{inner: inner}
}

// WithTx returns a copy bound to tx.
func (s *Scoped[T]) WithTx(tx Querier) *Scoped[T] {
	return &Scoped[T]{inner: s.inner.WithTx(tx)}
}

// Unscoped exposes the wrapped repository for administrative code paths.
func (s *Scoped[T]) Unscoped() *Repository[T] {
	return s.inner
}

func tenantOf(ctx context.Context) (string, error) {
	tc, err := tenantctx.Current(ctx)
	if err != nil {
		return "", err
	}
	if tc == nil || tc.TenantID == "" {
		return "", domain.ErrTenantRequired
	}
	return tc.TenantID, nil
}

func (s *Scoped[T]) scope(ctx context.Context) (string, Filter, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return "", nil, err
	}
	return tid, sq.Eq{"tenant_id": tid}, nil
}

// guard wraps patch so it cannot reach records of other tenants or move them away.
func (s *Scoped[T]) guard(tid string, patch func(*T) error) func(*T) error {
	return func(rec *T) error {
		b := s.inner.schema.Base(rec)
		if !b.OwnedBy(tid) {
			return s.inner.notFound(b.ID)
		}
		if err := patch(rec); err != nil {
			return err
		}
		b.TenantID = &tid
		return nil
	}
}

func (s *Scoped[T]) FindByID(ctx context.Context, id string) (*T, error) {
	tid, scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.inner.findByID(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	if !s.inner.schema.Base(rec).OwnedBy(tid) {
		return nil, s.inner.notFound(id)
	}
	return rec, nil
}

func (s *Scoped[T]) Find(ctx context.Context, filter Filter) ([]*T, error) {
	_, scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.inner.Find(ctx, and(filter, scope))
}

func (s *Scoped[T]) FindOne(ctx context.Context, filter Filter) (*T, error) {
	_, scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.inner.FindOne(ctx, and(filter, scope))
}

func (s *Scoped[T]) Count(ctx context.Context, filter Filter) (int, error) {
	_, scope, err := s.scope(ctx)
	if err != nil {
		return 0, err
	}
	return s.inner.Count(ctx, and(filter, scope))
}

func (s *Scoped[T]) FindWithPagination(ctx context.Context, opts OffsetOptions) (*Page[T], error) {
	_, scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.inner.findPage(ctx, opts, scope)
}

func (s *Scoped[T]) FindWithCursorPagination(ctx context.Context, opts CursorOptions) (*CursorPage[T], error) {
	_, scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.inner.findCursorPage(ctx, opts, scope)
}

// Create stamps the current tenant on rec, overriding whatever it carried.
func (s *Scoped[T]) Create(ctx context.Context, rec *T) (*T, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	s.inner.schema.Base(rec).TenantID = &tid
	return s.inner.Create(ctx, rec)
}

func (s *Scoped[T]) Update(ctx context.Context, id string, patch func(*T) error) (*T, error) {
	tid, scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.inner.update(ctx, id, scope, s.guard(tid, patch))
}

func (s *Scoped[T]) Remove(ctx context.Context, id string) error {
	_, scope, err := s.scope(ctx)
	if err != nil {
		return err
	}
	return s.inner.remove(ctx, id, scope)
}

func (s *Scoped[T]) HardDelete(ctx context.Context, id string) error {
	_, scope, err := s.scope(ctx)
	if err != nil {
		return err
	}
	return s.inner.hardDelete(ctx, id, scope)
}

func (s *Scoped[T]) BulkCreate(ctx context.Context, recs []*T, opts BulkOptions) (*BulkResult[*T], error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		s.inner.schema.Base(rec).TenantID = &tid
	}
	return s.inner.BulkCreate(ctx, recs, opts)
}

func (s *Scoped[T]) BulkUpdate(ctx context.Context, items []UpdateItem[T], opts BulkOptions) (*BulkResult[*T], error) {
	tid, scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return runBulk(ctx, s.inner, "update", items, opts, func(ctx context.Context, repo *Repository[T], it UpdateItem[T]) (*T, error) {
		return repo.update(ctx, it.ID, scope, s.guard(tid, it.Patch))
	})
}

func (s *Scoped[T]) BulkRemove(ctx context.Context, ids []string, opts BulkOptions) (*BulkResult[string], error) {
	_, scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return runBulk(ctx, s.inner, "remove", ids, opts, func(ctx context.Context, repo *Repository[T], id string) (string, error) {
		return id, repo.remove(ctx, id, scope)
	})
}

// ExecuteTransaction runs fn with a scoped repository bound to one transaction. The tenant
// is resolved before the transaction begins.
func (s *Scoped[T]) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context, repo *Scoped[T]) error, opts ...database.TxOption) error {
	if _, err := tenantOf(ctx); err != nil {
		return err
	}
	return s.inner.ExecuteTransaction(ctx, func(ctx context.Context, repo *Repository[T]) error {
		return fn(ctx, &Scoped[T]{inner: repo})
	}, opts...)
}
