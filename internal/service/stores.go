package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/repository"
	"github.com/aryan0dhankhar/tenantcore/pkg/database"
)

// TenantStore is the tenant persistence used by TenantService.
type TenantStore interface {
	FindByID(ctx context.Context, id string) (*domain.Tenant, error)
	FindWithPagination(ctx context.Context, opts repository.OffsetOptions) (*repository.Page[domain.Tenant], error)
	FindWithCursorPagination(ctx context.Context, opts repository.CursorOptions) (*repository.CursorPage[domain.Tenant], error)
	Create(ctx context.Context, t *domain.Tenant) (*domain.Tenant, error)
	Update(ctx context.Context, id string, patch func(*domain.Tenant) error) (*domain.Tenant, error)
	HardDelete(ctx context.Context, id string) error
}

// SatelliteStore removes records attached to a tenant.
type SatelliteStore interface {
	SoftDeleteWhere(ctx context.Context, filter repository.Filter) (int64, error)
}

// Stores are the transaction-bound stores handed to a unit of work.
type Stores struct {
	Tenants    TenantStore
	Satellites []SatelliteStore
}

// UnitOfWork runs fn atomically. Errors leave nothing persisted.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// SQLUnit is the PostgreSQL UnitOfWork.
type SQLUnit struct {
	db        database.Beginner
	tenants   *repository.TenantRepository
	addresses *repository.Repository[domain.Address]
	contacts  *repository.Repository[domain.ContactInfo]
	timeout   time.Duration
	logger    *slog.Logger
}

// NewSQLUnit builds a unit over the pool. timeout bounds each transaction; zero disables it.
func NewSQLUnit(
	db repository.DB,
	tenants *repository.TenantRepository,
	addresses *repository.Repository[domain.Address],
	contacts *repository.Repository[domain.ContactInfo],
	timeout time.Duration,
	logger *slog.Logger,
) *SQLUnit {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLUnit{db: db, tenants: tenants, addresses: addresses, contacts: contacts, timeout: timeout, logger: logger}
}

func (u *SQLUnit) Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	return repository.Transact(ctx, u.db, u.logger, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, Stores{
			Tenants:    u.tenants.WithTx(tx),
			Satellites: []SatelliteStore{u.addresses.WithTx(tx), u.contacts.WithTx(tx)},
		})
	}, database.WithTimeout(u.timeout))
}

// ScopedStore is the tenant-scoped persistence used by the satellite services.
type ScopedStore[T any] interface {
	FindByID(ctx context.Context, id string) (*T, error)
	Find(ctx context.Context, filter repository.Filter) ([]*T, error)
	FindWithPagination(ctx context.Context, opts repository.OffsetOptions) (*repository.Page[T], error)
	Create(ctx context.Context, rec *T) (*T, error)
	Update(ctx context.Context, id string, patch func(*T) error) (*T, error)
	Remove(ctx context.Context, id string) error
	InTx(ctx context.Context, fn func(ctx context.Context, s ScopedStore[T]) error) error
}

// SQLScoped adapts repository.Scoped to ScopedStore.
type SQLScoped[T any] struct {
	*repository.Scoped[T]
	timeout time.Duration
}

func NewSQLScoped[T any](s *repository.Scoped[T], timeout time.Duration) *SQLScoped[T] {
	return &SQLScoped[T]{Scoped: s, timeout: timeout}
}

func (s *SQLScoped[T]) InTx(ctx context.Context, fn func(ctx context.Context, s ScopedStore[T]) error) error {
	return s.ExecuteTransaction(ctx, func(ctx context.Context, repo *repository.Scoped[T]) error {
		return fn(ctx, &SQLScoped[T]{Scoped: repo, timeout: s.timeout})
	}, database.WithTimeout(s.timeout))
}
