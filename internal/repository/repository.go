// Package repository implements generic and tenant-scoped data access over PostgreSQL.
//
// A Repository is bound to one table through a Schema, which names the entity columns and
// hands out pointers to the matching struct fields. Base columns (id, tenant_id, is_deleted,
// version, created_at, updated_at) are handled here for every record type. Queries are built
// with squirrel and run against a Querier, which is either the pool or an open transaction.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/observability/metrics"
	"github.com/aryan0dhankhar/tenantcore/pkg/database"
)

// Filter is any squirrel predicate: sq.Eq, sq.Gt, sq.Like, sq.And, ...
type Filter = sq.Sqlizer

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a Querier that can also open transactions.
type DB interface {
	Querier
	database.Beginner
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var baseColumns = []string{"id", "tenant_id", "is_deleted", "version", "created_at", "updated_at"}

// Schema describes how records of type T are stored.
type Schema[T any] struct {
	Table  string
	Entity string // used in error messages
	// Columns lists the entity-specific columns; Fields returns pointers to the matching
	// struct fields in the same order.
	Columns []string
	Fields  func(*T) []any
	Base    func(*T) *domain.Base
	// SoftDelete makes Remove set is_deleted instead of deleting the row.
	SoftDelete bool
	// Sortable lists entity columns allowed in ORDER BY, in addition to the base columns.
	Sortable []string
}

func (s Schema[T]) columns() []string {
	return append(slices.Clone(baseColumns), s.Columns...)
}

func (s Schema[T]) pointers(rec *T) []any {
	b := s.Base(rec)
	ptrs := []any{&b.ID, &b.TenantID, &b.IsDeleted, &b.Version, &b.CreatedAt, &b.UpdatedAt}
	return append(ptrs, s.Fields(rec)...)
}

func (s Schema[T]) sortable(column string) bool {
	return slices.Contains(baseColumns, column) || slices.Contains(s.Sortable, column)
}

// Repository is a generic data-access facade for one record type.
type Repository[T any] struct {
	schema Schema[T]
	db     Querier
	txer   database.Beginner // nil when bound to an outer transaction
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a repository over db.
func New[T any](db DB, schema Schema[T], logger *slog.Logger) *Repository[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository[T]{
		schema: schema,
		db:     db,
		txer:   db,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// WithTx returns a copy of the repository that runs every statement on tx.
func (r *Repository[T]) WithTx(tx Querier) *Repository[T] {
	cp := *r
	cp.db = tx
	cp.txer = nil
	return &cp
}

// Schema returns the schema the repository was built with.
func (r *Repository[T]) Schema() Schema[T] {
	return r.schema
}

func (r *Repository[T]) observe(op string, start time.Time, err *error) {
	result := "success"
	if *err != nil {
		result = "error"
		if errors.Is(*err, domain.ErrNotFound) {
			result = "not_found"
		}
	}
	metrics.ObserveRepository(r.schema.Table, op, result, time.Since(start))
}

func (r *Repository[T]) notFound(id string) error {
	return domain.NotFoundError(r.schema.Entity, id)
}

// live restricts a query to rows that are not soft-deleted.
func (r *Repository[T]) live() Filter {
	if !r.schema.SoftDelete {
		return sq.Expr("1 = 1")
	}
	return sq.Eq{"is_deleted": false}
}

func (r *Repository[T]) selectQuery(filters ...Filter) sq.SelectBuilder {
	q := psql.Select(r.schema.columns()...).From(r.schema.Table).Where(r.live())
	for _, f := range filters {
		if f != nil {
			q = q.Where(f)
		}
	}
	return q
}

func (r *Repository[T]) scanRows(rows *sql.Rows) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		rec := new(T)
		if err := rows.Scan(r.schema.pointers(rec)...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", r.schema.Entity, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", r.schema.Entity, err)
	}
	return out, nil
}

func (r *Repository[T]) query(ctx context.Context, q sq.SelectBuilder) ([]*T, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s query: %w", r.schema.Entity, err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.schema.Entity, err)
	}
	return r.scanRows(rows)
}

// FindByID returns the record with the given id, or an error matching domain.ErrNotFound
// when it does not exist or was soft-deleted.
func (r *Repository[T]) FindByID(ctx context.Context, id string) (*T, error) {
	return r.findByID(ctx, id, nil)
}

func (r *Repository[T]) findByID(ctx context.Context, id string, scope Filter) (rec *T, err error) {
	defer r.observe("find_by_id", time.Now(), &err)

	if id == "" {
		return nil, r.notFound(id)
	}
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return nil, r.notFound(id)
	}
	recs, err := r.query(ctx, r.selectQuery(sq.Eq{"id": id}, scope).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, r.notFound(id)
	}
	return recs[0], nil
}

// Find returns every live record matching filter, oldest first.
func (r *Repository[T]) Find(ctx context.Context, filter Filter) (recs []*T, err error) {
	defer r.observe("find", time.Now(), &err)
	return r.query(ctx, r.selectQuery(filter).OrderBy("created_at ASC", "id ASC"))
}

// FindOne returns the first record matching filter.
func (r *Repository[T]) FindOne(ctx context.Context, filter Filter) (rec *T, err error) {
	defer r.observe("find_one", time.Now(), &err)
	recs, err := r.query(ctx, r.selectQuery(filter).OrderBy("created_at ASC", "id ASC").Limit(1))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", r.schema.Entity, domain.ErrNotFound)
	}
	return recs[0], nil
}

// Count returns the number of live records matching filter.
func (r *Repository[T]) Count(ctx context.Context, filter Filter) (n int, err error) {
	defer r.observe("count", time.Now(), &err)
	return r.count(ctx, filter)
}

func (r *Repository[T]) count(ctx context.Context, filter Filter) (int, error) {
	q := psql.Select("COUNT(*)").From(r.schema.Table).Where(r.live())
	if filter != nil {
		q = q.Where(filter)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build %s count: %w", r.schema.Entity, err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.schema.Entity, err)
	}
	return n, nil
}

// Create inserts rec, assigning an id when it has none.
func (r *Repository[T]) Create(ctx context.Context, rec *T) (out *T, err error) {
	defer r.observe("create", time.Now(), &err)

	b := r.schema.Base(rec)
	if b.ID == "" {
		b.ID = r.newID()
	}
	now := r.now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	b.IsDeleted = false

	query, args, err := psql.Insert(r.schema.Table).
		Columns(r.schema.columns()...).
		Values(r.schema.pointers(rec)...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s insert: %w", r.schema.Entity, err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, r.writeError("create", err)
	}
	return rec, nil
}

// Update loads the record, applies patch and writes it back guarded by the version column.
// A concurrent writer makes the call fail with domain.ErrConflict.
func (r *Repository[T]) Update(ctx context.Context, id string, patch func(*T) error) (*T, error) {
	return r.update(ctx, id, nil, patch)
}

func (r *Repository[T]) update(ctx context.Context, id string, scope Filter, patch func(*T) error) (rec *T, err error) {
	rec, err = r.findByID(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	defer r.observe("update", time.Now(), &err)

	b := r.schema.Base(rec)
	frozen := *b
	if err := patch(rec); err != nil {
		return nil, err
	}
	// Identity and bookkeeping columns are not patchable.
	b.ID = frozen.ID
	b.CreatedAt = frozen.CreatedAt
	b.IsDeleted = frozen.IsDeleted
	b.Version = frozen.Version

	if err := r.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// save writes every column of rec and bumps the version.
func (r *Repository[T]) save(ctx context.Context, rec *T) error {
	b := r.schema.Base(rec)
	b.UpdatedAt = r.now().UTC()

	set := map[string]any{
		"tenant_id":  b.TenantID,
		"updated_at": b.UpdatedAt,
		"version":    sq.Expr("version + 1"),
	}
	fields := r.schema.Fields(rec)
	for i, col := range r.schema.Columns {
		set[col] = fields[i]
	}

	query, args, err := psql.Update(r.schema.Table).
		SetMap(set).
		Where(sq.Eq{"id": b.ID, "version": b.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build %s update: %w", r.schema.Entity, err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return r.writeError("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", r.schema.Entity, b.ID, domain.ErrConflict)
	}
	b.Version++
	return nil
}

// Remove soft-deletes the record when the schema supports it and deletes the row otherwise.
func (r *Repository[T]) Remove(ctx context.Context, id string) error {
	return r.remove(ctx, id, nil)
}

func (r *Repository[T]) remove(ctx context.Context, id string, scope Filter) (err error) {
	if !r.schema.SoftDelete {
		return r.hardDelete(ctx, id, scope)
	}
	defer r.observe("soft_delete", time.Now(), &err)

	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return r.notFound(id)
	}
	q := psql.Update(r.schema.Table).
		Set("is_deleted", true).
		Set("updated_at", r.now().UTC()).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": id, "is_deleted": false})
	if scope != nil {
		q = q.Where(scope)
	}
	return r.execAffecting(ctx, q, id)
}

// HardDelete removes the row regardless of soft-delete support.
func (r *Repository[T]) HardDelete(ctx context.Context, id string) error {
	return r.hardDelete(ctx, id, nil)
}

func (r *Repository[T]) hardDelete(ctx context.Context, id string, scope Filter) (err error) {
	defer r.observe("hard_delete", time.Now(), &err)

	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return r.notFound(id)
	}
	q := psql.Delete(r.schema.Table).Where(sq.Eq{"id": id})
	if scope != nil {
		q = q.Where(scope)
	}
	return r.execAffecting(ctx, q, id)
}

func (r *Repository[T]) execAffecting(ctx context.Context, q sq.Sqlizer, id string) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build %s statement: %w", r.schema.Entity, err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return r.writeError("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return r.notFound(id)
	}
	return nil
}

// SoftDeleteWhere flags every live row matching filter as deleted and returns the count.
func (r *Repository[T]) SoftDeleteWhere(ctx context.Context, filter Filter) (n int64, err error) {
	defer r.observe("soft_delete_where", time.Now(), &err)
	if !r.schema.SoftDelete {
		return 0, fmt.Errorf("%s does not support soft delete", r.schema.Entity)
	}
	query, args, err := psql.Update(r.schema.Table).
		Set("is_deleted", true).
		Set("updated_at", r.now().UTC()).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"is_deleted": false}).
		Where(filter).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build %s statement: %w", r.schema.Entity, err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, r.writeError("delete", err)
	}
	return res.RowsAffected()
}

func (r *Repository[T]) writeError(op string, err error) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%s violates %s: %w", r.schema.Entity, database.ConstraintName(err), domain.ErrAlreadyExists)
	}
	r.logger.Error("repository write failed",
		slog.String("table", r.schema.Table),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("failed to %s %s: %w", op, r.schema.Entity, err)
}

// ExecuteTransaction runs fn with a repository bound to a new transaction. When the
// repository is already bound to a transaction, fn joins it.
func (r *Repository[T]) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context, repo *Repository[T]) error, opts ...database.TxOption) error {
	if r.txer == nil {
		return fn(ctx, r)
	}
	return Transact(ctx, r.txer, r.logger, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, r.WithTx(tx))
	}, opts...)
}

// Transact runs fn in a transaction and translates failures into domain errors:
// timeouts become domain.ErrTransactionTimeout and unrecognised errors domain.ErrInternal.
func Transact(ctx context.Context, db database.Beginner, logger *slog.Logger, fn database.TxFunc, opts ...database.TxOption) error {
	err := database.WithTx(ctx, db, logger, fn, opts...)
	if err == nil {
		return nil
	}
	if errors.Is(err, database.ErrTxTimeout) {
		return domain.ErrTransactionTimeout
	}
	if !domain.IsDomainError(err) && logger != nil {
		logger.Error("transaction failed", slog.String("error", err.Error()))
	}
	return domain.Internal(err)
}
