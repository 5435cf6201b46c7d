package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/repository"
	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
)

// memTenantStore mimics the tenants table, including the unique name/subdomain indexes.
type memTenantStore struct {
	mu      sync.Mutex
	byID    map[string]domain.Tenant
	creates int
}

func newMemTenantStore() *memTenantStore {
	return &memTenantStore{byID: map[string]domain.Tenant{}}
}

func (m *memTenantStore) snapshot() map[string]domain.Tenant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.byID)
}

func (m *memTenantStore) restore(s map[string]domain.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID = s
}

func (m *memTenantStore) FindByID(_ context.Context, id string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok || t.IsDeleted {
		return nil, domain.NotFoundError("tenant", id)
	}
	return &t, nil
}

func (m *memTenantStore) sorted() []*domain.Tenant {
	out := []*domain.Tenant{}
	for _, t := range m.byID {
		if !t.IsDeleted {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memTenantStore) FindWithPagination(_ context.Context, opts repository.OffsetOptions) (*repository.Page[domain.Tenant], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	size := opts.PageSize
	if size <= 0 {
		size = repository.DefaultPageSize
	}
	page := max(opts.Page, 1)
	start := min((page-1)*size, len(all))
	end := min(start+size, len(all))
	pages := (len(all) + size - 1) / size
	return &repository.Page[domain.Tenant]{
		Items: all[start:end], Total: len(all), Page: page, PageSize: size,
		TotalPages: pages, HasNext: page < pages, HasPrevious: page > 1,
	}, nil
}

func (m *memTenantStore) FindWithCursorPagination(context.Context, repository.CursorOptions) (*repository.CursorPage[domain.Tenant], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &repository.CursorPage[domain.Tenant]{Items: m.sorted()}, nil
}

func (m *memTenantStore) unique(t *domain.Tenant) error {
	for id, other := range m.byID {
		if id == t.ID || other.IsDeleted {
			continue
		}
		if other.Name == t.Name || other.Subdomain == t.Subdomain {
			return fmt.Errorf("tenant violates tenants_name_key: %w", domain.ErrAlreadyExists)
		}
	}
	return nil
}

func (m *memTenantStore) Create(_ context.Context, t *domain.Tenant) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := m.unique(t); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt, t.Version = now, now, 1
	m.byID[t.ID] = *t
	m.creates++
	cp := *t
	return &cp, nil
}

func (m *memTenantStore) Update(_ context.Context, id string, patch func(*domain.Tenant) error) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok || t.IsDeleted {
		return nil, domain.NotFoundError("tenant", id)
	}
	if err := patch(&t); err != nil {
		return nil, err
	}
	if err := m.unique(&t); err != nil {
		return nil, err
	}
	t.ID = id
	t.Version++
	t.UpdatedAt = time.Now().UTC()
	m.byID[id] = t
	return &t, nil
}

func (m *memTenantStore) HardDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return domain.NotFoundError("tenant", id)
	}
	delete(m.byID, id)
	return nil
}

// memUnit runs the body directly and restores the tenant table when it fails.
type memUnit struct {
	tenants    *memTenantStore
	satellites []SatelliteStore
}

func (u *memUnit) Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	snap := u.tenants.snapshot()
	if err := fn(ctx, Stores{Tenants: u.tenants, Satellites: u.satellites}); err != nil {
		u.tenants.restore(snap)
		return err
	}
	return nil
}

// memScoped is an in-memory ScopedStore keyed by the tenant in ctx.
type memScoped[T any] struct {
	mu   *sync.Mutex
	rows map[string]*T
	base func(*T) *domain.Base
	cols func(*T) map[string]any
}

func newMemScoped[T any](base func(*T) *domain.Base, cols func(*T) map[string]any) *memScoped[T] {
	return &memScoped[T]{mu: &sync.Mutex{}, rows: map[string]*T{}, base: base, cols: cols}
}

func (m *memScoped[T]) visible(ctx context.Context, rec *T) (bool, error) {
	tid, err := tenantOfCtx(ctx)
	if err != nil {
		return false, err
	}
	b := m.base(rec)
	return !b.IsDeleted && b.OwnedBy(tid), nil
}

func tenantOfCtx(ctx context.Context) (string, error) {
	tid, ok := tenantctx.TenantID(ctx)
	if !ok {
		return "", domain.ErrTenantRequired
	}
	return tid, nil
}

func (m *memScoped[T]) FindByID(ctx context.Context, id string) (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(ctx, id)
}

func (m *memScoped[T]) findLocked(ctx context.Context, id string) (*T, error) {
	rec, ok := m.rows[id]
	if !ok {
		if _, err := tenantOfCtx(ctx); err != nil {
			return nil, err
		}
		return nil, domain.NotFoundError("record", id)
	}
	vis, err := m.visible(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !vis {
		return nil, domain.NotFoundError("record", id)
	}
	cp := *rec
	return &cp, nil
}

func (m *memScoped[T]) Find(ctx context.Context, filter repository.Filter) ([]*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*T
	for _, rec := range m.rows {
		vis, err := m.visible(ctx, rec)
		if err != nil {
			return nil, err
		}
		if vis && matches(m.cols(rec), filter) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memScoped[T]) FindWithPagination(ctx context.Context, opts repository.OffsetOptions) (*repository.Page[T], error) {
	items, err := m.Find(ctx, opts.Filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*T{}
	}
	return &repository.Page[T]{Items: items, Total: len(items), Page: 1, PageSize: len(items), TotalPages: 1}, nil
}

func (m *memScoped[T]) Create(ctx context.Context, rec *T) (*T, error) {
	tid, err := tenantOfCtx(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.base(rec)
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.TenantID = &tid
	b.Version = 1
	cp := *rec
	m.rows[b.ID] = &cp
	return rec, nil
}

func (m *memScoped[T]) Update(ctx context.Context, id string, patch func(*T) error) (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.findLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	tenant := m.base(rec).TenantID
	if err := patch(rec); err != nil {
		return nil, err
	}
	b := m.base(rec)
	b.ID, b.TenantID = id, tenant
	b.Version++
	cp := *rec
	m.rows[id] = &cp
	return rec, nil
}

func (m *memScoped[T]) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.findLocked(ctx, id)
	if err != nil {
		return err
	}
	m.base(rec).IsDeleted = true
	m.rows[id] = rec
	return nil
}

func (m *memScoped[T]) InTx(ctx context.Context, fn func(ctx context.Context, s ScopedStore[T]) error) error {
	if _, err := tenantOfCtx(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	snap := make(map[string]*T, len(m.rows))
	for k, v := range m.rows {
		cp := *v
		snap[k] = &cp
	}
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.rows = snap
		m.mu.Unlock()
		return err
	}
	return nil
}

// SoftDeleteWhere lets memScoped double as the satellite store of the tenant service.
func (m *memScoped[T]) SoftDeleteWhere(_ context.Context, filter repository.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.rows {
		b := m.base(rec)
		cols := m.cols(rec)
		cols["tenant_id"] = domain.Deref(b.TenantID)
		if !b.IsDeleted && matches(cols, filter) {
			b.IsDeleted = true
			n++
		}
	}
	return n, nil
}

func (m *memScoped[T]) all() []*T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*T, 0, len(m.rows))
	for _, r := range m.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// matches evaluates the squirrel predicates the services build.
func matches(cols map[string]any, f repository.Filter) bool {
	switch f := f.(type) {
	case nil:
		return true
	case sq.And:
		for _, part := range f {
			if !matches(cols, part) {
				return false
			}
		}
		return true
	case sq.Eq:
		for k, v := range f {
			if fmt.Sprint(cols[k]) != fmt.Sprint(v) {
				return false
			}
		}
		return true
	case sq.NotEq:
		for k, v := range f {
			if fmt.Sprint(cols[k]) == fmt.Sprint(v) {
				return false
			}
		}
		return true
	}
	panic(fmt.Sprintf("unsupported filter %T", f))
}

func addressCols(a *domain.Address) map[string]any {
	return map[string]any{
		"id": a.ID, "entity_id": a.EntityID, "entity_type": a.EntityType,
		"type": a.Type, "is_primary": a.IsPrimary,
	}
}

func contactCols(c *domain.ContactInfo) map[string]any {
	return map[string]any{
		"id": c.ID, "entity_id": c.EntityID, "entity_type": c.EntityType,
		"type": c.Type, "is_primary": c.IsPrimary,
	}
}

type publishedEvent struct {
	topic, key string
	payload    any
	tenantID   string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		return errors.New("publish context already done")
	}
	tid, _ := tenantctx.TenantID(ctx)
	p.events = append(p.events, publishedEvent{topic: topic, key: key, payload: payload, tenantID: tid})
	return p.err
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic+"."+e.key)
	}
	return out
}

type recordingInvalidator struct {
	mu      sync.Mutex
	cleared []string
}

func (r *recordingInvalidator) ClearCache(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, id)
}
