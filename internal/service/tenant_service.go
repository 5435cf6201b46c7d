package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/events"
	"github.com/aryan0dhankhar/tenantcore/internal/observability/metrics"
	"github.com/aryan0dhankhar/tenantcore/internal/observability/tracing"
	"github.com/aryan0dhankhar/tenantcore/internal/repository"
	"github.com/aryan0dhankhar/tenantcore/internal/security/audit"
	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
	"github.com/aryan0dhankhar/tenantcore/pkg/cache"
)

// DefaultIdempotencyTTL is how long an idempotent create is remembered.
const DefaultIdempotencyTTL = 24 * time.Hour

const publishTimeout = 5 * time.Second

// CacheInvalidator drops cached tenant validation verdicts.
type CacheInvalidator interface {
	ClearCache(tenantID string)
}

// TenantServiceConfig tunes TenantService.
type TenantServiceConfig struct {
	IdempotencyTTL time.Duration
	// LenientTransitions allows any status to be written, skipping the lifecycle table.
	LenientTransitions bool
}

// TenantService owns the tenant lifecycle: registration, updates, status and
// verification changes, and removal together with the tenant's satellites.
type TenantService struct {
	tenants   TenantStore
	unit      UnitOfWork
	publisher events.Publisher
	validator CacheInvalidator
	audit     *audit.Logger
	logger    *slog.Logger
	cfg       TenantServiceConfig
	now       func() time.Time

	idempotent *cache.Cache[domain.Tenant]
	inflight   singleflight.Group
}

// NewTenantService wires the service. publisher and validator may be nil.
func NewTenantService(
	tenants TenantStore,
	unit UnitOfWork,
	publisher events.Publisher,
	validator CacheInvalidator,
	auditLog *audit.Logger,
	cfg TenantServiceConfig,
	logger *slog.Logger,
) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = DefaultIdempotencyTTL
	}
	return &TenantService{
		tenants:    tenants,
		unit:       unit,
		publisher:  publisher,
		validator:  validator,
		audit:      auditLog,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		idempotent: cache.New[domain.Tenant](),
	}
}

// IdempotencyCache exposes the remembered creations so the sweeper can purge them.
func (s *TenantService) IdempotencyCache() *cache.Cache[domain.Tenant] {
	return s.idempotent
}

// Get returns a tenant by id. It also satisfies domain.TenantLookup.
func (s *TenantService) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	return s.tenants.FindByID(ctx, id)
}

// Create registers a tenant in PENDING state.
func (s *TenantService) Create(ctx context.Context, in domain.CreateTenantInput) (t *domain.Tenant, err error) {
	ctx, span := tracing.Start(ctx, "TenantService.Create", attribute.String("tenant.subdomain", in.Subdomain))
	defer func() { tracing.End(span, err) }()

	t = in.NewTenant()
	if err := domain.ValidateTenant(t); err != nil {
		return nil, err
	}

	err = s.unit.Do(ctx, func(ctx context.Context, st Stores) error {
		created, err := st.Tenants.Create(ctx, t)
		if err != nil {
			return err
		}
		t = created
		return nil
	})
	if err != nil {
		s.audit.LogResult(ctx, "create", "tenant", "", err)
		return nil, err
	}

	s.audit.LogResult(ctx, "create", "tenant", t.ID, nil)
	s.logger.Info("tenant created", slog.String("tenant_id", t.ID), slog.String("subdomain", t.Subdomain))
	s.publish(ctx, events.TenantCreated, t)
	return t, nil
}

// CreateWithIdempotency creates at most one tenant per key within the idempotency TTL.
// Repeated calls return the first result without touching storage.
func (s *TenantService) CreateWithIdempotency(ctx context.Context, key string, in domain.CreateTenantInput) (*domain.Tenant, error) {
	if key == "" {
		return s.Create(ctx, in)
	}
	if t, ok := s.idempotent.Get(key); ok {
		return t.Clone(), nil
	}

	v, err, _ := s.inflight.Do(key, func() (any, error) {
		if t, ok := s.idempotent.Get(key); ok {
			return &t, nil
		}
		t, err := s.Create(ctx, in)
		if err != nil {
			return nil, err
		}
		s.idempotent.Set(key, *t.Clone(), s.cfg.IdempotencyTTL)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	// singleflight hands the same value to every waiter.
	return v.(*domain.Tenant).Clone(), nil
}

// ListTenantsQuery filters and pages the tenant listing.
type ListTenantsQuery struct {
	Page      int
	PageSize  int
	OrderBy   string
	Direction repository.Direction
	Status    domain.TenantStatus
	Search    string // case-insensitive match on name or subdomain
	IsActive  *bool
}

func (q ListTenantsQuery) filter() (repository.Filter, error) {
	var and sq.And
	if q.Status != "" {
		if !q.Status.Valid() {
			return nil, fmt.Errorf("unknown status %q: %w", q.Status, domain.ErrInvalidInput)
		}
		and = append(and, sq.Eq{"status": q.Status})
	}
	if q.IsActive != nil {
		and = append(and, sq.Eq{"is_active": *q.IsActive})
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
		and = append(and, sq.Or{
			sq.Like{"LOWER(name)": pattern},
			sq.Like{"LOWER(subdomain)": pattern},
		})
	}
	if len(and) == 0 {
		return nil, nil
	}
	return and, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns one page of tenants.
func (s *TenantService) List(ctx context.Context, q ListTenantsQuery) (*repository.Page[domain.Tenant], error) {
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}
	return s.tenants.FindWithPagination(ctx, repository.OffsetOptions{
		Page:      q.Page,
		PageSize:  q.PageSize,
		OrderBy:   q.OrderBy,
		Direction: q.Direction,
		Filter:    filter,
	})
}

// ListByCursor returns the tenants after cursor, using the same filters as List.
func (s *TenantService) ListByCursor(ctx context.Context, q ListTenantsQuery, cursor string) (*repository.CursorPage[domain.Tenant], error) {
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}
	return s.tenants.FindWithCursorPagination(ctx, repository.CursorOptions{
		Cursor:    cursor,
		Size:      q.PageSize,
		OrderBy:   q.OrderBy,
		Direction: q.Direction,
		Filter:    filter,
	})
}

// Update merges the non-nil fields of in into the tenant.
func (s *TenantService) Update(ctx context.Context, id string, in domain.UpdateTenantInput) (*domain.Tenant, error) {
	t, err := s.mutate(ctx, "TenantService.Update", "update", id, func(t *domain.Tenant) error {
		in.ApplyTo(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TenantUpdated, t)
	return t, nil
}

// StatusChange is the payload of a status_changed event.
type StatusChange struct {
	TenantID string              `json:"tenantId"`
	From     domain.TenantStatus `json:"from"`
	To       domain.TenantStatus `json:"to"`
}

// SetStatus moves the tenant to status. Moves outside the lifecycle table fail with
// domain.ErrInvalidStateTransition unless lenient transitions are configured.
func (s *TenantService) SetStatus(ctx context.Context, id string, status domain.TenantStatus) (*domain.Tenant, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, domain.ErrInvalidInput)
	}
	var from domain.TenantStatus
	t, err := s.mutate(ctx, "TenantService.SetStatus", "set_status", id, func(t *domain.Tenant) error {
		from = t.Status
		if !s.cfg.LenientTransitions && !domain.CanTransition(from, status) {
			metrics.ObserveTransition(string(from), string(status), "rejected")
			return &domain.StateTransitionError{From: from, To: status}
		}
		t.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveTransition(string(from), string(status), "applied")
	if from != status {
		s.publish(ctx, events.TenantStatusChanged, StatusChange{TenantID: id, From: from, To: status})
	}
	return t, nil
}

func (s *TenantService) Activate(ctx context.Context, id string) (*domain.Tenant, error) {
	return s.SetStatus(ctx, id, domain.TenantStatusActive)
}

func (s *TenantService) Suspend(ctx context.Context, id string) (*domain.Tenant, error) {
	return s.SetStatus(ctx, id, domain.TenantStatusSuspended)
}

func (s *TenantService) Terminate(ctx context.Context, id string) (*domain.Tenant, error) {
	return s.SetStatus(ctx, id, domain.TenantStatusTerminated)
}

// SetVerificationStatus records a review decision. VERIFIED stamps the verification date.
func (s *TenantService) SetVerificationStatus(ctx context.Context, id string, status domain.VerificationStatus, verifierID string, notes *string) (*domain.Tenant, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown verification status %q: %w", status, domain.ErrInvalidInput)
	}
	t, err := s.mutate(ctx, "TenantService.SetVerificationStatus", "set_verification", id, func(t *domain.Tenant) error {
		t.Verification.Apply(status, verifierID, notes, s.now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TenantVerificationChanged, t)
	return t, nil
}

// SubmitVerificationDocuments attaches document ids to the tenant's verification.
func (s *TenantService) SubmitVerificationDocuments(ctx context.Context, id string, docs []string) (*domain.Tenant, error) {
	clean := make([]string, 0, len(docs))
	for _, d := range docs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if strings.Contains(d, ",") {
			return nil, fmt.Errorf("document id %q contains a comma: %w", d, domain.ErrInvalidInput)
		}
		clean = append(clean, d)
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("no documents supplied: %w", domain.ErrInvalidInput)
	}
	return s.mutate(ctx, "TenantService.SubmitVerificationDocuments", "submit_documents", id, func(t *domain.Tenant) error {
		t.Verification.Documents = append(t.Verification.Documents, clean...)
		t.Verification.Attempted = true
		return nil
	})
}

// Remove soft-deletes every address and contact of the tenant and deletes the tenant row,
// all in one transaction.
func (s *TenantService) Remove(ctx context.Context, id string) (err error) {
	ctx, span := tracing.Start(ctx, "TenantService.Remove", attribute.String("tenant.id", id))
	defer func() { tracing.End(span, err) }()

	t, err := s.tenants.FindByID(ctx, id)
	if err != nil {
		return err
	}

	var satellites int64
	err = s.unit.Do(ctx, func(ctx context.Context, st Stores) error {
		for _, sat := range st.Satellites {
			n, err := sat.SoftDeleteWhere(ctx, sq.Eq{"tenant_id": id})
			if err != nil {
				return err
			}
			satellites += n
		}
		return st.Tenants.HardDelete(ctx, id)
	})
	s.audit.LogResult(ctx, "delete", "tenant", id, err)
	if err != nil {
		return err
	}

	s.clearValidation(id)
	s.logger.Info("tenant removed",
		slog.String("tenant_id", id),
		slog.Int64("satellites", satellites),
	)
	s.publish(ctx, events.TenantDeleted, t)
	return nil
}

// mutate runs patch on the tenant inside a transaction and re-validates the result.
// The tenant reference of a tenant row is always cleared.
func (s *TenantService) mutate(ctx context.Context, spanName, action, id string, patch func(*domain.Tenant) error) (t *domain.Tenant, err error) {
	ctx, span := tracing.Start(ctx, spanName, attribute.String("tenant.id", id))
	defer func() { tracing.End(span, err) }()

	err = s.unit.Do(ctx, func(ctx context.Context, st Stores) error {
		updated, err := st.Tenants.Update(ctx, id, func(t *domain.Tenant) error {
			if err := patch(t); err != nil {
				return err
			}
			t.TenantID = nil
			return domain.ValidateTenant(t)
		})
		if err != nil {
			return err
		}
		t = updated
		return nil
	})
	s.audit.LogResult(ctx, action, "tenant", id, err)
	if err != nil {
		return nil, err
	}
	s.clearValidation(id)
	return t, nil
}

func (s *TenantService) clearValidation(id string) {
	if s.validator != nil {
		s.validator.ClearCache(id)
	}
}

// publish delivers an event after commit. Failures are logged and never retried.
func (s *TenantService) publish(ctx context.Context, routingKey string, payload any) {
	ctx, cancel := context.WithTimeout(tenantctx.Detach(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, events.TopicTenant, routingKey, payload); err != nil {
		s.logger.Warn("failed to publish tenant event",
			slog.String("routing_key", routingKey),
			slog.String("error", err.Error()),
		)
	}
}
