// Package validation answers "may this tenant be served?" with a short-lived cache in front
// of the tenant store.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/observability/metrics"
	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
	"github.com/aryan0dhankhar/tenantcore/pkg/cache"
)

// Error codes reported in Result.ErrorCode.
const (
	CodeTenantNotFound = "TENANT_NOT_FOUND"
	CodeTenantInactive = "TENANT_INACTIVE"
	CodeLookupFailed   = "LOOKUP_FAILED"
)

// DefaultCacheTTL bounds how stale a cached verdict may be.
const DefaultCacheTTL = 60 * time.Second

// Result is the detailed outcome of validating one tenant.
type Result struct {
	TenantID     string            `json:"tenantId"`
	Exists       bool              `json:"exists"`
	IsActive     bool              `json:"isActive"`
	IsValid      bool              `json:"isValid"`
	ErrorCode    string            `json:"errorCode,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	ValidatedAt  time.Time         `json:"validatedAt"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Hook observes validations. Errors and panics from hooks are logged and dropped.
type Hook interface {
	BeforeValidate(ctx context.Context, tenantID string, res *Result) error
	AfterValidate(ctx context.Context, tenantID string, res *Result) error
}

// LookupFunc adapts a function to domain.TenantLookup.
type LookupFunc func(ctx context.Context, id string) (*domain.Tenant, error)

func (f LookupFunc) Get(ctx context.Context, id string) (*domain.Tenant, error) { return f(ctx, id) }

// Config tunes a Validator.
type Config struct {
	CacheTTL         time.Duration
	BatchConcurrency int
}

type mode string

const (
	modeActive mode = "active"
	modeExists mode = "exists"
)

// Validator checks tenant existence and activity.
type Validator struct {
	lookup      domain.TenantLookup
	cache       *cache.Cache[Result]
	ttl         time.Duration
	concurrency int
	logger      *slog.Logger

	mu    sync.RWMutex
	hooks []Hook
}

// New creates a validator over lookup.
func New(lookup domain.TenantLookup, cfg Config, logger *slog.Logger) *Validator {
	return newValidator(lookup, cache.New[Result](), cfg, logger)
}

func newValidator(lookup domain.TenantLookup, c *cache.Cache[Result], cfg Config, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 8
	}
	return &Validator{
		lookup:      lookup,
		cache:       c,
		ttl:         cfg.CacheTTL,
		concurrency: cfg.BatchConcurrency,
		logger:      logger,
	}
}

// AddHook registers h for every subsequent validation.
func (v *Validator) AddHook(h Hook) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hooks = append(v.hooks, h)
}

// ValidateActive reports whether the tenant exists and is operational. An empty tenantID
// resolves from the tenant scope in ctx.
func (v *Validator) ValidateActive(ctx context.Context, tenantID string, skipCache bool) (bool, error) {
	id, err := v.resolve(ctx, tenantID)
	if err != nil {
		return false, err
	}
	res, err := v.validate(ctx, id, modeActive, skipCache)
	return res.IsValid, err
}

// ValidateExists reports whether the tenant exists, whatever its status.
func (v *Validator) ValidateExists(ctx context.Context, tenantID string, skipCache bool) (bool, error) {
	id, err := v.resolve(ctx, tenantID)
	if err != nil {
		return false, err
	}
	res, err := v.validate(ctx, id, modeExists, skipCache)
	return res.IsValid, err
}

// BatchValidate checks every id concurrently for activity. One failing id never stops
// the others; each outcome is reported in the returned map.
func (v *Validator) BatchValidate(ctx context.Context, ids []string, skipCache bool) map[string]*Result {
	out := make(map[string]*Result, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			res, _ := v.validate(gctx, id, modeActive, skipCache)
			mu.Lock()
			out[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// ClearCache drops the cached verdicts for tenantID, or all of them when tenantID is empty.
func (v *Validator) ClearCache(tenantID string) {
	if tenantID == "" {
		v.cache.Clear()
		return
	}
	v.cache.Invalidate(tenantID + "|")
}

// Purge evicts expired verdicts and returns how many were removed.
func (v *Validator) Purge() int { return v.cache.Purge() }

// Len returns the number of cached verdicts.
func (v *Validator) Len() int { return v.cache.Len() }

// cacheKey prefixes by tenant so ClearCache can drop every mode at once.
func cacheKey(m mode, id string) string {
	return id + "|" + string(m)
}

func (v *Validator) resolve(ctx context.Context, tenantID string) (string, error) {
	if tenantID != "" {
		return tenantID, nil
	}
	tc, err := tenantctx.Current(ctx)
	if err != nil {
		var expired *domain.ContextExpiredError
		if errors.As(err, &expired) {
			v.logger.Warn("tenant context expired, treating as absent", slog.String("tenant_id", expired.TenantID))
		}
		return "", domain.ErrMissingTenantContext
	}
	if tc == nil || tc.TenantID == "" {
		return "", domain.ErrMissingTenantContext
	}
	return tc.TenantID, nil
}

func (v *Validator) validate(ctx context.Context, id string, m mode, skipCache bool) (*Result, error) {
	res := &Result{TenantID: id}
	v.runHooks(ctx, id, res, Hook.BeforeValidate, "before")

	key := cacheKey(m, id)
	if !skipCache {
		if cached, ok := v.cache.Get(key); ok {
			metrics.ObserveTenantValidation("valid", "cache")
			*res = cached
			v.runHooks(ctx, id, res, Hook.AfterValidate, "after")
			return res, nil
		}
	}

	err := v.check(ctx, id, m, res)
	res.ValidatedAt = time.Now().UTC()
	if err == nil {
		res.IsValid = true
		v.cache.Set(key, *res, v.ttl)
		metrics.ObserveTenantValidation("valid", "lookup")
	} else {
		res.ErrorMessage = err.Error()
		metrics.ObserveTenantValidation(res.ErrorCode, "lookup")
	}

	v.runHooks(ctx, id, res, Hook.AfterValidate, "after")
	return res, err
}

func (v *Validator) check(ctx context.Context, id string, m mode, res *Result) error {
	t, err := v.lookup.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrTenantNotFound) {
			res.ErrorCode = CodeTenantNotFound
			return fmt.Errorf("tenant %q: %w", id, domain.ErrTenantNotFound)
		}
		res.ErrorCode = CodeLookupFailed
		v.logger.Error("tenant lookup failed", slog.String("tenant_id", id), slog.String("error", err.Error()))
		return domain.Internal(err)
	}

	res.Exists = true
	res.IsActive = t.Operational()
	res.Metadata = map[string]string{
		"subdomain": t.Subdomain,
		"status":    string(t.Status),
	}
	if m == modeActive && !res.IsActive {
		res.ErrorCode = CodeTenantInactive
		return fmt.Errorf("tenant %q is %s: %w", id, t.Status, domain.ErrTenantInactive)
	}
	return nil
}

func (v *Validator) runHooks(ctx context.Context, id string, res *Result, call func(Hook, context.Context, string, *Result) error, stage string) {
	v.mu.RLock()
	hooks := v.hooks
	v.mu.RUnlock()

	for _, h := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					v.logger.Error("validation hook panicked",
						slog.String("stage", stage),
						slog.String("tenant_id", id),
						slog.Any("panic", r),
					)
				}
			}()
			if err := call(h, ctx, id, res); err != nil {
				v.logger.Warn("validation hook failed",
					slog.String("stage", stage),
					slog.String("tenant_id", id),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
}
