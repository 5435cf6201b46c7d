// Package tenantctx carries the current tenant through a request.
//
// The scope lives in a context.Context value, so every goroutine working on behalf of a
// request sees the tenant it was handed and nothing else. Entering a nested scope derives
// a child context; the parent is never mutated, so returning from the nested call restores
// the outer tenant automatically.
package tenantctx

import (
	"context"
	"maps"
	"time"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
)

type contextKey struct{}

// Context is the tenant scope attached to a request.
type Context struct {
	TenantID  string
	Metadata  map[string]string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the scope has outlived its TTL at time now.
func (c *Context) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

func (c *Context) clone() *Context {
	out := *c
	out.Metadata = maps.Clone(c.Metadata)
	if c.ExpiresAt != nil {
		exp := *c.ExpiresAt
		out.ExpiresAt = &exp
	}
	return &out
}

// Option configures a new scope.
type Option func(*Context)

// WithMetadata attaches request metadata to the scope. The map is copied.
func WithMetadata(md map[string]string) Option {
	return func(c *Context) { c.Metadata = maps.Clone(md) }
}

// WithTTL makes the scope expire after d. Expiry is checked when the scope is read.
func WithTTL(d time.Duration) Option {
	return func(c *Context) {
		if d <= 0 {
			return
		}
		exp := c.CreatedAt.Add(d)
		c.ExpiresAt = &exp
	}
}

// now is replaced in tests.
var now = time.Now

// WithTenant returns a child of ctx scoped to tenantID.
func WithTenant(ctx context.Context, tenantID string, opts ...Option) context.Context {
	tc := &Context{TenantID: tenantID, CreatedAt: now()}
	for _, opt := range opts {
		opt(tc)
	}
	return context.WithValue(ctx, contextKey{}, tc)
}

// Run executes fn inside a scope for tenantID and returns fn's error unchanged.
func Run(ctx context.Context, tenantID string, fn func(context.Context) error, opts ...Option) error {
	return fn(WithTenant(ctx, tenantID, opts...))
}

// RunValue is Run for functions that produce a value.
func RunValue[T any](ctx context.Context, tenantID string, fn func(context.Context) (T, error), opts ...Option) (T, error) {
	return fn(WithTenant(ctx, tenantID, opts...))
}

// Current returns a copy of the nearest scope. It returns nil, nil when ctx carries no
// scope and a *domain.ContextExpiredError when the scope's TTL has elapsed.
func Current(ctx context.Context) (*Context, error) {
	tc, ok := ctx.Value(contextKey{}).(*Context)
	if !ok || tc == nil {
		return nil, nil
	}
	if tc.Expired(now()) {
		return nil, &domain.ContextExpiredError{TenantID: tc.TenantID}
	}
	return tc.clone(), nil
}

// TenantID returns the tenant of the nearest live scope.
func TenantID(ctx context.Context) (string, bool) {
	tc, err := Current(ctx)
	if err != nil || tc == nil || tc.TenantID == "" {
		return "", false
	}
	return tc.TenantID, true
}

// Require returns the current tenant id or domain.ErrTenantRequired.
func Require(ctx context.Context) (string, error) {
	id, ok := TenantID(ctx)
	if !ok {
		return "", domain.ErrTenantRequired
	}
	return id, nil
}

// Bind captures the scope active in ctx and returns a function that always runs fn under
// that scope, whatever scope the caller of the returned function is in. Cancellation and
// deadlines still come from the caller.
func Bind(ctx context.Context, fn func(context.Context) error) func(context.Context) error {
	captured, _ := ctx.Value(contextKey{}).(*Context)
	if captured != nil {
		captured = captured.clone()
	}
	return func(callCtx context.Context) error {
		if captured == nil {
			return fn(context.WithValue(callCtx, contextKey{}, (*Context)(nil)))
		}
		return fn(context.WithValue(callCtx, contextKey{}, captured.clone()))
	}
}

// Detach returns a context that keeps ctx's scope but not its cancellation. It is used for
// work that must outlive the request, such as publishing events after a commit.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
