package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/security"
	"github.com/aryan0dhankhar/tenantcore/internal/security/audit"
	"github.com/aryan0dhankhar/tenantcore/internal/security/auth"
	"github.com/aryan0dhankhar/tenantcore/internal/security/ratelimit"
	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
)

type stubValidator struct {
	ok  bool
	err error
	got string
}

func (s *stubValidator) ValidateActive(ctx context.Context, _ string, _ bool) (bool, error) {
	s.got, _ = tenantctx.TenantID(ctx)
	return s.ok, s.err
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func bearer(t *testing.T, tm *auth.TokenManager, tenantID, role string) string {
	t.Helper()
	tok, err := tm.Generate("user-1", tenantID, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestTenantChain(t *testing.T) {
	tm := auth.NewTokenManager("secret", "")
	v := &stubValidator{ok: true}
	var seen string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = tenantctx.TenantID(r.Context())
		assert.Equal(t, "user-1", audit.Actor(r.Context()))
		assert.NotEmpty(t, audit.RequestID(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}),
		RequestLogger(nil),
		JWT(tm, nil, nil),
		TenantScope(security.NewAuthorizationService(nil), nil, 0),
		RequireActiveTenant(v, nil, nil),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/addresses", nil)
	req.Header.Set("Authorization", bearer(t, tm, "t-1", auth.RoleUser))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "t-1", seen)
	assert.Equal(t, "t-1", v.got)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestJWTRejects(t *testing.T) {
	tm := auth.NewTokenManager("secret", "")
	h := JWT(tm, nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}

func TestTenantScopeRequiresTenantClaim(t *testing.T) {
	tm := auth.NewTokenManager("secret", "")
	h := chain(http.NotFoundHandler(), JWT(tm, nil, nil), TenantScope(security.NewAuthorizationService(nil), nil, 0))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", bearer(t, tm, "", auth.RoleAdmin))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_TENANT_CONTEXT")
}

func TestTenantScopeHeader(t *testing.T) {
	tm := auth.NewTokenManager("secret", "")
	var seen string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = tenantctx.TenantID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}), JWT(tm, nil, nil), TenantScope(security.NewAuthorizationService(nil), nil, 0))

	cases := []struct {
		name     string
		tenant   string
		role     string
		header   string
		status   int
		expected string
	}{
		{"admin acts for a tenant", "", auth.RoleAdmin, "t-9", http.StatusNoContent, "t-9"},
		{"own tenant in header", "t-1", auth.RoleUser, "t-1", http.StatusNoContent, "t-1"},
		{"foreign tenant in header", "t-1", auth.RoleTenantAdmin, "t-2", http.StatusForbidden, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", bearer(t, tm, tc.tenant, tc.role))
			req.Header.Set(TenantIDHeader, tc.header)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.expected, seen)
		})
	}
}

func TestRequireActiveTenantStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrTenantInactive, http.StatusForbidden, "TENANT_INACTIVE"},
		{domain.ErrTenantNotFound, http.StatusForbidden, "TENANT_NOT_FOUND"},
		{domain.ErrMissingTenantContext, http.StatusBadRequest, "MISSING_TENANT_CONTEXT"},
		{domain.Internal(assert.AnError), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		h := RequireActiveTenant(&stubValidator{err: tc.err}, nil, nil)(http.NotFoundHandler())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, tc.status, rec.Code)
		assert.Contains(t, rec.Body.String(), tc.code)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(1)
	defer limiter.Stop()
	h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ctx := tenantctx.WithTenant(context.Background(), "t-1")
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		assert.Equal(t, want, rec.Code, i)
	}
}

func TestRequirePermission(t *testing.T) {
	tm := auth.NewTokenManager("secret", "")
	authz := security.NewAuthorizationService(nil)
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), JWT(tm, nil, nil), RequirePermission(authz, nil, security.PermManageTenants))

	for role, want := range map[string]int{auth.RoleAdmin: http.StatusOK, auth.RoleTenantAdmin: http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", bearer(t, tm, "t-1", role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
}

func TestRequireJSON(t *testing.T) {
	h := RequireJSON(16, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
