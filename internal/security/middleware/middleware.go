package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/security"
	"github.com/aryan0dhankhar/tenantcore/internal/security/audit"
	"github.com/aryan0dhankhar/tenantcore/internal/security/auth"
	"github.com/aryan0dhankhar/tenantcore/internal/security/ratelimit"
	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// TenantIDHeader selects the tenant scope explicitly.
const TenantIDHeader = "X-Tenant-ID"

type ClaimsContextKey struct{}

// TenantValidator is the subset of validation.Validator the middleware needs.
type TenantValidator interface {
	ValidateActive(ctx context.Context, tenantID string, skipCache bool) (bool, error)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger stamps every request with an id and logs it once it completes.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(audit.WithRequestID(r.Context(), id)))

			log.Info("request",
				slog.String("request_id", id),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// JWT authenticates the bearer token and stores its claims in the request context.
func JWT(tm *auth.TokenManager, auditLog *audit.Logger, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth")
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid auth")
				return
			}

			claims, err := tm.Validate(tokenString)
			if err != nil {
				log.Debug("token rejected", slog.String("error", err.Error()))
				auditLog.LogDenied(r.Context(), "invalid token")
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			ctx = audit.WithActor(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantScope enters the tenant scope named by the token. A TenantIDHeader may pick
// another tenant when the caller's role allows it; platform admins use it to act inside
// any tenant. Requests that end up with no tenant are rejected.
func TenantScope(authz *security.AuthorizationService, auditLog *audit.Logger, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth")
				return
			}
			tenantID := claims.TenantID
			if requested := strings.TrimSpace(r.Header.Get(TenantIDHeader)); requested != "" {
				if err := authz.ValidateTenantAccess(security.Role(claims.Role), claims.TenantID, requested); err != nil {
					auditLog.LogDenied(r.Context(), "tenant "+requested)
					writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "forbidden")
					return
				}
				tenantID = requested
			}
			if tenantID == "" {
				writeJSONError(w, http.StatusBadRequest, "MISSING_TENANT_CONTEXT", domain.ErrMissingTenantContext.Error())
				return
			}
			ctx := tenantctx.WithTenant(r.Context(), tenantID,
				tenantctx.WithTTL(ttl),
				tenantctx.WithMetadata(map[string]string{
					"request_id": audit.RequestID(r.Context()),
					"subject":    claims.Subject,
					"role":       claims.Role,
				}),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActiveTenant rejects requests whose scoped tenant is missing, inactive, suspended
// or terminated.
func RequireActiveTenant(v TenantValidator, auditLog *audit.Logger, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := v.ValidateActive(r.Context(), "", false)
			switch {
			case ok:
				next.ServeHTTP(w, r)
			case errors.Is(err, domain.ErrMissingTenantContext):
				writeJSONError(w, http.StatusBadRequest, "MISSING_TENANT_CONTEXT", err.Error())
			case errors.Is(err, domain.ErrTenantNotFound):
				auditLog.LogDenied(r.Context(), "tenant not found")
				writeJSONError(w, http.StatusForbidden, "TENANT_NOT_FOUND", "tenant not found")
			case errors.Is(err, domain.ErrTenantInactive):
				auditLog.LogDenied(r.Context(), "tenant inactive")
				writeJSONError(w, http.StatusForbidden, "TENANT_INACTIVE", "tenant is not active")
			default:
				if err != nil {
					log.Error("tenant validation failed", slog.String("error", err.Error()))
				}
				writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
			}
		})
	}
}

// RateLimit applies the per-tenant limiter to requests inside a tenant scope.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, _ := tenantctx.TenantID(r.Context())
			if !limiter.Allow(tenantID) {
				writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission lets the request through only when the caller's role grants perm.
func RequirePermission(authz *security.AuthorizationService, auditLog *audit.Logger, perm security.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth")
				return
			}
			if err := authz.ValidatePermission(security.Role(claims.Role), perm); err != nil {
				auditLog.LogDenied(r.Context(), string(perm))
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(ClaimsContextKey{}).(*auth.Claims)
	return c
}

// RequireReadWrite checks read on GET and HEAD requests and write on everything else.
func RequireReadWrite(authz *security.AuthorizationService, auditLog *audit.Logger, read, write security.Permission) func(http.Handler) http.Handler {
	readMW := RequirePermission(authz, auditLog, read)
	writeMW := RequirePermission(authz, auditLog, write)
	return func(next http.Handler) http.Handler {
		readH, writeH := readMW(next), writeMW(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				readH.ServeHTTP(w, r)
				return
			}
			writeH.ServeHTTP(w, r)
		})
	}
}
