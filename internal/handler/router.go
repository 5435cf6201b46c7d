package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/observability/metrics"
	"github.com/aryan0dhankhar/tenantcore/internal/security"
	"github.com/aryan0dhankhar/tenantcore/internal/security/audit"
	"github.com/aryan0dhankhar/tenantcore/internal/security/auth"
	"github.com/aryan0dhankhar/tenantcore/internal/security/middleware"
	"github.com/aryan0dhankhar/tenantcore/internal/security/ratelimit"
)

const maxBodyBytes = 1 << 20

// RouterDeps collects what the HTTP surface needs.
type RouterDeps struct {
	Tenants   *TenantHandler
	Addresses *SatelliteHandler[domain.Address]
	Contacts  *SatelliteHandler[domain.ContactInfo]
	Health    *HealthHandler

	Tokens    *auth.TokenManager
	Authz     *security.AuthorizationService
	Validator middleware.TenantValidator
	Limiter   *ratelimit.Limiter
	Audit     *audit.Logger

	CORSAllowedOrigins []string
	// TenantContextTTL bounds the tenant scope of one request; zero means no expiry.
	TenantContextTTL time.Duration
	Logger           *slog.Logger
}

// NewRouter wires the public probes, the admin tenant API and the tenant-scoped API.
func NewRouter(d RouterDeps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(log))
	r.Use(metrics.HTTPMetricsMiddleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   d.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, middleware.RequestIDHeader, middleware.TenantIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	r.Use(middleware.RequireJSON(maxBodyBytes, log))

	r.Get("/healthz", d.Health.Health)
	r.Get("/readyz", d.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.JWT(d.Tokens, d.Audit, log))

		r.Route("/tenants", func(r chi.Router) {
			r.Use(middleware.RequirePermission(d.Authz, d.Audit, security.PermManageTenants))
			d.Tenants.Routes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.TenantScope(d.Authz, d.Audit, d.TenantContextTTL))
			r.Use(middleware.RateLimit(d.Limiter))

			r.With(middleware.RequirePermission(d.Authz, d.Audit, security.PermValidateOwnTenant)).
				Get("/tenant/validate", d.Tenants.ValidateCurrent)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireActiveTenant(d.Validator, d.Audit, log))
				r.Use(middleware.RequireReadWrite(d.Authz, d.Audit, security.PermReadSatellites, security.PermManageSatellites))
				r.Route("/addresses", d.Addresses.Routes)
				r.Route("/contacts", d.Contacts.Routes)
			})
		})
	})

	return r
}
