package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/repository"
	"github.com/aryan0dhankhar/tenantcore/internal/security/audit"
	"github.com/aryan0dhankhar/tenantcore/internal/service"
	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
	"github.com/aryan0dhankhar/tenantcore/internal/validation"
)

// IdempotencyKeyHeader makes tenant creation safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxBatchValidate caps the ids accepted by one batch validation request.
const maxBatchValidate = 500

// TenantAPI is the tenant service as seen by the HTTP layer.
type TenantAPI interface {
	Get(ctx context.Context, id string) (*domain.Tenant, error)
	CreateWithIdempotency(ctx context.Context, key string, in domain.CreateTenantInput) (*domain.Tenant, error)
	List(ctx context.Context, q service.ListTenantsQuery) (*repository.Page[domain.Tenant], error)
	ListByCursor(ctx context.Context, q service.ListTenantsQuery, cursor string) (*repository.CursorPage[domain.Tenant], error)
	Update(ctx context.Context, id string, in domain.UpdateTenantInput) (*domain.Tenant, error)
	SetStatus(ctx context.Context, id string, status domain.TenantStatus) (*domain.Tenant, error)
	SetVerificationStatus(ctx context.Context, id string, status domain.VerificationStatus, verifierID string, notes *string) (*domain.Tenant, error)
	SubmitVerificationDocuments(ctx context.Context, id string, docs []string) (*domain.Tenant, error)
	Remove(ctx context.Context, id string) error
}

// BatchValidator reports detailed validation results.
type BatchValidator interface {
	BatchValidate(ctx context.Context, ids []string, skipCache bool) map[string]*validation.Result
}

// TenantHandler serves the tenant administration API and tenant self-validation.
type TenantHandler struct {
	tenants   TenantAPI
	validator BatchValidator
	logger    *slog.Logger
}

func NewTenantHandler(tenants TenantAPI, validator BatchValidator, logger *slog.Logger) *TenantHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantHandler{tenants: tenants, validator: validator, logger: logger}
}

// Routes mounts the admin endpoints under /api/tenants.
func (h *TenantHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Post("/validate", h.BatchValidate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Put("/status", h.SetStatus)
		r.Put("/verification", h.SetVerification)
		r.Post("/verification/documents", h.SubmitDocuments)
	})
}

// Create handles POST /api/tenants.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateTenantInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	t, err := h.tenants.CreateWithIdempotency(r.Context(), key, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/tenants/{id}.
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// List handles GET /api/tenants. Passing a cursor parameter, even empty, switches to
// cursor pagination.
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if r.URL.Query().Has("cursor") {
		page, err := h.tenants.ListByCursor(r.Context(), q, r.URL.Query().Get("cursor"))
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}
	page, err := h.tenants.List(r.Context(), q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func listQuery(r *http.Request) (service.ListTenantsQuery, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return service.ListTenantsQuery{}, err
	}
	size, err := queryInt(r, "pageSize")
	if err != nil {
		return service.ListTenantsQuery{}, err
	}
	active, err := queryBool(r, "isActive")
	if err != nil {
		return service.ListTenantsQuery{}, err
	}
	v := r.URL.Query()
	return service.ListTenantsQuery{
		Page:      page,
		PageSize:  size,
		OrderBy:   v.Get("orderBy"),
		Direction: repository.ParseDirection(v.Get("direction")),
		Status:    domain.TenantStatus(strings.ToUpper(v.Get("status"))),
		Search:    v.Get("search"),
		IsActive:  active,
	}, nil
}

// Update handles PATCH /api/tenants/{id}.
func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in domain.UpdateTenantInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	t, err := h.tenants.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/tenants/{id}.
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.tenants.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status domain.TenantStatus `json:"status"`
}

// SetStatus handles PUT /api/tenants/{id}/status.
func (h *TenantHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	t, err := h.tenants.SetStatus(r.Context(), chi.URLParam(r, "id"), domain.TenantStatus(strings.ToUpper(string(req.Status))))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type verificationRequest struct {
	Status domain.VerificationStatus `json:"status"`
	Notes  *string                   `json:"notes,omitempty"`
}

// SetVerification handles PUT /api/tenants/{id}/verification. The verifier is the
// authenticated caller.
func (h *TenantHandler) SetVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	status := domain.VerificationStatus(strings.ToUpper(string(req.Status)))
	t, err := h.tenants.SetVerificationStatus(r.Context(), chi.URLParam(r, "id"), status, audit.Actor(r.Context()), req.Notes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type documentsRequest struct {
	Documents []string `json:"documents"`
}

// SubmitDocuments handles POST /api/tenants/{id}/verification/documents.
func (h *TenantHandler) SubmitDocuments(w http.ResponseWriter, r *http.Request) {
	var req documentsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	t, err := h.tenants.SubmitVerificationDocuments(r.Context(), chi.URLParam(r, "id"), req.Documents)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type batchValidateRequest struct {
	TenantIDs []string `json:"tenantIds"`
	SkipCache bool     `json:"skipCache"`
}

// BatchValidate handles POST /api/tenants/validate.
func (h *TenantHandler) BatchValidate(w http.ResponseWriter, r *http.Request) {
	var req batchValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(req.TenantIDs) == 0 || len(req.TenantIDs) > maxBatchValidate {
		writeError(w, h.logger, fmt.Errorf("tenantIds must hold 1 to %d ids: %w", maxBatchValidate, domain.ErrInvalidInput))
		return
	}
	writeJSON(w, http.StatusOK, h.validator.BatchValidate(r.Context(), req.TenantIDs, req.SkipCache))
}

// ValidateCurrent handles GET /api/tenant/validate for the tenant in the caller's scope.
func (h *TenantHandler) ValidateCurrent(w http.ResponseWriter, r *http.Request) {
	id, err := tenantctx.Require(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	skip, err := queryBool(r, "skipCache")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	res := h.validator.BatchValidate(r.Context(), []string{id}, skip != nil && *skip)[id]
	writeJSON(w, http.StatusOK, res)
}
