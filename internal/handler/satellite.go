package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/repository"
)

// SatelliteAPI is a satellite service as seen by the HTTP layer.
type SatelliteAPI[T any] interface {
	Create(ctx context.Context, rec *T) (*T, error)
	Get(ctx context.Context, id string) (*T, error)
	ListForEntity(ctx context.Context, entityType domain.EntityType, entityID string, opts repository.OffsetOptions) (*repository.Page[T], error)
	Update(ctx context.Context, id string, patch func(*T) error) (*T, error)
	SetPrimary(ctx context.Context, id string) (*T, error)
	Remove(ctx context.Context, id string) error
}

// SatelliteHandler serves CRUD for records attached to an owning entity. Every call runs
// inside the caller's tenant scope.
type SatelliteHandler[T any] struct {
	svc    SatelliteAPI[T]
	base   func(*T) *domain.Base
	logger *slog.Logger
}

func NewAddressHandler(svc SatelliteAPI[domain.Address], logger *slog.Logger) *SatelliteHandler[domain.Address] {
	return newSatelliteHandler(svc, func(a *domain.Address) *domain.Base { return &a.Base }, logger)
}

func NewContactHandler(svc SatelliteAPI[domain.ContactInfo], logger *slog.Logger) *SatelliteHandler[domain.ContactInfo] {
	return newSatelliteHandler(svc, func(c *domain.ContactInfo) *domain.Base { return &c.Base }, logger)
}

func newSatelliteHandler[T any](svc SatelliteAPI[T], base func(*T) *domain.Base, logger *slog.Logger) *SatelliteHandler[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &SatelliteHandler[T]{svc: svc, base: base, logger: logger}
}

func (h *SatelliteHandler[T]) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Put("/primary", h.SetPrimary)
	})
}

// Create stores the decoded record. Bookkeeping columns in the body are ignored.
func (h *SatelliteHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	rec := new(T)
	if err := decodeJSON(r, rec); err != nil {
		writeError(w, h.logger, err)
		return
	}
	*h.base(rec) = domain.Base{}
	out, err := h.svc.Create(r.Context(), rec)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *SatelliteHandler[T]) Get(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// List pages the records of one owner: ?entityType=TENANT&entityId=...
func (h *SatelliteHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	entityType := domain.EntityType(strings.ToUpper(v.Get("entityType")))
	entityID := v.Get("entityId")
	if entityType == "" || entityID == "" {
		writeError(w, h.logger, fmt.Errorf("entityType and entityId are required: %w", domain.ErrInvalidInput))
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	size, err := queryInt(r, "pageSize")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out, err := h.svc.ListForEntity(r.Context(), entityType, entityID, repository.OffsetOptions{
		Page:      page,
		PageSize:  size,
		OrderBy:   v.Get("orderBy"),
		Direction: repository.ParseDirection(v.Get("direction")),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Update merges the JSON body into the stored record. Fields absent from the body keep
// their value; bookkeeping columns cannot be changed.
func (h *SatelliteHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !json.Valid(body) {
		writeError(w, h.logger, fmt.Errorf("body is not valid JSON: %w", domain.ErrInvalidInput))
		return
	}
	out, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), func(rec *T) error {
		kept := *h.base(rec)
		if kept.TenantID != nil {
			tid := *kept.TenantID
			kept.TenantID = &tid
		}
		if err := json.Unmarshal(body, rec); err != nil {
			return fmt.Errorf("invalid patch: %v: %w", err, domain.ErrInvalidInput)
		}
		*h.base(rec) = kept
		return nil
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SatelliteHandler[T]) SetPrimary(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.SetPrimary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SatelliteHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
