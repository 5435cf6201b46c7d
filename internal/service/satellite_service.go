package service

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/repository"
	"github.com/aryan0dhankhar/tenantcore/internal/security/audit"
)

// satelliteKind describes one record type attached to an owning entity.
type satelliteKind[T any] struct {
	resource string
	base     func(*T) *domain.Base
	validate func(*T) error
	// group returns the owner and sub-type that at most one primary record may share.
	group   func(*T) (entityID string, entityType domain.EntityType, kind string)
	primary func(*T) *bool
}

// SatelliteService manages tenant-scoped records attached to an owning entity.
// Within one (entity, type) group at most one record is primary.
type SatelliteService[T any] struct {
	store  ScopedStore[T]
	kind   satelliteKind[T]
	audit  *audit.Logger
	logger *slog.Logger
}

type (
	AddressService = SatelliteService[domain.Address]
	ContactService = SatelliteService[domain.ContactInfo]
)

// NewAddressService manages addresses.
func NewAddressService(store ScopedStore[domain.Address], auditLog *audit.Logger, logger *slog.Logger) *AddressService {
	return newSatelliteService(store, satelliteKind[domain.Address]{
		resource: "address",
		base:     func(a *domain.Address) *domain.Base { return &a.Base },
		validate: domain.ValidateAddress,
		group: func(a *domain.Address) (string, domain.EntityType, string) {
			return a.EntityID, a.EntityType, string(a.Type)
		},
		primary: func(a *domain.Address) *bool { return &a.IsPrimary },
	}, auditLog, logger)
}

// NewContactService manages contacts.
func NewContactService(store ScopedStore[domain.ContactInfo], auditLog *audit.Logger, logger *slog.Logger) *ContactService {
	return newSatelliteService(store, satelliteKind[domain.ContactInfo]{
		resource: "contact",
		base:     func(c *domain.ContactInfo) *domain.Base { return &c.Base },
		validate: domain.ValidateContact,
		group: func(c *domain.ContactInfo) (string, domain.EntityType, string) {
			return c.EntityID, c.EntityType, string(c.Type)
		},
		primary: func(c *domain.ContactInfo) *bool { return &c.IsPrimary },
	}, auditLog, logger)
}

func newSatelliteService[T any](store ScopedStore[T], kind satelliteKind[T], auditLog *audit.Logger, logger *slog.Logger) *SatelliteService[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &SatelliteService[T]{store: store, kind: kind, audit: auditLog, logger: logger}
}

// Create stores rec for the current tenant.
func (s *SatelliteService[T]) Create(ctx context.Context, rec *T) (*T, error) {
	if err := s.kind.validate(rec); err != nil {
		return nil, err
	}
	var out *T
	err := s.store.InTx(ctx, func(ctx context.Context, tx ScopedStore[T]) error {
		created, err := tx.Create(ctx, rec)
		if err != nil {
			return err
		}
		out = created
		return s.demoteOthers(ctx, tx, created)
	})
	id := ""
	if out != nil {
		id = s.kind.base(out).ID
	}
	s.audit.LogResult(ctx, "create", s.kind.resource, id, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one record of the current tenant.
func (s *SatelliteService[T]) Get(ctx context.Context, id string) (*T, error) {
	return s.store.FindByID(ctx, id)
}

// ListForEntity pages through the records attached to one owner. Owner ids are UUIDs.
func (s *SatelliteService[T]) ListForEntity(ctx context.Context, entityType domain.EntityType, entityID string, opts repository.OffsetOptions) (*repository.Page[T], error) {
	if _, err := uuid.Parse(entityID); err != nil {
		return nil, fmt.Errorf("entity id %q is not a UUID: %w", entityID, domain.ErrInvalidInput)
	}
	owner := sq.Eq{"entity_type": entityType, "entity_id": entityID}
	if opts.Filter != nil {
		opts.Filter = sq.And{owner, opts.Filter}
	} else {
		opts.Filter = owner
	}
	return s.store.FindWithPagination(ctx, opts)
}

// Update applies patch and re-validates. Making a record primary demotes its siblings.
func (s *SatelliteService[T]) Update(ctx context.Context, id string, patch func(*T) error) (*T, error) {
	var out *T
	err := s.store.InTx(ctx, func(ctx context.Context, tx ScopedStore[T]) error {
		updated, err := tx.Update(ctx, id, func(rec *T) error {
			if err := patch(rec); err != nil {
				return err
			}
			return s.kind.validate(rec)
		})
		if err != nil {
			return err
		}
		out = updated
		return s.demoteOthers(ctx, tx, updated)
	})
	s.audit.LogResult(ctx, "update", s.kind.resource, id, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetPrimary makes the record the primary one of its group.
func (s *SatelliteService[T]) SetPrimary(ctx context.Context, id string) (*T, error) {
	return s.Update(ctx, id, func(rec *T) error {
		*s.kind.primary(rec) = true
		return nil
	})
}

// Remove soft-deletes one record of the current tenant.
func (s *SatelliteService[T]) Remove(ctx context.Context, id string) error {
	err := s.store.Remove(ctx, id)
	s.audit.LogResult(ctx, "delete", s.kind.resource, id, err)
	return err
}

// demoteOthers clears the primary flag on siblings of rec when rec is primary.
func (s *SatelliteService[T]) demoteOthers(ctx context.Context, tx ScopedStore[T], rec *T) error {
	if !*s.kind.primary(rec) {
		return nil
	}
	entityID, entityType, kind := s.kind.group(rec)
	self := s.kind.base(rec).ID

	siblings, err := tx.Find(ctx, sq.And{
		sq.Eq{"entity_id": entityID, "entity_type": entityType, "type": kind, "is_primary": true},
		sq.NotEq{"id": self},
	})
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		sibID := s.kind.base(sib).ID
		if _, err := tx.Update(ctx, sibID, func(r *T) error {
			*s.kind.primary(r) = false
			return nil
		}); err != nil {
			return err
		}
		s.logger.Debug("primary flag moved",
			slog.String("resource", s.kind.resource),
			slog.String("from", sibID),
			slog.String("to", self),
		)
	}
	return nil
}
