package repository

import (
	"log/slog"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
)

var satelliteSortable = []string{"type", "entity_id", "is_primary"}

// AddressSchema maps domain.Address onto the addresses table.
func AddressSchema() Schema[domain.Address] {
	return Schema[domain.Address]{
		Table:  "addresses",
		Entity: "address",
		Columns: []string{
			"entity_id", "entity_type", "type", "line1", "line2",
			"city", "state", "postal_code", "country", "is_primary",
		},
		Fields: func(a *domain.Address) []any {
			return []any{
				&a.EntityID, &a.EntityType, &a.Type, &a.Line1, &a.Line2,
				&a.City, &a.State, &a.PostalCode, &a.Country, &a.IsPrimary,
			}
		},
		Base:       func(a *domain.Address) *domain.Base { return &a.Base },
		SoftDelete: true,
		Sortable:   append([]string{"city", "country"}, satelliteSortable...),
	}
}

// ContactSchema maps domain.ContactInfo onto the contact_infos table.
func ContactSchema() Schema[domain.ContactInfo] {
	return Schema[domain.ContactInfo]{
		Table:  "contact_infos",
		Entity: "contact",
		Columns: []string{
			"entity_id", "entity_type", "type", "name", "email", "phone", "is_primary",
		},
		Fields: func(c *domain.ContactInfo) []any {
			return []any{
				&c.EntityID, &c.EntityType, &c.Type, &c.Name, &c.Email, &c.Phone, &c.IsPrimary,
			}
		},
		Base:       func(c *domain.ContactInfo) *domain.Base { return &c.Base },
		SoftDelete: true,
		Sortable:   append([]string{"name"}, satelliteSortable...),
	}
}

// NewAddressRepository returns a tenant-scoped address repository.
func NewAddressRepository(db DB, logger *slog.Logger) *Scoped[domain.Address] {
	return NewScoped(New(db, AddressSchema(), logger))
}

// NewContactRepository returns a tenant-scoped contact repository.
func NewContactRepository(db DB, logger *slog.Logger) *Scoped[domain.ContactInfo] {
	return NewScoped(New(db, ContactSchema(), logger))
}
