package repository

import (
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
)

// TenantSchema maps domain.Tenant onto the tenants table.
func TenantSchema() Schema[domain.Tenant] {
	return Schema[domain.Tenant]{
		Table:  "tenants",
		Entity: "tenant",
		Columns: []string{
			"name", "subdomain", "identifier", "legal_name", "description", "website",
			"primary_email", "primary_phone", "is_active", "status",
			"verification_status", "verification_date", "verification_verifier_id",
			"verification_notes", "verification_documents", "verification_attempted",
			"business_type", "business_scale", "industry", "founded_date", "employee_count",
			"gst_number", "pan_number", "tan_number", "msme_number",
		},
		Fields: func(t *domain.Tenant) []any {
			v, b, reg := &t.Verification, &t.Business, &t.Registration
			return []any{
				&t.Name, &t.Subdomain, &t.Identifier, &t.LegalName, &t.Description, &t.Website,
				&t.PrimaryEmail, &t.PrimaryPhone, &t.IsActive, &t.Status,
				&v.Status, &v.Date, &v.VerifierID,
				&v.Notes, commaList{&v.Documents}, &v.Attempted,
				&b.Type, &b.Scale, &b.Industry, &b.FoundedDate, &b.EmployeeCount,
				&reg.GSTNumber, &reg.PANNumber, &reg.TANNumber, &reg.MSMENumber,
			}
		},
		Base:       func(t *domain.Tenant) *domain.Base { return &t.Base },
		SoftDelete: true,
		Sortable:   []string{"name", "subdomain", "status"},
	}
}

// TenantRepository adds lookups by the tenant's unique keys.
type TenantRepository struct {
	*Repository[domain.Tenant]
}

// NewTenantRepository creates a tenant repository over db.
func NewTenantRepository(db DB, logger *slog.Logger) *TenantRepository {
	return &TenantRepository{Repository: New(db, TenantSchema(), logger)}
}

// WithTx returns a copy bound to tx.
func (r *TenantRepository) WithTx(tx Querier) *TenantRepository {
	return &TenantRepository{Repository: r.Repository.WithTx(tx)}
}

// commaList stores a string slice in a single comma-separated text column.
type commaList struct {
	dst *[]string
}

func (c commaList) Value() (driver.Value, error) {
	if len(*c.dst) == 0 {
		return nil, nil
	}
	return strings.Join(*c.dst, ","), nil
}

func (c commaList) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*c.dst = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into a document list", src)
	}
	if raw == "" {
		*c.dst = nil
		return nil
	}
	*c.dst = strings.Split(raw, ",")
	return nil
}
