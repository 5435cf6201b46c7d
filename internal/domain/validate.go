package domain

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

const (
	maxSubdomainLen   = 63
	maxIdentifierLen  = 50
	maxNameLen        = 255
	maxDescriptionLen = 1000
	maxNotesLen       = 1000
	maxPhoneLen       = 20
	maxGSTLen         = 15
	maxPANLen         = 10
	maxTANLen         = 10
	maxMSMELen        = 20
)

// CreateTenantInput is what callers may set when registering a tenant. Status and
// verification are decided by the service.
type CreateTenantInput struct {
	Name          string     `json:"name"`
	Subdomain     string     `json:"subdomain"`
	Identifier    *string    `json:"identifier,omitempty"`
	LegalName     *string    `json:"legalName,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Website       *string    `json:"website,omitempty"`
	PrimaryEmail  *string    `json:"primaryEmail,omitempty"`
	PrimaryPhone  *string    `json:"primaryPhone,omitempty"`
	BusinessType  *string    `json:"businessType,omitempty"`
	BusinessScale *string    `json:"businessScale,omitempty"`
	Industry      *string    `json:"industry,omitempty"`
	FoundedDate   *time.Time `json:"foundedDate,omitempty"`
	EmployeeCount *int       `json:"employeeCount,omitempty"`
	GSTNumber     *string    `json:"gstNumber,omitempty"`
	PANNumber     *string    `json:"panNumber,omitempty"`
	TANNumber     *string    `json:"tanNumber,omitempty"`
	MSMENumber    *string    `json:"msmeNumber,omitempty"`
}

// UpdateTenantInput is a partial patch; nil fields are left unchanged.
type UpdateTenantInput struct {
	Name          *string    `json:"name,omitempty"`
	Subdomain     *string    `json:"subdomain,omitempty"`
	Identifier    *string    `json:"identifier,omitempty"`
	LegalName     *string    `json:"legalName,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Website       *string    `json:"website,omitempty"`
	PrimaryEmail  *string    `json:"primaryEmail,omitempty"`
	PrimaryPhone  *string    `json:"primaryPhone,omitempty"`
	IsActive      *bool      `json:"isActive,omitempty"`
	BusinessType  *string    `json:"businessType,omitempty"`
	BusinessScale *string    `json:"businessScale,omitempty"`
	Industry      *string    `json:"industry,omitempty"`
	FoundedDate   *time.Time `json:"foundedDate,omitempty"`
	EmployeeCount *int       `json:"employeeCount,omitempty"`
	GSTNumber     *string    `json:"gstNumber,omitempty"`
	PANNumber     *string    `json:"panNumber,omitempty"`
	TANNumber     *string    `json:"tanNumber,omitempty"`
	MSMENumber    *string    `json:"msmeNumber,omitempty"`
}

// NewTenant builds the record to insert. Lifecycle fields always start at their defaults.
func (in CreateTenantInput) NewTenant() *Tenant {
	return &Tenant{
		Name:         strings.TrimSpace(in.Name),
		Subdomain:    strings.ToLower(strings.TrimSpace(in.Subdomain)),
		Identifier:   in.Identifier,
		LegalName:    in.LegalName,
		Description:  in.Description,
		Website:      in.Website,
		PrimaryEmail: in.PrimaryEmail,
		PrimaryPhone: in.PrimaryPhone,
		IsActive:     true,
		Status:       TenantStatusPending,
		Verification: Verification{Status: VerificationPending},
		Business: Business{
			Type:          in.BusinessType,
			Scale:         in.BusinessScale,
			Industry:      in.Industry,
			FoundedDate:   in.FoundedDate,
			EmployeeCount: in.EmployeeCount,
		},
		Registration: Registration{
			GSTNumber:  in.GSTNumber,
			PANNumber:  in.PANNumber,
			TANNumber:  in.TANNumber,
			MSMENumber: in.MSMENumber,
		},
	}
}

// ApplyTo merges the non-nil fields into t.
func (in UpdateTenantInput) ApplyTo(t *Tenant) {
	if in.Name != nil {
		t.Name = strings.TrimSpace(*in.Name)
	}
	if in.Subdomain != nil {
		t.Subdomain = strings.ToLower(strings.TrimSpace(*in.Subdomain))
	}
	assign(&t.Identifier, in.Identifier)
	assign(&t.LegalName, in.LegalName)
	assign(&t.Description, in.Description)
	assign(&t.Website, in.Website)
	assign(&t.PrimaryEmail, in.PrimaryEmail)
	assign(&t.PrimaryPhone, in.PrimaryPhone)
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	assign(&t.Business.Type, in.BusinessType)
	assign(&t.Business.Scale, in.BusinessScale)
	assign(&t.Business.Industry, in.Industry)
	if in.FoundedDate != nil {
		t.Business.FoundedDate = in.FoundedDate
	}
	if in.EmployeeCount != nil {
		t.Business.EmployeeCount = in.EmployeeCount
	}
	assign(&t.Registration.GSTNumber, in.GSTNumber)
	assign(&t.Registration.PANNumber, in.PANNumber)
	assign(&t.Registration.TANNumber, in.TANNumber)
	assign(&t.Registration.MSMENumber, in.MSMENumber)
}

func assign(dst **string, src *string) {
	if src != nil {
		*dst = src
	}
}

// ValidateTenant checks the persisted-shape constraints of a tenant record.
func ValidateTenant(t *Tenant) error {
	v := &ValidationError{}

	name := strings.TrimSpace(t.Name)
	switch {
	case name == "":
		v.Add("name", "is required")
	case utf8.RuneCountInString(name) > maxNameLen:
		v.Add("name", fmt.Sprintf("must be at most %d characters", maxNameLen))
	}

	switch {
	case t.Subdomain == "":
		v.Add("subdomain", "is required")
	case len(t.Subdomain) > maxSubdomainLen:
		v.Add("subdomain", fmt.Sprintf("must be at most %d characters", maxSubdomainLen))
	case !slugPattern.MatchString(t.Subdomain):
		v.Add("subdomain", "may only contain lowercase letters, digits and hyphens")
	}

	if t.Identifier != nil {
		switch {
		case len(*t.Identifier) > maxIdentifierLen:
			v.Add("identifier", fmt.Sprintf("must be at most %d characters", maxIdentifierLen))
		case !slugPattern.MatchString(*t.Identifier):
			v.Add("identifier", "may only contain lowercase letters, digits and hyphens")
		}
	}

	maxLen(v, "description", t.Description, maxDescriptionLen)
	maxLen(v, "primaryPhone", t.PrimaryPhone, maxPhoneLen)
	maxLen(v, "gstNumber", t.Registration.GSTNumber, maxGSTLen)
	maxLen(v, "panNumber", t.Registration.PANNumber, maxPANLen)
	maxLen(v, "tanNumber", t.Registration.TANNumber, maxTANLen)
	maxLen(v, "msmeNumber", t.Registration.MSMENumber, maxMSMELen)
	maxLen(v, "verification.notes", t.Verification.Notes, maxNotesLen)

	if t.PrimaryEmail != nil && *t.PrimaryEmail != "" {
		if _, err := mail.ParseAddress(*t.PrimaryEmail); err != nil {
			v.Add("primaryEmail", "must be a valid email address")
		}
	}
	if t.Business.EmployeeCount != nil && *t.Business.EmployeeCount < 0 {
		v.Add("employeeCount", "must not be negative")
	}
	if !t.Status.Valid() {
		v.Add("status", "is not a known tenant status")
	}
	if !t.Verification.Status.Valid() {
		v.Add("verification.status", "is not a known verification status")
	}
	if t.TenantID != nil {
		v.Add("tenantId", "must be empty for tenants")
	}

	return v.orNil()
}

// ValidateAddress checks an address before it is written.
func ValidateAddress(a *Address) error {
	v := &ValidationError{}
	if a.EntityID == "" {
		v.Add("entityId", "is required")
	}
	if a.EntityType == "" {
		v.Add("entityType", "is required")
	}
	if !a.Type.Valid() {
		v.Add("type", "must be one of CURRENT, CORPORATE, REGISTERED")
	}
	if strings.TrimSpace(a.Line1) == "" {
		v.Add("line1", "is required")
	}
	if strings.TrimSpace(a.City) == "" {
		v.Add("city", "is required")
	}
	if strings.TrimSpace(a.Country) == "" {
		v.Add("country", "is required")
	}
	return v.orNil()
}

// ValidateContact checks a contact before it is written.
func ValidateContact(c *ContactInfo) error {
	v := &ValidationError{}
	if c.EntityID == "" {
		v.Add("entityId", "is required")
	}
	if c.EntityType == "" {
		v.Add("entityType", "is required")
	}
	if !c.Type.Valid() {
		v.Add("type", "must be one of PRIMARY, EMERGENCY")
	}
	if strings.TrimSpace(c.Name) == "" {
		v.Add("name", "is required")
	}
	if c.Email != nil && *c.Email != "" {
		if _, err := mail.ParseAddress(*c.Email); err != nil {
			v.Add("email", "must be a valid email address")
		}
	}
	maxLen(v, "phone", c.Phone, maxPhoneLen)
	return v.orNil()
}

func maxLen(v *ValidationError, field string, s *string, limit int) {
	if s != nil && utf8.RuneCountInString(*s) > limit {
		v.Add(field, fmt.Sprintf("must be at most %d characters", limit))
	}
}
