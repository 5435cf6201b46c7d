package domain

import (
	"context"
	"slices"
	"time"
)

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantStatusPending    TenantStatus = "PENDING"
	TenantStatusActive     TenantStatus = "ACTIVE"
	TenantStatusSuspended  TenantStatus = "SUSPENDED"
	TenantStatusTerminated TenantStatus = "TERMINATED"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case TenantStatusPending, TenantStatusActive, TenantStatusSuspended, TenantStatusTerminated:
		return true
	}
	return false
}

// tenantTransitions lists the allowed moves out of each status.
var tenantTransitions = map[TenantStatus][]TenantStatus{
	TenantStatusPending:   {TenantStatusActive},
	TenantStatusActive:    {TenantStatusSuspended, TenantStatusTerminated},
	TenantStatusSuspended: {TenantStatusActive, TenantStatusTerminated},
}

// CanTransition reports whether a tenant may move from one status to another.
// Writing the current status again is always allowed.
func CanTransition(from, to TenantStatus) bool {
	if from == to {
		return true
	}
	return slices.Contains(tenantTransitions[from], to)
}

// VerificationStatus tracks the KYC review of a tenant.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// Verification is embedded in the tenant row.
type Verification struct {
	Status     VerificationStatus `json:"status"`
	Date       *time.Time         `json:"verificationDate,omitempty"`
	VerifierID *string            `json:"verifierId,omitempty"`
	Notes      *string            `json:"notes,omitempty"`
	Documents  []string           `json:"documents,omitempty"` // stored comma-joined
	Attempted  bool               `json:"attempted"`
}

func (v Verification) IsComplete() bool {
	return v.Status == VerificationVerified && v.Date != nil
}

func (v Verification) IsRejected() bool {
	return v.Status == VerificationRejected
}

// Apply records a review decision. VERIFIED stamps the verification date.
func (v *Verification) Apply(status VerificationStatus, verifierID string, notes *string, now time.Time) {
	v.Status = status
	v.VerifierID = StringPtr(verifierID)
	if notes != nil {
		v.Notes = notes
	}
	v.Attempted = true
	if status == VerificationVerified {
		v.Date = &now
	}
}

// Business describes the organisation behind a tenant.
type Business struct {
	Type          *string    `json:"businessType,omitempty"`
	Scale         *string    `json:"businessScale,omitempty"`
	Industry      *string    `json:"industry,omitempty"`
	FoundedDate   *time.Time `json:"foundedDate,omitempty"`
	EmployeeCount *int       `json:"employeeCount,omitempty"`
}

// Registration carries national tax and registration numbers.
type Registration struct {
	GSTNumber  *string `json:"gstNumber,omitempty"`
	PANNumber  *string `json:"panNumber,omitempty"`
	TANNumber  *string `json:"tanNumber,omitempty"`
	MSMENumber *string `json:"msmeNumber,omitempty"`
}

// Tenant represents one customer organisation. Tenants are never scoped to another tenant,
// so Base.TenantID stays nil.
type Tenant struct {
	Base
	Name         string       `json:"name"`      // unique
	Subdomain    string       `json:"subdomain"` // unique, DNS-safe
	Identifier   *string      `json:"identifier,omitempty"`
	LegalName    *string      `json:"legalName,omitempty"`
	Description  *string      `json:"description,omitempty"`
	Website      *string      `json:"website,omitempty"`
	PrimaryEmail *string      `json:"primaryEmail,omitempty"`
	PrimaryPhone *string      `json:"primaryPhone,omitempty"`
	IsActive     bool         `json:"isActive"`
	Status       TenantStatus `json:"status"`
	Verification Verification `json:"verification"`
	Business     Business     `json:"business"`
	Registration Registration `json:"registration"`
}

// Clone returns a deep copy that shares no pointers or slices with t.
func (t *Tenant) Clone() *Tenant {
	c := *t
	c.TenantID = clonePtr(t.TenantID)
	for _, p := range []**string{
		&c.Identifier, &c.LegalName, &c.Description, &c.Website, &c.PrimaryEmail, &c.PrimaryPhone,
		&c.Verification.VerifierID, &c.Verification.Notes,
		&c.Business.Type, &c.Business.Scale, &c.Business.Industry,
		&c.Registration.GSTNumber, &c.Registration.PANNumber, &c.Registration.TANNumber, &c.Registration.MSMENumber,
	} {
		*p = clonePtr(*p)
	}
	c.Verification.Date = clonePtr(t.Verification.Date)
	c.Verification.Documents = slices.Clone(t.Verification.Documents)
	c.Business.FoundedDate = clonePtr(t.Business.FoundedDate)
	c.Business.EmployeeCount = clonePtr(t.Business.EmployeeCount)
	return &c
}

// Operational reports whether requests on behalf of the tenant may be served.
func (t *Tenant) Operational() bool {
	if !t.IsActive || t.IsDeleted {
		return false
	}
	return t.Status != TenantStatusSuspended && t.Status != TenantStatusTerminated
}

// TenantLookup resolves tenants by id.
type TenantLookup interface {
	Get(ctx context.Context, id string) (*Tenant, error)
}
