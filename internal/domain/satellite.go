package domain

// EntityType names the kind of record a satellite is attached to.
type EntityType string

const (
	EntityTenant EntityType = "TENANT"
	EntityUser   EntityType = "USER"
)

type AddressType string

const (
	AddressCurrent    AddressType = "CURRENT"
	AddressCorporate  AddressType = "CORPORATE"
	AddressRegistered AddressType = "REGISTERED"
)

func (t AddressType) Valid() bool {
	return t == AddressCurrent || t == AddressCorporate || t == AddressRegistered
}

type ContactType string

const (
	ContactPrimary   ContactType = "PRIMARY"
	ContactEmergency ContactType = "EMERGENCY"
)

func (t ContactType) Valid() bool {
	return t == ContactPrimary || t == ContactEmergency
}

// Address is attached to an owning entity through (EntityID, EntityType).
type Address struct {
	Base
	EntityID   string      `json:"entityId"`
	EntityType EntityType  `json:"entityType"`
	Type       AddressType `json:"type"`
	Line1      string      `json:"line1"`
	Line2      *string     `json:"line2,omitempty"`
	City       string      `json:"city"`
	State      *string     `json:"state,omitempty"`
	PostalCode *string     `json:"postalCode,omitempty"`
	Country    string      `json:"country"`
	IsPrimary  bool        `json:"isPrimary"`
}

// ContactInfo is attached to an owning entity through (EntityID, EntityType).
type ContactInfo struct {
	Base
	EntityID   string      `json:"entityId"`
	EntityType EntityType  `json:"entityType"`
	Type       ContactType `json:"type"`
	Name       string      `json:"name"`
	Email      *string     `json:"email,omitempty"`
	Phone      *string     `json:"phone,omitempty"`
	IsPrimary  bool        `json:"isPrimary"`
}
