package domain

import "time"

// Base holds the columns every persisted record carries.
type Base struct {
	ID        string    `json:"id"`
	TenantID  *string   `json:"tenantId"` // nil for records that are not tenant-scoped
	IsDeleted bool      `json:"isDeleted"`
	Version   int       `json:"version"` // optimistic lock
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OwnedBy reports whether the record belongs to tenantID.
func (b *Base) OwnedBy(tenantID string) bool {
	return b.TenantID != nil && *b.TenantID == tenantID
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
