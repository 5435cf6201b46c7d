package auth

// Roles carried in Claims.Role.
const (
	RoleAdmin       = "admin"
	RoleTenantAdmin = "tenant_admin"
	RoleUser        = "user"
)
