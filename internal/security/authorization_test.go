package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRolePermissions(t *testing.T) {
	as := NewAuthorizationService(nil)

	assert.NoError(t, as.ValidatePermission(RoleAdmin, PermManageTenants))
	assert.ErrorIs(t, as.ValidatePermission(RoleTenantAdmin, PermManageTenants), ErrForbidden)
	assert.NoError(t, as.ValidatePermission(RoleTenantAdmin, PermManageSatellites))
	assert.ErrorIs(t, as.ValidatePermission(RoleUser, PermManageSatellites), ErrForbidden)
	assert.ErrorIs(t, as.ValidatePermission("guest", PermReadSatellites), ErrForbidden)
}

func TestValidateTenantAccess(t *testing.T) {
	as := NewAuthorizationService(nil)

	assert.NoError(t, as.ValidateTenantAccess(RoleUser, "t-1", "t-1"))
	assert.ErrorIs(t, as.ValidateTenantAccess(RoleUser, "t-1", "t-2"), ErrForbidden)
	assert.ErrorIs(t, as.ValidateTenantAccess(RoleUser, "", ""), ErrForbidden)
	assert.NoError(t, as.ValidateTenantAccess(RoleAdmin, "", "t-2"))
}
