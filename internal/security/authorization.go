package security

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aryan0dhankhar/tenantcore/internal/security/auth"
)

// ErrForbidden is returned for authenticated callers that lack access.
var ErrForbidden = errors.New("forbidden")

// Role represents a caller role
type Role string

const (
	RoleAdmin       Role = auth.RoleAdmin
	RoleTenantAdmin Role = auth.RoleTenantAdmin
	RoleUser        Role = auth.RoleUser
)

// Permission represents an action permission
type Permission string

const (
	PermManageTenants     Permission = "manage_tenants"
	PermReadTenants       Permission = "read_tenants"
	PermValidateTenants   Permission = "validate_tenants"
	PermManageSatellites  Permission = "manage_satellites"
	PermReadSatellites    Permission = "read_satellites"
	PermValidateOwnTenant Permission = "validate_own_tenant"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermManageTenants,
		PermReadTenants,
		PermValidateTenants,
		PermManageSatellites,
		PermReadSatellites,
		PermValidateOwnTenant,
	},
	RoleTenantAdmin: {
		PermManageSatellites,
		PermReadSatellites,
		PermValidateOwnTenant,
	},
	RoleUser: {
		PermReadSatellites,
		PermValidateOwnTenant,
	},
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{logger: logger}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role Role, permission Permission) bool {
	return slices.Contains(RolePermissions[role], permission)
}

// ValidatePermission returns ErrForbidden when role lacks permission.
func (as *AuthorizationService) ValidatePermission(role Role, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", string(role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("%s role cannot %s: %w", role, permission, ErrForbidden)
	}
	return nil
}

// ValidateTenantAccess checks that a caller may touch data of requestedTenantID.
// Platform admins may act for any tenant.
func (as *AuthorizationService) ValidateTenantAccess(role Role, callerTenantID, requestedTenantID string) error {
	if role == RoleAdmin {
		return nil
	}
	if callerTenantID == "" || callerTenantID != requestedTenantID {
		as.logger.Warn("tenant access denied",
			slog.String("caller_tenant", callerTenantID),
			slog.String("requested_tenant", requestedTenantID),
		)
		return fmt.Errorf("tenant %q: %w", requestedTenantID, ErrForbidden)
	}
	return nil
}
