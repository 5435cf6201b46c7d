package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	tm := NewTokenManager("secret", "")

	token, err := tm.Generate("user-1", "tenant-1", RoleTenantAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := tm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, RoleTenantAdmin, claims.Role)
	assert.Equal(t, "tenantcore", claims.Issuer)
}

func TestGenerateRequiresTenantForTenantRoles(t *testing.T) {
	tm := NewTokenManager("secret", "")

	_, err := tm.Generate("user-1", "", RoleUser, time.Hour)
	assert.Error(t, err)

	_, err = tm.Generate("ops", "", RoleAdmin, time.Hour)
	assert.NoError(t, err)
}

func TestValidateRejects(t *testing.T) {
	tm := NewTokenManager("secret", "tenantcore")
	token, err := tm.Generate("user-1", "tenant-1", RoleUser, time.Hour)
	require.NoError(t, err)

	_, err = NewTokenManager("other-secret", "tenantcore").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenManager("secret", "someone-else").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenManager("secret", "tenantcore")
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractToken(t *testing.T) {
	tok, err := ExtractToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	for _, h := range []string{"", "Bearer", "Basic abc", "Bearer  "} {
		_, err := ExtractToken(h)
		assert.ErrorIs(t, err, ErrMissingBearer, h)
	}
}
