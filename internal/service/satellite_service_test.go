package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/repository"
	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
)

func newAddressFixture() (*AddressService, *memScoped[domain.Address]) {
	store := newMemScoped(func(a *domain.Address) *domain.Base { return &a.Base }, addressCols)
	return NewAddressService(store, nil, nil), store
}

func office(entityID string, primary bool) *domain.Address {
	return &domain.Address{
		EntityID:   entityID,
		EntityType: domain.EntityTenant,
		Type:       domain.AddressCorporate,
		Line1:      "1 Main St",
		City:       "Pune",
		Country:    "IN",
		IsPrimary:  primary,
	}
}

func TestAddressCreateRequiresTenant(t *testing.T) {
	svc, _ := newAddressFixture()

	_, err := svc.Create(context.Background(), office("t-1", false))
	assert.ErrorIs(t, err, domain.ErrTenantRequired)
}

func TestAddressCreateValidates(t *testing.T) {
	svc, store := newAddressFixture()
	ctx := tenantctx.WithTenant(context.Background(), "t-1")

	bad := office("t-1", false)
	bad.City = " "
	_, err := svc.Create(ctx, bad)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "city", verr.Fields[0].Field)
	assert.Empty(t, store.all())
}

func TestAddressPrimaryIsUniquePerGroup(t *testing.T) {
	svc, _ := newAddressFixture()
	ctx := tenantctx.WithTenant(context.Background(), "t-1")

	first, err := svc.Create(ctx, office("t-1", true))
	require.NoError(t, err)
	registered := office("t-1", true)
	registered.Type = domain.AddressRegistered
	other, err := svc.Create(ctx, registered)
	require.NoError(t, err)

	second, err := svc.Create(ctx, office("t-1", true))
	require.NoError(t, err)

	got, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPrimary)
	got, err = svc.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPrimary, "a different address type keeps its own primary")

	_, err = svc.SetPrimary(ctx, first.ID)
	require.NoError(t, err)
	got, err = svc.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPrimary)
}

func TestAddressTenantIsolation(t *testing.T) {
	svc, _ := newAddressFixture()
	ctxA := tenantctx.WithTenant(context.Background(), "t-a")
	ctxB := tenantctx.WithTenant(context.Background(), "t-b")

	a, err := svc.Create(ctxA, office("t-a", false))
	require.NoError(t, err)
	assert.Equal(t, "t-a", domain.Deref(a.TenantID))

	_, err = svc.Get(ctxB, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Update(ctxB, a.ID, func(rec *domain.Address) error {
		rec.City = "Mumbai"
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Remove(ctxB, a.ID), domain.ErrNotFound)
}

func TestAddressUpdateRollsBackInvalidPatch(t *testing.T) {
	svc, _ := newAddressFixture()
	ctx := tenantctx.WithTenant(context.Background(), "t-1")
	a, err := svc.Create(ctx, office("t-1", false))
	require.NoError(t, err)

	_, err = svc.Update(ctx, a.ID, func(rec *domain.Address) error {
		rec.Country = ""
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "IN", got.Country)
}

func TestListForEntity(t *testing.T) {
	const (
		owner = "0b7a3c1e-8f4d-4c2a-9e61-3d5f7a9b2c10"
		other = "5e2d9f40-1a6b-4c8e-b3d7-9f0a2c4e6b81"
	)
	svc, _ := newAddressFixture()
	ctx := tenantctx.WithTenant(context.Background(), owner)
	for i := 0; i < 2; i++ {
		_, err := svc.Create(ctx, office(owner, false))
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, office(other, false))
	require.NoError(t, err)

	page, err := svc.ListForEntity(ctx, domain.EntityTenant, owner, repository.OffsetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	_, err = svc.ListForEntity(ctx, domain.EntityTenant, "not-a-uuid", repository.OffsetOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestContactRemove(t *testing.T) {
	store := newMemScoped(func(c *domain.ContactInfo) *domain.Base { return &c.Base }, contactCols)
	svc := NewContactService(store, nil, nil)
	ctx := tenantctx.WithTenant(context.Background(), "t-1")

	c, err := svc.Create(ctx, &domain.ContactInfo{
		EntityID: "t-1", EntityType: domain.EntityTenant, Type: domain.ContactPrimary,
		Name: "Ops", Email: domain.StringPtr("ops@acme.test"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, c.ID))
	_, err = svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Create(ctx, &domain.ContactInfo{
		EntityID: "t-1", EntityType: domain.EntityTenant, Type: domain.ContactPrimary,
		Name: "Bad", Email: domain.StringPtr("not-an-email"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
