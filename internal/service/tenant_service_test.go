package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/events"
	"github.com/aryan0dhankhar/tenantcore/internal/repository"
	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
	"github.com/aryan0dhankhar/tenantcore/pkg/cache"
)

type tenantFixture struct {
	svc       *TenantService
	tenants   *memTenantStore
	addresses *memScoped[domain.Address]
	contacts  *memScoped[domain.ContactInfo]
	pub       *recordingPublisher
	inval     *recordingInvalidator
}

func newTenantFixture(t *testing.T, cfg TenantServiceConfig) *tenantFixture {
	t.Helper()
	f := &tenantFixture{
		tenants:   newMemTenantStore(),
		addresses: newMemScoped(func(a *domain.Address) *domain.Base { return &a.Base }, addressCols),
		contacts:  newMemScoped(func(c *domain.ContactInfo) *domain.Base { return &c.Base }, contactCols),
		pub:       &recordingPublisher{},
		inval:     &recordingInvalidator{},
	}
	unit := &memUnit{tenants: f.tenants, satellites: []SatelliteStore{f.addresses, f.contacts}}
	f.svc = NewTenantService(f.tenants, unit, f.pub, f.inval, nil, cfg, nil)
	return f
}

func (f *tenantFixture) create(t *testing.T, name, subdomain string) *domain.Tenant {
	t.Helper()
	tn, err := f.svc.Create(context.Background(), domain.CreateTenantInput{Name: name, Subdomain: subdomain})
	require.NoError(t, err)
	return tn
}

func (f *tenantFixture) activate(t *testing.T, id string) {
	t.Helper()
	_, err := f.svc.Activate(context.Background(), id)
	require.NoError(t, err)
}

func TestCreateAppliesDefaults(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})

	tn := f.create(t, "Acme", "acme")

	assert.NotEmpty(t, tn.ID)
	assert.Equal(t, domain.TenantStatusPending, tn.Status)
	assert.Equal(t, domain.VerificationPending, tn.Verification.Status)
	assert.True(t, tn.IsActive)
	assert.Nil(t, tn.TenantID)
	assert.Equal(t, []string{"tenant.created"}, f.pub.keys())
}

func TestCreateRejectsDuplicateSubdomain(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	f.create(t, "Acme", "acme")

	_, err := f.svc.Create(context.Background(), domain.CreateTenantInput{Name: "Acme Two", Subdomain: "acme"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Len(t, f.pub.keys(), 1)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})

	_, err := f.svc.Create(context.Background(), domain.CreateTenantInput{Name: "", Subdomain: "Not A Slug!"})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, f.tenants.creates)
}

func TestCreateSurvivesPublishFailure(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	f.pub.err = errors.New("broker down")

	tn, err := f.svc.Create(context.Background(), domain.CreateTenantInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), tn.ID)
	assert.NoError(t, err)
}

func TestPublishOutlivesCancelledRequest(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	tn, err := f.svc.Create(ctx, domain.CreateTenantInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)
	cancel()

	// the in-memory store ignores cancellation, so the update commits and its event must still go out
	_, err = f.svc.Update(ctx, tn.ID, domain.UpdateTenantInput{Description: domain.StringPtr("hi")})
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant.created", "tenant.updated"}, f.pub.keys())
}

func TestCreateWithIdempotencyReturnsSameRecord(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	in := domain.CreateTenantInput{Name: "Acme", Subdomain: "acme"}

	first, err := f.svc.CreateWithIdempotency(context.Background(), "key-1", in)
	require.NoError(t, err)
	second, err := f.svc.CreateWithIdempotency(context.Background(), "key-1", in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.tenants.creates)
}

func TestCreateWithIdempotencyReturnsIsolatedCopies(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	cached := domain.Tenant{Name: "Acme", Subdomain: "acme"}
	cached.ID = "tn-1"
	cached.Verification.Documents = []string{"doc-1", "doc-2"}
	f.svc.idempotent.Set("key-1", cached, time.Hour)

	first, err := f.svc.CreateWithIdempotency(context.Background(), "key-1", domain.CreateTenantInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)
	first.Verification.Documents[0] = "tampered"

	second, err := f.svc.CreateWithIdempotency(context.Background(), "key-1", domain.CreateTenantInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, second.Verification.Documents)
	assert.Equal(t, 0, f.tenants.creates)
}

func TestCreateWithIdempotencyCollapsesConcurrentCalls(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	in := domain.CreateTenantInput{Name: "Acme", Subdomain: "acme"}

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			tn, err := f.svc.CreateWithIdempotency(context.Background(), "key-1", in)
			if assert.NoError(t, err) {
				ids[i] = tn.ID
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.tenants.creates)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCreateWithIdempotencyExpires(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.svc.idempotent = cache.NewWithClock[domain.Tenant](func() time.Time { return clock })

	first, err := f.svc.CreateWithIdempotency(context.Background(), "key-1", domain.CreateTenantInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)

	clock = clock.Add(DefaultIdempotencyTTL + time.Second)
	third, err := f.svc.CreateWithIdempotency(context.Background(), "key-1", domain.CreateTenantInput{Name: "Acme Labs", Subdomain: "acme-labs"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, 2, f.tenants.creates)
}

func TestCreateWithIdempotencyDoesNotRememberFailures(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})

	_, err := f.svc.CreateWithIdempotency(context.Background(), "key-1", domain.CreateTenantInput{Name: "Acme"})
	require.Error(t, err)

	tn, err := f.svc.CreateWithIdempotency(context.Background(), "key-1", domain.CreateTenantInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)
	assert.NotEmpty(t, tn.ID)
}

func TestUpdateClearsTenantReference(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	tn := f.create(t, "Acme", "acme")

	updated, err := f.svc.Update(context.Background(), tn.ID, domain.UpdateTenantInput{
		Name:     domain.StringPtr("  Acme Corp "),
		IsActive: new(bool),
	})
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Nil(t, updated.TenantID)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, []string{tn.ID}, f.inval.cleared)
}

func TestUpdateMissingTenant(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})

	_, err := f.svc.Update(context.Background(), "missing", domain.UpdateTenantInput{Name: domain.StringPtr("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateRejectsInvalidResult(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	tn := f.create(t, "Acme", "acme")

	_, err := f.svc.Update(context.Background(), tn.ID, domain.UpdateTenantInput{Subdomain: domain.StringPtr("bad_sub")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	got, err := f.svc.Get(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Subdomain)
}

func TestSetStatusFollowsLifecycle(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	tn := f.create(t, "Acme", "acme")

	_, err := f.svc.Suspend(context.Background(), tn.ID)
	var terr *domain.StateTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.TenantStatusPending, terr.From)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	f.activate(t, tn.ID)
	suspended, err := f.svc.Suspend(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusSuspended, suspended.Status)

	terminated, err := f.svc.Terminate(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusTerminated, terminated.Status)

	_, err = f.svc.Activate(context.Background(), tn.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	assert.Equal(t, []string{
		"tenant.created",
		"tenant.status_changed",
		"tenant.status_changed",
		"tenant.status_changed",
	}, f.pub.keys())
	last := f.pub.events[len(f.pub.events)-1].payload.(StatusChange)
	assert.Equal(t, StatusChange{TenantID: tn.ID, From: domain.TenantStatusSuspended, To: domain.TenantStatusTerminated}, last)
}

func TestSetStatusSameStatusPublishesNothing(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	tn := f.create(t, "Acme", "acme")

	_, err := f.svc.SetStatus(context.Background(), tn.ID, domain.TenantStatusPending)
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant.created"}, f.pub.keys())
}

func TestSetStatusLenient(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{LenientTransitions: true})
	tn := f.create(t, "Acme", "acme")

	got, err := f.svc.Terminate(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusTerminated, got.Status)

	_, err = f.svc.SetStatus(context.Background(), tn.ID, "ARCHIVED")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSetVerificationStatus(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }
	tn := f.create(t, "Acme", "acme")

	rejected, err := f.svc.SetVerificationStatus(context.Background(), tn.ID, domain.VerificationRejected, "admin-1", domain.StringPtr("blurry scan"))
	require.NoError(t, err)
	assert.True(t, rejected.Verification.IsRejected())
	assert.Nil(t, rejected.Verification.Date)

	verified, err := f.svc.SetVerificationStatus(context.Background(), tn.ID, domain.VerificationVerified, "admin-2", nil)
	require.NoError(t, err)
	require.NotNil(t, verified.Verification.Date)
	assert.Equal(t, fixed, *verified.Verification.Date)
	assert.Equal(t, "admin-2", domain.Deref(verified.Verification.VerifierID))
	assert.Equal(t, "blurry scan", domain.Deref(verified.Verification.Notes))
	assert.True(t, verified.Verification.Attempted)
}

func TestSubmitVerificationDocuments(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	tn := f.create(t, "Acme", "acme")

	got, err := f.svc.SubmitVerificationDocuments(context.Background(), tn.ID, []string{" doc-1 ", "", "doc-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, got.Verification.Documents)
	assert.True(t, got.Verification.Attempted)

	_, err = f.svc.SubmitVerificationDocuments(context.Background(), tn.ID, []string{"a,b"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.SubmitVerificationDocuments(context.Background(), tn.ID, []string{"  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestListBuildsFilters(t *testing.T) {
	active := true
	q := ListTenantsQuery{Status: domain.TenantStatusActive, Search: "ac_me", IsActive: &active}

	filter, err := q.filter()
	require.NoError(t, err)
	sql, args, err := filter.ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "status = ?")
	assert.Contains(t, sql, "is_active = ?")
	assert.Contains(t, sql, "LOWER(name) LIKE ?")
	assert.Contains(t, args, `%ac\_me%`)

	_, err = ListTenantsQuery{Status: "GONE"}.filter()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	filter, err = ListTenantsQuery{}.filter()
	require.NoError(t, err)
	assert.Nil(t, filter)
}

func TestList(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	f.create(t, "Acme", "acme")
	f.create(t, "Globex", "globex")

	page, err := f.svc.List(context.Background(), ListTenantsQuery{Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 1)
	assert.True(t, page.HasNext)
}

func TestRemoveDeletesTenantAndSatellites(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	tn := f.create(t, "Acme", "acme")

	ctx := tenantctx.WithTenant(context.Background(), tn.ID)
	_, err := f.addresses.Create(ctx, &domain.Address{EntityID: tn.ID, EntityType: domain.EntityTenant, Type: domain.AddressCorporate, Line1: "1 Main", City: "Pune", Country: "IN"})
	require.NoError(t, err)
	_, err = f.contacts.Create(ctx, &domain.ContactInfo{EntityID: tn.ID, EntityType: domain.EntityTenant, Type: domain.ContactPrimary, Name: "Ops"})
	require.NoError(t, err)
	other := tenantctx.WithTenant(context.Background(), "other-tenant")
	_, err = f.contacts.Create(other, &domain.ContactInfo{EntityID: "other-tenant", EntityType: domain.EntityTenant, Type: domain.ContactPrimary, Name: "Other"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(context.Background(), tn.ID))

	_, err = f.svc.Get(context.Background(), tn.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	for _, a := range f.addresses.all() {
		assert.True(t, a.IsDeleted)
	}
	for _, c := range f.contacts.all() {
		assert.Equal(t, domain.Deref(c.TenantID) == tn.ID, c.IsDeleted, c.Name)
	}
	assert.Contains(t, f.inval.cleared, tn.ID)
	assert.Equal(t, "tenant.deleted", f.pub.keys()[len(f.pub.keys())-1])
}

type failingSatellites struct{}

func (failingSatellites) SoftDeleteWhere(context.Context, repository.Filter) (int64, error) {
	return 0, errors.New("disk full")
}

func TestRemoveRollsBackOnFailure(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	tn := f.create(t, "Acme", "acme")
	f.svc.unit = &memUnit{tenants: f.tenants, satellites: []SatelliteStore{failingSatellites{}}}

	err := f.svc.Remove(context.Background(), tn.ID)
	require.Error(t, err)

	_, err = f.svc.Get(context.Background(), tn.ID)
	assert.NoError(t, err)
	assert.NotContains(t, f.pub.keys(), "tenant.deleted")
}

func TestRemoveMissingTenant(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	assert.ErrorIs(t, f.svc.Remove(context.Background(), "missing"), domain.ErrNotFound)
}

func TestTenantLifecycleEndToEnd(t *testing.T) {
	f := newTenantFixture(t, TenantServiceConfig{})
	ctx := context.Background()

	tn, err := f.svc.Create(ctx, domain.CreateTenantInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusPending, tn.Status)
	assert.Equal(t, domain.VerificationPending, tn.Verification.Status)
	assert.True(t, tn.IsActive)
	assert.Nil(t, tn.TenantID)

	scoped := tenantctx.WithTenant(ctx, tn.ID)
	addr, err := f.addresses.Create(scoped, &domain.Address{EntityID: tn.ID, EntityType: domain.EntityTenant, Type: domain.AddressRegistered, Line1: "1 Main", City: "Pune", Country: "IN"})
	require.NoError(t, err)

	verified, err := f.svc.SetVerificationStatus(ctx, tn.ID, domain.VerificationVerified, "admin-1", domain.StringPtr("ok"))
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationVerified, verified.Verification.Status)
	assert.NotNil(t, verified.Verification.Date)

	require.NoError(t, f.svc.Remove(ctx, tn.ID))

	_, err = f.svc.Get(ctx, tn.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.addresses.FindByID(scoped, addr.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, f.addresses.all()[0].IsDeleted)

	assert.Equal(t, []string{
		events.TopicTenant + "." + events.TenantCreated,
		events.TopicTenant + "." + events.TenantVerificationChanged,
		events.TopicTenant + "." + events.TenantDeleted,
	}, f.pub.keys())
}
