package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/tenantcore/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/tenantcore/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
)

func setupRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.FromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), nil)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisPublisherDeliversEnvelope(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "tenant.created")
	defer sub.Close()
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	pub := NewRedisPublisher(client, nil)
	scoped := tenantctx.WithTenant(ctx, "t-1")
	require.NoError(t, pub.Publish(scoped, TopicTenant, TenantCreated, map[string]string{"name": "Acme"}))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(recvCtx)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, "tenant.created", env.Type)
	assert.Equal(t, "t-1", env.TenantID)
	assert.NotEmpty(t, env.ID)
	assert.JSONEq(t, `{"name":"Acme"}`, string(env.Data))
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, string, string, any) error {
	f.calls++
	return errors.New("broker down")
}

func TestGuardedPublisherOpensAfterFailures(t *testing.T) {
	inner := &failingPublisher{}
	pub := NewGuardedPublisher(inner, "test", circuitbreaker.Config{
		FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Hour,
	}, nil)

	ctx := context.Background()
	assert.Error(t, pub.Publish(ctx, TopicTenant, TenantUpdated, nil))
	assert.Error(t, pub.Publish(ctx, TopicTenant, TenantUpdated, nil))
	assert.ErrorIs(t, pub.Publish(ctx, TopicTenant, TenantUpdated, nil), circuitbreaker.ErrOpen)
	assert.Equal(t, 2, inner.calls)
}

func TestEncodeWithoutScope(t *testing.T) {
	raw, err := Encode(context.Background(), TopicTenant, TenantDeleted, struct {
		ID string `json:"id"`
	}{ID: "x"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Empty(t, env.TenantID)
	assert.Equal(t, "tenant.deleted", env.Type)
}
