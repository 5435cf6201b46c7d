// Package events publishes domain events to a message broker after the owning transaction
// has committed. Delivery is best effort: callers log failures and move on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
)

// TopicTenant is the exchange-like namespace for tenant lifecycle events.
const TopicTenant = "tenant"

// Routing keys for tenant events.
const (
	TenantCreated             = "created"
	TenantUpdated             = "updated"
	TenantStatusChanged       = "status_changed"
	TenantVerificationChanged = "verification_changed"
	TenantDeleted             = "deleted"
)

// Publisher delivers a payload under topic and routingKey.
type Publisher interface {
	Publish(ctx context.Context, topic, routingKey string, payload any) error
}

// Envelope is the wire format shared by every broker.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	TenantID   string          `json:"tenantId,omitempty"` // scope the event was raised in, if any
	Data       json.RawMessage `json:"data"`
}

// Encode builds the JSON envelope for payload.
func Encode(ctx context.Context, topic, routingKey string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s.%s payload: %w", topic, routingKey, err)
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       topic + "." + routingKey,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
	if tid, ok := tenantctx.TenantID(ctx); ok {
		env.TenantID = tid
	}
	return json.Marshal(env)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
