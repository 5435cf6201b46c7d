package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aryan0dhankhar/tenantcore/internal/observability/metrics"
	"github.com/aryan0dhankhar/tenantcore/internal/reliability/circuitbreaker"
)

// GuardedPublisher fails fast while the broker is unhealthy and counts every attempt.
type GuardedPublisher struct {
	next    Publisher
	breaker *circuitbreaker.CircuitBreaker
	broker  string
	logger  *slog.Logger
}

// NewGuardedPublisher wraps next. broker labels metrics ("redis", "mqtt").
func NewGuardedPublisher(next Publisher, broker string, cfg circuitbreaker.Config, logger *slog.Logger) *GuardedPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	cb := circuitbreaker.New(broker, cfg)
	cb.OnStateChange(func(name string, from, to circuitbreaker.State) {
		metrics.SetBreakerState(name, int(to))
		logger.Warn("event broker circuit changed state",
			slog.String("broker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	metrics.SetBreakerState(broker, int(circuitbreaker.StateClosed))
	return &GuardedPublisher{next: next, breaker: cb, broker: broker, logger: logger}
}

func (p *GuardedPublisher) Publish(ctx context.Context, topic, routingKey string, payload any) error {
	err := p.breaker.Execute(func() error {
		return p.next.Publish(ctx, topic, routingKey, payload)
	})
	result := "success"
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		result = "rejected"
	case err != nil:
		result = "error"
	}
	metrics.ObserveEvent(p.broker, topic+"."+routingKey, result)
	return err
}
