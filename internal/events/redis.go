package events

import (
	"context"
	"log/slog"

	"github.com/aryan0dhankhar/tenantcore/internal/infrastructure/redis"
)

// RedisPublisher publishes envelopes on the channel "<topic>.<routingKey>".
type RedisPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisPublisher(client *redis.Client, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic, routingKey string, payload any) error {
	msg, err := Encode(ctx, topic, routingKey, payload)
	if err != nil {
		return err
	}
	channel := topic + "." + routingKey
	receivers, err := p.client.Publish(ctx, channel, msg)
	if err != nil {
		return err
	}
	p.logger.Debug("event published",
		slog.String("channel", channel),
		slog.Int64("receivers", receivers),
	)
	return nil
}
