package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// ConnectMQTT dials the broker with auto-reconnect and a clean session.
func ConnectMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// MQTTPublisher publishes envelopes on "<topic>/<routingKey>" with QoS 1.
type MQTTPublisher struct {
	client  mqtt.Client
	logger  *slog.Logger
	timeout time.Duration
}

func NewMQTTPublisher(client mqtt.Client, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTPublisher{client: client, logger: logger, timeout: 5 * time.Second}
}

func (p *MQTTPublisher) Publish(ctx context.Context, topic, routingKey string, payload any) error {
	msg, err := Encode(ctx, topic, routingKey, payload)
	if err != nil {
		return err
	}
	dest := topic + "/" + routingKey
	token := p.client.Publish(dest, 1, false, msg)

	wait := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("publish to %s timed out", dest)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", dest, err)
	}
	p.logger.Debug("event published", slog.String("topic", dest))
	return nil
}

// Close disconnects, waiting briefly for in-flight messages.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
