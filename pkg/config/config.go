package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/aryan0dhankhar/tenantcore/pkg/database"
)

// Event broker choices for EVENT_BROKER.
const (
	BrokerRedis = "redis"
	BrokerMQTT  = "mqtt"
	BrokerNone  = "none"
)

// Config holds the application configuration
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	ServerPort  int    `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Database DatabaseConfig

	RedisURL     string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	EventBroker  string `env:"EVENT_BROKER" envDefault:"redis"`
	MQTTBroker   string `env:"MQTT_BROKER" envDefault:"tcp://localhost:1883"`
	MQTTClientID string `env:"MQTT_CLIENT_ID" envDefault:"tenantcore"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"tenantcore"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"600"`

	ValidationCacheTTL time.Duration `env:"VALIDATION_CACHE_TTL" envDefault:"60s"`
	IdempotencyTTL     time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"1m"`
	TenantContextTTL   time.Duration `env:"TENANT_CONTEXT_TTL" envDefault:"0s"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// DatabaseConfig is the PostgreSQL part of Config. DATABASE_URL wins over the DB_* fields.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            int           `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"tenantcore"`
	Password        string        `env:"DB_PASSWORD" envDefault:"dev"`
	Name            string        `env:"DB_NAME" envDefault:"tenantcore"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnectAttempts int           `env:"DB_CONNECT_ATTEMPTS" envDefault:"5"`
	TxTimeout       time.Duration `env:"DB_TX_TIMEOUT" envDefault:"30s"`
}

// Pool converts the settings for database.NewConnectionPool.
func (d DatabaseConfig) Pool() *database.Config {
	return &database.Config{
		URL:             d.URL,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Name,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnectAttempts: d.ConnectAttempts,
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.EventBroker {
	case BrokerRedis, BrokerMQTT, BrokerNone:
	default:
		return fmt.Errorf("invalid EVENT_BROKER %q: want redis, mqtt or none", c.EventBroker)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.ServerPort)
	}
	if c.Environment == "production" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}
