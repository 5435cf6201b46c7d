package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/tenantcore/internal/events"
	"github.com/aryan0dhankhar/tenantcore/internal/featureflags"
	"github.com/aryan0dhankhar/tenantcore/internal/handler"
	"github.com/aryan0dhankhar/tenantcore/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/tenantcore/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/tenantcore/internal/observability/tracing"
	"github.com/aryan0dhankhar/tenantcore/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/tenantcore/internal/repository"
	"github.com/aryan0dhankhar/tenantcore/internal/security"
	"github.com/aryan0dhankhar/tenantcore/internal/security/audit"
	"github.com/aryan0dhankhar/tenantcore/internal/security/auth"
	"github.com/aryan0dhankhar/tenantcore/internal/security/ratelimit"
	"github.com/aryan0dhankhar/tenantcore/internal/service"
	"github.com/aryan0dhankhar/tenantcore/internal/validation"
	"github.com/aryan0dhankhar/tenantcore/internal/worker"
	"github.com/aryan0dhankhar/tenantcore/pkg/config"
	"github.com/aryan0dhankhar/tenantcore/pkg/database"
)

const serviceName = "tenantcore"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tenantcore: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting tenantcore server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tcancel()
		if err := shutdownTracing(tctx); err != nil {
			log.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// 4. PostgreSQL
	pool, err := database.NewConnectionPool(ctx, cfg.Database.Pool(), log)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()
	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	db := pool.GetDB()

	// 5. Event broker
	checks := map[string]handler.Check{"postgres": pool.Health}
	publisher, closeBroker, err := connectBroker(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeBroker()

	// 6. Repositories
	tenantRepo := repository.NewTenantRepository(db, log)
	addressRepo := repository.NewAddressRepository(db, log)
	contactRepo := repository.NewContactRepository(db, log)

	// 7. Services
	validator := validation.New(validation.LookupFunc(tenantRepo.FindByID), validation.Config{CacheTTL: cfg.ValidationCacheTTL}, log)
	auditLogger := audit.NewLogger(log)
	unit := service.NewSQLUnit(db, tenantRepo, addressRepo.Unscoped(), contactRepo.Unscoped(), cfg.Database.TxTimeout, log)

	for flag, on := range featureflags.Snapshot() {
		log.Info("feature flag", slog.String("flag", string(flag)), slog.Bool("enabled", on))
	}
	lenient := featureflags.Enabled(featureflags.LenientStatusTransitions)
	if lenient {
		log.Warn("status transitions are not enforced")
	}
	tenantService := service.NewTenantService(tenantRepo, unit, publisher, validator, auditLogger, service.TenantServiceConfig{
		IdempotencyTTL:     cfg.IdempotencyTTL,
		LenientTransitions: lenient,
	}, log)
	addressService := service.NewAddressService(service.NewSQLScoped(addressRepo, cfg.Database.TxTimeout), auditLogger, log)
	contactService := service.NewContactService(service.NewSQLScoped(contactRepo, cfg.Database.TxTimeout), auditLogger, log)

	// 8. Security components
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute)
	defer rateLimiter.Stop()

	// 9. HTTP routes
	router := handler.NewRouter(handler.RouterDeps{
		Tenants:            handler.NewTenantHandler(tenantService, validator, log),
		Addresses:          handler.NewAddressHandler(addressService, log),
		Contacts:           handler.NewContactHandler(contactService, log),
		Health:             handler.NewHealthHandler(checks, log),
		Tokens:             tokenManager,
		Authz:              security.NewAuthorizationService(log),
		Validator:          validator,
		Limiter:            rateLimiter,
		Audit:              auditLogger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		TenantContextTTL:   cfg.TenantContextTTL,
		Logger:             log,
	})

	// 10. Background cache sweeper
	sweeper := worker.NewCacheSweeper(map[string]worker.Purgeable{
		"tenant_validation": validator,
		"idempotency":       tenantService.IdempotencyCache(),
	}, cfg.CacheSweepInterval, log)
	go sweeper.Start(ctx)

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("event_broker", cfg.EventBroker),
		slog.Int("rate_limit_per_minute", cfg.RateLimitPerMinute),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("server error", slog.String("error", err.Error()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	log.Info("server stopped")
	return nil
}

// connectBroker builds the publisher selected by EVENT_BROKER and registers its readiness
// check. The returned close func is always non-nil.
func connectBroker(ctx context.Context, cfg *config.Config, log *slog.Logger, checks map[string]handler.Check) (events.Publisher, func(), error) {
	breakerCfg := circuitbreaker.DefaultConfig()

	switch cfg.EventBroker {
	case config.BrokerRedis:
		client, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		checks["redis"] = client.Ping
		pub := events.NewGuardedPublisher(events.NewRedisPublisher(client, log), config.BrokerRedis, breakerCfg, log)
		return pub, func() { _ = client.Close() }, nil

	case config.BrokerMQTT:
		client, err := events.ConnectMQTT(events.MQTTConfig{Broker: cfg.MQTTBroker, ClientID: cfg.MQTTClientID})
		if err != nil {
			return nil, nil, err
		}
		checks["mqtt"] = func(context.Context) error {
			if !client.IsConnectionOpen() {
				return errors.New("mqtt connection is not open")
			}
			return nil
		}
		pub := events.NewGuardedPublisher(events.NewMQTTPublisher(client, log), config.BrokerMQTT, breakerCfg, log)
		return pub, func() { client.Disconnect(250) }, nil

	default:
		log.Warn("event publishing disabled")
		return events.NopPublisher{}, func() {}, nil
	}
}
