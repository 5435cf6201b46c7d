package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/tenantcore/internal/tenantctx"
)

type requestIDKey struct{}
type actorKey struct{}

// WithRequestID stores the request id for audit entries.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithActor stores the authenticated subject performing the request.
func WithActor(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, actorKey{}, subject)
}

// Actor returns the subject stored by WithActor.
func Actor(ctx context.Context) string {
	s, _ := ctx.Value(actorKey{}).(string)
	return s
}

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("component", "audit"))}
}

// LogAction writes one audit record. Tenant, actor and request id come from ctx.
func (al *Logger) LogAction(ctx context.Context, action, resource, resourceID, status, details string) {
	if al == nil {
		return
	}
	tenantID, _ := tenantctx.TenantID(ctx)
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", Actor(ctx)),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", RequestID(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

// LogResult records action as succeeded or failed depending on err.
func (al *Logger) LogResult(ctx context.Context, action, resource, resourceID string, err error) {
	if err != nil {
		al.LogAction(ctx, action, resource, resourceID, "failed", err.Error())
		return
	}
	al.LogAction(ctx, action, resource, resourceID, "success", "")
}

func (al *Logger) LogDenied(ctx context.Context, reason string) {
	al.LogAction(ctx, "access_denied", "api", "", "denied", reason)
}
