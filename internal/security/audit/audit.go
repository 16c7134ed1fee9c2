package audit

import (
	"context"
	"log/slog"

	"github.com/yourorg/reviewflow/internal/domain"
)

type requestIDKey struct{}

// WithRequestID stores a request id for audit correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the correlation id, or "".
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Logger records privileged actions both as structured log lines and as
// append-only audit_logs rows. Persistence is best-effort: a failed insert
// is logged but never fails the request that triggered it.
type Logger struct {
	logger *slog.Logger
	repo   domain.AuditLogRepository
}

func NewLogger(logger *slog.Logger, repo domain.AuditLogRepository) *Logger {
	return &Logger{logger: logger, repo: repo}
}

func (al *Logger) LogAction(ctx context.Context, tenantID, userID, action, resource, resourceID, status, details string) {
	requestID := RequestIDFromContext(ctx)

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestID),
	)

	if al.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		TenantID:   tenantID,
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Status:     status,
		Details:    details,
		RequestID:  requestID,
	}
	if err := al.repo.Append(entry); err != nil {
		al.logger.Warn("audit persistence failed", slog.String("error", err.Error()))
	}
}

func (al *Logger) LogInvitation(ctx context.Context, tenantID, userID, invitationID, status, details string) {
	al.LogAction(ctx, tenantID, userID, "invite", "invitation", invitationID, status, details)
}

func (al *Logger) LogTenantChange(ctx context.Context, tenantID, userID, action, status, details string) {
	al.LogAction(ctx, tenantID, userID, action, "tenant", tenantID, status, details)
}

func (al *Logger) LogDenied(ctx context.Context, tenantID, userID, reason string) {
	al.LogAction(ctx, tenantID, userID, "access_denied", "api", "", "denied", reason)
}
