package repository

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/reviewflow/internal/domain"
)

// PostgresAuditLogRepository implements domain.AuditLogRepository using PostgreSQL
type PostgresAuditLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresAuditLogRepository creates a new audit log repository
func NewPostgresAuditLogRepository(db *sql.DB, logger *slog.Logger) *PostgresAuditLogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAuditLogRepository{db: db, logger: logger}
}

// Append writes an audit record. Append-only: there is no update or delete
// path for this table.
func (r *PostgresAuditLogRepository) Append(entry *domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	query := `
		INSERT INTO audit_logs (id, tenant_id, user_id, action, resource, resource_id, status, details, request_id)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.QueryRow(query,
		entry.ID, entry.TenantID, entry.UserID, entry.Action, entry.Resource,
		entry.ResourceID, entry.Status, entry.Details, entry.RequestID,
	).Scan(&entry.CreatedAt)
	if err != nil {
		// Audit writes must never take a request down with them.
		r.logger.Error("failed to append audit log",
			slog.String("action", entry.Action),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

// List returns recent audit entries, platform-wide for super_admin or
// tenant-scoped otherwise
func (r *PostgresAuditLogRepository) List(scope domain.Scope, tenantID string, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, COALESCE(tenant_id::text, ''), user_id, action, resource, resource_id, status, details, request_id, created_at
		FROM audit_logs
	`
	args := []any{}
	if scope.IsSuperAdmin() && tenantID == "" {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	} else {
		effective, err := guardTenant(scope, tenantID)
		if err != nil {
			return nil, err
		}
		if !scope.IsTenantAdmin(effective) {
			return nil, domain.ErrForbidden
		}
		query += ` WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, effective, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		e := &domain.AuditLog{}
		err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.Resource,
			&e.ResourceID, &e.Status, &e.Details, &e.RequestID, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PostgresUsageMetricRepository implements domain.UsageMetricRepository
type PostgresUsageMetricRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUsageMetricRepository creates a new usage metric repository
func NewPostgresUsageMetricRepository(db *sql.DB, logger *slog.Logger) *PostgresUsageMetricRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUsageMetricRepository{db: db, logger: logger}
}

// Record appends a usage metric sample. Called by the aggregation worker.
func (r *PostgresUsageMetricRepository) Record(m *domain.UsageMetric) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now()
	}
	_, err := r.db.Exec(`
		INSERT INTO usage_metrics (id, tenant_id, metric_name, metric_value, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.TenantID, m.MetricName, m.MetricValue, m.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to record usage metric: %w", err)
	}
	return nil
}

// ListByTenant returns a tenant's samples since a point in time
func (r *PostgresUsageMetricRepository) ListByTenant(scope domain.Scope, tenantID string, since time.Time) ([]*domain.UsageMetric, error) {
	effective, err := guardTenant(scope, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(`
		SELECT id, tenant_id, metric_name, metric_value, recorded_at
		FROM usage_metrics
		WHERE tenant_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at DESC
	`, effective, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage metrics: %w", err)
	}
	defer rows.Close()

	var out []*domain.UsageMetric
	for rows.Next() {
		m := &domain.UsageMetric{}
		if err := rows.Scan(&m.ID, &m.TenantID, &m.MetricName, &m.MetricValue, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestByName returns the newest sample of a metric per tenant. Feeds the
// platform analytics dashboard, so super_admin only.
func (r *PostgresUsageMetricRepository) LatestByName(scope domain.Scope, metricName string) (map[string]int64, error) {
	if !scope.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}
	rows, err := r.db.Query(`
		SELECT DISTINCT ON (tenant_id) tenant_id, metric_value
		FROM usage_metrics
		WHERE metric_name = $1
		ORDER BY tenant_id, recorded_at DESC
	`, metricName)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest metrics: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var tenantID string
		var value int64
		if err := rows.Scan(&tenantID, &value); err != nil {
			return nil, fmt.Errorf("failed to scan latest metric: %w", err)
		}
		out[tenantID] = value
	}
	return out, rows.Err()
}
