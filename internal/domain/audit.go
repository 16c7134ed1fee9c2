package domain

import "time"

// AuditLog is an append-only record of a privileged action.
type AuditLog struct {
	ID         string    `json:"id"`                  // UUID
	TenantID   string    `json:"tenant_id,omitempty"` // Empty for platform-level actions
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id,omitempty"`
	Status     string    `json:"status"`
	Details    string    `json:"details,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditLogRepository defines append/read access for audit logs. Reads are
// restricted to super_admin (platform-wide) or tenant_admin (own tenant).
type AuditLogRepository interface {
	Append(entry *AuditLog) error
	List(scope Scope, tenantID string, limit int) ([]*AuditLog, error)
}

// UsageMetric is a periodic per-tenant rollup consumed by platform
// analytics.
type UsageMetric struct {
	ID          string    `json:"id"` // UUID
	TenantID    string    `json:"tenant_id"`
	MetricName  string    `json:"metric_name"`
	MetricValue int64     `json:"metric_value"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// UsageMetricRepository defines data access for usage metrics.
type UsageMetricRepository interface {
	Record(metric *UsageMetric) error
	ListByTenant(scope Scope, tenantID string, since time.Time) ([]*UsageMetric, error)
	// LatestByName returns the most recent value of a metric per tenant.
	LatestByName(scope Scope, metricName string) (map[string]int64, error)
}
