package domain

import "time"

// PlatformAnalytics is the master-dashboard rollup across all tenants.
type PlatformAnalytics struct {
	TotalTenants   int     `json:"total_tenants"`
	ActiveTenants  int     `json:"active_tenants"`
	TotalProfiles  int     `json:"total_profiles"`
	TotalReviews   int     `json:"total_reviews"`
	ReviewsLast30d int     `json:"reviews_last_30d"`
	AverageRating  float64 `json:"average_rating"`
	GoogleShare    float64 `json:"google_share"` // Fraction of reviews routed to Google
}

// TenantUsage is a per-tenant usage snapshot for the master dashboard.
type TenantUsage struct {
	TenantID       string    `json:"tenant_id"`
	ReviewCount    int       `json:"review_count"`
	ReviewsLast30d int       `json:"reviews_last_30d"`
	UserCount      int       `json:"user_count"`
	AverageRating  float64   `json:"average_rating"`
	LastReviewAt   time.Time `json:"last_review_at"`
}

// AnalyticsRepository aggregates across tenants; every method requires a
// super_admin scope.
type AnalyticsRepository interface {
	PlatformAnalytics(scope Scope) (*PlatformAnalytics, error)
	TenantUsage(scope Scope, tenantID string) (*TenantUsage, error)
}
