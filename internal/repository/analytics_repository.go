package repository

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/yourorg/reviewflow/internal/domain"
)

// PostgresAnalyticsRepository implements domain.AnalyticsRepository with
// aggregate queries over the whole platform.
type PostgresAnalyticsRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresAnalyticsRepository creates a new analytics repository
func NewPostgresAnalyticsRepository(db *sql.DB, logger *slog.Logger) *PostgresAnalyticsRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAnalyticsRepository{db: db, logger: logger}
}

// PlatformAnalytics rolls up platform-wide figures. super_admin only.
func (r *PostgresAnalyticsRepository) PlatformAnalytics(scope domain.Scope) (*domain.PlatformAnalytics, error) {
	if !scope.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}
	a := &domain.PlatformAnalytics{}
	query := `
		SELECT
			(SELECT count(*) FROM tenants),
			(SELECT count(*) FROM tenants WHERE status = 'active'),
			(SELECT count(*) FROM profiles WHERE is_active = true),
			(SELECT count(*) FROM reviews),
			(SELECT count(*) FROM reviews WHERE created_at >= now() - interval '30 days'),
			COALESCE((SELECT avg(rating) FROM reviews), 0),
			COALESCE((SELECT avg(CASE WHEN google_review THEN 1.0 ELSE 0.0 END) FROM reviews), 0)
	`
	err := r.db.QueryRow(query).Scan(
		&a.TotalTenants, &a.ActiveTenants, &a.TotalProfiles, &a.TotalReviews,
		&a.ReviewsLast30d, &a.AverageRating, &a.GoogleShare,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute platform analytics: %w", err)
	}
	return a, nil
}

// TenantUsage returns one tenant's usage snapshot. super_admin only; tenant
// admins see their own numbers through the review-limit endpoint instead.
func (r *PostgresAnalyticsRepository) TenantUsage(scope domain.Scope, tenantID string) (*domain.TenantUsage, error) {
	if !scope.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}
	u := &domain.TenantUsage{TenantID: tenantID}
	query := `
		SELECT
			(SELECT count(*) FROM reviews WHERE tenant_id = $1),
			(SELECT count(*) FROM reviews WHERE tenant_id = $1 AND created_at >= now() - interval '30 days'),
			(SELECT count(*) FROM profiles WHERE tenant_id = $1 AND is_active = true),
			COALESCE((SELECT avg(rating) FROM reviews WHERE tenant_id = $1), 0),
			COALESCE((SELECT max(created_at) FROM reviews WHERE tenant_id = $1), 'epoch'::timestamptz)
	`
	err := r.db.QueryRow(query, tenantID).Scan(
		&u.ReviewCount, &u.ReviewsLast30d, &u.UserCount, &u.AverageRating, &u.LastReviewAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute tenant usage: %w", err)
	}
	return u, nil
}
