package service

import (
	"log/slog"
	"time"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/pkg/cache"
)

const analyticsCacheTTL = time.Minute

// AnalyticsService serves the master dashboard's cross-tenant rollups.
// Aggregates are cached briefly since the dashboard polls them.
type AnalyticsService struct {
	analyticsRepo domain.AnalyticsRepository
	metricsRepo   domain.UsageMetricRepository
	cache         *cache.Cache
	logger        *slog.Logger
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(analyticsRepo domain.AnalyticsRepository, metricsRepo domain.UsageMetricRepository, c *cache.Cache, logger *slog.Logger) *AnalyticsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsService{
		analyticsRepo: analyticsRepo,
		metricsRepo:   metricsRepo,
		cache:         c,
		logger:        logger,
	}
}

// Platform returns the cross-tenant rollup; super admin only.
func (s *AnalyticsService) Platform(scope domain.Scope) (*domain.PlatformAnalytics, error) {
	if !scope.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}
	const key = "analytics:platform"
	if v, ok := s.cache.Get(key); ok {
		if a, ok := v.(*domain.PlatformAnalytics); ok {
			return a, nil
		}
	}
	analytics, err := s.analyticsRepo.PlatformAnalytics(scope)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, analytics, analyticsCacheTTL)
	return analytics, nil
}

// TenantUsage returns one tenant's usage snapshot; super admin only.
func (s *AnalyticsService) TenantUsage(scope domain.Scope, tenantID string) (*domain.TenantUsage, error) {
	if !scope.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}
	key := "analytics:usage:" + tenantID
	if v, ok := s.cache.Get(key); ok {
		if u, ok := v.(*domain.TenantUsage); ok {
			return u, nil
		}
	}
	usage, err := s.analyticsRepo.TenantUsage(scope, tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, usage, analyticsCacheTTL)
	return usage, nil
}

// MetricHistory returns usage metrics recorded for a tenant since a point
// in time.
func (s *AnalyticsService) MetricHistory(scope domain.Scope, tenantID string, since time.Time) ([]*domain.UsageMetric, error) {
	return s.metricsRepo.ListByTenant(scope, tenantID, since)
}
