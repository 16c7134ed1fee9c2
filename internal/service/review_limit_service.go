package service

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/pkg/cache"
)

// PlanLimits is the fixed review quota per plan.
var PlanLimits = map[domain.PlanType]int{
	domain.PlanBasic:    100,
	domain.PlanPro:      500,
	domain.PlanIndustry: 1000,
}

// ReviewLimitStatus is the derived quota state for one tenant.
type ReviewLimitStatus struct {
	PlanType         domain.PlanType `json:"plan_type"`
	MaxReviews       int             `json:"max_reviews"`
	CurrentReviews   int             `json:"current_reviews"`
	RemainingReviews int             `json:"remaining_reviews"`
	IsLimitReached   bool            `json:"is_limit_reached"`
	CanCollect       bool            `json:"can_collect"`
	CanShare         bool            `json:"can_share"`
	CanSend          bool            `json:"can_send"`
}

const limitCacheTTL = 30 * time.Second

// ReviewLimitService computes plan-based review quotas on demand. Results
// are cached briefly; committed review writes invalidate the entry through
// the realtime notifier.
type ReviewLimitService struct {
	tenantRepo domain.TenantRepository
	reviewRepo domain.ReviewRepository
	cache      *cache.Cache
	logger     *slog.Logger
}

// NewReviewLimitService creates a new review limit service
func NewReviewLimitService(
	tenantRepo domain.TenantRepository,
	reviewRepo domain.ReviewRepository,
	c *cache.Cache,
	logger *slog.Logger,
) *ReviewLimitService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewLimitService{
		tenantRepo: tenantRepo,
		reviewRepo: reviewRepo,
		cache:      c,
		logger:     logger,
	}
}

func limitCacheKey(tenantID string) string {
	return "reviews:" + tenantID + ":limit"
}

// StatusFor computes the current quota state for a tenant. An unrecognized
// plan is treated as basic.
func (s *ReviewLimitService) StatusFor(tenant *domain.Tenant) (*ReviewLimitStatus, error) {
	cacheKey := limitCacheKey(tenant.ID)
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheKey); ok {
			if status, ok := v.(*ReviewLimitStatus); ok {
				return status, nil
			}
		}
	}
	return s.compute(tenant, cacheKey)
}

// FreshStatusFor recomputes the quota from the store, refreshing the cached
// entry. The submission path uses it so admission never trusts a stale
// count.
func (s *ReviewLimitService) FreshStatusFor(tenant *domain.Tenant) (*ReviewLimitStatus, error) {
	return s.compute(tenant, limitCacheKey(tenant.ID))
}

func (s *ReviewLimitService) compute(tenant *domain.Tenant, cacheKey string) (*ReviewLimitStatus, error) {
	plan := domain.NormalizePlan(string(tenant.PlanType))
	max := PlanLimits[plan]

	current, err := s.reviewRepo.CountByTenant(tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}

	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	reached := current >= max

	status := &ReviewLimitStatus{
		PlanType:         plan,
		MaxReviews:       max,
		CurrentReviews:   current,
		RemainingReviews: remaining,
		IsLimitReached:   reached,
		CanCollect:       !reached,
		CanShare:         !reached,
		CanSend:          !reached,
	}

	if s.cache != nil {
		s.cache.Set(cacheKey, status, limitCacheTTL)
	}
	return status, nil
}

// Invalidate drops a tenant's cached quota entry. Called after a committed
// review write so the next read reflects the new count.
func (s *ReviewLimitService) Invalidate(tenantID string) {
	if s.cache != nil {
		s.cache.Delete(limitCacheKey(tenantID))
	}
}

// Status loads the tenant within the caller's scope and computes its quota
// state.
func (s *ReviewLimitService) Status(scope domain.Scope, tenantID string) (*ReviewLimitStatus, error) {
	tenant, err := s.tenantRepo.GetByID(scope, tenantID)
	if err != nil {
		return nil, err
	}
	return s.StatusFor(tenant)
}
