package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/observability/metrics"
)

// UsageAggregator periodically records per-tenant usage snapshots feeding
// the master dashboard's history charts. Each run writes review_count and
// user_count metrics for every active tenant.
type UsageAggregator struct {
	tenantRepo  domain.TenantRepository
	reviewRepo  domain.ReviewRepository
	profileRepo domain.ProfileRepository
	metricsRepo domain.UsageMetricRepository
	logger      *slog.Logger
	interval    time.Duration
}

// NewUsageAggregator creates a new usage aggregator
func NewUsageAggregator(
	tenantRepo domain.TenantRepository,
	reviewRepo domain.ReviewRepository,
	profileRepo domain.ProfileRepository,
	metricsRepo domain.UsageMetricRepository,
	logger *slog.Logger,
	interval time.Duration,
) *UsageAggregator {
	return &UsageAggregator{
		tenantRepo:  tenantRepo,
		reviewRepo:  reviewRepo,
		profileRepo: profileRepo,
		metricsRepo: metricsRepo,
		logger:      logger,
		interval:    interval,
	}
}

// Start begins the aggregation loop. It runs until the context is
// cancelled, taking a first snapshot immediately.
func (w *UsageAggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("usage aggregator started", slog.Duration("interval", w.interval))
	w.aggregate()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("usage aggregator stopped")
			return
		case <-ticker.C:
			w.aggregate()
		}
	}
}

func (w *UsageAggregator) aggregate() {
	scope := domain.SystemScope()
	tenants, err := w.tenantRepo.List(scope)
	if err != nil {
		w.logger.Error("failed to list tenants for usage snapshot", slog.String("error", err.Error()))
		metrics.ObserveSweep("usage_aggregator", "error")
		return
	}

	now := time.Now()
	failed := 0
	for _, tenant := range tenants {
		if tenant.Status != domain.TenantActive {
			continue
		}
		if err := w.snapshotTenant(scope, tenant, now); err != nil {
			w.logger.Error("usage snapshot failed",
				slog.String("tenant_id", tenant.ID),
				slog.String("error", err.Error()),
			)
			failed++
		}
	}

	if failed > 0 {
		metrics.ObserveSweep("usage_aggregator", "partial")
		return
	}
	metrics.ObserveSweep("usage_aggregator", "success")
}

func (w *UsageAggregator) snapshotTenant(scope domain.Scope, tenant *domain.Tenant, now time.Time) error {
	reviews, err := w.reviewRepo.CountByTenant(tenant.ID)
	if err != nil {
		return err
	}
	users, err := w.profileRepo.CountByTenant(scope, tenant.ID)
	if err != nil {
		return err
	}

	for name, value := range map[string]int64{
		"review_count": int64(reviews),
		"user_count":   int64(users),
	} {
		metric := &domain.UsageMetric{
			ID:          uuid.NewString(),
			TenantID:    tenant.ID,
			MetricName:  name,
			MetricValue: value,
			RecordedAt:  now,
		}
		if err := w.metricsRepo.Record(metric); err != nil {
			return err
		}
	}
	return nil
}
