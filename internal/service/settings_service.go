package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/realtime"
	"github.com/yourorg/reviewflow/pkg/cache"
)

const settingsCacheTTL = 5 * time.Minute

// SettingsService manages per-tenant business settings and platform-wide
// system settings. Public reads are cached; writes invalidate the cache
// and publish a change event so other instances drop theirs too.
type SettingsService struct {
	settingsRepo domain.BusinessSettingsRepository
	systemRepo   domain.SystemSettingRepository
	cache        *cache.Cache
	notifier     realtime.Publisher
	logger       *slog.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(settingsRepo domain.BusinessSettingsRepository, systemRepo domain.SystemSettingRepository, c *cache.Cache, notifier realtime.Publisher, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{
		settingsRepo: settingsRepo,
		systemRepo:   systemRepo,
		cache:        c,
		notifier:     notifier,
		logger:       logger,
	}
}

// Get returns a tenant's business settings within the caller's scope.
func (s *SettingsService) Get(scope domain.Scope, tenantID string) (*domain.BusinessSettings, error) {
	return s.settingsRepo.GetByTenant(scope, tenantID)
}

// GetPublic serves the anonymous review form bootstrap, cached per tenant.
func (s *SettingsService) GetPublic(tenantID string) (*domain.BusinessSettings, error) {
	key := "business_settings:" + tenantID + ":public"
	if v, ok := s.cache.Get(key); ok {
		if settings, ok := v.(*domain.BusinessSettings); ok {
			return settings, nil
		}
	}
	settings, err := s.settingsRepo.GetPublicByTenant(tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, settings, settingsCacheTTL)
	return settings, nil
}

// Update upserts a tenant's business settings and invalidates cached reads.
func (s *SettingsService) Update(ctx context.Context, scope domain.Scope, settings *domain.BusinessSettings) error {
	if settings.ID == "" {
		settings.ID = uuid.NewString()
	}
	if err := s.settingsRepo.Upsert(scope, settings); err != nil {
		return err
	}
	s.cache.Invalidate("business_settings:" + settings.TenantID)
	s.notifier.Notify(ctx, realtime.Event{
		Table:    "business_settings",
		Action:   "update",
		TenantID: settings.TenantID,
		RowID:    settings.ID,
	})
	s.logger.Info("business settings updated", slog.String("tenant_id", settings.TenantID))
	return nil
}

// SetSystem writes a platform-wide setting; super admin only, enforced by
// the repository.
func (s *SettingsService) SetSystem(scope domain.Scope, key, value string) (*domain.SystemSetting, error) {
	key = strings.TrimSpace(key)
	setting := &domain.SystemSetting{Key: key, Value: value, UpdatedBy: scope.UserID}
	if err := s.systemRepo.Set(scope, setting); err != nil {
		return nil, err
	}
	s.cache.Invalidate("system_settings:")
	s.logger.Info("system setting updated",
		slog.String("key", key),
		slog.String("updated_by", scope.UserID),
	)
	return setting, nil
}

// GetSystem reads one platform-wide setting.
func (s *SettingsService) GetSystem(scope domain.Scope, key string) (*domain.SystemSetting, error) {
	return s.systemRepo.Get(scope, key)
}

// ListSystem returns all platform-wide settings.
func (s *SettingsService) ListSystem(scope domain.Scope) ([]*domain.SystemSetting, error) {
	return s.systemRepo.List(scope)
}
