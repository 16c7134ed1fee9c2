package domain

import "time"

// BusinessSettings is the one-per-tenant review form configuration.
type BusinessSettings struct {
	ID                string         `json:"id"` // UUID
	TenantID          string         `json:"tenant_id"`
	BusinessName      string         `json:"business_name"`
	ContactEmail      string         `json:"contact_email,omitempty"`
	ContactPhone      string         `json:"contact_phone,omitempty"`
	GoogleBusinessURL string         `json:"google_business_url,omitempty"` // Redirect target for high ratings
	EmailTemplate     string         `json:"email_template,omitempty"`
	FormCustomization map[string]any `json:"form_customization,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// BusinessSettingsRepository defines data access for business settings.
type BusinessSettingsRepository interface {
	Upsert(scope Scope, settings *BusinessSettings) error
	GetByTenant(scope Scope, tenantID string) (*BusinessSettings, error)
	// GetPublicByTenant serves the anonymous review form bootstrap and is
	// limited to fields safe for public exposure.
	GetPublicByTenant(tenantID string) (*BusinessSettings, error)
}

// SystemSetting is a platform-wide key/value managed from the master
// dashboard.
type SystemSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SystemSettingRepository defines data access for system settings.
// All operations require a super_admin scope.
type SystemSettingRepository interface {
	Set(scope Scope, setting *SystemSetting) error
	Get(scope Scope, key string) (*SystemSetting, error)
	List(scope Scope) ([]*SystemSetting, error)
}
