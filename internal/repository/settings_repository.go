package repository

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/yourorg/reviewflow/internal/domain"
)

// PostgresBusinessSettingsRepository implements domain.BusinessSettingsRepository
type PostgresBusinessSettingsRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresBusinessSettingsRepository creates a new business settings repository
func NewPostgresBusinessSettingsRepository(db *sql.DB, logger *slog.Logger) *PostgresBusinessSettingsRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresBusinessSettingsRepository{db: db, logger: logger}
}

const settingsColumns = `id, tenant_id, business_name, contact_email, contact_phone, google_business_url, email_template, form_customization, updated_at`

// Upsert writes a tenant's settings, one row per tenant
func (r *PostgresBusinessSettingsRepository) Upsert(scope domain.Scope, s *domain.BusinessSettings) error {
	effective, err := guardTenant(scope, s.TenantID)
	if err != nil {
		return err
	}
	if !scope.IsTenantAdmin(effective) {
		return domain.ErrForbidden
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.TenantID = effective
	custom, err := marshalJSON(s.FormCustomization)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO business_settings (id, tenant_id, business_name, contact_email, contact_phone, google_business_url, email_template, form_customization)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id) DO UPDATE
		SET business_name = EXCLUDED.business_name,
		    contact_email = EXCLUDED.contact_email,
		    contact_phone = EXCLUDED.contact_phone,
		    google_business_url = EXCLUDED.google_business_url,
		    email_template = EXCLUDED.email_template,
		    form_customization = EXCLUDED.form_customization,
		    updated_at = now()
		RETURNING id, updated_at
	`
	err = r.db.QueryRow(query,
		s.ID, s.TenantID, s.BusinessName, s.ContactEmail, s.ContactPhone,
		s.GoogleBusinessURL, s.EmailTemplate, custom,
	).Scan(&s.ID, &s.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to upsert business settings",
			slog.String("tenant_id", s.TenantID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to upsert business settings: %w", err)
	}
	return nil
}

// GetByTenant retrieves a tenant's settings within the caller's scope
func (r *PostgresBusinessSettingsRepository) GetByTenant(scope domain.Scope, tenantID string) (*domain.BusinessSettings, error) {
	effective, err := guardTenant(scope, tenantID)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + settingsColumns + ` FROM business_settings WHERE tenant_id = $1`
	return scanSettings(r.db.QueryRow(query, effective))
}

// GetPublicByTenant serves the anonymous form bootstrap. Contact details
// are intentionally blanked.
func (r *PostgresBusinessSettingsRepository) GetPublicByTenant(tenantID string) (*domain.BusinessSettings, error) {
	query := `
		SELECT id, tenant_id, business_name, '', '', google_business_url, '', form_customization, updated_at
		FROM business_settings
		WHERE tenant_id = $1
	`
	return scanSettings(r.db.QueryRow(query, tenantID))
}

func scanSettings(row rowScanner) (*domain.BusinessSettings, error) {
	s := &domain.BusinessSettings{}
	var custom []byte
	err := row.Scan(
		&s.ID, &s.TenantID, &s.BusinessName, &s.ContactEmail, &s.ContactPhone,
		&s.GoogleBusinessURL, &s.EmailTemplate, &custom, &s.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if s.FormCustomization, err = unmarshalJSON(custom); err != nil {
		return nil, err
	}
	return s, nil
}

// PostgresSystemSettingRepository implements domain.SystemSettingRepository
type PostgresSystemSettingRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSystemSettingRepository creates a new system setting repository
func NewPostgresSystemSettingRepository(db *sql.DB, logger *slog.Logger) *PostgresSystemSettingRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSystemSettingRepository{db: db, logger: logger}
}

// Set upserts a platform setting. super_admin only.
func (r *PostgresSystemSettingRepository) Set(scope domain.Scope, s *domain.SystemSetting) error {
	if !scope.IsSuperAdmin() {
		return domain.ErrForbidden
	}
	query := `
		INSERT INTO system_settings (key, value, updated_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = now()
		RETURNING updated_at
	`
	if err := r.db.QueryRow(query, s.Key, s.Value, s.UpdatedBy).Scan(&s.UpdatedAt); err != nil {
		return fmt.Errorf("failed to set system setting: %w", err)
	}
	return nil
}

// Get retrieves one platform setting. super_admin only.
func (r *PostgresSystemSettingRepository) Get(scope domain.Scope, key string) (*domain.SystemSetting, error) {
	if !scope.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}
	s := &domain.SystemSetting{}
	err := r.db.QueryRow(`SELECT key, value, updated_by, updated_at FROM system_settings WHERE key = $1`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedBy, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// List returns all platform settings. super_admin only.
func (r *PostgresSystemSettingRepository) List(scope domain.Scope) ([]*domain.SystemSetting, error) {
	if !scope.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}
	rows, err := r.db.Query(`SELECT key, value, updated_by, updated_at FROM system_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list system settings: %w", err)
	}
	defer rows.Close()

	var out []*domain.SystemSetting
	for rows.Next() {
		s := &domain.SystemSetting{}
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedBy, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan system setting: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
