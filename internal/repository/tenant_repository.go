package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/yourorg/reviewflow/internal/domain"
)

// PostgresTenantRepository implements domain.TenantRepository using PostgreSQL
type PostgresTenantRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresTenantRepository creates a new tenant repository
func NewPostgresTenantRepository(db *sql.DB, logger *slog.Logger) *PostgresTenantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTenantRepository{db: db, logger: logger}
}

// Create creates a new tenant. Only called from super-admin flows; the
// caller's role is validated by the service before this point.
func (r *PostgresTenantRepository) Create(tenant *domain.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	settings, err := marshalJSON(tenant.Settings)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO tenants (id, name, slug, domain, plan_type, status, settings, billing_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(query,
		tenant.ID, tenant.Name, tenant.Slug, tenant.Domain,
		string(tenant.PlanType), string(tenant.Status), settings, tenant.BillingEmail,
	).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("tenant slug %q: %w", tenant.Slug, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// CreateWithAdmin provisions tenant, admin profile, and default business
// settings in one transaction. Any failure rolls back the whole tenant.
func (r *PostgresTenantRepository) CreateWithAdmin(tenant *domain.Tenant, admin *domain.Profile, settings *domain.BusinessSettings) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	if settings.ID == "" {
		settings.ID = uuid.NewString()
	}
	admin.TenantID = tenant.ID
	settings.TenantID = tenant.ID

	tenantSettings, err := marshalJSON(tenant.Settings)
	if err != nil {
		return err
	}
	custom, err := marshalJSON(settings.FormCustomization)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRow(`
		INSERT INTO tenants (id, name, slug, domain, plan_type, status, settings, billing_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, tenant.ID, tenant.Name, tenant.Slug, tenant.Domain,
		string(tenant.PlanType), string(tenant.Status), tenantSettings, tenant.BillingEmail,
	).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("tenant slug %q: %w", tenant.Slug, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	err = tx.QueryRow(`
		INSERT INTO profiles (id, email, full_name, password_hash, role, tenant_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, admin.ID, admin.Email, admin.FullName, admin.PasswordHash,
		string(admin.Role), admin.TenantID, admin.IsActive,
	).Scan(&admin.CreatedAt, &admin.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("admin email %q: %w", admin.Email, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to create tenant admin: %w", err)
	}

	err = tx.QueryRow(`
		INSERT INTO business_settings (id, tenant_id, business_name, contact_email, contact_phone, google_business_url, email_template, form_customization)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING updated_at
	`, settings.ID, settings.TenantID, settings.BusinessName, settings.ContactEmail,
		settings.ContactPhone, settings.GoogleBusinessURL, settings.EmailTemplate, custom,
	).Scan(&settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create default settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tenant provisioning: %w", err)
	}
	r.logger.Info("tenant provisioned",
		slog.String("tenant_id", tenant.ID),
		slog.String("slug", tenant.Slug),
		slog.String("admin_id", admin.ID),
	)
	return nil
}

// GetByID retrieves a tenant by ID within the caller's scope
func (r *PostgresTenantRepository) GetByID(scope domain.Scope, id string) (*domain.Tenant, error) {
	tenantID, err := guardTenant(scope, id)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT id, name, slug, domain, plan_type, status, settings, billing_email, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRow(query, tenantID))
}

// GetBySlug retrieves a tenant by its public slug. Used by the anonymous
// review form bootstrap, so it takes no scope but only returns active rows.
func (r *PostgresTenantRepository) GetBySlug(slug string) (*domain.Tenant, error) {
	query := `
		SELECT id, name, slug, domain, plan_type, status, settings, billing_email, created_at, updated_at
		FROM tenants
		WHERE slug = $1 AND status = 'active'
	`
	return r.scanOne(r.db.QueryRow(query, slug))
}

// Update updates an existing tenant
func (r *PostgresTenantRepository) Update(scope domain.Scope, tenant *domain.Tenant) error {
	tenantID, err := guardTenant(scope, tenant.ID)
	if err != nil {
		return err
	}
	settings, err := marshalJSON(tenant.Settings)
	if err != nil {
		return err
	}
	query := `
		UPDATE tenants
		SET name = $1, domain = $2, plan_type = $3, settings = $4, billing_email = $5, updated_at = now()
		WHERE id = $6
		RETURNING updated_at
	`
	err = r.db.QueryRow(query,
		tenant.Name, tenant.Domain, string(tenant.PlanType), settings, tenant.BillingEmail, tenantID,
	).Scan(&tenant.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}

// UpdateStatus transitions a tenant's lifecycle state. Tenants are never
// physically deleted.
func (r *PostgresTenantRepository) UpdateStatus(scope domain.Scope, id string, status domain.TenantStatus) error {
	if !scope.IsSuperAdmin() {
		return domain.ErrForbidden
	}
	res, err := r.db.Exec(`UPDATE tenants SET status = $1, updated_at = now() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns all tenants for super_admin, or just the caller's own tenant
// otherwise.
func (r *PostgresTenantRepository) List(scope domain.Scope) ([]*domain.Tenant, error) {
	query := `
		SELECT id, name, slug, domain, plan_type, status, settings, billing_email, created_at, updated_at
		FROM tenants
	`
	args := []any{}
	if !scope.IsSuperAdmin() {
		if scope.TenantID == "" {
			return nil, domain.ErrTenantScopeRequired
		}
		query += ` WHERE id = $1`
		args = append(args, scope.TenantID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []*domain.Tenant
	for rows.Next() {
		t, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresTenantRepository) scanOne(row *sql.Row) (*domain.Tenant, error) {
	t, err := r.scanRow(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (r *PostgresTenantRepository) scanRow(row rowScanner) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	var plan, status string
	var settings []byte
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Domain, &plan, &status,
		&settings, &t.BillingEmail, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.PlanType = domain.PlanType(plan)
	t.Status = domain.TenantStatus(status)
	if t.Settings, err = unmarshalJSON(settings); err != nil {
		return nil, err
	}
	return t, nil
}
