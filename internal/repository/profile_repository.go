package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/yourorg/reviewflow/internal/domain"
)

// PostgresProfileRepository implements domain.ProfileRepository using PostgreSQL
type PostgresProfileRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresProfileRepository creates a new profile repository
func NewPostgresProfileRepository(db *sql.DB, logger *slog.Logger) *PostgresProfileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProfileRepository{db: db, logger: logger}
}

// Upsert creates or refreshes a profile keyed on the auth identity.
// Provisioning must stay idempotent: a retried signup hits the conflict arm
// and leaves role/tenant assignment untouched.
func (r *PostgresProfileRepository) Upsert(p *domain.Profile) error {
	query := `
		INSERT INTO profiles (id, email, full_name, password_hash, role, tenant_id, is_active)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, full_name = EXCLUDED.full_name, updated_at = now()
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(query,
		p.ID, p.Email, p.FullName, p.PasswordHash, string(p.Role), p.TenantID, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("email %q: %w", p.Email, domain.ErrDuplicate)
		}
		r.logger.Error("failed to upsert profile",
			slog.String("email", p.Email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

const profileColumns = `id, email, full_name, password_hash, role, COALESCE(tenant_id::text, ''), is_active, created_at, updated_at`

// GetByID retrieves a profile. Owners may always read their own row;
// otherwise the target must fall inside the caller's tenant scope.
func (r *PostgresProfileRepository) GetByID(scope domain.Scope, id string) (*domain.Profile, error) {
	p, err := r.getByID(id)
	if err != nil {
		return nil, err
	}
	if scope.UserID == id || scope.IsSuperAdmin() {
		return p, nil
	}
	if p.TenantID == "" || p.TenantID != scope.TenantID {
		return nil, domain.ErrForbidden
	}
	return p, nil
}

func (r *PostgresProfileRepository) getByID(id string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return scanProfile(r.db.QueryRow(query, id))
}

// GetByEmail retrieves an active profile by email. Used by the login path
// before any scope exists, never exposed through a handler directly.
func (r *PostgresProfileRepository) GetByEmail(email string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE lower(email) = lower($1) AND is_active = true`
	return scanProfile(r.db.QueryRow(query, email))
}

// Update updates profile fields the owner controls (name, password hash).
func (r *PostgresProfileRepository) Update(scope domain.Scope, p *domain.Profile) error {
	if scope.UserID != p.ID && !scope.IsTenantAdmin(p.TenantID) {
		return domain.ErrForbidden
	}
	query := `
		UPDATE profiles
		SET email = $1, full_name = $2, password_hash = $3, is_active = $4, updated_at = now()
		WHERE id = $5
		RETURNING updated_at
	`
	err := r.db.QueryRow(query, p.Email, p.FullName, p.PasswordHash, p.IsActive, p.ID).Scan(&p.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}

// roleChangeAllowed applies the role management policy. The target row's
// tenant decides, not the caller-supplied one: a tenant admin may neither
// reach into another tenant's profiles nor pull one into its own tenant,
// and may not mint super admins.
func roleChangeAllowed(scope domain.Scope, target *domain.Profile, role domain.Role, tenantID string) error {
	if scope.IsSuperAdmin() {
		return nil
	}
	if role == domain.RoleSuperAdmin {
		return domain.ErrForbidden
	}
	if !scope.IsTenantAdmin(target.TenantID) || !scope.IsTenantAdmin(tenantID) {
		return domain.ErrForbidden
	}
	return nil
}

// UpdateRole reassigns role and tenant within the bounds of
// roleChangeAllowed.
func (r *PostgresProfileRepository) UpdateRole(scope domain.Scope, id string, role domain.Role, tenantID string) error {
	if !scope.IsSuperAdmin() {
		target, err := r.getByID(id)
		if err != nil {
			return err
		}
		if err := roleChangeAllowed(scope, target, role, tenantID); err != nil {
			return err
		}
	}
	// super_admin rows carry no tenant
	if role == domain.RoleSuperAdmin {
		tenantID = ""
	}
	query := `
		UPDATE profiles
		SET role = $1, tenant_id = NULLIF($2, '')::uuid, updated_at = now()
		WHERE id = $3
	`
	res, err := r.db.Exec(query, string(role), tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
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

// Deactivate soft-deletes a profile (sets is_active to false)
func (r *PostgresProfileRepository) Deactivate(scope domain.Scope, id string) error {
	target, err := r.getByID(id)
	if err != nil {
		return err
	}
	if scope.UserID != id && !scope.IsTenantAdmin(target.TenantID) {
		return domain.ErrForbidden
	}
	_, err = r.db.Exec(`UPDATE profiles SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate profile: %w", err)
	}
	return nil
}

// ListByTenant lists active profiles of one tenant
func (r *PostgresProfileRepository) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.Profile, error) {
	effective, err := guardTenant(scope, tenantID)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE tenant_id = $1 AND is_active = true
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query, effective)
	if err != nil {
		r.logger.Error("failed to list profiles by tenant",
			slog.String("tenant_id", effective),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountByTenant counts active profiles of one tenant
func (r *PostgresProfileRepository) CountByTenant(scope domain.Scope, tenantID string) (int, error) {
	effective, err := guardTenant(scope, tenantID)
	if err != nil {
		return 0, err
	}
	var n int
	err = r.db.QueryRow(`SELECT count(*) FROM profiles WHERE tenant_id = $1 AND is_active = true`, effective).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return n, nil
}

func scanProfile(row rowScanner) (*domain.Profile, error) {
	p := &domain.Profile{}
	var role string
	err := row.Scan(
		&p.ID, &p.Email, &p.FullName, &p.PasswordHash, &role,
		&p.TenantID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	p.Role = domain.Role(role)
	return p, nil
}
