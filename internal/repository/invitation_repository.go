package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/yourorg/reviewflow/internal/domain"
)

// PostgresInvitationRepository implements domain.InvitationRepository using PostgreSQL
type PostgresInvitationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresInvitationRepository creates a new invitation repository
func NewPostgresInvitationRepository(db *sql.DB, logger *slog.Logger) *PostgresInvitationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresInvitationRepository{db: db, logger: logger}
}

const invitationColumns = `id, tenant_id, email, role, token, expires_at, used_at, created_by, created_at`

// Create inserts an invitation. A partial unique index on
// (tenant_id, lower(email)) WHERE used_at IS NULL keeps at most one valid
// invitation per address per tenant.
func (r *PostgresInvitationRepository) Create(scope domain.Scope, inv *domain.Invitation) error {
	effective, err := guardTenant(scope, inv.TenantID)
	if err != nil {
		return err
	}
	if !scope.IsTenantAdmin(effective) {
		return domain.ErrForbidden
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.TenantID = effective
	query := `
		INSERT INTO user_invitations (id, tenant_id, email, role, token, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err = r.db.QueryRow(query,
		inv.ID, inv.TenantID, inv.Email, string(inv.Role), inv.Token, inv.ExpiresAt, inv.CreatedBy,
	).Scan(&inv.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("pending invitation for %q: %w", inv.Email, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetByToken resolves the capability token handed out in the invite email.
func (r *PostgresInvitationRepository) GetByToken(token string) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM user_invitations WHERE token = $1`
	return scanInvitation(r.db.QueryRow(query, token))
}

// GetPendingByEmail returns the newest unused, unexpired invitation for an
// email address.
func (r *PostgresInvitationRepository) GetPendingByEmail(email string) (*domain.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM user_invitations
		WHERE lower(email) = lower($1) AND used_at IS NULL AND expires_at > now()
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanInvitation(r.db.QueryRow(query, email))
}

// ListByTenant lists a tenant's invitations newest first
func (r *PostgresInvitationRepository) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.Invitation, error) {
	effective, err := guardTenant(scope, tenantID)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT ` + invitationColumns + `
		FROM user_invitations
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query, effective)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Delete removes an invitation. Used for admin revocation and as the
// compensation step when the invite email cannot be delivered.
func (r *PostgresInvitationRepository) Delete(scope domain.Scope, id string) error {
	query := `DELETE FROM user_invitations WHERE id = $1`
	args := []any{id}
	if !scope.IsSuperAdmin() {
		if scope.TenantID == "" {
			return domain.ErrTenantScopeRequired
		}
		query += ` AND tenant_id = $2`
		args = append(args, scope.TenantID)
	}
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
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

// ConsumeWithProfile marks the invitation used and upserts the new profile
// in one transaction. The conditional UPDATE both consumes the invitation
// and guards against double use: zero affected rows means some concurrent
// signup won the race or the invitation lapsed.
func (r *PostgresInvitationRepository) ConsumeWithProfile(inv *domain.Invitation, profile *domain.Profile) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE user_invitations
		SET used_at = now()
		WHERE id = $1 AND used_at IS NULL AND expires_at > now()
	`, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to consume invitation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrInvitationInvalid
	}

	err = tx.QueryRow(`
		INSERT INTO profiles (id, email, full_name, password_hash, role, tenant_id, is_active)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7)
		ON CONFLICT (id) DO UPDATE
		SET role = EXCLUDED.role, tenant_id = EXCLUDED.tenant_id, updated_at = now()
		RETURNING created_at, updated_at
	`, profile.ID, profile.Email, profile.FullName, profile.PasswordHash,
		string(profile.Role), profile.TenantID, profile.IsActive,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to provision invited profile",
			slog.String("email", profile.Email),
			slog.String("tenant_id", profile.TenantID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to provision profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invitation consumption: %w", err)
	}
	now := time.Now()
	inv.UsedAt = &now
	return nil
}

// ExpireStale deletes invitations whose expiry has passed
func (r *PostgresInvitationRepository) ExpireStale(now time.Time) (int, error) {
	res, err := r.db.Exec(`DELETE FROM user_invitations WHERE used_at IS NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(rows), nil
}

func scanInvitation(row rowScanner) (*domain.Invitation, error) {
	inv := &domain.Invitation{}
	var role string
	var usedAt sql.NullTime
	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.Email, &role, &inv.Token,
		&inv.ExpiresAt, &usedAt, &inv.CreatedBy, &inv.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	inv.Role = domain.Role(role)
	if usedAt.Valid {
		t := usedAt.Time
		inv.UsedAt = &t
	}
	return inv, nil
}
