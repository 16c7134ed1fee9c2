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

// PostgresReviewLinkRepository implements domain.ReviewLinkRepository using PostgreSQL
type PostgresReviewLinkRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresReviewLinkRepository creates a new review link repository
func NewPostgresReviewLinkRepository(db *sql.DB, logger *slog.Logger) *PostgresReviewLinkRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReviewLinkRepository{db: db, logger: logger}
}

const reviewLinkColumns = `id, tenant_id, code, name, created_by, is_active, created_at`

// Create inserts a new shareable review link
func (r *PostgresReviewLinkRepository) Create(scope domain.Scope, link *domain.ReviewLink) error {
	effective, err := guardTenant(scope, link.TenantID)
	if err != nil {
		return err
	}
	if !scope.IsTenantAdmin(effective) {
		return domain.ErrForbidden
	}
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	link.TenantID = effective
	query := `
		INSERT INTO review_links (id, tenant_id, code, name, created_by, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err = r.db.QueryRow(query,
		link.ID, link.TenantID, link.Code, link.Name, link.CreatedBy, link.IsActive,
	).Scan(&link.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("review link code %q: %w", link.Code, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to create review link: %w", err)
	}
	return nil
}

// GetByCode resolves an active link code. Anonymous: this is how public
// form visits find their tenant.
func (r *PostgresReviewLinkRepository) GetByCode(code string) (*domain.ReviewLink, error) {
	query := `SELECT ` + reviewLinkColumns + ` FROM review_links WHERE code = $1 AND is_active = true`
	link := &domain.ReviewLink{}
	err := r.db.QueryRow(query, code).Scan(
		&link.ID, &link.TenantID, &link.Code, &link.Name, &link.CreatedBy, &link.IsActive, &link.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return link, nil
}

// ListByTenant lists a tenant's links newest first
func (r *PostgresReviewLinkRepository) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.ReviewLink, error) {
	effective, err := guardTenant(scope, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(`SELECT `+reviewLinkColumns+` FROM review_links WHERE tenant_id = $1 ORDER BY created_at DESC`, effective)
	if err != nil {
		return nil, fmt.Errorf("failed to list review links: %w", err)
	}
	defer rows.Close()

	var out []*domain.ReviewLink
	for rows.Next() {
		link := &domain.ReviewLink{}
		err := rows.Scan(&link.ID, &link.TenantID, &link.Code, &link.Name, &link.CreatedBy, &link.IsActive, &link.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review link: %w", err)
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

// Deactivate soft-deletes a link (sets is_active to false)
func (r *PostgresReviewLinkRepository) Deactivate(scope domain.Scope, id string) error {
	query := `UPDATE review_links SET is_active = false WHERE id = $1`
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
		return fmt.Errorf("failed to deactivate review link: %w", err)
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
