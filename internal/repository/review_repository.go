package repository

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/yourorg/reviewflow/internal/domain"
)

// PostgresReviewRepository implements domain.ReviewRepository using PostgreSQL
type PostgresReviewRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresReviewRepository creates a new review repository
func NewPostgresReviewRepository(db *sql.DB, logger *slog.Logger) *PostgresReviewRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReviewRepository{db: db, logger: logger}
}

const reviewColumns = `id, tenant_id, customer_name, customer_email, customer_phone, rating, feedback, google_review, redirect_opened, metadata, created_at`

// Insert writes a public review submission. This is the one anonymous write
// path; the rating range is validated upstream and re-checked by a DB
// constraint.
func (r *PostgresReviewRepository) Insert(review *domain.Review) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	review.GoogleReview = review.Rating >= domain.GoogleRatingThreshold
	metadata, err := marshalJSON(review.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO reviews (id, tenant_id, customer_name, customer_email, customer_phone, rating, feedback, google_review, redirect_opened, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err = r.db.QueryRow(query,
		review.ID, review.TenantID, review.CustomerName, review.CustomerEmail,
		review.CustomerPhone, review.Rating, review.Feedback, review.GoogleReview,
		review.RedirectOpened, metadata,
	).Scan(&review.CreatedAt)
	if err != nil {
		r.logger.Error("failed to insert review",
			slog.String("tenant_id", review.TenantID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

// GetByID retrieves a review inside the caller's tenant scope
func (r *PostgresReviewRepository) GetByID(scope domain.Scope, id string) (*domain.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`
	args := []any{id}
	if !scope.IsSuperAdmin() {
		if scope.TenantID == "" {
			return nil, domain.ErrTenantScopeRequired
		}
		query += ` AND tenant_id = $2`
		args = append(args, scope.TenantID)
	}
	return scanReview(r.db.QueryRow(query, args...))
}

// List returns tenant reviews newest first, honoring the filter
func (r *PostgresReviewRepository) List(scope domain.Scope, tenantID string, f domain.ReviewFilter) ([]*domain.Review, error) {
	effective, err := guardTenant(scope, tenantID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE tenant_id = $1`
	args := []any{effective}
	n := 1

	add := func(clause string, v any) {
		n++
		query += ` AND ` + clause + `$` + strconv.Itoa(n)
		args = append(args, v)
	}
	if f.MinRating > 0 {
		add("rating >= ", f.MinRating)
	}
	if f.MaxRating > 0 {
		add("rating <= ", f.MaxRating)
	}
	if !f.Since.IsZero() {
		add("created_at >= ", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at < ", f.Until)
	}
	if f.GoogleOnly {
		query += ` AND google_review = true`
	}
	if f.FeedbackOnly {
		query += ` AND google_review = false`
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		n++
		query += ` LIMIT $` + strconv.Itoa(n)
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		n++
		query += ` OFFSET $` + strconv.Itoa(n)
		args = append(args, f.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var out []*domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// CountByTenant counts a tenant's reviews for limit checks. Called from the
// public submission path before any scope exists.
func (r *PostgresReviewRepository) CountByTenant(tenantID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT count(*) FROM reviews WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return n, nil
}

// Correct applies a staff correction to customer fields and feedback.
// Rating and derived google_review stay immutable.
func (r *PostgresReviewRepository) Correct(scope domain.Scope, review *domain.Review) error {
	effective, err := guardTenant(scope, review.TenantID)
	if err != nil {
		return err
	}
	query := `
		UPDATE reviews
		SET customer_name = $1, customer_email = $2, customer_phone = $3, feedback = $4
		WHERE id = $5 AND tenant_id = $6
	`
	res, err := r.db.Exec(query,
		review.CustomerName, review.CustomerEmail, review.CustomerPhone,
		review.Feedback, review.ID, effective,
	)
	if err != nil {
		return fmt.Errorf("failed to correct review: %w", err)
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

// MarkRedirectOpened records that the customer followed the post-submit
// redirect. Anonymous, keyed only by review id.
func (r *PostgresReviewRepository) MarkRedirectOpened(id string) error {
	res, err := r.db.Exec(`UPDATE reviews SET redirect_opened = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark redirect opened: %w", err)
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

func scanReview(row rowScanner) (*domain.Review, error) {
	rv := &domain.Review{}
	var metadata []byte
	err := row.Scan(
		&rv.ID, &rv.TenantID, &rv.CustomerName, &rv.CustomerEmail, &rv.CustomerPhone,
		&rv.Rating, &rv.Feedback, &rv.GoogleReview, &rv.RedirectOpened, &metadata, &rv.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if rv.Metadata, err = unmarshalJSON(metadata); err != nil {
		return nil, err
	}
	return rv, nil
}
