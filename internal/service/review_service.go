package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/observability/metrics"
	"github.com/yourorg/reviewflow/internal/realtime"
	"github.com/yourorg/reviewflow/internal/security/auth"
)

// PublicReviewSubmission is a validated public form payload. The slug or a
// link code identifies the tenant; handlers validate field constraints
// before this service runs.
type PublicReviewSubmission struct {
	TenantSlug    string
	LinkCode      string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Rating        int
	Feedback      string
	TrackingID    string
	UTMSource     string
}

// SubmissionResult carries the stored review id and where to send the
// customer next.
type SubmissionResult struct {
	ReviewID     string `json:"review_id"`
	GoogleReview bool   `json:"google_review"`
	RedirectURL  string `json:"redirect_url"`
}

// ReviewService implements review collection and management.
type ReviewService struct {
	tenantRepo   domain.TenantRepository
	reviewRepo   domain.ReviewRepository
	linkRepo     domain.ReviewLinkRepository
	settingsRepo domain.BusinessSettingsRepository
	limits       *ReviewLimitService
	notifier     realtime.Publisher
	frontendURL  string
	logger       *slog.Logger
}

// NewReviewService creates a new review service
func NewReviewService(
	tenantRepo domain.TenantRepository,
	reviewRepo domain.ReviewRepository,
	linkRepo domain.ReviewLinkRepository,
	settingsRepo domain.BusinessSettingsRepository,
	limits *ReviewLimitService,
	notifier realtime.Publisher,
	frontendURL string,
	logger *slog.Logger,
) *ReviewService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{
		tenantRepo:   tenantRepo,
		reviewRepo:   reviewRepo,
		linkRepo:     linkRepo,
		settingsRepo: settingsRepo,
		limits:       limits,
		notifier:     notifier,
		frontendURL:  frontendURL,
		logger:       logger,
	}
}

// SubmitPublic handles an anonymous review submission: resolve the tenant,
// enforce the plan quota, persist the review, and pick the redirect.
// Ratings at or above the Google threshold route to the tenant's Google
// review URL; everything else lands on the internal feedback page carrying
// the new review id. Nothing is written when validation fails.
func (s *ReviewService) SubmitPublic(ctx context.Context, sub *PublicReviewSubmission) (*SubmissionResult, error) {
	if sub.Rating < 1 || sub.Rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5")
	}

	tenant, err := s.resolveTenant(sub)
	if err != nil {
		return nil, err
	}

	// Admission uses a fresh count; the cached status is only for
	// dashboard reads and may trail the store by the TTL.
	status, err := s.limits.FreshStatusFor(tenant)
	if err != nil {
		s.logger.Error("failed to check review limit", slog.String("error", err.Error()))
		return nil, errors.New("failed to submit review")
	}
	if !status.CanCollect {
		return nil, domain.ErrReviewLimitReached
	}

	review := &domain.Review{
		TenantID:      tenant.ID,
		CustomerName:  sub.CustomerName,
		CustomerEmail: sub.CustomerEmail,
		CustomerPhone: sub.CustomerPhone,
		Rating:        sub.Rating,
		Feedback:      sub.Feedback,
		Metadata:      map[string]any{},
	}
	if sub.TrackingID != "" {
		review.Metadata["tracking_id"] = sub.TrackingID
	}
	if sub.UTMSource != "" {
		review.Metadata["utm_source"] = sub.UTMSource
	}
	if sub.LinkCode != "" {
		review.Metadata["link_code"] = sub.LinkCode
	}

	if err := s.reviewRepo.Insert(review); err != nil {
		return nil, errors.New("failed to submit review")
	}
	s.limits.Invalidate(tenant.ID)

	metrics.ObserveReviewSubmission(string(tenant.PlanType), review.Rating, review.GoogleReview)
	s.notifier.Notify(ctx, realtime.Event{
		Table:    "reviews",
		Action:   "insert",
		TenantID: tenant.ID,
		RowID:    review.ID,
	})

	redirect, err := s.redirectFor(tenant, review)
	if err != nil {
		// The review is stored; a missing Google URL degrades to the
		// feedback page rather than failing the submission.
		s.logger.Warn("falling back to feedback redirect",
			slog.String("tenant_id", tenant.ID),
			slog.String("error", err.Error()),
		)
		redirect = s.feedbackURL(tenant, review)
	}

	s.logger.Info("review submitted",
		slog.String("tenant_id", tenant.ID),
		slog.String("review_id", review.ID),
		slog.Int("rating", review.Rating),
		slog.Bool("google_review", review.GoogleReview),
	)

	return &SubmissionResult{
		ReviewID:     review.ID,
		GoogleReview: review.GoogleReview,
		RedirectURL:  redirect,
	}, nil
}

// resolveTenant finds the active tenant behind a slug or link code.
func (s *ReviewService) resolveTenant(sub *PublicReviewSubmission) (*domain.Tenant, error) {
	if sub.LinkCode != "" {
		link, err := s.linkRepo.GetByCode(sub.LinkCode)
		if err != nil {
			return nil, fmt.Errorf("unknown review link: %w", domain.ErrNotFound)
		}
		return s.tenantRepo.GetByID(domain.SystemScope(), link.TenantID)
	}
	if sub.TenantSlug == "" {
		return nil, fmt.Errorf("tenant slug required")
	}
	tenant, err := s.tenantRepo.GetBySlug(sub.TenantSlug)
	if err != nil {
		return nil, fmt.Errorf("unknown tenant: %w", domain.ErrNotFound)
	}
	return tenant, nil
}

func (s *ReviewService) redirectFor(tenant *domain.Tenant, review *domain.Review) (string, error) {
	if !review.GoogleReview {
		return s.feedbackURL(tenant, review), nil
	}
	settings, err := s.settingsRepo.GetPublicByTenant(tenant.ID)
	if err != nil {
		return "", fmt.Errorf("no business settings: %w", err)
	}
	if settings.GoogleBusinessURL == "" {
		return "", errors.New("tenant has no google business url")
	}
	return settings.GoogleBusinessURL, nil
}

func (s *ReviewService) feedbackURL(tenant *domain.Tenant, review *domain.Review) string {
	q := url.Values{}
	q.Set("review_id", review.ID)
	q.Set("slug", tenant.Slug)
	return s.frontendURL + "/feedback?" + q.Encode()
}

// MarkRedirectOpened records that the customer followed the redirect.
func (s *ReviewService) MarkRedirectOpened(id string) error {
	return s.reviewRepo.MarkRedirectOpened(id)
}

// Get returns one review within the caller's scope.
func (s *ReviewService) Get(scope domain.Scope, id string) (*domain.Review, error) {
	return s.reviewRepo.GetByID(scope, id)
}

// List returns a tenant's reviews within the caller's scope.
func (s *ReviewService) List(scope domain.Scope, tenantID string, filter domain.ReviewFilter) ([]*domain.Review, error) {
	return s.reviewRepo.List(scope, tenantID, filter)
}

// CreateLink mints a shareable code resolving to the tenant's public form.
func (s *ReviewService) CreateLink(scope domain.Scope, tenantID, name string) (*domain.ReviewLink, error) {
	code, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate link code: %w", err)
	}
	link := &domain.ReviewLink{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Code:      code[:12],
		Name:      name,
		CreatedBy: scope.UserID,
		IsActive:  true,
	}
	if err := s.linkRepo.Create(scope, link); err != nil {
		return nil, err
	}
	return link, nil
}

// ResolveLink maps an active link code to its tenant for the public form.
func (s *ReviewService) ResolveLink(code string) (*domain.Tenant, error) {
	link, err := s.linkRepo.GetByCode(code)
	if err != nil {
		return nil, fmt.Errorf("unknown review link: %w", domain.ErrNotFound)
	}
	tenant, err := s.tenantRepo.GetByID(domain.SystemScope(), link.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.Status != domain.TenantActive {
		return nil, domain.ErrNotFound
	}
	return tenant, nil
}

// ListLinks returns a tenant's review links.
func (s *ReviewService) ListLinks(scope domain.Scope, tenantID string) ([]*domain.ReviewLink, error) {
	return s.linkRepo.ListByTenant(scope, tenantID)
}

// DeactivateLink retires a link; its code stops resolving.
func (s *ReviewService) DeactivateLink(scope domain.Scope, id string) error {
	return s.linkRepo.Deactivate(scope, id)
}

// Correct applies a staff correction to a review's customer fields.
func (s *ReviewService) Correct(ctx context.Context, scope domain.Scope, review *domain.Review) error {
	if err := s.reviewRepo.Correct(scope, review); err != nil {
		return err
	}
	s.notifier.Notify(ctx, realtime.Event{
		Table:    "reviews",
		Action:   "update",
		TenantID: review.TenantID,
		RowID:    review.ID,
	})
	return nil
}
