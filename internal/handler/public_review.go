package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/reviewflow/internal/service"
)

// PublicReviewRequest is the anonymous review form payload.
type PublicReviewRequest struct {
	TenantSlug    string `json:"tenant_slug"`
	LinkCode      string `json:"link_code"`
	CustomerName  string `json:"customer_name" validate:"max=200"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone string `json:"customer_phone" validate:"max=40"`
	Rating        int    `json:"rating" validate:"required,min=1,max=5"`
	Feedback      string `json:"feedback" validate:"max=4000"`
	TrackingID    string `json:"tracking_id"`
	UTMSource     string `json:"utm_source"`
}

// PublicReviewHandler serves the anonymous review collection surface.
type PublicReviewHandler struct {
	reviewService   *service.ReviewService
	tenantService   *service.TenantService
	settingsService *service.SettingsService
	logger          *slog.Logger
}

// NewPublicReviewHandler creates a new public review handler
func NewPublicReviewHandler(
	reviewService *service.ReviewService,
	tenantService *service.TenantService,
	settingsService *service.SettingsService,
	logger *slog.Logger,
) *PublicReviewHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicReviewHandler{
		reviewService:   reviewService,
		tenantService:   tenantService,
		settingsService: settingsService,
		logger:          logger,
	}
}

// Submit handles POST /api/public/reviews
func (h *PublicReviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req PublicReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.TenantSlug == "" && req.LinkCode == "" {
		writeError(w, http.StatusBadRequest, "tenant_slug or link_code is required")
		return
	}

	result, err := h.reviewService.SubmitPublic(r.Context(), &service.PublicReviewSubmission{
		TenantSlug:    req.TenantSlug,
		LinkCode:      req.LinkCode,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Rating:        req.Rating,
		Feedback:      req.Feedback,
		TrackingID:    req.TrackingID,
		UTMSource:     req.UTMSource,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// FormBootstrap handles GET /api/public/tenants/{slug}. It returns the
// fields the review form needs before a customer rates: business name and
// display customization, never contact details.
func (h *PublicReviewHandler) FormBootstrap(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	tenant, err := h.tenantService.GetPublicBySlug(slug)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	settings, err := h.settingsService.GetPublic(tenant.ID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":          tenant.ID,
		"slug":               tenant.Slug,
		"business_name":      settings.BusinessName,
		"form_customization": settings.FormCustomization,
	})
}

// ResolveLink handles GET /api/public/review-links/{code}. It maps a
// shared link code onto the same form bootstrap payload as the slug route.
func (h *PublicReviewHandler) ResolveLink(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.reviewService.ResolveLink(r.PathValue("code"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	settings, err := h.settingsService.GetPublic(tenant.ID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":          tenant.ID,
		"slug":               tenant.Slug,
		"business_name":      settings.BusinessName,
		"form_customization": settings.FormCustomization,
	})
}

// RedirectOpened handles POST /api/reviews/{id}/redirect-opened. It is
// called from the thank-you page beacon, so it stays unauthenticated.
func (h *PublicReviewHandler) RedirectOpened(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.reviewService.MarkRedirectOpened(id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
