package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/reviewflow/internal/security/middleware"
	"github.com/yourorg/reviewflow/internal/service"
)

// CreateLinkRequest names a new shareable review link.
type CreateLinkRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

// ReviewLinkHandler manages shareable review links.
type ReviewLinkHandler struct {
	reviewService *service.ReviewService
	logger        *slog.Logger
}

// NewReviewLinkHandler creates a new review link handler
func NewReviewLinkHandler(reviewService *service.ReviewService, logger *slog.Logger) *ReviewLinkHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewLinkHandler{reviewService: reviewService, logger: logger}
}

// Create handles POST /api/review-links
func (h *ReviewLinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	var req CreateLinkRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	link, err := h.reviewService.CreateLink(scope, requestTenantID(r, scope), req.Name)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// List handles GET /api/review-links
func (h *ReviewLinkHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	links, err := h.reviewService.ListLinks(scope, requestTenantID(r, scope))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// Deactivate handles DELETE /api/review-links/{id}
func (h *ReviewLinkHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	if err := h.reviewService.DeactivateLink(scope, r.PathValue("id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
