package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/security/middleware"
	"github.com/yourorg/reviewflow/internal/service"
)

// CorrectReviewRequest updates a review's customer contact fields. Ratings
// and feedback are immutable history.
type CorrectReviewRequest struct {
	CustomerName  string `json:"customer_name" validate:"max=200"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone string `json:"customer_phone" validate:"max=40"`
}

// ReviewHandler serves the authenticated review management surface.
type ReviewHandler struct {
	reviewService *service.ReviewService
	limitService  *service.ReviewLimitService
	logger        *slog.Logger
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviewService *service.ReviewService, limitService *service.ReviewLimitService, logger *slog.Logger) *ReviewHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewHandler{
		reviewService: reviewService,
		limitService:  limitService,
		logger:        logger,
	}
}

// List handles GET /api/reviews
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	filter, err := parseReviewFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reviews, err := h.reviewService.List(scope, requestTenantID(r, scope), filter)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// Get handles GET /api/reviews/{id}
func (h *ReviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	review, err := h.reviewService.Get(scope, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// Correct handles PATCH /api/reviews/{id}
func (h *ReviewHandler) Correct(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	var req CorrectReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	review, err := h.reviewService.Get(scope, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	review.CustomerName = req.CustomerName
	review.CustomerEmail = req.CustomerEmail
	review.CustomerPhone = req.CustomerPhone

	if err := h.reviewService.Correct(r.Context(), scope, review); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// Export handles GET /api/reviews/export?format=csv|xlsx
func (h *ReviewHandler) Export(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	filter, err := parseReviewFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	format := service.ExportFormat(r.URL.Query().Get("format"))
	file, err := h.reviewService.Export(scope, requestTenantID(r, scope), filter, format)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

// Limits handles GET /api/review-limits
func (h *ReviewHandler) Limits(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	status, err := h.limitService.Status(scope, requestTenantID(r, scope))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func parseReviewFilter(r *http.Request) (domain.ReviewFilter, error) {
	q := r.URL.Query()
	var filter domain.ReviewFilter
	var err error

	intParam := func(name string) (int, error) {
		v := q.Get(name)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s", name)
		}
		return n, nil
	}

	if filter.MinRating, err = intParam("min_rating"); err != nil {
		return filter, err
	}
	if filter.MaxRating, err = intParam("max_rating"); err != nil {
		return filter, err
	}
	if filter.Limit, err = intParam("limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = intParam("offset"); err != nil {
		return filter, err
	}
	filter.GoogleOnly = q.Get("google_only") == "true"
	filter.FeedbackOnly = q.Get("feedback_only") == "true"

	if v := q.Get("since"); v != "" {
		if filter.Since, err = time.Parse(time.RFC3339, v); err != nil {
			return filter, fmt.Errorf("invalid since timestamp")
		}
	}
	if v := q.Get("until"); v != "" {
		if filter.Until, err = time.Parse(time.RFC3339, v); err != nil {
			return filter, fmt.Errorf("invalid until timestamp")
		}
	}
	return filter, nil
}
