package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/security/middleware"
	"github.com/yourorg/reviewflow/internal/service"
)

// UpdateSettingsRequest is the business settings payload.
type UpdateSettingsRequest struct {
	BusinessName      string         `json:"business_name" validate:"required,max=200"`
	ContactEmail      string         `json:"contact_email" validate:"omitempty,email"`
	ContactPhone      string         `json:"contact_phone" validate:"max=40"`
	GoogleBusinessURL string         `json:"google_business_url" validate:"omitempty,url"`
	EmailTemplate     string         `json:"email_template" validate:"max=8000"`
	FormCustomization map[string]any `json:"form_customization"`
}

// SettingsHandler serves per-tenant business settings.
type SettingsHandler struct {
	settingsService *service.SettingsService
	logger          *slog.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settingsService *service.SettingsService, logger *slog.Logger) *SettingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsHandler{settingsService: settingsService, logger: logger}
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	settings, err := h.settingsService.Get(scope, requestTenantID(r, scope))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update handles PUT /api/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	var req UpdateSettingsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	settings := &domain.BusinessSettings{
		TenantID:          requestTenantID(r, scope),
		BusinessName:      req.BusinessName,
		ContactEmail:      req.ContactEmail,
		ContactPhone:      req.ContactPhone,
		GoogleBusinessURL: req.GoogleBusinessURL,
		EmailTemplate:     req.EmailTemplate,
		FormCustomization: req.FormCustomization,
	}
	if err := h.settingsService.Update(r.Context(), scope, settings); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
