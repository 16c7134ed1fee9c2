package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/security/middleware"
	"github.com/yourorg/reviewflow/internal/service"
)

// InviteRequest invites a user into a tenant.
type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=user tenant_admin"`
}

// invitationView hides the raw token from list responses; the token only
// ever travels in the invite email.
type invitationView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
	Used      bool   `json:"used"`
	CreatedAt string `json:"created_at"`
}

// InvitationHandler manages user invitations.
type InvitationHandler struct {
	invitationService *service.InvitationService
	logger            *slog.Logger
}

// NewInvitationHandler creates a new invitation handler
func NewInvitationHandler(invitationService *service.InvitationService, logger *slog.Logger) *InvitationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationHandler{invitationService: invitationService, logger: logger}
}

// Create handles POST /api/invitations
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	var req InviteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inv, err := h.invitationService.Invite(r.Context(), scope, requestTenantID(r, scope), req.Email, domain.Role(req.Role))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvitationView(inv))
}

// List handles GET /api/invitations
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	invitations, err := h.invitationService.List(scope, requestTenantID(r, scope))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	views := make([]invitationView, 0, len(invitations))
	for _, inv := range invitations {
		views = append(views, toInvitationView(inv))
	}
	writeJSON(w, http.StatusOK, views)
}

// Revoke handles DELETE /api/invitations/{id}
func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	if err := h.invitationService.Revoke(scope, r.PathValue("id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// Lookup handles GET /api/public/invitations/{token}. The signup page uses
// it to prefill the email and explain expired links.
func (h *InvitationHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invitationService.Lookup(r.PathValue("token"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":      inv.Email,
		"role":       inv.Role,
		"expires_at": inv.ExpiresAt,
	})
}

func toInvitationView(inv *domain.Invitation) invitationView {
	return invitationView{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      string(inv.Role),
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
		Used:      inv.UsedAt != nil,
		CreatedAt: inv.CreatedAt.Format(time.RFC3339),
	}
}
