package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/security"
	"github.com/yourorg/reviewflow/internal/security/middleware"
)

// UpdateRoleRequest changes a team member's role.
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user tenant_admin super_admin"`
}

// profileView is the wire shape of a profile; the password hash never
// leaves the repository layer.
type profileView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	TenantID  string    `json:"tenant_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserHandler manages a tenant's team members.
type UserHandler struct {
	profileRepo domain.ProfileRepository
	authz       *security.AuthorizationService
	logger      *slog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(profileRepo domain.ProfileRepository, authz *security.AuthorizationService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{profileRepo: profileRepo, authz: authz, logger: logger}
}

// List handles GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	if err := h.authz.ValidatePermission(scope, security.PermManageUsers); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	profiles, err := h.profileRepo.ListByTenant(scope, requestTenantID(r, scope))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	views := make([]profileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, toProfileView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

// UpdateRole handles PATCH /api/users/{id}/role
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	if err := h.authz.ValidatePermission(scope, security.PermManageUsers); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	var req UpdateRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	if err := h.profileRepo.UpdateRole(scope, id, domain.Role(req.Role), requestTenantID(r, scope)); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "role updated"})
}

// Deactivate handles DELETE /api/users/{id}
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	if err := h.authz.ValidatePermission(scope, security.PermManageUsers); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	id := r.PathValue("id")
	if id == scope.UserID {
		writeError(w, http.StatusBadRequest, "cannot deactivate your own account")
		return
	}
	if err := h.profileRepo.Deactivate(scope, id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func toProfileView(p *domain.Profile) profileView {
	return profileView{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		Role:      string(p.Role),
		TenantID:  p.TenantID,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
	}
}
