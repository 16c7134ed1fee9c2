package security

import (
	"fmt"
	"log/slog"

	"github.com/yourorg/reviewflow/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermReadReviews      Permission = "read_reviews"
	PermCorrectReview    Permission = "correct_review"
	PermExportReviews    Permission = "export_reviews"
	PermManageSettings   Permission = "manage_settings"
	PermManageLinks      Permission = "manage_links"
	PermManageUsers      Permission = "manage_users"
	PermManageInvites    Permission = "manage_invites"
	PermReadInvoices     Permission = "read_invoices"
	PermSendInvoice      Permission = "send_invoice"
	PermManageTenants    Permission = "manage_tenants"
	PermManageInvoices   Permission = "manage_invoices"
	PermViewAnalytics    Permission = "view_analytics"
	PermViewAuditLog     Permission = "view_audit_log"
	PermManageSystemKeys Permission = "manage_system_settings"
)

// RolePermissions maps roles to their permissions. The database scoping in
// the repositories is the enforcement point for tenant isolation; this
// table only decides which operations a role may attempt at all.
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleSuperAdmin: {
		PermReadReviews,
		PermCorrectReview,
		PermExportReviews,
		PermManageSettings,
		PermManageLinks,
		PermManageUsers,
		PermManageInvites,
		PermReadInvoices,
		PermSendInvoice,
		PermManageTenants,
		PermManageInvoices,
		PermViewAnalytics,
		PermViewAuditLog,
		PermManageSystemKeys,
	},
	domain.RoleTenantAdmin: {
		PermReadReviews,
		PermCorrectReview,
		PermExportReviews,
		PermManageSettings,
		PermManageLinks,
		PermManageUsers,
		PermManageInvites,
		PermReadInvoices,
		PermSendInvoice,
		PermViewAuditLog,
	},
	domain.RoleUser: {
		PermReadReviews,
	},
}

// AuthorizationService handles role/permission checks. These checks are
// advisory (early 403s with a clear message); repositories re-enforce
// tenant scope on every query.
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{logger: logger}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role domain.Role, permission Permission) bool {
	permissions, exists := RolePermissions[role]
	if !exists {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// ValidatePermission validates that a scope's role has a specific permission
func (as *AuthorizationService) ValidatePermission(scope domain.Scope, permission Permission) error {
	if !as.HasPermission(scope.Role, permission) {
		as.logger.Warn("permission denied",
			slog.String("user_id", scope.UserID),
			slog.String("role", string(scope.Role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("permission denied: %s role cannot %s: %w", scope.Role, permission, domain.ErrForbidden)
	}
	return nil
}

// GetRolePermissions returns all permissions for a role
func (as *AuthorizationService) GetRolePermissions(role domain.Role) []Permission {
	return RolePermissions[role]
}

// ValidateTenantAccess checks that the scope may touch the requested tenant
func (as *AuthorizationService) ValidateTenantAccess(scope domain.Scope, requestedTenantID string) error {
	if !scope.CanAccessTenant(requestedTenantID) {
		as.logger.Warn("tenant access denied",
			slog.String("user_id", scope.UserID),
			slog.String("user_tenant", scope.TenantID),
			slog.String("requested_tenant", requestedTenantID),
		)
		return fmt.Errorf("access denied: invalid tenant: %w", domain.ErrForbidden)
	}
	return nil
}
