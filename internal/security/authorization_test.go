package security

import (
	"errors"
	"testing"

	"github.com/yourorg/reviewflow/internal/domain"
)

func TestRolePermissions(t *testing.T) {
	as := NewAuthorizationService(nil)

	cases := []struct {
		role domain.Role
		perm Permission
		want bool
	}{
		{domain.RoleSuperAdmin, PermManageTenants, true},
		{domain.RoleSuperAdmin, PermManageSystemKeys, true},
		{domain.RoleTenantAdmin, PermManageInvites, true},
		{domain.RoleTenantAdmin, PermManageTenants, false},
		{domain.RoleTenantAdmin, PermManageSystemKeys, false},
		{domain.RoleUser, PermReadReviews, true},
		{domain.RoleUser, PermManageUsers, false},
		{domain.Role("ghost"), PermReadReviews, false},
	}
	for _, tc := range cases {
		if got := as.HasPermission(tc.role, tc.perm); got != tc.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestValidatePermissionReturnsForbidden(t *testing.T) {
	as := NewAuthorizationService(nil)
	scope := domain.Scope{UserID: "u1", TenantID: "t1", Role: domain.RoleUser}

	err := as.ValidatePermission(scope, PermManageUsers)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := as.ValidatePermission(scope, PermReadReviews); err != nil {
		t.Fatalf("read_reviews should be allowed for user: %v", err)
	}
}

func TestValidateTenantAccess(t *testing.T) {
	as := NewAuthorizationService(nil)

	admin := domain.Scope{UserID: "u1", TenantID: "t1", Role: domain.RoleTenantAdmin}
	if err := as.ValidateTenantAccess(admin, "t1"); err != nil {
		t.Fatalf("own tenant should be accessible: %v", err)
	}
	if err := as.ValidateTenantAccess(admin, "t2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("cross-tenant access should be forbidden, got %v", err)
	}

	super := domain.Scope{UserID: "root", Role: domain.RoleSuperAdmin}
	if err := as.ValidateTenantAccess(super, "t2"); err != nil {
		t.Fatalf("super admin should cross tenants: %v", err)
	}
}
