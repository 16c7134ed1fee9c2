package repository

import (
	"errors"
	"testing"

	"github.com/yourorg/reviewflow/internal/domain"
)

func TestGuardTenant(t *testing.T) {
	superScope := domain.Scope{UserID: "root", Role: domain.RoleSuperAdmin}
	adminScope := domain.Scope{UserID: "a1", TenantID: "tenant-1", Role: domain.RoleTenantAdmin}
	orphanScope := domain.Scope{UserID: "o1", Role: domain.RoleUser}

	effective, err := guardTenant(superScope, "tenant-9")
	if err != nil || effective != "tenant-9" {
		t.Errorf("super admin: got %q, %v", effective, err)
	}
	if _, err := guardTenant(superScope, ""); !errors.Is(err, domain.ErrTenantIDRequired) {
		t.Errorf("super admin without tenant id: got %v, want ErrTenantIDRequired", err)
	}

	effective, err = guardTenant(adminScope, "")
	if err != nil || effective != "tenant-1" {
		t.Errorf("tenant admin default: got %q, %v", effective, err)
	}
	if _, err := guardTenant(adminScope, "tenant-2"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("cross-tenant request: got %v, want ErrForbidden", err)
	}

	if _, err := guardTenant(orphanScope, "tenant-1"); !errors.Is(err, domain.ErrTenantScopeRequired) {
		t.Errorf("orphan scope: got %v, want ErrTenantScopeRequired", err)
	}
}

func TestRoleChangeAllowed(t *testing.T) {
	superScope := domain.Scope{UserID: "root", Role: domain.RoleSuperAdmin}
	adminScope := domain.Scope{UserID: "a1", TenantID: "tenant-1", Role: domain.RoleTenantAdmin}
	ownMember := &domain.Profile{ID: "u1", TenantID: "tenant-1", Role: domain.RoleUser}
	foreignMember := &domain.Profile{ID: "u2", TenantID: "tenant-2", Role: domain.RoleUser}

	if err := roleChangeAllowed(superScope, foreignMember, domain.RoleTenantAdmin, "tenant-2"); err != nil {
		t.Errorf("super admin should manage any tenant: %v", err)
	}
	if err := roleChangeAllowed(adminScope, ownMember, domain.RoleTenantAdmin, "tenant-1"); err != nil {
		t.Errorf("tenant admin should manage own members: %v", err)
	}

	// A caller-supplied tenant id never widens access: the target row's
	// tenant is what gets checked.
	if err := roleChangeAllowed(adminScope, foreignMember, domain.RoleTenantAdmin, "tenant-1"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("cross-tenant promotion: got %v, want ErrForbidden", err)
	}
	if err := roleChangeAllowed(adminScope, ownMember, domain.RoleUser, "tenant-2"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("moving a member to another tenant: got %v, want ErrForbidden", err)
	}
	if err := roleChangeAllowed(adminScope, ownMember, domain.RoleSuperAdmin, "tenant-1"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("minting a super admin: got %v, want ErrForbidden", err)
	}
}
