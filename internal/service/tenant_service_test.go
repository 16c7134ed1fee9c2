package service

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/reviewflow/internal/domain"
)

var superScope = domain.Scope{UserID: "root", Role: domain.RoleSuperAdmin}

func validTenantInput() *CreateTenantInput {
	return &CreateTenantInput{
		Name:          "Corner Cafe",
		Slug:          "corner-cafe",
		PlanType:      "pro",
		AdminEmail:    "Owner@Example.com",
		AdminPassword: "s3cret-pass",
		AdminFullName: "Cafe Owner",
	}
}

func TestCreateWithAdmin(t *testing.T) {
	tenants := newFakeTenantRepo()
	svc := NewTenantService(tenants, tenants, newFakeProfileRepo(), nil)

	tenant, admin, err := svc.CreateWithAdmin(superScope, validTenantInput())
	if err != nil {
		t.Fatalf("CreateWithAdmin failed: %v", err)
	}
	if tenant.PlanType != domain.PlanPro {
		t.Errorf("plan = %q, want pro", tenant.PlanType)
	}
	if tenant.Status != domain.TenantActive {
		t.Errorf("status = %q, want active", tenant.Status)
	}
	if admin.Email != "owner@example.com" {
		t.Errorf("admin email not normalized: %q", admin.Email)
	}
	if admin.Role != domain.RoleTenantAdmin || admin.TenantID != tenant.ID {
		t.Errorf("admin not bound to tenant: role=%q tenant=%q", admin.Role, admin.TenantID)
	}
	if !admin.IsActive {
		t.Error("admin should start active")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("s3cret-pass")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}

	stored, err := tenants.GetBySlug("corner-cafe")
	if err != nil {
		t.Fatalf("provisioned tenant not stored: %v", err)
	}
	if stored.ID != tenant.ID {
		t.Errorf("stored id = %q, want %q", stored.ID, tenant.ID)
	}
}

func TestCreateWithAdminRequiresSuperAdmin(t *testing.T) {
	tenants := newFakeTenantRepo()
	svc := NewTenantService(tenants, tenants, newFakeProfileRepo(), nil)

	adminScope := domain.Scope{UserID: "u1", TenantID: "t1", Role: domain.RoleTenantAdmin}
	if _, _, err := svc.CreateWithAdmin(adminScope, validTenantInput()); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateWithAdminRejectsBadSlug(t *testing.T) {
	tenants := newFakeTenantRepo()
	svc := NewTenantService(tenants, tenants, newFakeProfileRepo(), nil)

	for _, slug := range []string{"Corner Cafe", "café", "-leading", "trailing-", "a--b", ""} {
		input := validTenantInput()
		input.Slug = slug
		if _, _, err := svc.CreateWithAdmin(superScope, input); err == nil {
			t.Errorf("slug %q should be rejected", slug)
		}
	}
}

func TestCreateWithAdminRejectsDuplicateSlug(t *testing.T) {
	tenants := newFakeTenantRepo()
	svc := NewTenantService(tenants, tenants, newFakeProfileRepo(), nil)

	if _, _, err := svc.CreateWithAdmin(superScope, validTenantInput()); err != nil {
		t.Fatalf("first CreateWithAdmin failed: %v", err)
	}
	input := validTenantInput()
	input.AdminEmail = "someone-else@example.com"
	if _, _, err := svc.CreateWithAdmin(superScope, input); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateWithAdminNormalizesPlanAlias(t *testing.T) {
	tenants := newFakeTenantRepo()
	svc := NewTenantService(tenants, tenants, newFakeProfileRepo(), nil)

	input := validTenantInput()
	input.PlanType = "enterprise"
	tenant, _, err := svc.CreateWithAdmin(superScope, input)
	if err != nil {
		t.Fatalf("CreateWithAdmin failed: %v", err)
	}
	if tenant.PlanType != domain.PlanIndustry {
		t.Errorf("enterprise should map to industry, got %q", tenant.PlanType)
	}
}

func TestListTenantsRequiresSuperAdmin(t *testing.T) {
	tenants := newFakeTenantRepo()
	svc := NewTenantService(tenants, tenants, newFakeProfileRepo(), nil)

	if _, err := svc.List(domain.Scope{UserID: "u1", TenantID: "t1", Role: domain.RoleTenantAdmin}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.List(superScope); err != nil {
		t.Errorf("super admin list failed: %v", err)
	}
}

func TestUpdateStatusValidation(t *testing.T) {
	tenants := newFakeTenantRepo()
	svc := NewTenantService(tenants, tenants, newFakeProfileRepo(), nil)

	tenant, _, err := svc.CreateWithAdmin(superScope, validTenantInput())
	if err != nil {
		t.Fatalf("CreateWithAdmin failed: %v", err)
	}

	if err := svc.UpdateStatus(superScope, tenant.ID, domain.TenantStatus("frozen")); err == nil {
		t.Error("unknown status should be rejected")
	}
	if err := svc.UpdateStatus(superScope, tenant.ID, domain.TenantSuspended); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	stored, err := tenants.GetByID(superScope, tenant.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != domain.TenantSuspended {
		t.Errorf("status = %q, want suspended", stored.Status)
	}
}
