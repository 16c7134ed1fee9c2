package service

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/security/auth"
)

func newAuthFixture() (*AuthService, *fakeProfileRepo, *fakeInvitationRepo) {
	profiles := newFakeProfileRepo()
	invitations := newFakeInvitationRepo(profiles)
	tokens := auth.NewTokenManager("test-secret-key", "reviewflow")
	return NewAuthService(profiles, invitations, tokens, nil), profiles, invitations
}

func pendingInvitation(invitations *fakeInvitationRepo, tenantID, email string, role domain.Role) *domain.Invitation {
	inv := &domain.Invitation{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Email:     email,
		Role:      role,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := invitations.Create(domain.SystemScope(), inv); err != nil {
		panic(err)
	}
	return inv
}

func TestSignupWithInvitationJoinsTenant(t *testing.T) {
	svc, profiles, invitations := newAuthFixture()
	inv := pendingInvitation(invitations, "tenant-1", "alice@example.com", domain.RoleUser)

	result, err := svc.Signup("alice@example.com", "password123", "Alice", inv.Token)
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if result.TenantID != "tenant-1" {
		t.Errorf("expected tenant-1, got %q", result.TenantID)
	}
	if result.Role != domain.RoleUser {
		t.Errorf("expected role user, got %q", result.Role)
	}
	if result.Token == "" {
		t.Error("expected a session token")
	}

	stored, err := invitations.GetByToken(inv.Token)
	if err != nil {
		t.Fatalf("invitation lookup failed: %v", err)
	}
	if stored.UsedAt == nil {
		t.Error("invitation should be marked used")
	}

	profile, err := profiles.GetByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("profile lookup failed: %v", err)
	}
	if profile.TenantID != "tenant-1" {
		t.Errorf("profile tenant = %q, want tenant-1", profile.TenantID)
	}
}

func TestSignupMatchesPendingInvitationByEmail(t *testing.T) {
	svc, _, invitations := newAuthFixture()
	pendingInvitation(invitations, "tenant-2", "bob@example.com", domain.RoleTenantAdmin)

	result, err := svc.Signup("Bob@Example.com", "password123", "Bob", "")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if result.TenantID != "tenant-2" {
		t.Errorf("expected tenant-2, got %q", result.TenantID)
	}
	if result.Role != domain.RoleTenantAdmin {
		t.Errorf("expected tenant_admin, got %q", result.Role)
	}
}

func TestSignupWithoutInvitationCreatesOrphan(t *testing.T) {
	svc, profiles, _ := newAuthFixture()

	result, err := svc.Signup("carol@example.com", "password123", "Carol", "")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if result.TenantID != "" {
		t.Errorf("orphan signup should have no tenant, got %q", result.TenantID)
	}
	if result.Role != domain.RoleUser {
		t.Errorf("orphan role = %q, want user", result.Role)
	}
	if _, err := profiles.GetByEmail("carol@example.com"); err != nil {
		t.Errorf("profile not stored: %v", err)
	}
}

func TestSignupWithExpiredInvitationFallsBackToOrphan(t *testing.T) {
	svc, _, invitations := newAuthFixture()
	inv := &domain.Invitation{
		ID:        uuid.NewString(),
		TenantID:  "tenant-1",
		Email:     "dave@example.com",
		Role:      domain.RoleUser,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	invitations.invitations[inv.ID] = inv

	result, err := svc.Signup("dave@example.com", "password123", "Dave", inv.Token)
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if result.TenantID != "" {
		t.Errorf("expired invitation must not grant tenant access, got %q", result.TenantID)
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := newAuthFixture()
	if _, err := svc.Signup("eve@example.com", "password123", "Eve", ""); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	if _, err := svc.Signup("eve@example.com", "password456", "Eve", ""); err == nil {
		t.Error("second signup with same email should fail")
	}
}

func TestSignupRetryDoesNotDuplicateProfile(t *testing.T) {
	svc, profiles, _ := newAuthFixture()
	first, err := svc.Signup("kate@example.com", "password123", "Kate", "")
	if err != nil {
		t.Fatalf("first signup failed: %v", err)
	}

	if _, err := svc.Signup("Kate@Example.com", "password123", "Kate", ""); err == nil {
		t.Error("retried signup should report a conflict, not mint a second profile")
	}

	if len(profiles.profiles) != 1 {
		t.Fatalf("profile count = %d, want 1", len(profiles.profiles))
	}
	stored, err := profiles.GetByEmail("kate@example.com")
	if err != nil {
		t.Fatalf("profile lookup failed: %v", err)
	}
	if stored.ID != first.UserID {
		t.Errorf("stored profile id = %q, want the original %q", stored.ID, first.UserID)
	}
}

func TestSignupDeactivatedEmailStillConflicts(t *testing.T) {
	svc, profiles, _ := newAuthFixture()
	if _, err := svc.Signup("liam@example.com", "password123", "Liam", ""); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	p, _ := profiles.GetByEmail("liam@example.com")
	profiles.Deactivate(domain.SystemScope(), p.ID)

	// The active-rows-only email lookup misses here; the store's unique
	// email constraint is what surfaces the conflict.
	if _, err := svc.Signup("liam@example.com", "password123", "Liam Again", ""); err == nil {
		t.Error("deactivated email should still conflict on signup")
	}
	if len(profiles.profiles) != 1 {
		t.Errorf("profile count = %d, want 1", len(profiles.profiles))
	}
}

func TestSignupRejectsShortPassword(t *testing.T) {
	svc, _, _ := newAuthFixture()
	if _, err := svc.Signup("frank@example.com", "short", "Frank", ""); err == nil {
		t.Error("short password should be rejected")
	}
}

func TestIsSignupAllowed(t *testing.T) {
	svc, _, invitations := newAuthFixture()
	pendingInvitation(invitations, "tenant-1", "grace@example.com", domain.RoleUser)

	if !svc.IsSignupAllowed("grace@example.com") {
		t.Error("pending invitation should allow signup")
	}
	if svc.IsSignupAllowed("nobody@example.com") {
		t.Error("no invitation should mean no signup")
	}
}

func TestLoginRoundTrip(t *testing.T) {
	svc, _, invitations := newAuthFixture()
	pendingInvitation(invitations, "tenant-1", "henry@example.com", domain.RoleUser)

	if _, err := svc.Signup("henry@example.com", "password123", "Henry", ""); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	result, err := svc.Login("henry@example.com", "password123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.TenantID != "tenant-1" {
		t.Errorf("login tenant = %q, want tenant-1", result.TenantID)
	}

	if _, err := svc.Login("henry@example.com", "wrong-password"); err == nil {
		t.Error("wrong password should fail")
	}
	if _, err := svc.Login("ghost@example.com", "password123"); err == nil {
		t.Error("unknown email should fail")
	}
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	svc, profiles, _ := newAuthFixture()
	if _, err := svc.Signup("iris@example.com", "password123", "Iris", ""); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	p, _ := profiles.GetByEmail("iris@example.com")
	profiles.Deactivate(domain.SystemScope(), p.ID)

	if _, err := svc.Login("iris@example.com", "password123"); err == nil {
		t.Error("deactivated account should not log in")
	}
}

func TestChangePassword(t *testing.T) {
	svc, profiles, _ := newAuthFixture()
	if _, err := svc.Signup("jack@example.com", "password123", "Jack", ""); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	p, _ := profiles.GetByEmail("jack@example.com")
	scope := domain.Scope{UserID: p.ID, Role: domain.RoleUser}

	if err := svc.ChangePassword(scope, "wrong", "newpassword1"); err == nil {
		t.Error("wrong current password should fail")
	}
	if err := svc.ChangePassword(scope, "password123", "newpassword1"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := svc.Login("jack@example.com", "newpassword1"); err != nil {
		t.Errorf("login with new password failed: %v", err)
	}
	if _, err := svc.Login("jack@example.com", "password123"); err == nil {
		t.Error("old password should no longer work")
	}
}
