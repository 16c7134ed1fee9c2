package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/security"
	"github.com/yourorg/reviewflow/internal/security/middleware"
)

type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: map[string]*domain.Profile{}}
}

func (r *memProfileRepo) Upsert(p *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *memProfileRepo) GetByID(scope domain.Scope, id string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProfileRepo) GetByEmail(email string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memProfileRepo) Update(scope domain.Scope, p *domain.Profile) error {
	return r.Upsert(p)
}

func (r *memProfileRepo) UpdateRole(scope domain.Scope, id string, role domain.Role, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Role = role
	p.TenantID = tenantID
	return nil
}

func (r *memProfileRepo) Deactivate(scope domain.Scope, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.IsActive = false
	return nil
}

func (r *memProfileRepo) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Profile
	for _, p := range r.profiles {
		if p.TenantID == tenantID && p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memProfileRepo) CountByTenant(scope domain.Scope, tenantID string) (int, error) {
	list, err := r.ListByTenant(scope, tenantID)
	return len(list), err
}

func newUserHandler() (*UserHandler, *memProfileRepo) {
	profiles := newMemProfileRepo()
	profiles.Upsert(&domain.Profile{
		ID: "u1", Email: "admin@corner.cafe", FullName: "Admin",
		Role: domain.RoleTenantAdmin, TenantID: "tenant-1", IsActive: true,
	})
	profiles.Upsert(&domain.Profile{
		ID: "u2", Email: "staff@corner.cafe", FullName: "Staff",
		Role: domain.RoleUser, TenantID: "tenant-1", IsActive: true,
	})
	return NewUserHandler(profiles, security.NewAuthorizationService(nil), nil), profiles
}

func scopedRequest(method, target string, scope domain.Scope) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	return r.WithContext(context.WithValue(r.Context(), middleware.ScopeContextKey{}, scope))
}

func TestUserListRequiresManagePermission(t *testing.T) {
	h, _ := newUserHandler()

	rec := httptest.NewRecorder()
	h.List(rec, scopedRequest(http.MethodGet, "/api/users",
		domain.Scope{UserID: "u2", TenantID: "tenant-1", Role: domain.RoleUser}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("plain user listing members: status = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.List(rec, scopedRequest(http.MethodGet, "/api/users",
		domain.Scope{UserID: "u1", TenantID: "tenant-1", Role: domain.RoleTenantAdmin}))
	if rec.Code != http.StatusOK {
		t.Fatalf("tenant admin listing members: status = %d, want 200", rec.Code)
	}

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	var views []profileView
	if err := json.Unmarshal(env.Data, &views); err != nil {
		t.Fatalf("invalid member list: %v", err)
	}
	if len(views) != 2 {
		t.Errorf("got %d members, want 2", len(views))
	}
	if strings.Contains(string(env.Data), "password") {
		t.Error("member list must not carry password material")
	}
}

func TestUserRoleChangeRequiresManagePermission(t *testing.T) {
	h, profiles := newUserHandler()

	r := scopedRequest(http.MethodPatch, "/api/users/u2/role",
		domain.Scope{UserID: "u2", TenantID: "tenant-1", Role: domain.RoleUser})
	r.Body = http.NoBody
	r.SetPathValue("id", "u2")
	rec := httptest.NewRecorder()
	h.UpdateRole(rec, r)
	if rec.Code != http.StatusForbidden {
		t.Errorf("plain user changing roles: status = %d, want 403", rec.Code)
	}
	stored, _ := profiles.GetByID(domain.SystemScope(), "u2")
	if stored.Role != domain.RoleUser {
		t.Errorf("role changed despite denial: %q", stored.Role)
	}
}
