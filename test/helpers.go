package test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/handler"
	"github.com/yourorg/reviewflow/internal/infrastructure/logger"
	"github.com/yourorg/reviewflow/internal/realtime"
	"github.com/yourorg/reviewflow/internal/security/auth"
	"github.com/yourorg/reviewflow/internal/security/middleware"
	"github.com/yourorg/reviewflow/internal/service"
	"github.com/yourorg/reviewflow/pkg/cache"
)

// TestServerHelper wires the real handlers and JWT middleware over
// in-memory stores so the full request path can be exercised without a
// database.
type TestServerHelper struct {
	Server *httptest.Server
	Logger *slog.Logger
	Tokens *auth.TokenManager

	Tenants     *mockTenantRepository
	Profiles    *mockProfileRepository
	Invitations *mockInvitationRepository
	Reviews     *mockReviewRepository
}

func NewTestServer(t *testing.T) *TestServerHelper {
	log := logger.NewLogger("error")

	tenants := newMockTenantRepository()
	profiles := newMockProfileRepository()
	invitations := newMockInvitationRepository(profiles)
	reviews := newMockReviewRepository()
	links := newMockLinkRepository()
	settings := newMockSettingsRepository()

	// One seeded tenant with a Google URL configured.
	tenants.save(&domain.Tenant{
		ID: "tenant-1", Name: "Corner Cafe", Slug: "corner-cafe",
		PlanType: domain.PlanBasic, Status: domain.TenantActive,
	})
	settings.save(&domain.BusinessSettings{
		ID: "bs-1", TenantID: "tenant-1", BusinessName: "Corner Cafe",
		GoogleBusinessURL: "https://g.page/corner-cafe/review",
	})

	tokens := auth.NewTokenManager("integration-test-secret", "reviewflow-test")
	notifier := noopNotifier{}

	limitService := service.NewReviewLimitService(tenants, reviews, cache.New(), log)
	reviewService := service.NewReviewService(tenants, reviews, links, settings, limitService, notifier, "https://app.example.com", log)
	authService := service.NewAuthService(profiles, invitations, tokens, log)
	tenantService := service.NewTenantService(tenants, tenants, profiles, log)
	settingsService := service.NewSettingsService(settings, nil, cache.New(), notifier, log)

	authHandler := handler.NewAuthHandler(authService, log)
	publicHandler := handler.NewPublicReviewHandler(reviewService, tenantService, settingsService, log)
	reviewHandler := handler.NewReviewHandler(reviewService, limitService, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/auth/signup", authHandler.Signup)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/auth/me", authHandler.Me)
	mux.HandleFunc("POST /api/auth/change-password", authHandler.ChangePassword)

	mux.HandleFunc("POST /api/public/reviews", publicHandler.Submit)
	mux.HandleFunc("GET /api/public/tenants/{slug}", publicHandler.FormBootstrap)
	mux.HandleFunc("POST /api/reviews/{id}/redirect-opened", publicHandler.RedirectOpened)

	mux.HandleFunc("GET /api/reviews", reviewHandler.List)
	mux.HandleFunc("GET /api/review-limits", reviewHandler.Limits)

	server := httptest.NewServer(middleware.JWTMiddleware(tokens, log)(mux))

	h := &TestServerHelper{
		Server:      server,
		Logger:      log,
		Tokens:      tokens,
		Tenants:     tenants,
		Profiles:    profiles,
		Invitations: invitations,
		Reviews:     reviews,
	}
	t.Cleanup(h.Close)
	return h
}

func (h *TestServerHelper) Close() {
	h.Server.Close()
}

func (h *TestServerHelper) URL() string {
	return h.Server.URL
}

// SeedInvitation stores a pending invitation for the seeded tenant and
// returns its token.
func (h *TestServerHelper) SeedInvitation(email string, role domain.Role) string {
	token := "invite-" + strings.ReplaceAll(email, "@", "-at-")
	h.Invitations.save(&domain.Invitation{
		ID:        "inv-" + email,
		TenantID:  "tenant-1",
		Email:     email,
		Role:      role,
		Token:     token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	})
	return token
}

func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status %d, got %d", expected, resp.StatusCode)
	}
}

func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	if ct := resp.Header.Get("Content-Type"); ct != expected {
		t.Errorf("Expected Content-Type %s, got %s", expected, ct)
	}
}

// In-memory repositories. Tenant scoping mirrors what the Postgres
// implementations enforce, so scope bugs surface here too.

type mockTenantRepository struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant
}

func newMockTenantRepository() *mockTenantRepository {
	return &mockTenantRepository{tenants: map[string]*domain.Tenant{}}
}

func (m *mockTenantRepository) save(t *domain.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tenants[t.ID] = &cp
}

func (m *mockTenantRepository) Create(t *domain.Tenant) error {
	m.save(t)
	return nil
}

func (m *mockTenantRepository) CreateWithAdmin(t *domain.Tenant, admin *domain.Profile, settings *domain.BusinessSettings) error {
	m.save(t)
	return nil
}

func (m *mockTenantRepository) GetByID(scope domain.Scope, id string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !scope.IsSuperAdmin() && scope.TenantID != id {
		return nil, domain.ErrForbidden
	}
	cp := *t
	return &cp, nil
}

func (m *mockTenantRepository) GetBySlug(slug string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Slug == slug && t.Status == domain.TenantActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockTenantRepository) Update(scope domain.Scope, t *domain.Tenant) error {
	m.save(t)
	return nil
}

func (m *mockTenantRepository) UpdateStatus(scope domain.Scope, id string, status domain.TenantStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = status
	return nil
}

func (m *mockTenantRepository) List(scope domain.Scope) ([]*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Tenant
	for _, t := range m.tenants {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

type mockProfileRepository struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
}

func newMockProfileRepository() *mockProfileRepository {
	return &mockProfileRepository{profiles: map[string]*domain.Profile{}}
}

func (m *mockProfileRepository) Upsert(p *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *mockProfileRepository) GetByID(scope domain.Scope, id string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfileRepository) GetByEmail(email string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockProfileRepository) Update(scope domain.Scope, p *domain.Profile) error {
	return m.Upsert(p)
}

func (m *mockProfileRepository) UpdateRole(scope domain.Scope, id string, role domain.Role, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Role = role
	p.TenantID = tenantID
	return nil
}

func (m *mockProfileRepository) Deactivate(scope domain.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.IsActive = false
	return nil
}

func (m *mockProfileRepository) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Profile
	for _, p := range m.profiles {
		if p.TenantID == tenantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockProfileRepository) CountByTenant(scope domain.Scope, tenantID string) (int, error) {
	list, err := m.ListByTenant(scope, tenantID)
	return len(list), err
}

type mockInvitationRepository struct {
	mu          sync.Mutex
	invitations map[string]*domain.Invitation
	profiles    *mockProfileRepository
}

func newMockInvitationRepository(profiles *mockProfileRepository) *mockInvitationRepository {
	return &mockInvitationRepository{
		invitations: map[string]*domain.Invitation{},
		profiles:    profiles,
	}
}

func (m *mockInvitationRepository) save(inv *domain.Invitation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.invitations[inv.ID] = &cp
}

func (m *mockInvitationRepository) Create(scope domain.Scope, inv *domain.Invitation) error {
	m.save(inv)
	return nil
}

func (m *mockInvitationRepository) GetByToken(token string) (*domain.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.Token == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockInvitationRepository) GetPendingByEmail(email string) (*domain.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var newest *domain.Invitation
	for _, inv := range m.invitations {
		if !strings.EqualFold(inv.Email, email) || !inv.Valid(now) {
			continue
		}
		if newest == nil || inv.CreatedAt.After(newest.CreatedAt) {
			newest = inv
		}
	}
	if newest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (m *mockInvitationRepository) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Invitation
	for _, inv := range m.invitations {
		if inv.TenantID == tenantID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockInvitationRepository) Delete(scope domain.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invitations[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.invitations, id)
	return nil
}

func (m *mockInvitationRepository) ConsumeWithProfile(inv *domain.Invitation, profile *domain.Profile) error {
	m.mu.Lock()
	stored, ok := m.invitations[inv.ID]
	if !ok || !stored.Valid(time.Now()) {
		m.mu.Unlock()
		return domain.ErrInvitationInvalid
	}
	now := time.Now()
	stored.UsedAt = &now
	m.mu.Unlock()
	return m.profiles.Upsert(profile)
}

func (m *mockInvitationRepository) ExpireStale(now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, inv := range m.invitations {
		if inv.UsedAt == nil && !inv.ExpiresAt.After(now) {
			delete(m.invitations, id)
			n++
		}
	}
	return n, nil
}

type mockReviewRepository struct {
	mu      sync.Mutex
	reviews map[string]*domain.Review
	seq     int
}

func newMockReviewRepository() *mockReviewRepository {
	return &mockReviewRepository{reviews: map[string]*domain.Review{}}
}

func (m *mockReviewRepository) Insert(review *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if review.ID == "" {
		review.ID = "review-" + strconv.Itoa(m.seq)
	}
	review.GoogleReview = review.Rating >= domain.GoogleRatingThreshold
	review.CreatedAt = time.Now()
	cp := *review
	m.reviews[review.ID] = &cp
	return nil
}

func (m *mockReviewRepository) GetByID(scope domain.Scope, id string) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !scope.IsSuperAdmin() && scope.TenantID != r.TenantID {
		return nil, domain.ErrForbidden
	}
	cp := *r
	return &cp, nil
}

func (m *mockReviewRepository) List(scope domain.Scope, tenantID string, filter domain.ReviewFilter) ([]*domain.Review, error) {
	if !scope.IsSuperAdmin() && scope.TenantID != tenantID {
		return nil, domain.ErrForbidden
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Review
	for _, r := range m.reviews {
		if r.TenantID == tenantID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockReviewRepository) CountByTenant(tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reviews {
		if r.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (m *mockReviewRepository) Correct(scope domain.Scope, review *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.reviews[review.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.CustomerName = review.CustomerName
	existing.CustomerEmail = review.CustomerEmail
	existing.CustomerPhone = review.CustomerPhone
	return nil
}

func (m *mockReviewRepository) MarkRedirectOpened(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.RedirectOpened = true
	return nil
}

type mockLinkRepository struct {
	mu    sync.Mutex
	links map[string]*domain.ReviewLink
}

func newMockLinkRepository() *mockLinkRepository {
	return &mockLinkRepository{links: map[string]*domain.ReviewLink{}}
}

func (m *mockLinkRepository) Create(scope domain.Scope, link *domain.ReviewLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *link
	m.links[link.ID] = &cp
	return nil
}

func (m *mockLinkRepository) GetByCode(code string) (*domain.ReviewLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Code == code && l.IsActive {
			cp := *l
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockLinkRepository) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.ReviewLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ReviewLink
	for _, l := range m.links {
		if l.TenantID == tenantID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockLinkRepository) Deactivate(scope domain.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.IsActive = false
	return nil
}

type mockSettingsRepository struct {
	mu       sync.Mutex
	settings map[string]*domain.BusinessSettings
}

func newMockSettingsRepository() *mockSettingsRepository {
	return &mockSettingsRepository{settings: map[string]*domain.BusinessSettings{}}
}

func (m *mockSettingsRepository) save(s *domain.BusinessSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.settings[s.TenantID] = &cp
}

func (m *mockSettingsRepository) Upsert(scope domain.Scope, s *domain.BusinessSettings) error {
	m.save(s)
	return nil
}

func (m *mockSettingsRepository) GetByTenant(scope domain.Scope, tenantID string) (*domain.BusinessSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSettingsRepository) GetPublicByTenant(tenantID string) (*domain.BusinessSettings, error) {
	s, err := m.GetByTenant(domain.SystemScope(), tenantID)
	if err != nil {
		return nil, err
	}
	s.ContactEmail = ""
	s.ContactPhone = ""
	return s, nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, event realtime.Event) {}
