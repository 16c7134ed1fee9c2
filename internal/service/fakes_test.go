package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/infrastructure/mailer"
	"github.com/yourorg/reviewflow/internal/realtime"
)

// In-memory repositories for service tests. They enforce the same scope
// rules as the Postgres implementations where the services rely on them.

type fakeTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant
	admins  map[string]*domain.Profile

	failCreate error
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{
		tenants: map[string]*domain.Tenant{},
		admins:  map[string]*domain.Profile{},
	}
}

func (r *fakeTenantRepo) Create(t *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenants {
		if existing.Slug == t.Slug {
			return domain.ErrDuplicate
		}
	}
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *fakeTenantRepo) CreateWithAdmin(t *domain.Tenant, admin *domain.Profile, settings *domain.BusinessSettings) error {
	if r.failCreate != nil {
		return r.failCreate
	}
	if err := r.Create(t); err != nil {
		return err
	}
	settings.TenantID = t.ID
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *admin
	r.admins[admin.ID] = &cp
	return nil
}

func (r *fakeTenantRepo) GetByID(scope domain.Scope, id string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !scope.IsSuperAdmin() && scope.TenantID != id {
		return nil, domain.ErrForbidden
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTenantRepo) GetBySlug(slug string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Slug == slug && t.Status == domain.TenantActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeTenantRepo) Update(scope domain.Scope, t *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[t.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *fakeTenantRepo) UpdateStatus(scope domain.Scope, id string, status domain.TenantStatus) error {
	if !scope.IsSuperAdmin() {
		return domain.ErrForbidden
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = status
	return nil
}

func (r *fakeTenantRepo) List(scope domain.Scope) ([]*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

type fakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: map[string]*domain.Profile{}}
}

func (r *fakeProfileRepo) Upsert(p *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.profiles {
		if id != p.ID && strings.EqualFold(existing.Email, p.Email) {
			return domain.ErrDuplicate
		}
	}
	cp := *p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *fakeProfileRepo) GetByID(scope domain.Scope, id string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProfileRepo) GetByEmail(email string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.IsActive && strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeProfileRepo) Update(scope domain.Scope, p *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *fakeProfileRepo) UpdateRole(scope domain.Scope, id string, role domain.Role, tenantID string) error {
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

func (r *fakeProfileRepo) Deactivate(scope domain.Scope, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.IsActive = false
	return nil
}

func (r *fakeProfileRepo) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Profile
	for _, p := range r.profiles {
		if p.TenantID == tenantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeProfileRepo) CountByTenant(scope domain.Scope, tenantID string) (int, error) {
	list, err := r.ListByTenant(scope, tenantID)
	return len(list), err
}

type fakeReviewRepo struct {
	mu      sync.Mutex
	reviews map[string]*domain.Review
	seq     int

	failInsert error
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{reviews: map[string]*domain.Review{}}
}

func (r *fakeReviewRepo) Insert(review *domain.Review) error {
	if r.failInsert != nil {
		return r.failInsert
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if review.ID == "" {
		review.ID = "review-" + strconv.Itoa(r.seq)
	}
	review.GoogleReview = review.Rating >= domain.GoogleRatingThreshold
	review.CreatedAt = time.Now()
	cp := *review
	r.reviews[review.ID] = &cp
	return nil
}

func (r *fakeReviewRepo) GetByID(scope domain.Scope, id string) (*domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rv, ok := r.reviews[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !scope.IsSuperAdmin() && scope.TenantID != rv.TenantID {
		return nil, domain.ErrForbidden
	}
	cp := *rv
	return &cp, nil
}

func (r *fakeReviewRepo) List(scope domain.Scope, tenantID string, filter domain.ReviewFilter) ([]*domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Review
	for _, rv := range r.reviews {
		if rv.TenantID != tenantID {
			continue
		}
		if filter.MinRating > 0 && rv.Rating < filter.MinRating {
			continue
		}
		if filter.MaxRating > 0 && rv.Rating > filter.MaxRating {
			continue
		}
		if filter.GoogleOnly && !rv.GoogleReview {
			continue
		}
		if filter.FeedbackOnly && rv.GoogleReview {
			continue
		}
		cp := *rv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeReviewRepo) CountByTenant(tenantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rv := range r.reviews {
		if rv.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (r *fakeReviewRepo) Correct(scope domain.Scope, review *domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.reviews[review.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.CustomerName = review.CustomerName
	existing.CustomerEmail = review.CustomerEmail
	existing.CustomerPhone = review.CustomerPhone
	return nil
}

func (r *fakeReviewRepo) MarkRedirectOpened(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rv, ok := r.reviews[id]
	if !ok {
		return domain.ErrNotFound
	}
	rv.RedirectOpened = true
	return nil
}

type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[string]*domain.ReviewLink
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: map[string]*domain.ReviewLink{}}
}

func (r *fakeLinkRepo) Create(scope domain.Scope, link *domain.ReviewLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *link
	r.links[link.ID] = &cp
	return nil
}

func (r *fakeLinkRepo) GetByCode(code string) (*domain.ReviewLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.Code == code && l.IsActive {
			cp := *l
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeLinkRepo) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.ReviewLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ReviewLink
	for _, l := range r.links {
		if l.TenantID == tenantID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) Deactivate(scope domain.Scope, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.IsActive = false
	return nil
}

type fakeInvitationRepo struct {
	mu          sync.Mutex
	invitations map[string]*domain.Invitation
	profiles    *fakeProfileRepo

	failCreate error
	deleted    []string
}

func newFakeInvitationRepo(profiles *fakeProfileRepo) *fakeInvitationRepo {
	return &fakeInvitationRepo{
		invitations: map[string]*domain.Invitation{},
		profiles:    profiles,
	}
}

func (r *fakeInvitationRepo) Create(scope domain.Scope, inv *domain.Invitation) error {
	if r.failCreate != nil {
		return r.failCreate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.invitations {
		if existing.TenantID == inv.TenantID &&
			strings.EqualFold(existing.Email, inv.Email) &&
			existing.UsedAt == nil {
			return domain.ErrDuplicate
		}
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	cp := *inv
	r.invitations[inv.ID] = &cp
	return nil
}

func (r *fakeInvitationRepo) GetByToken(token string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invitations {
		if inv.Token == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeInvitationRepo) GetPendingByEmail(email string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.Invitation
	now := time.Now()
	for _, inv := range r.invitations {
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

func (r *fakeInvitationRepo) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Invitation
	for _, inv := range r.invitations {
		if inv.TenantID == tenantID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeInvitationRepo) Delete(scope domain.Scope, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invitations[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.invitations, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeInvitationRepo) ConsumeWithProfile(inv *domain.Invitation, profile *domain.Profile) error {
	r.mu.Lock()
	stored, ok := r.invitations[inv.ID]
	if !ok || !stored.Valid(time.Now()) {
		r.mu.Unlock()
		return domain.ErrInvitationInvalid
	}
	now := time.Now()
	stored.UsedAt = &now
	r.mu.Unlock()
	return r.profiles.Upsert(profile)
}

func (r *fakeInvitationRepo) ExpireStale(now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, inv := range r.invitations {
		if inv.UsedAt == nil && !inv.ExpiresAt.After(now) {
			delete(r.invitations, id)
			n++
		}
	}
	return n, nil
}

type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]*domain.BusinessSettings
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{settings: map[string]*domain.BusinessSettings{}}
}

func (r *fakeSettingsRepo) Upsert(scope domain.Scope, s *domain.BusinessSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.settings[s.TenantID] = &cp
	return nil
}

func (r *fakeSettingsRepo) GetByTenant(scope domain.Scope, tenantID string) (*domain.BusinessSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSettingsRepo) GetPublicByTenant(tenantID string) (*domain.BusinessSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	cp.ContactEmail = ""
	cp.ContactPhone = ""
	return &cp, nil
}

type fakeSystemSettingRepo struct {
	mu       sync.Mutex
	settings map[string]*domain.SystemSetting
}

func newFakeSystemSettingRepo() *fakeSystemSettingRepo {
	return &fakeSystemSettingRepo{settings: map[string]*domain.SystemSetting{}}
}

func (r *fakeSystemSettingRepo) Set(scope domain.Scope, setting *domain.SystemSetting) error {
	if !scope.IsSuperAdmin() {
		return domain.ErrForbidden
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *setting
	r.settings[setting.Key] = &cp
	return nil
}

func (r *fakeSystemSettingRepo) Get(scope domain.Scope, key string) (*domain.SystemSetting, error) {
	if !scope.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSystemSettingRepo) List(scope domain.Scope) ([]*domain.SystemSetting, error) {
	if !scope.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.SystemSetting, 0, len(r.settings))
	for _, s := range r.settings {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// fakeMailer records sent messages and optionally fails.
type fakeMailer struct {
	mu   sync.Mutex
	sent []*mailer.Message
	fail error
}

func (m *fakeMailer) Send(ctx context.Context, msg *mailer.Message) error {
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type fakeInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*domain.Invoice
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{invoices: map[string]*domain.Invoice{}}
}

func (r *fakeInvoiceRepo) Create(scope domain.Scope, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.invoices {
		if existing.TenantID == invoice.TenantID && existing.Number == invoice.Number {
			return domain.ErrDuplicate
		}
	}
	cp := *invoice
	r.invoices[invoice.ID] = &cp
	return nil
}

func (r *fakeInvoiceRepo) GetByID(scope domain.Scope, id string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !scope.IsSuperAdmin() && scope.TenantID != inv.TenantID {
		return nil, domain.ErrForbidden
	}
	cp := *inv
	return &cp, nil
}

func (r *fakeInvoiceRepo) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Invoice
	for _, inv := range r.invoices {
		if inv.TenantID == tenantID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *fakeInvoiceRepo) UpdateStatus(scope domain.Scope, id string, status domain.InvoiceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	inv.Status = status
	return nil
}

// fakeNotifier records published events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (n *fakeNotifier) Notify(ctx context.Context, event realtime.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

var errBoom = errors.New("boom")
