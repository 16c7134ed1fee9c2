package handler

import (
	"context"
	"strconv"
	"sync"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/realtime"
)

// Minimal in-memory stores backing the handler tests. Scope enforcement is
// intentionally shallow here; the service tests cover it in depth.

type memTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{tenants: map[string]*domain.Tenant{}}
}

func (r *memTenantRepo) Create(t *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *memTenantRepo) GetByID(scope domain.Scope, id string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memTenantRepo) GetBySlug(slug string) (*domain.Tenant, error) {
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

func (r *memTenantRepo) Update(scope domain.Scope, t *domain.Tenant) error {
	return r.Create(t)
}

func (r *memTenantRepo) UpdateStatus(scope domain.Scope, id string, status domain.TenantStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = status
	return nil
}

func (r *memTenantRepo) List(scope domain.Scope) ([]*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

type memReviewRepo struct {
	mu      sync.Mutex
	reviews map[string]*domain.Review
	seq     int
}

func newMemReviewRepo() *memReviewRepo {
	return &memReviewRepo{reviews: map[string]*domain.Review{}}
}

func (r *memReviewRepo) Insert(review *domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if review.ID == "" {
		review.ID = "review-" + strconv.Itoa(r.seq)
	}
	review.GoogleReview = review.Rating >= domain.GoogleRatingThreshold
	cp := *review
	r.reviews[review.ID] = &cp
	return nil
}

func (r *memReviewRepo) GetByID(scope domain.Scope, id string) (*domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rv, ok := r.reviews[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rv
	return &cp, nil
}

func (r *memReviewRepo) List(scope domain.Scope, tenantID string, filter domain.ReviewFilter) ([]*domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Review
	for _, rv := range r.reviews {
		if rv.TenantID == tenantID {
			cp := *rv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memReviewRepo) CountByTenant(tenantID string) (int, error) {
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

func (r *memReviewRepo) Correct(scope domain.Scope, review *domain.Review) error {
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

func (r *memReviewRepo) MarkRedirectOpened(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rv, ok := r.reviews[id]
	if !ok {
		return domain.ErrNotFound
	}
	rv.RedirectOpened = true
	return nil
}

type memLinkRepo struct {
	mu    sync.Mutex
	links map[string]*domain.ReviewLink
}

func newMemLinkRepo() *memLinkRepo {
	return &memLinkRepo{links: map[string]*domain.ReviewLink{}}
}

func (r *memLinkRepo) Create(scope domain.Scope, link *domain.ReviewLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *link
	r.links[link.ID] = &cp
	return nil
}

func (r *memLinkRepo) GetByCode(code string) (*domain.ReviewLink, error) {
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

func (r *memLinkRepo) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.ReviewLink, error) {
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

func (r *memLinkRepo) Deactivate(scope domain.Scope, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.IsActive = false
	return nil
}

type memSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]*domain.BusinessSettings
}

func newMemSettingsRepo() *memSettingsRepo {
	return &memSettingsRepo{settings: map[string]*domain.BusinessSettings{}}
}

func (r *memSettingsRepo) Upsert(scope domain.Scope, s *domain.BusinessSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.settings[s.TenantID] = &cp
	return nil
}

func (r *memSettingsRepo) GetByTenant(scope domain.Scope, tenantID string) (*domain.BusinessSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSettingsRepo) GetPublicByTenant(tenantID string) (*domain.BusinessSettings, error) {
	s, err := r.GetByTenant(domain.SystemScope(), tenantID)
	if err != nil {
		return nil, err
	}
	s.ContactEmail = ""
	s.ContactPhone = ""
	return s, nil
}

type memNotifier struct{}

func (memNotifier) Notify(ctx context.Context, event realtime.Event) {}
