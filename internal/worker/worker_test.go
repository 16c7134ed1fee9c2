package worker

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/reviewflow/internal/domain"
)

type stubInvitationRepo struct {
	mu      sync.Mutex
	expired int
	fail    error
	calls   int
}

func (r *stubInvitationRepo) Create(domain.Scope, *domain.Invitation) error { return nil }
func (r *stubInvitationRepo) GetByToken(string) (*domain.Invitation, error) {
	return nil, domain.ErrNotFound
}
func (r *stubInvitationRepo) GetPendingByEmail(string) (*domain.Invitation, error) {
	return nil, domain.ErrNotFound
}
func (r *stubInvitationRepo) ListByTenant(domain.Scope, string) ([]*domain.Invitation, error) {
	return nil, nil
}
func (r *stubInvitationRepo) Delete(domain.Scope, string) error                      { return nil }
func (r *stubInvitationRepo) ConsumeWithProfile(*domain.Invitation, *domain.Profile) error {
	return domain.ErrInvitationInvalid
}

func (r *stubInvitationRepo) ExpireStale(now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail != nil {
		return 0, r.fail
	}
	n := r.expired
	r.expired = 0
	return n, nil
}

func TestSweepRemovesExpired(t *testing.T) {
	repo := &stubInvitationRepo{expired: 3}
	w := NewInvitationSweeper(repo, slog.Default(), time.Hour)

	w.sweep()
	if repo.calls != 1 {
		t.Errorf("ExpireStale calls = %d, want 1", repo.calls)
	}
	if repo.expired != 0 {
		t.Error("expired invitations not consumed")
	}
}

func TestSweepRetriesOnFailure(t *testing.T) {
	repo := &stubInvitationRepo{fail: context.DeadlineExceeded}
	w := NewInvitationSweeper(repo, slog.Default(), time.Hour)
	w.maxRetries = 1

	w.sweep()
	if repo.calls != 1 {
		t.Errorf("ExpireStale calls = %d, want 1", repo.calls)
	}
}

func TestSweeperStopsOnCancel(t *testing.T) {
	repo := &stubInvitationRepo{}
	w := NewInvitationSweeper(repo, slog.Default(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}

type stubTenantRepo struct {
	tenants []*domain.Tenant
}

func (r *stubTenantRepo) Create(*domain.Tenant) error { return nil }
func (r *stubTenantRepo) GetByID(domain.Scope, string) (*domain.Tenant, error) {
	return nil, domain.ErrNotFound
}
func (r *stubTenantRepo) GetBySlug(string) (*domain.Tenant, error) { return nil, domain.ErrNotFound }
func (r *stubTenantRepo) Update(domain.Scope, *domain.Tenant) error { return nil }
func (r *stubTenantRepo) UpdateStatus(domain.Scope, string, domain.TenantStatus) error { return nil }
func (r *stubTenantRepo) List(domain.Scope) ([]*domain.Tenant, error) { return r.tenants, nil }

type stubReviewRepo struct {
	counts map[string]int
}

func (r *stubReviewRepo) Insert(*domain.Review) error { return nil }
func (r *stubReviewRepo) GetByID(domain.Scope, string) (*domain.Review, error) {
	return nil, domain.ErrNotFound
}
func (r *stubReviewRepo) List(domain.Scope, string, domain.ReviewFilter) ([]*domain.Review, error) {
	return nil, nil
}
func (r *stubReviewRepo) CountByTenant(tenantID string) (int, error) {
	return r.counts[tenantID], nil
}
func (r *stubReviewRepo) Correct(domain.Scope, *domain.Review) error { return nil }
func (r *stubReviewRepo) MarkRedirectOpened(string) error            { return nil }

type stubProfileRepo struct {
	counts map[string]int
}

func (r *stubProfileRepo) Upsert(*domain.Profile) error { return nil }
func (r *stubProfileRepo) GetByID(domain.Scope, string) (*domain.Profile, error) {
	return nil, domain.ErrNotFound
}
func (r *stubProfileRepo) GetByEmail(string) (*domain.Profile, error) {
	return nil, domain.ErrNotFound
}
func (r *stubProfileRepo) Update(domain.Scope, *domain.Profile) error { return nil }
func (r *stubProfileRepo) UpdateRole(domain.Scope, string, domain.Role, string) error { return nil }
func (r *stubProfileRepo) Deactivate(domain.Scope, string) error { return nil }
func (r *stubProfileRepo) ListByTenant(domain.Scope, string) ([]*domain.Profile, error) {
	return nil, nil
}
func (r *stubProfileRepo) CountByTenant(scope domain.Scope, tenantID string) (int, error) {
	return r.counts[tenantID], nil
}

type stubMetricRepo struct {
	mu      sync.Mutex
	metrics []*domain.UsageMetric
}

func (r *stubMetricRepo) Record(m *domain.UsageMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
	return nil
}
func (r *stubMetricRepo) ListByTenant(domain.Scope, string, time.Time) ([]*domain.UsageMetric, error) {
	return nil, nil
}
func (r *stubMetricRepo) LatestByName(domain.Scope, string) (map[string]int64, error) {
	return nil, nil
}

func TestAggregateSnapshotsActiveTenants(t *testing.T) {
	tenants := &stubTenantRepo{tenants: []*domain.Tenant{
		{ID: "t1", Slug: "one", Status: domain.TenantActive},
		{ID: "t2", Slug: "two", Status: domain.TenantSuspended},
		{ID: "t3", Slug: "three", Status: domain.TenantActive},
	}}
	reviews := &stubReviewRepo{counts: map[string]int{"t1": 42, "t3": 7}}
	profiles := &stubProfileRepo{counts: map[string]int{"t1": 5, "t3": 1}}
	metrics := &stubMetricRepo{}

	w := NewUsageAggregator(tenants, reviews, profiles, metrics, slog.Default(), time.Hour)
	w.aggregate()

	// 2 active tenants x 2 metrics each; the suspended tenant is skipped.
	if len(metrics.metrics) != 4 {
		t.Fatalf("recorded %d metrics, want 4", len(metrics.metrics))
	}
	byTenant := map[string]map[string]int64{}
	for _, m := range metrics.metrics {
		if m.ID == "" {
			t.Error("metric missing id")
		}
		if byTenant[m.TenantID] == nil {
			byTenant[m.TenantID] = map[string]int64{}
		}
		byTenant[m.TenantID][m.MetricName] = m.MetricValue
	}
	if byTenant["t2"] != nil {
		t.Error("suspended tenant should not be snapshotted")
	}
	if byTenant["t1"]["review_count"] != 42 || byTenant["t1"]["user_count"] != 5 {
		t.Errorf("t1 snapshot = %v", byTenant["t1"])
	}
	if byTenant["t3"]["review_count"] != 7 {
		t.Errorf("t3 snapshot = %v", byTenant["t3"])
	}
}
