package service

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/observability/metrics"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// CreateTenantInput is the master admin provisioning payload.
type CreateTenantInput struct {
	Name          string `json:"name" validate:"required,min=2,max=120"`
	Slug          string `json:"slug" validate:"required,min=2,max=63"`
	PlanType      string `json:"plan_type"`
	AdminEmail    string `json:"admin_email" validate:"required,email"`
	AdminPassword string `json:"admin_password" validate:"required,min=8"`
	AdminFullName string `json:"admin_full_name"`
}

// TenantService implements tenant lifecycle operations. Provisioning
// creates the tenant, its first admin, and default business settings in
// one transaction so a failed step never leaves a half-built tenant.
type TenantService struct {
	provisioner domain.TenantProvisioner
	tenantRepo  domain.TenantRepository
	profileRepo domain.ProfileRepository
	logger      *slog.Logger
}

// NewTenantService creates a new tenant service
func NewTenantService(provisioner domain.TenantProvisioner, tenantRepo domain.TenantRepository, profileRepo domain.ProfileRepository, logger *slog.Logger) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantService{
		provisioner: provisioner,
		tenantRepo:  tenantRepo,
		profileRepo: profileRepo,
		logger:      logger,
	}
}

// CreateWithAdmin provisions a tenant together with its first admin user.
// Only super admins may call it.
func (s *TenantService) CreateWithAdmin(scope domain.Scope, input *CreateTenantInput) (*domain.Tenant, *domain.Profile, error) {
	if !scope.IsSuperAdmin() {
		return nil, nil, domain.ErrForbidden
	}

	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, nil, fmt.Errorf("invalid slug %q: use lowercase letters, digits and hyphens", input.Slug)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	tenant := &domain.Tenant{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(input.Name),
		Slug:     slug,
		PlanType: domain.NormalizePlan(input.PlanType),
		Status:   domain.TenantActive,
	}
	admin := &domain.Profile{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(input.AdminEmail)),
		FullName:     strings.TrimSpace(input.AdminFullName),
		Role:         domain.RoleTenantAdmin,
		TenantID:     tenant.ID,
		PasswordHash: string(hash),
		IsActive:     true,
	}

	settings := &domain.BusinessSettings{
		ID:           uuid.NewString(),
		TenantID:     tenant.ID,
		BusinessName: tenant.Name,
	}
	if err := s.provisioner.CreateWithAdmin(tenant, admin, settings); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, nil, fmt.Errorf("tenant slug or admin email already in use: %w", domain.ErrDuplicate)
		}
		s.logger.Error("tenant provisioning failed",
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
		return nil, nil, errors.New("failed to create tenant")
	}

	metrics.IncTenantsCreated(string(tenant.PlanType))
	s.logger.Info("tenant provisioned",
		slog.String("tenant_id", tenant.ID),
		slog.String("slug", tenant.Slug),
		slog.String("plan", string(tenant.PlanType)),
	)
	return tenant, admin, nil
}

// Get returns one tenant within the caller's scope.
func (s *TenantService) Get(scope domain.Scope, id string) (*domain.Tenant, error) {
	return s.tenantRepo.GetByID(scope, id)
}

// GetPublicBySlug returns the fields the public review form needs.
func (s *TenantService) GetPublicBySlug(slug string) (*domain.Tenant, error) {
	return s.tenantRepo.GetBySlug(strings.ToLower(strings.TrimSpace(slug)))
}

// List returns all tenants; super admin only.
func (s *TenantService) List(scope domain.Scope) ([]*domain.Tenant, error) {
	if !scope.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.tenantRepo.List(scope)
}

// Update changes a tenant's name or plan.
func (s *TenantService) Update(scope domain.Scope, tenant *domain.Tenant) error {
	tenant.PlanType = domain.NormalizePlan(string(tenant.PlanType))
	return s.tenantRepo.Update(scope, tenant)
}

// UpdateStatus activates or suspends a tenant; super admin only.
func (s *TenantService) UpdateStatus(scope domain.Scope, id string, status domain.TenantStatus) error {
	switch status {
	case domain.TenantActive, domain.TenantSuspended, domain.TenantCancelled:
	default:
		return fmt.Errorf("invalid tenant status %q", status)
	}
	return s.tenantRepo.UpdateStatus(scope, id, status)
}
