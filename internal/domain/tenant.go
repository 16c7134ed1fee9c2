package domain

import "time"

// PlanType determines a tenant's review limits and feature entitlements.
type PlanType string

const (
	PlanBasic    PlanType = "basic"
	PlanPro      PlanType = "pro"
	PlanIndustry PlanType = "industry"
)

// NormalizePlan maps aliases and unknown values onto a known plan.
// Unknown plans fall back to basic limits so a bad value can never grant
// more capacity than the smallest plan.
func NormalizePlan(p string) PlanType {
	switch PlanType(p) {
	case PlanBasic, PlanPro, PlanIndustry:
		return PlanType(p)
	}
	if p == "enterprise" {
		return PlanIndustry
	}
	return PlanBasic
}

// TenantStatus is a lifecycle state. Tenants are never hard-deleted.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantPending   TenantStatus = "pending"
	TenantCancelled TenantStatus = "cancelled"
)

// Tenant represents a business collecting reviews.
type Tenant struct {
	ID           string         `json:"id"` // UUID
	Name         string         `json:"name"`
	Slug         string         `json:"slug"` // Unique, used in public review URLs
	Domain       string         `json:"domain,omitempty"`
	PlanType     PlanType       `json:"plan_type"`
	Status       TenantStatus   `json:"status"`
	Settings     map[string]any `json:"settings,omitempty"` // Opaque tenant settings JSON
	BillingEmail string         `json:"billing_email,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TenantProvisioner creates a tenant together with its admin profile and
// default business settings in a single transaction, so a half-provisioned
// tenant can never exist.
type TenantProvisioner interface {
	CreateWithAdmin(tenant *Tenant, admin *Profile, settings *BusinessSettings) error
}

// TenantRepository defines data access for tenants.
type TenantRepository interface {
	Create(tenant *Tenant) error
	GetByID(scope Scope, id string) (*Tenant, error)
	GetBySlug(slug string) (*Tenant, error)
	Update(scope Scope, tenant *Tenant) error
	UpdateStatus(scope Scope, id string, status TenantStatus) error
	List(scope Scope) ([]*Tenant, error)
}
