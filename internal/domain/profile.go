package domain

import "time"

// Profile is one row per authenticated user. A super_admin carries no
// tenant; a tenant_admin or user may carry none until assigned (an "orphan"
// account produced by a signup without an invitation).
type Profile struct {
	ID           string // UUID, the auth identity
	Email        string // Unique email address
	FullName     string
	PasswordHash string // Bcrypt hash, never serialized
	Role         Role
	TenantID     string // Empty when unassigned or super_admin
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfileRepository defines data access for profiles.
//
// Upsert must be idempotent on id: provisioning can race a retry of the
// same signup, and the second write must not create a second row.
type ProfileRepository interface {
	Upsert(profile *Profile) error
	GetByID(scope Scope, id string) (*Profile, error)
	GetByEmail(email string) (*Profile, error)
	Update(scope Scope, profile *Profile) error
	UpdateRole(scope Scope, id string, role Role, tenantID string) error
	Deactivate(scope Scope, id string) error
	ListByTenant(scope Scope, tenantID string) ([]*Profile, error)
	CountByTenant(scope Scope, tenantID string) (int, error)
}
