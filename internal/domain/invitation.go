package domain

import "time"

// Invitation is a pending capability to join a tenant with a given role.
// At most one unused invitation may exist per (tenant, email); consumption
// sets UsedAt in the same transaction that provisions the profile.
type Invitation struct {
	ID        string // UUID
	TenantID  string
	Email     string
	Role      Role
	Token     string // Capability credential handed out in the invite email
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedBy string
	CreatedAt time.Time
}

// Valid reports whether the invitation may still be consumed at t.
func (i *Invitation) Valid(t time.Time) bool {
	return i.UsedAt == nil && i.ExpiresAt.After(t)
}

// InvitationRepository defines data access for user invitations.
type InvitationRepository interface {
	Create(scope Scope, inv *Invitation) error
	GetByToken(token string) (*Invitation, error)
	// GetPendingByEmail returns the newest unused, unexpired invitation for
	// an email address, or ErrNotFound.
	GetPendingByEmail(email string) (*Invitation, error)
	ListByTenant(scope Scope, tenantID string) ([]*Invitation, error)
	Delete(scope Scope, id string) error
	// ConsumeWithProfile marks the invitation used and upserts the profile
	// atomically. Returns ErrInvitationInvalid if the invitation was
	// already used or has expired.
	ConsumeWithProfile(inv *Invitation, profile *Profile) error
	// ExpireStale deletes or marks invitations whose expiry has passed and
	// returns how many were affected.
	ExpireStale(now time.Time) (int, error)
}
