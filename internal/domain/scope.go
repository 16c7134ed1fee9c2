package domain

// Role is a profile's position in the role hierarchy.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleUser        Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleTenantAdmin, RoleUser:
		return true
	}
	return false
}

// Scope identifies the caller for every data access. It is built once from
// validated JWT claims and threaded through services into repositories,
// which are the single enforcement point for tenant isolation: a repository
// appends a tenant_id filter for any non-super-admin scope and fails closed
// when the scope carries no tenant.
type Scope struct {
	UserID   string
	TenantID string
	Role     Role
}

// SystemScope is used by workers and CLI commands operating outside a user
// session. It is equivalent to super_admin for scoping purposes.
func SystemScope() Scope {
	return Scope{UserID: "system", Role: RoleSuperAdmin}
}

// IsSuperAdmin reports whether the scope may cross tenant boundaries.
func (s Scope) IsSuperAdmin() bool {
	return s.Role == RoleSuperAdmin
}

// IsTenantAdmin reports whether the scope administers the given tenant.
func (s Scope) IsTenantAdmin(tenantID string) bool {
	if s.IsSuperAdmin() {
		return true
	}
	return s.Role == RoleTenantAdmin && s.TenantID != "" && s.TenantID == tenantID
}

// CanAccessTenant mirrors the row-level policy: super_admin sees everything,
// everyone else only rows of their own tenant.
func (s Scope) CanAccessTenant(tenantID string) bool {
	if s.IsSuperAdmin() {
		return true
	}
	return s.TenantID != "" && s.TenantID == tenantID
}
