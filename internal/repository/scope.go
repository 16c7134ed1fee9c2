package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/yourorg/reviewflow/internal/domain"
)

// guardTenant is the single enforcement point for tenant isolation on the
// read/write paths. Every repository method touching tenant-owned rows
// resolves the effective tenant id through it before building a query.
//
// Rules mirror the row-level policy set: super_admin may address any
// tenant; any other scope is pinned to its own tenant and fails closed
// when it has none. Handlers and services never re-implement this check
// as an enforcement point, only as advisory early 403s.
func guardTenant(scope domain.Scope, requested string) (string, error) {
	if scope.IsSuperAdmin() {
		if requested == "" {
			return "", domain.ErrTenantIDRequired
		}
		return requested, nil
	}
	if scope.TenantID == "" {
		return "", domain.ErrTenantScopeRequired
	}
	if requested != "" && requested != scope.TenantID {
		return "", domain.ErrForbidden
	}
	return scope.TenantID, nil
}

// notFound maps sql.ErrNoRows onto the shared sentinel.
func notFound(err error) error {
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	return err
}

// marshalJSON renders a possibly-nil map as a JSONB parameter.
func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// unmarshalJSON parses a JSONB column, tolerating NULL.
func unmarshalJSON(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode json column: %w", err)
	}
	return m, nil
}
