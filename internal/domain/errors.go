package domain

import "errors"

// Sentinel errors shared across repositories and services. Handlers map
// these to HTTP status codes; everything else is wrapped with %w.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("access denied")
	ErrTenantScopeRequired = errors.New("tenant scope required")
	ErrTenantIDRequired    = errors.New("tenant id required")
	ErrReviewLimitReached  = errors.New("review limit reached")
	ErrInvitationInvalid   = errors.New("invitation invalid or expired")
	ErrDuplicate           = errors.New("already exists")
)
