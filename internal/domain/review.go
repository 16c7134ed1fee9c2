package domain

import "time"

// GoogleRatingThreshold is the minimum rating routed to Google Reviews.
const GoogleRatingThreshold = 4

// Review is a customer rating submitted through a public form. Reviews are
// immutable history for analytics; only staff corrections update them.
type Review struct {
	ID             string         `json:"id"` // UUID
	TenantID       string         `json:"tenant_id"`
	CustomerName   string         `json:"customer_name"`
	CustomerEmail  string         `json:"customer_email,omitempty"`
	CustomerPhone  string         `json:"customer_phone,omitempty"`
	Rating         int            `json:"rating"` // 1-5, checked at the edge and by a DB constraint
	Feedback       string         `json:"feedback,omitempty"`
	GoogleReview   bool           `json:"google_review"` // Derived: rating >= GoogleRatingThreshold
	RedirectOpened bool           `json:"redirect_opened"`
	Metadata       map[string]any `json:"metadata,omitempty"` // tracking_id, utm_source, link code
	CreatedAt      time.Time      `json:"created_at"`
}

// ReviewFilter narrows list queries.
type ReviewFilter struct {
	MinRating    int
	MaxRating    int
	GoogleOnly   bool
	FeedbackOnly bool
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// ReviewRepository defines data access for reviews. Insert is the only
// anonymous write in the system and therefore takes no scope; everything
// else is tenant-scoped.
type ReviewRepository interface {
	Insert(review *Review) error
	GetByID(scope Scope, id string) (*Review, error)
	List(scope Scope, tenantID string, filter ReviewFilter) ([]*Review, error)
	CountByTenant(tenantID string) (int, error)
	Correct(scope Scope, review *Review) error
	MarkRedirectOpened(id string) error
}

// ReviewLink is a shareable code resolving to a tenant's public form.
type ReviewLink struct {
	ID        string    `json:"id"` // UUID
	TenantID  string    `json:"tenant_id"`
	Code      string    `json:"code"` // Unique short code embedded in QR/links
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewLinkRepository defines data access for review links.
type ReviewLinkRepository interface {
	Create(scope Scope, link *ReviewLink) error
	GetByCode(code string) (*ReviewLink, error)
	ListByTenant(scope Scope, tenantID string) ([]*ReviewLink, error)
	Deactivate(scope Scope, id string) error
}
