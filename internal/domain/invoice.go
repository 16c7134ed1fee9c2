package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is an invoice lifecycle state.
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// Invoice bills a tenant for its subscription period.
type Invoice struct {
	ID        string          `json:"id"` // UUID
	TenantID  string          `json:"tenant_id"`
	Number    string          `json:"number"` // Human-readable invoice number, unique per tenant
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    InvoiceStatus   `json:"status"`
	DueDate   time.Time       `json:"due_date"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// InvoiceRepository defines data access for invoices.
type InvoiceRepository interface {
	Create(scope Scope, invoice *Invoice) error
	GetByID(scope Scope, id string) (*Invoice, error)
	ListByTenant(scope Scope, tenantID string) ([]*Invoice, error)
	UpdateStatus(scope Scope, id string, status InvoiceStatus) error
}
