package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/infrastructure/mailer"
	"github.com/yourorg/reviewflow/internal/observability/metrics"
)

// CreateInvoiceInput is the master admin billing payload.
type CreateInvoiceInput struct {
	TenantID string `json:"tenant_id" validate:"required,uuid"`
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency"`
	DueDate  string `json:"due_date" validate:"required"` // YYYY-MM-DD
}

// InvoiceService implements invoice issuance and delivery.
type InvoiceService struct {
	invoiceRepo domain.InvoiceRepository
	tenantRepo  domain.TenantRepository
	profileRepo domain.ProfileRepository
	mail        mailer.Sender
	logger      *slog.Logger
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(invoiceRepo domain.InvoiceRepository, tenantRepo domain.TenantRepository, profileRepo domain.ProfileRepository, mail mailer.Sender, logger *slog.Logger) *InvoiceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceService{
		invoiceRepo: invoiceRepo,
		tenantRepo:  tenantRepo,
		profileRepo: profileRepo,
		mail:        mail,
		logger:      logger,
	}
}

// Create issues a draft invoice against a tenant; super admin only.
func (s *InvoiceService) Create(scope domain.Scope, input *CreateInvoiceInput) (*domain.Invoice, error) {
	if !scope.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}

	amount, err := decimal.NewFromString(input.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", input.Amount, err)
	}
	if amount.IsNegative() {
		return nil, errors.New("amount must not be negative")
	}
	due, err := time.Parse("2006-01-02", input.DueDate)
	if err != nil {
		return nil, fmt.Errorf("invalid due date %q: %w", input.DueDate, err)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}

	tenant, err := s.tenantRepo.GetByID(scope, input.TenantID)
	if err != nil {
		return nil, err
	}

	invoice := &domain.Invoice{
		ID:       uuid.NewString(),
		TenantID: tenant.ID,
		Number:   fmt.Sprintf("INV-%s-%s", time.Now().Format("200601"), strings.ToUpper(uuid.NewString()[:8])),
		Amount:   amount,
		Currency: currency,
		Status:   domain.InvoiceDraft,
		DueDate:  due,
	}
	if err := s.invoiceRepo.Create(scope, invoice); err != nil {
		return nil, err
	}

	s.logger.Info("invoice created",
		slog.String("invoice_id", invoice.ID),
		slog.String("tenant_id", tenant.ID),
		slog.String("number", invoice.Number),
		slog.String("amount", invoice.Amount.StringFixed(2)),
	)
	return invoice, nil
}

// Get returns one invoice within the caller's scope.
func (s *InvoiceService) Get(scope domain.Scope, id string) (*domain.Invoice, error) {
	return s.invoiceRepo.GetByID(scope, id)
}

// ListByTenant returns a tenant's invoices.
func (s *InvoiceService) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.Invoice, error) {
	return s.invoiceRepo.ListByTenant(scope, tenantID)
}

// UpdateStatus moves an invoice through its lifecycle; super admin only.
func (s *InvoiceService) UpdateStatus(scope domain.Scope, id string, status domain.InvoiceStatus) error {
	if !scope.IsSuperAdmin() {
		return domain.ErrForbidden
	}
	switch status {
	case domain.InvoiceDraft, domain.InvoiceSent, domain.InvoicePaid, domain.InvoiceOverdue:
	default:
		return fmt.Errorf("invalid invoice status %q", status)
	}
	return s.invoiceRepo.UpdateStatus(scope, id, status)
}

// RenderPDF produces the downloadable invoice document.
func (s *InvoiceService) RenderPDF(scope domain.Scope, id string) ([]byte, *domain.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(scope, id)
	if err != nil {
		return nil, nil, err
	}
	tenant, err := s.tenantRepo.GetByID(scope, invoice.TenantID)
	if err != nil {
		return nil, nil, err
	}
	return renderInvoicePDF(invoice, tenant), invoice, nil
}

// Send emails the invoice with the PDF attached to the tenant's admins and
// marks it sent. Super admin only; the status change happens only after a
// successful delivery.
func (s *InvoiceService) Send(ctx context.Context, scope domain.Scope, id string) error {
	if !scope.IsSuperAdmin() {
		return domain.ErrForbidden
	}

	invoice, err := s.invoiceRepo.GetByID(scope, id)
	if err != nil {
		return err
	}
	tenant, err := s.tenantRepo.GetByID(scope, invoice.TenantID)
	if err != nil {
		return err
	}

	tenantScope := domain.Scope{UserID: scope.UserID, TenantID: tenant.ID, Role: scope.Role}
	profiles, err := s.profileRepo.ListByTenant(tenantScope, tenant.ID)
	if err != nil {
		return err
	}
	var recipients []string
	for _, p := range profiles {
		if p.Role == domain.RoleTenantAdmin && p.IsActive {
			recipients = append(recipients, p.Email)
		}
	}
	if len(recipients) == 0 {
		return fmt.Errorf("tenant %s has no active admins to bill", tenant.Slug)
	}

	pdf := renderInvoicePDF(invoice, tenant)
	msg := &mailer.Message{
		To:      recipients,
		Subject: fmt.Sprintf("Invoice %s from ReviewFlow", invoice.Number),
		HTML: fmt.Sprintf(
			`<p>Invoice <strong>%s</strong> for %s %s is due on %s.</p><p>The invoice is attached as a PDF.</p>`,
			invoice.Number, invoice.Amount.StringFixed(2), invoice.Currency, invoice.DueDate.Format("January 2, 2006"),
		),
		Attachments: []mailer.Attachment{
			mailer.NewAttachment(invoice.Number+".pdf", "application/pdf", pdf),
		},
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		metrics.IncInvoiceSends("failed")
		return fmt.Errorf("failed to send invoice email: %w", err)
	}
	metrics.IncInvoiceSends("sent")

	if err := s.invoiceRepo.UpdateStatus(scope, id, domain.InvoiceSent); err != nil {
		s.logger.Error("invoice emailed but status update failed",
			slog.String("invoice_id", id),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.Info("invoice sent",
		slog.String("invoice_id", id),
		slog.String("tenant_id", tenant.ID),
		slog.Int("recipients", len(recipients)),
	)
	return nil
}

// renderInvoicePDF builds a minimal single-page PDF by hand. The document
// structure is fixed, so emitting the objects directly beats pulling in a
// full PDF engine for one statement page.
func renderInvoicePDF(invoice *domain.Invoice, tenant *domain.Tenant) []byte {
	lines := []string{
		"ReviewFlow",
		"Invoice " + invoice.Number,
		"",
		"Billed to: " + tenant.Name,
		"Amount: " + invoice.Amount.StringFixed(2) + " " + invoice.Currency,
		"Due date: " + invoice.DueDate.Format("2006-01-02"),
		"Status: " + string(invoice.Status),
	}

	var content bytes.Buffer
	content.WriteString("BT /F1 12 Tf 72 720 Td 16 TL\n")
	for _, line := range lines {
		content.WriteString(fmt.Sprintf("(%s) Tj T*\n", escapePDFText(line)))
	}
	content.WriteString("ET\n")

	var buf bytes.Buffer
	offsets := make([]int, 0, 5)
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")
	writeObj("1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n")
	writeObj("2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj\n")
	writeObj("3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >> endobj\n")
	writeObj(fmt.Sprintf("4 0 obj << /Length %d >> stream\n%sendstream endobj\n", content.Len(), content.String()))
	writeObj("5 0 obj << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> endobj\n")

	xref := buf.Len()
	buf.WriteString(fmt.Sprintf("xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1))
	for _, off := range offsets {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
	}
	buf.WriteString(fmt.Sprintf("trailer << /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref))
	return buf.Bytes()
}

func escapePDFText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}
