package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/security/middleware"
	"github.com/yourorg/reviewflow/internal/service"
)

// UpdateInvoiceStatusRequest moves an invoice through its lifecycle.
type UpdateInvoiceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft sent paid overdue"`
}

// InvoiceHandler serves invoice viewing for tenants and issuance for the
// master dashboard.
type InvoiceHandler struct {
	invoiceService *service.InvoiceService
	logger         *slog.Logger
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(invoiceService *service.InvoiceService, logger *slog.Logger) *InvoiceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceHandler{invoiceService: invoiceService, logger: logger}
}

// List handles GET /api/invoices
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	invoices, err := h.invoiceService.ListByTenant(scope, requestTenantID(r, scope))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// Get handles GET /api/invoices/{id}
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	invoice, err := h.invoiceService.Get(scope, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

// PDF handles GET /api/invoices/{id}/pdf
func (h *InvoiceHandler) PDF(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	data, invoice, err := h.invoiceService.RenderPDF(scope, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", invoice.Number+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Create handles POST /api/master/invoices
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	var req service.CreateInvoiceInput
	if !decodeAndValidate(w, r, &req) {
		return
	}

	invoice, err := h.invoiceService.Create(scope, &req)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

// UpdateStatus handles PATCH /api/master/invoices/{id}/status
func (h *InvoiceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	var req UpdateInvoiceStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.invoiceService.UpdateStatus(scope, r.PathValue("id"), domain.InvoiceStatus(req.Status)); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Send handles POST /api/master/invoices/{id}/send
func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	if err := h.invoiceService.Send(r.Context(), scope, r.PathValue("id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
