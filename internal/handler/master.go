package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/security/middleware"
	"github.com/yourorg/reviewflow/internal/service"
)

// UpdateTenantRequest changes a tenant's name or plan.
type UpdateTenantRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	PlanType string `json:"plan_type"`
}

// UpdateTenantStatusRequest activates or suspends a tenant.
type UpdateTenantStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended cancelled"`
}

// SystemSettingRequest writes a platform-wide setting.
type SystemSettingRequest struct {
	Key   string `json:"key" validate:"required,max=120"`
	Value string `json:"value" validate:"required"`
}

// MasterHandler serves the platform owner's dashboard: tenant lifecycle,
// cross-tenant analytics, system settings and audit logs. Every endpoint
// requires a super_admin scope, enforced again by the repositories.
type MasterHandler struct {
	tenantService    *service.TenantService
	analyticsService *service.AnalyticsService
	settingsService  *service.SettingsService
	auditRepo        domain.AuditLogRepository
	logger           *slog.Logger
}

// NewMasterHandler creates a new master handler
func NewMasterHandler(
	tenantService *service.TenantService,
	analyticsService *service.AnalyticsService,
	settingsService *service.SettingsService,
	auditRepo domain.AuditLogRepository,
	logger *slog.Logger,
) *MasterHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MasterHandler{
		tenantService:    tenantService,
		analyticsService: analyticsService,
		settingsService:  settingsService,
		auditRepo:        auditRepo,
		logger:           logger,
	}
}

// CreateTenant handles POST /api/master/tenants
func (h *MasterHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	var req service.CreateTenantInput
	if !decodeAndValidate(w, r, &req) {
		return
	}

	tenant, admin, err := h.tenantService.CreateWithAdmin(scope, &req)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"tenant": tenant,
		"admin":  toProfileView(admin),
	})
}

// ListTenants handles GET /api/master/tenants
func (h *MasterHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	tenants, err := h.tenantService.List(scope)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

// GetTenant handles GET /api/master/tenants/{id}
func (h *MasterHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	tenant, err := h.tenantService.Get(scope, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// UpdateTenant handles PATCH /api/master/tenants/{id}
func (h *MasterHandler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	var req UpdateTenantRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	tenant, err := h.tenantService.Get(scope, id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	tenant.Name = req.Name
	if req.PlanType != "" {
		tenant.PlanType = domain.PlanType(req.PlanType)
	}
	if err := h.tenantService.Update(scope, tenant); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// UpdateTenantStatus handles PATCH /api/master/tenants/{id}/status
func (h *MasterHandler) UpdateTenantStatus(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	var req UpdateTenantStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.tenantService.UpdateStatus(scope, r.PathValue("id"), domain.TenantStatus(req.Status)); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Analytics handles GET /api/master/analytics
func (h *MasterHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	analytics, err := h.analyticsService.Platform(scope)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// TenantUsage handles GET /api/master/tenants/{id}/usage
func (h *MasterHandler) TenantUsage(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	usage, err := h.analyticsService.TenantUsage(scope, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// TenantMetrics handles GET /api/master/tenants/{id}/metrics?days=30
func (h *MasterHandler) TenantMetrics(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}

	since := time.Now().AddDate(0, 0, -days)
	history, err := h.analyticsService.MetricHistory(scope, r.PathValue("id"), since)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// SetSystemSetting handles PUT /api/master/system-settings
func (h *MasterHandler) SetSystemSetting(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	var req SystemSettingRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	setting, err := h.settingsService.SetSystem(scope, req.Key, req.Value)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

// ListSystemSettings handles GET /api/master/system-settings
func (h *MasterHandler) ListSystemSettings(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	settings, err := h.settingsService.ListSystem(scope)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// AuditLogs handles GET /api/audit-logs. Super admins see the platform;
// tenant admins see their own tenant.
func (h *MasterHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScopeFromContext(r.Context())
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	logs, err := h.auditRepo.List(scope, requestTenantID(r, scope), limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
