package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/yourorg/reviewflow/internal/domain"
)

// envelope is the wire shape of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: msg})
}

// writeDomainError maps domain sentinels to HTTP statuses. Unknown errors
// come back as a generic 500 so internals never leak to clients.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrTenantScopeRequired):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrTenantIDRequired):
		writeError(w, http.StatusBadRequest, "tenant id required")
	case errors.Is(err, domain.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrReviewLimitReached):
		writeError(w, http.StatusForbidden, "review limit reached for current plan")
	case errors.Is(err, domain.ErrInvitationInvalid):
		writeError(w, http.StatusGone, "invitation is no longer valid")
	default:
		if logger != nil {
			logger.Error("request failed", slog.String("error", err.Error()))
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// requestTenantID picks the tenant a request operates on: an explicit
// ?tenant_id= wins (super admins browsing a tenant), otherwise the
// caller's own tenant. Repositories still enforce the scope either way.
func requestTenantID(r *http.Request, scope domain.Scope) string {
	if t := r.URL.Query().Get("tenant_id"); t != "" {
		return t
	}
	return scope.TenantID
}

// decodeAndValidate parses a JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "invalid field: "+verrs[0].Field())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}
