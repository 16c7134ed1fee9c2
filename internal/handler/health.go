package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/yourorg/reviewflow/internal/infrastructure/redis"
	"github.com/yourorg/reviewflow/pkg/database"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db     *database.ConnectionPool
	redis  *redis.Client
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.ConnectionPool, redisClient *redis.Client, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{db: db, redis: redisClient, logger: logger}
}

// Healthz handles GET /healthz. Liveness only says the process is up.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz. Readiness checks the dependencies a request
// would actually touch.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"database": "ok",
		"redis":    "ok",
	}
	healthy := true

	if err := h.db.Health(r.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := h.redis.Ping(r.Context()); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	if !healthy {
		h.logger.Warn("readiness check failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "dependencies unavailable",
			"data":    checks,
		})
		return
	}
	writeJSON(w, http.StatusOK, checks)
}
