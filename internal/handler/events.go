package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourorg/reviewflow/internal/observability/metrics"
	"github.com/yourorg/reviewflow/internal/realtime"
	"github.com/yourorg/reviewflow/internal/security/auth"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// EventsHandler streams change events to dashboard clients over a
// websocket. Browsers cannot set an Authorization header on the upgrade
// request, so the JWT arrives as a ?token= query parameter instead.
type EventsHandler struct {
	notifier *realtime.Notifier
	tokens   *auth.TokenManager
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(notifier *realtime.Notifier, tokens *auth.TokenManager, allowedOrigins []string, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &EventsHandler{
		notifier: notifier,
		tokens:   tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		logger: logger,
	}
}

// ServeHTTP handles GET /ws/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "token query parameter required")
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	scope := claims.Scope()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	metrics.WebsocketConnected()
	defer metrics.WebsocketDisconnected()
	h.logger.Info("realtime subscriber connected",
		slog.String("user_id", scope.UserID),
		slog.String("tenant_id", scope.TenantID),
	)

	events, cancel := h.notifier.Listen()
	defer cancel()

	// Reader goroutine: drains control frames and signals close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			// Tenant users only see their own tenant's events.
			if !scope.IsSuperAdmin() && event.TenantID != scope.TenantID {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("realtime subscriber write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}
