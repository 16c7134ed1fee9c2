package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/security/audit"
	"github.com/yourorg/reviewflow/internal/security/auth"
	"github.com/yourorg/reviewflow/internal/security/ratelimit"
)

type ScopeContextKey struct{}
type ClaimsContextKey struct{}

// isPublicPath lists the endpoints served without a session: health, the
// anonymous review form surface, and the auth entry points themselves.
func isPublicPath(r *http.Request) bool {
	p := r.URL.Path
	switch p {
	case "/healthz", "/readyz", "/metrics",
		"/api/auth/signup", "/api/auth/login":
		return true
	}
	if strings.HasPrefix(p, "/api/public/") {
		return true
	}
	if strings.HasPrefix(p, "/api/reviews/") && strings.HasSuffix(p, "/redirect-opened") {
		return true
	}
	// Websocket clients authenticate with a token query parameter inside
	// the handler because browsers cannot set headers on upgrade requests.
	if strings.HasPrefix(p, "/ws/") {
		return true
	}
	return false
}

func JWTMiddleware(tm *auth.TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// CORS preflights are answered downstream and carry no auth.
			if r.Method == http.MethodOptions || isPublicPath(r) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing auth"}`, http.StatusUnauthorized)
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				http.Error(w, `{"error":"invalid auth"}`, http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			ctx = context.WithValue(ctx, ScopeContextKey{}, claims.Scope())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware applies the per-tenant window to authenticated
// traffic and a stricter per-IP window to the abuse-prone public
// endpoints.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strictLimited(r) {
				if !limiter.AllowStrict(ClientIP(r), 10, time.Minute) {
					log.Warn("strict rate limit exceeded",
						slog.String("path", r.URL.Path),
						slog.String("ip", ClientIP(r)),
					)
					http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			scope := GetScopeFromContext(r.Context())
			if !limiter.Allow(scope.TenantID) {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func strictLimited(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	switch r.URL.Path {
	case "/api/public/reviews", "/api/auth/login", "/api/auth/signup":
		return true
	}
	return false
}

// AuditMiddleware records the initiation of privileged mutations. The
// services record the outcome. Resource ids come straight from the URL:
// the mux that populates path values runs after this middleware.
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := GetScopeFromContext(r.Context())

			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/api/master/tenants":
				auditLog.LogAction(r.Context(), scope.TenantID, scope.UserID, "create_tenant", "tenant", "", "initiated", "")
			case r.Method == http.MethodPost && r.URL.Path == "/api/invitations":
				auditLog.LogAction(r.Context(), scope.TenantID, scope.UserID, "invite", "invitation", "", "initiated", "")
			case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/invitations/"):
				id := strings.TrimPrefix(r.URL.Path, "/api/invitations/")
				auditLog.LogAction(r.Context(), scope.TenantID, scope.UserID, "revoke_invite", "invitation", id, "initiated", "")
			case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/send") && strings.HasPrefix(r.URL.Path, "/api/invoices/"):
				id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/invoices/"), "/send")
				auditLog.LogAction(r.Context(), scope.TenantID, scope.UserID, "send_invoice", "invoice", id, "initiated", "")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetScopeFromContext returns the caller's scope, or a zero scope for
// anonymous requests. A zero scope fails closed at the repository layer.
func GetScopeFromContext(ctx context.Context) domain.Scope {
	if s := ctx.Value(ScopeContextKey{}); s != nil {
		if scope, ok := s.(domain.Scope); ok {
			return scope
		}
	}
	return domain.Scope{}
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c := ctx.Value(ClaimsContextKey{}); c != nil {
		if claims, ok := c.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// ClientIP extracts the caller address, honoring the first value of
// X-Forwarded-For when a proxy sits in front.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
