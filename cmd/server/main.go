package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/reviewflow/internal/featureflags"
	"github.com/yourorg/reviewflow/internal/handler"
	"github.com/yourorg/reviewflow/internal/infrastructure/logger"
	"github.com/yourorg/reviewflow/internal/infrastructure/mailer"
	"github.com/yourorg/reviewflow/internal/infrastructure/redis"
	"github.com/yourorg/reviewflow/internal/observability/metrics"
	"github.com/yourorg/reviewflow/internal/observability/tracing"
	"github.com/yourorg/reviewflow/internal/realtime"
	"github.com/yourorg/reviewflow/internal/repository"
	"github.com/yourorg/reviewflow/internal/security"
	"github.com/yourorg/reviewflow/internal/security/audit"
	"github.com/yourorg/reviewflow/internal/security/auth"
	"github.com/yourorg/reviewflow/internal/security/middleware"
	"github.com/yourorg/reviewflow/internal/security/ratelimit"
	"github.com/yourorg/reviewflow/internal/service"
	"github.com/yourorg/reviewflow/internal/worker"
	"github.com/yourorg/reviewflow/pkg/cache"
	"github.com/yourorg/reviewflow/pkg/config"
	"github.com/yourorg/reviewflow/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "config: %s\n", p)
		}
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting ReviewFlow server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing (no-op unless an OTLP endpoint is configured)
	shutdownTracing, err := tracing.Init(ctx, log, cfg.AppName, cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Infrastructure clients
	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	db, err := database.NewConnectionPoolFromURL(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to Postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	var mail mailer.Sender = mailer.NewClient(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom, log)

	// 5. Repositories
	tenantRepo := repository.NewPostgresTenantRepository(db.GetDB(), log)
	profileRepo := repository.NewPostgresProfileRepository(db.GetDB(), log)
	reviewRepo := repository.NewPostgresReviewRepository(db.GetDB(), log)
	linkRepo := repository.NewPostgresReviewLinkRepository(db.GetDB(), log)
	invitationRepo := repository.NewPostgresInvitationRepository(db.GetDB(), log)
	settingsRepo := repository.NewPostgresBusinessSettingsRepository(db.GetDB(), log)
	systemRepo := repository.NewPostgresSystemSettingRepository(db.GetDB(), log)
	invoiceRepo := repository.NewPostgresInvoiceRepository(db.GetDB(), log)
	auditRepo := repository.NewPostgresAuditLogRepository(db.GetDB(), log)
	usageRepo := repository.NewPostgresUsageMetricRepository(db.GetDB(), log)
	analyticsRepo := repository.NewPostgresAnalyticsRepository(db.GetDB(), log)

	// 6. Realtime and caching
	memCache := cache.New()
	notifier := realtime.NewNotifier(redisClient, memCache, log)
	go notifier.Start(ctx)

	// 7. Services
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.AppName)
	authService := service.NewAuthService(profileRepo, invitationRepo, tokenManager, log)
	limitService := service.NewReviewLimitService(tenantRepo, reviewRepo, memCache, log)
	reviewService := service.NewReviewService(tenantRepo, reviewRepo, linkRepo, settingsRepo, limitService, notifier, cfg.FrontendURL, log)
	tenantService := service.NewTenantService(tenantRepo, tenantRepo, profileRepo, log)
	invitationService := service.NewInvitationService(invitationRepo, tenantRepo, mail, cfg.FrontendURL, log)
	invoiceService := service.NewInvoiceService(invoiceRepo, tenantRepo, profileRepo, mail, log)
	settingsService := service.NewSettingsService(settingsRepo, systemRepo, memCache, notifier, log)
	analyticsService := service.NewAnalyticsService(analyticsRepo, usageRepo, memCache, log)

	// 8. Handlers
	authzService := security.NewAuthorizationService(log)
	authHandler := handler.NewAuthHandler(authService, log)
	publicHandler := handler.NewPublicReviewHandler(reviewService, tenantService, settingsService, log)
	reviewHandler := handler.NewReviewHandler(reviewService, limitService, log)
	linkHandler := handler.NewReviewLinkHandler(reviewService, log)
	settingsHandler := handler.NewSettingsHandler(settingsService, log)
	invitationHandler := handler.NewInvitationHandler(invitationService, log)
	userHandler := handler.NewUserHandler(profileRepo, authzService, log)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, log)
	masterHandler := handler.NewMasterHandler(tenantService, analyticsService, settingsService, auditRepo, log)
	eventsHandler := handler.NewEventsHandler(notifier, tokenManager, cfg.CORSAllowedOrigins, log)
	healthHandler := handler.NewHealthHandler(db, redisClient, log)

	// 8a. Security components
	rateLimiter := ratelimit.NewLimiter(100, time.Minute) // 100 requests per minute per tenant
	auditLogger := audit.NewLogger(log, auditRepo)

	// 9. Routes
	mux := http.NewServeMux()

	// Public surface
	mux.HandleFunc("POST /api/public/reviews", publicHandler.Submit)
	mux.HandleFunc("GET /api/public/tenants/{slug}", publicHandler.FormBootstrap)
	mux.HandleFunc("GET /api/public/review-links/{code}", publicHandler.ResolveLink)
	mux.HandleFunc("GET /api/public/invitations/{token}", invitationHandler.Lookup)
	mux.HandleFunc("POST /api/reviews/{id}/redirect-opened", publicHandler.RedirectOpened)

	// Auth
	mux.HandleFunc("POST /api/auth/signup", authHandler.Signup)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/auth/me", authHandler.Me)
	mux.HandleFunc("POST /api/auth/change-password", authHandler.ChangePassword)

	// Tenant surface
	mux.HandleFunc("GET /api/reviews", reviewHandler.List)
	mux.HandleFunc("GET /api/reviews/export", reviewHandler.Export)
	mux.HandleFunc("GET /api/reviews/{id}", reviewHandler.Get)
	mux.HandleFunc("PATCH /api/reviews/{id}", reviewHandler.Correct)
	mux.HandleFunc("GET /api/review-limits", reviewHandler.Limits)
	mux.HandleFunc("POST /api/review-links", linkHandler.Create)
	mux.HandleFunc("GET /api/review-links", linkHandler.List)
	mux.HandleFunc("DELETE /api/review-links/{id}", linkHandler.Deactivate)
	mux.HandleFunc("GET /api/settings", settingsHandler.Get)
	mux.HandleFunc("PUT /api/settings", settingsHandler.Update)
	mux.HandleFunc("POST /api/invitations", invitationHandler.Create)
	mux.HandleFunc("GET /api/invitations", invitationHandler.List)
	mux.HandleFunc("DELETE /api/invitations/{id}", invitationHandler.Revoke)
	mux.HandleFunc("GET /api/users", userHandler.List)
	mux.HandleFunc("PATCH /api/users/{id}/role", userHandler.UpdateRole)
	mux.HandleFunc("DELETE /api/users/{id}", userHandler.Deactivate)
	mux.HandleFunc("GET /api/invoices", invoiceHandler.List)
	mux.HandleFunc("GET /api/invoices/{id}", invoiceHandler.Get)
	mux.HandleFunc("GET /api/invoices/{id}/pdf", invoiceHandler.PDF)
	mux.HandleFunc("GET /api/audit-logs", masterHandler.AuditLogs)

	// Master surface
	mux.HandleFunc("POST /api/master/tenants", masterHandler.CreateTenant)
	mux.HandleFunc("GET /api/master/tenants", masterHandler.ListTenants)
	mux.HandleFunc("GET /api/master/tenants/{id}", masterHandler.GetTenant)
	mux.HandleFunc("PATCH /api/master/tenants/{id}", masterHandler.UpdateTenant)
	mux.HandleFunc("PATCH /api/master/tenants/{id}/status", masterHandler.UpdateTenantStatus)
	mux.HandleFunc("GET /api/master/tenants/{id}/usage", masterHandler.TenantUsage)
	mux.HandleFunc("GET /api/master/tenants/{id}/metrics", masterHandler.TenantMetrics)
	mux.HandleFunc("GET /api/master/analytics", masterHandler.Analytics)
	mux.HandleFunc("PUT /api/master/system-settings", masterHandler.SetSystemSetting)
	mux.HandleFunc("GET /api/master/system-settings", masterHandler.ListSystemSettings)
	mux.HandleFunc("GET /api/master/audit-logs", masterHandler.AuditLogs)
	mux.HandleFunc("POST /api/master/invoices", invoiceHandler.Create)
	mux.HandleFunc("PATCH /api/master/invoices/{id}/status", invoiceHandler.UpdateStatus)
	mux.HandleFunc("POST /api/master/invoices/{id}/send", invoiceHandler.Send)

	// Realtime and operational endpoints
	mux.Handle("GET /ws/events", eventsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)

	// CORS middleware honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Audit and rate limiting key off the caller's scope, so JWT must run
	// before both of them.
	authedChain := middleware.JWTMiddleware(tokenManager, log)(
		middleware.AuditMiddleware(auditLogger)(
			middleware.RateLimitMiddleware(rateLimiter, log)(handlerWithCORS),
		),
	)

	// FLAG_MAINTENANCE_MODE takes the API down for deploys while leaving
	// the operational endpoints reachable.
	handlerWithMaintenance := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if featureflags.Enabled("maintenance_mode") {
			switch r.URL.Path {
			case "/healthz", "/readyz", "/metrics":
			default:
				http.Error(w, "service under maintenance", http.StatusServiceUnavailable)
				return
			}
		}
		authedChain.ServeHTTP(w, r)
	})

	// Chain middleware: request ID -> metrics -> content type -> maintenance -> JWT -> audit -> rate limit -> CORS+mux
	rootHandler := withRequestID(
		metrics.HTTPMetricsMiddleware(
			middleware.ValidateJSONContentType(log)(handlerWithMaintenance),
		),
		log,
	)

	// 10. Background workers
	sweeper := worker.NewInvitationSweeper(invitationRepo, log, time.Duration(cfg.SweepIntervalMin)*time.Minute)
	go sweeper.Start(ctx)

	aggregator := worker.NewUsageAggregator(tenantRepo, reviewRepo, profileRepo, usageRepo, log, time.Duration(cfg.UsageIntervalMin)*time.Minute)
	go aggregator.Start(ctx)

	// 11. HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      otelhttp.NewHandler(rootHandler, "http.server"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", 100),
		slog.String("rate_limit_window", "1m"),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop workers and the notifier
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := audit.WithRequestID(r.Context(), reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
