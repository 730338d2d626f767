package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memolab/admingate/config"
	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/actions"
	"github.com/memolab/admingate/pkg/api/handlers"
	custommw "github.com/memolab/admingate/pkg/api/middleware"
	"github.com/memolab/admingate/pkg/billing"
	"github.com/memolab/admingate/pkg/cache"
	"github.com/memolab/admingate/pkg/database"
	"github.com/memolab/admingate/pkg/email"
	"github.com/memolab/admingate/pkg/export"
	"github.com/memolab/admingate/pkg/gating"
	"github.com/memolab/admingate/pkg/jobs"
	"github.com/memolab/admingate/pkg/logger"
	"github.com/memolab/admingate/pkg/metrics"
	custommiddleware "github.com/memolab/admingate/pkg/middleware"
	"github.com/memolab/admingate/pkg/points"
	"github.com/memolab/admingate/pkg/ratelimit"
	"github.com/memolab/admingate/pkg/subscription"
)

func main() {
	cfg := config.Load()
	appLog := logger.New(cfg.LogLevel)
	appLog.Info("configuration loaded", "environment", cfg.APIEnvironment)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			appLog.Warn("failed to initialize Sentry", "error", err)
		} else {
			appLog.Info("Sentry initialized", "environment", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Database (runs migrations on startup)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.NewClient(ctx, cfg.DatabaseURL, "migrations")
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	// Redis, which holds the daily action counters
	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	prometheusMetrics := metrics.New()

	// Core services
	accountRepo := accounts.NewRepository(db.Pool)
	emailService := email.NewService(cfg.EmailFrom, cfg.EmailFromName, cfg.FrontendURL, cfg.SendGridAPIKey, appLog)

	ledger := points.NewLedger(accountRepo, emailService, cfg.OperatorEmail, cfg.LowBalanceThreshold, appLog)
	dailyLimiter := ratelimit.NewDailyLimiter(redisClient.Redis)
	runner := actions.NewLLMRunner(cfg.OpenAIAPIKey, cfg.OpenAIModel, appLog)
	policy := gating.NewPolicy(ledger, dailyLimiter, runner, prometheusMetrics, cfg.OperatorEmail, cfg.ActionDailyLimit, appLog)

	billingService := billing.NewService(accountRepo, billing.NewEventRepository(db.Pool), &billing.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.FrontendURL + "/admin/payment/success",
		CancelURL:     cfg.FrontendURL + "/admin/payment",
		PlanPriceJPY:  cfg.AdminPlanPrice,
		PlanDays:      cfg.AdminPlanDays,
		PlanPoints:    cfg.AdminPlanPoints,
	}, appLog)
	billingService.SetTokenMailer(emailService)
	billingService.SetMetrics(prometheusMetrics)

	// Expiry notice sweep
	notifier := subscription.NewNotifier(accountRepo, emailService, appLog)
	cronManager := jobs.NewCronManager(accountRepo, notifier, prometheusMetrics, appLog)
	if err := cronManager.SetupJobs(); err != nil {
		log.Fatalf("failed to configure cron jobs: %v", err)
	}
	cronManager.Start()
	defer cronManager.Stop()

	// Handlers
	authHandler := handlers.NewAuthHandler(accountRepo, cfg, appLog)
	adminHandler := handlers.NewAdminHandler(accountRepo, dailyLimiter, policy, emailService, cfg.OperatorEmail, appLog)
	adminHandler.SetExporter(export.NewService())
	actionsHandler := handlers.NewActionsHandler(policy, appLog)
	billingHandler := handlers.NewBillingHandler(billingService, accountRepo, appLog)

	// Echo
	e := echo.New()
	e.HideBanner = true

	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	authRateLimiter := custommiddleware.NewRateLimiter(5, 2)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			appLog.Info("request", "method", c.Request().Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	e.Use(prometheusMetrics.Middleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())
	e.Use(globalRateLimiter.Middleware())

	// Public endpoints
	e.GET("/healthz", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
		}
		if err := redisClient.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "cache": "down"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")

	// Auth (public, tighter rate limit)
	authGroup := v1.Group("/auth", authRateLimiter.Middleware())
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/admin-login", authHandler.AdminLogin, custommw.JWTMiddleware(cfg.JWTSecret))

	// Stripe webhook (public, signature-verified inside)
	v1.POST("/webhook/stripe", billingHandler.Webhook)

	// Authenticated endpoints
	authed := v1.Group("", custommw.JWTMiddleware(cfg.JWTSecret))
	authed.POST("/admin/apply", adminHandler.Apply)
	authed.POST("/billing/checkout", billingHandler.Checkout)

	// Admin endpoints: valid window or operator required
	adminGroup := authed.Group("/admin", custommiddleware.RequireAdmin(accountRepo, cfg.OperatorEmail))
	adminGroup.GET("/status", adminHandler.Status)
	adminGroup.POST("/actions/:key", actionsHandler.Execute)
	adminGroup.GET("/accounts", adminHandler.ListAccounts)
	adminGroup.POST("/accounts/:id/approve", adminHandler.Approve)
	adminGroup.GET("/reports/accounts.xlsx", adminHandler.ReportAccounts)

	// Start server with graceful shutdown
	go func() {
		addr := cfg.APIHost + ":" + cfg.APIPort
		appLog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLog.Error("forced shutdown", "error", err)
	}
}
