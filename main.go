package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jpcardenas/sms-dispatch/environments"
	"github.com/jpcardenas/sms-dispatch/handlers"
	"github.com/jpcardenas/sms-dispatch/internal/operators"
	"github.com/jpcardenas/sms-dispatch/internal/ratelimit"
	"github.com/jpcardenas/sms-dispatch/internal/repository"
	"github.com/jpcardenas/sms-dispatch/internal/scheduler"
	"github.com/jpcardenas/sms-dispatch/internal/service"
	"github.com/jpcardenas/sms-dispatch/pkg/database"
	"github.com/jpcardenas/sms-dispatch/pkg/gateway"
	"github.com/jpcardenas/sms-dispatch/pkg/logger"
	"github.com/jpcardenas/sms-dispatch/pkg/redis"
	"github.com/jpcardenas/sms-dispatch/pkg/shortener"
	"github.com/jpcardenas/sms-dispatch/pkg/validator"
	"github.com/jpcardenas/sms-dispatch/routes"

	_ "github.com/jpcardenas/sms-dispatch/docs" // swagger docs
)

// @title SMS Dispatch API
// @version 1.0
// @description Bulk SMS delivery engine with operator failover and adaptive rate limiting

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	logger.Init()

	// Load config
	cfg := environments.Load()

	// Hard-fail if required secrets are missing
	if cfg.Auth.MessagesAPIKey == "" {
		logger.Fatalf("MESSAGES_API_KEY is required but not set")
	}
	if cfg.Auth.AdminAPIKey == "" {
		logger.Fatalf("ADMIN_API_KEY is required but not set")
	}

	logger.Infof("Starting SMS dispatch service...")

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed the default operator profiles on first start
	if err := database.SeedOperators(db); err != nil {
		logger.Fatalf("Failed to seed operator profiles: %v", err)
	}

	// Init redis. The service degrades without it: no tracking-id lookups
	// and no dynamic-link cache, but deliveries still flow.
	var redisClient *redis.Client
	redisClient, err = redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Redis not available, caching disabled: %v", err)
		redisClient = nil
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db, cfg.Dispatch.ClaimLease)
	operatorRepo := repository.NewOperatorRepository(db)

	// Initialize the operator router from the persisted profiles
	router := operators.NewRouter(operatorRepo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := router.Reload(ctx); err != nil {
		logger.Fatalf("Failed to load operator profiles: %v", err)
	}
	logger.Infof("Loaded %d enabled operators", router.EnabledCount())

	// Rate limiting: one adaptive limiter per operator plus a global cap
	limiters := ratelimit.NewRegistry(cfg.RateLimit.Adaptive)
	globalLimiter := ratelimit.NewGlobalLimiter(cfg.RateLimit.GlobalPerSecond)

	// Transport and link collaborators
	gatewayClient := gateway.NewClient()
	shortenerClient := shortener.NewClient(cfg.Shortener)

	var links *service.LinkProvider
	if redisClient != nil {
		links = service.NewLinkProvider(shortenerClient, redisClient, cfg.Dispatch.LinkRefreshN)
	} else {
		links = service.NewLinkProvider(shortenerClient, nil, cfg.Dispatch.LinkRefreshN)
	}

	// Initialize services
	var dispatchService *service.DispatchService
	if redisClient != nil {
		dispatchService = service.NewDispatchService(
			jobRepo, router, gatewayClient, limiters, globalLimiter, redisClient, links)
	} else {
		dispatchService = service.NewDispatchService(
			jobRepo, router, gatewayClient, limiters, globalLimiter, nil, links)
	}

	monitorService := service.NewMonitorService(
		jobRepo, operatorRepo, limiters,
		cfg.Monitor.BacklogThreshold, cfg.Monitor.StaleAfter)

	// Initialize the dispatcher loops
	dispatcher := scheduler.NewDispatcher(dispatchService, scheduler.DispatcherOptions{
		SweepInterval:  cfg.Dispatch.SweepInterval,
		SweepBatchSize: cfg.Dispatch.SweepBatchSize,
		DrainBatchSize: cfg.Dispatch.DrainBatchSize,
		DrainPause:     cfg.Dispatch.DrainPause,
		FaultCooldown:  cfg.Dispatch.FaultCooldown,
	})

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient)
	messageHandler := handlers.NewMessageHandler(dispatchService)
	operatorHandler := handlers.NewOperatorHandler(router, operatorRepo)
	monitorHandler := handlers.NewMonitorHandler(monitorService)
	dispatcherHandler := handlers.NewDispatcherHandler(ctx, dispatcher)
	webhookHandler := handlers.NewWebhookHandler(dispatchService)

	// Auto-start the sweep loop
	if os.Getenv("AUTO_START_DISPATCHER") != "false" {
		logger.Infof("Auto-starting dispatcher...")
		if err := dispatcher.Start(ctx); err != nil {
			logger.Warnf("Failed to auto-start dispatcher: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"x-sms-auth-key",
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e,
		healthHandler, messageHandler, operatorHandler,
		monitorHandler, dispatcherHandler, webhookHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Cancel context to signal all goroutines to stop
	cancel()

	// Stop dispatcher first (with timeout)
	if dispatcher.IsRunning() {
		logger.Infof("Stopping dispatcher...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()

		done := make(chan error, 1)
		go func() {
			done <- dispatcher.Stop()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Errorf("Error stopping dispatcher: %v", err)
			} else {
				logger.Infof("Dispatcher stopped successfully")
			}
		case <-stopCtx.Done():
			logger.Warnf("Dispatcher stop timeout, forcing shutdown")
		}
	}

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close Redis connection
	if redisClient != nil {
		logger.Infof("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Redis: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
