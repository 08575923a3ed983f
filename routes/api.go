package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/jpcardenas/sms-dispatch/environments"
	"github.com/jpcardenas/sms-dispatch/handlers"
	"github.com/jpcardenas/sms-dispatch/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	messageHandler *handlers.MessageHandler,
	operatorHandler *handlers.OperatorHandler,
	monitorHandler *handlers.MonitorHandler,
	dispatcherHandler *handlers.DispatcherHandler,
	webhookHandler *handlers.WebhookHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Carrier callbacks are unauthenticated by protocol; they can only
	// confirm deliveries, never create or send anything.
	webhook := e.Group("/webhook")
	webhook.POST("/delivery-report", webhookHandler.DeliveryReport)
	webhook.POST("/delivered", webhookHandler.Delivered)

	// API v1 base group
	v1 := e.Group("/api/v1")

	// Message routes with their own API key
	messages := v1.Group("/messages", middlewares.APIKeyAuth(cfg.Auth.MessagesAPIKey))

	messages.GET("", messageHandler.GetAllMessages)
	messages.POST("", messageHandler.EnrollBatch)
	messages.POST("/test", messageHandler.TestSend)
	messages.GET("/stats", messageHandler.GetStats)
	messages.GET("/:id", messageHandler.GetMessage)

	// Everything operational shares the admin key
	adminAuth := middlewares.APIKeyAuth(cfg.Auth.AdminAPIKey)

	operators := v1.Group("/operators", adminAuth)
	operators.GET("", operatorHandler.List)
	operators.GET("/stats", operatorHandler.Stats)
	operators.GET("/:name", operatorHandler.Get)
	operators.PUT("/:name/enabled", operatorHandler.SetEnabled)

	monitor := v1.Group("/monitor", adminAuth)
	monitor.GET("/health", monitorHandler.Health)
	monitor.GET("/dashboard", monitorHandler.Dashboard)
	monitor.GET("/report", monitorHandler.Report)

	dispatcher := v1.Group("/dispatcher", adminAuth)
	dispatcher.POST("/start", dispatcherHandler.Start)
	dispatcher.POST("/stop", dispatcherHandler.Stop)
	dispatcher.GET("/status", dispatcherHandler.Status)

	campaigns := v1.Group("/campaigns", adminAuth)
	campaigns.POST("/:id/drain", dispatcherHandler.StartDrain)
	campaigns.GET("/progress", dispatcherHandler.DrainProgress)
}
