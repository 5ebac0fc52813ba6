package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pdfdesk/config"
	"pdfdesk/controllers"
	"pdfdesk/middleware"
	"pdfdesk/services"
	"pdfdesk/utils"
)

// Dependencies is everything the HTTP layer needs, built once in main.
type Dependencies struct {
	Config        *config.Config
	Logger        *logrus.Logger
	Tokens        *utils.TokenManager
	RateLimiter   *middleware.RateLimiter
	HealthChecks  map[string]controllers.HealthChecker
	Auth          *services.AuthService
	Plans         *services.PlanService
	Quota         *services.QuotaService
	Subscriptions *services.SubscriptionService
	Credits       *services.CreditService
	Payments      *services.PaymentService
	Tools         *services.ToolService
	Jobs          *services.ToolJobs
	Recorder      *services.OperationRecorder
	EditSessions  *services.EditSessionService
}

func SetupRoutes(r *gin.Engine, deps *Dependencies) {
	cfg := deps.Config

	// Global middleware
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RecoveryMiddleware(deps.Logger))
	r.Use(middleware.LoggingMiddleware(deps.Logger))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.CORS, cfg.IsDevelopment()))

	system := controllers.NewSystemController(cfg.AppName, cfg.AppVersion, deps.HealthChecks)
	r.GET("/health", system.Health)
	r.GET("/version", system.Version)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimitMiddleware(deps.RateLimiter))
	{
		v1.GET("/health", system.Health)
		v1.GET("/version", system.Version)

		requireAuth := middleware.AuthMiddleware(deps.Tokens, deps.Auth)

		AuthRoutes(v1, deps, requireAuth)
		PlanRoutes(v1, deps, requireAuth)
		BillingRoutes(v1, deps, requireAuth)
		ToolRoutes(v1, deps, requireAuth)
	}
}
