package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pdfdesk/config"
	"pdfdesk/controllers"
	"pdfdesk/database"
	"pdfdesk/mail"
	"pdfdesk/middleware"
	"pdfdesk/payment"
	"pdfdesk/processing"
	"pdfdesk/repository"
	"pdfdesk/routes"
	"pdfdesk/services"
	"pdfdesk/storage"
	"pdfdesk/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	app, err := NewApplication(cfg, newLogger(cfg))
	if err != nil {
		logrus.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatalf("Failed to start application: %v", err)
	}
}

// Application represents the main application structure
type Application struct {
	config  *config.Config
	logger  *logrus.Logger
	server  *http.Server
	db      *database.Manager
	router  *gin.Engine
	limiter *middleware.RateLimiter

	quota         *services.QuotaService
	subscriptions *services.SubscriptionService
	tools         *services.ToolService
	edits         *services.EditSessionService

	stop chan struct{}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.IsDevelopment() {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// NewApplication creates and initializes a new application instance
func NewApplication(cfg *config.Config, logger *logrus.Logger) (*Application, error) {
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
		return nil, err
	}

	return &Application{
		config: cfg,
		logger: logger,
		db:     database.NewManager(cfg.Mongo, logger),
		router: router,
		stop:   make(chan struct{}),
		server: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      router,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

// Start initializes all components and starts the HTTP server
func (app *Application) Start() error {
	app.logStartupInfo()

	if err := app.initializeDatabase(); err != nil {
		return err
	}

	deps, err := app.buildDependencies()
	if err != nil {
		return err
	}
	routes.SetupRoutes(app.router, deps)
	app.logger.Info("Routes configured successfully")

	app.startBackgroundJobs()

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Infof("Server starting on %s", app.server.Addr)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		app.logger.Info("Shutdown signal received...")
	case err := <-serverErr:
		app.shutdown()
		return err
	}

	app.shutdown()
	return nil
}

// initializeDatabase connects to MongoDB, ensures indexes and seeds the catalog
func (app *Application) initializeDatabase() error {
	app.logger.Info("Initializing database...")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := app.db.Connect(ctx); err != nil {
		return err
	}

	collections := database.NewCollections(app.db)
	if err := database.CreateIndexes(ctx, collections); err != nil {
		return err
	}
	if err := database.Seed(ctx, collections, app.logger); err != nil {
		return err
	}

	app.logger.Info("Database initialization completed successfully")
	return nil
}

func (app *Application) buildDependencies() (*routes.Dependencies, error) {
	cfg := app.config
	logger := app.logger
	collections := database.NewCollections(app.db)

	// Repositories
	users := repository.NewUserRepository(collections.Users())
	plans := repository.NewPlanRepository(collections.Plans())
	usage := repository.NewUsageRepository(collections.Usage())
	credits := repository.NewCreditRepository(collections.CreditAccounts())
	topups := repository.NewTopupRepository(collections.TopupPackages())
	payments := repository.NewPaymentRepository(collections.Payments())
	operations := repository.NewOperationRepository(collections.Operations())
	sessions := repository.NewEditSessionRepository(collections.EditSessions())

	// Infrastructure
	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, err
	}
	mailer, err := mail.NewSender(cfg.Mail, logger)
	if err != nil {
		return nil, err
	}
	gateway := payment.NewStripeGateway(cfg.Stripe)
	sidecar := processing.NewSidecarClient(cfg.Sidecar.ConvertURL, cfg.Sidecar.OCRURL, cfg.Sidecar.Timeout, logger)
	pdf := processing.NewPDF()
	tokens := utils.NewTokenManager(cfg.JWT)

	// Services
	planService := services.NewPlanService(plans, logger)
	quotaService := services.NewQuotaService(usage, credits, planService, logger)
	creditService := services.NewCreditService(credits, logger)
	recorder := services.NewOperationRecorder(operations, logger)
	toolService := services.NewToolService(quotaService, recorder, store, logger)
	jobs := services.NewToolJobs(pdf, sidecar)
	editService := services.NewEditSessionService(sessions, toolService, jobs, quotaService, pdf, store, logger)
	subscriptionService := services.NewSubscriptionService(users, quotaService, logger)
	paymentService := services.NewPaymentService(payments, topups, planService, creditService, subscriptionService, gateway, mailer, logger)
	authService := services.NewAuthService(users, tokens, logger)

	app.quota = quotaService
	app.subscriptions = subscriptionService
	app.tools = toolService
	app.edits = editService
	app.limiter = middleware.NewRateLimiterFromConfig(cfg.RateLimit)

	return &routes.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Tokens:      tokens,
		RateLimiter: app.limiter,
		HealthChecks: map[string]controllers.HealthChecker{
			"database": app.db,
			"storage":  store,
		},
		Auth:          authService,
		Plans:         planService,
		Quota:         quotaService,
		Subscriptions: subscriptionService,
		Credits:       creditService,
		Payments:      paymentService,
		Tools:         toolService,
		Jobs:          jobs,
		Recorder:      recorder,
		EditSessions:  editService,
	}, nil
}

// startBackgroundJobs runs the cycle reset, subscription expiry and file
// cleanup sweeps
func (app *Application) startBackgroundJobs() {
	jobs := app.config.Jobs

	go app.every(jobs.ResetInterval, func(ctx context.Context) {
		n, err := app.quota.ResetDueCycles(ctx, jobs.ResetBatchSize)
		if err != nil {
			app.logger.WithError(err).Error("Usage cycle reset failed")
			return
		}
		if n > 0 {
			app.logger.WithField("count", n).Info("Usage cycles reset")
		}
	})

	go app.every(jobs.ExpiryInterval, func(ctx context.Context) {
		n, err := app.subscriptions.ExpireDue(ctx)
		if err != nil {
			app.logger.WithError(err).Error("Subscription expiry sweep failed")
			return
		}
		if n > 0 {
			app.logger.WithField("count", n).Info("Subscriptions expired")
		}
	})

	retention := services.RetentionPolicy{
		Artifacts: jobs.ArtifactRetention,
		Security:  jobs.SecurityRetention,
		Sessions:  jobs.SessionRetention,
	}
	go app.every(jobs.CleanupInterval, func(ctx context.Context) {
		artifacts, err := app.tools.PurgeExpired(ctx, retention)
		if err != nil {
			app.logger.WithError(err).Error("Artifact cleanup failed")
		}
		sessions, err := app.edits.PurgeExpired(ctx, retention.Sessions)
		if err != nil {
			app.logger.WithError(err).Error("Edit session cleanup failed")
		}
		if artifacts > 0 || sessions > 0 {
			app.logger.WithFields(logrus.Fields{
				"artifacts":     artifacts,
				"edit_sessions": sessions,
			}).Info("Expired files removed")
		}
	})

	if app.limiter != nil {
		go app.limiter.Run(app.stop)
	}

	app.logger.Info("Background jobs started successfully")
}

func (app *Application) every(interval time.Duration, task func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-app.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			task(ctx)
			cancel()
		}
	}
}

// shutdown gracefully shuts down the application
func (app *Application) shutdown() {
	app.logger.Info("Shutting down server...")
	close(app.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.WithError(err).Warn("Server forced to shutdown")
	}
	if err := app.db.Close(ctx); err != nil {
		app.logger.WithError(err).Warn("Error closing database")
	}

	app.logger.Info("Server shutdown complete")
}

func (app *Application) logStartupInfo() {
	cfg := app.config
	app.logger.WithFields(logrus.Fields{
		"version":       cfg.AppVersion,
		"environment":   cfg.Environment,
		"database":      cfg.Mongo.Database,
		"storage":       cfg.Storage.Driver,
		"mail":          cfg.Mail.Provider,
		"max_upload":    utils.FormatFileSize(cfg.MaxUploadBytes()),
		"rate_limiting": cfg.RateLimit.Enabled,
	}).Infof("Starting %s", cfg.AppName)
}
