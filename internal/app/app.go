package app

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/common"
	"github.com/ternarybob/lubesync/internal/handlers"
	"github.com/ternarybob/lubesync/internal/interfaces"
	"github.com/ternarybob/lubesync/internal/lubelogger"
	"github.com/ternarybob/lubesync/internal/services/coordinator"
	"github.com/ternarybob/lubesync/internal/services/entities"
	"github.com/ternarybob/lubesync/internal/services/events"
	"github.com/ternarybob/lubesync/internal/services/facts"
	"github.com/ternarybob/lubesync/internal/services/scheduler"
	"github.com/ternarybob/lubesync/internal/services/setup"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Remote service access
	SessionManager *lubelogger.SessionManager
	Client         *lubelogger.Client

	// Snapshot pipeline
	FactsService        *facts.Service
	SubscriptionService interfaces.SubscriptionService
	CoordinatorService  interfaces.Coordinator
	SchedulerService    interfaces.SchedulerService

	// Setup and presentation
	SetupService  *setup.Service
	EntityService *entities.Service

	// HTTP handlers
	APIHandler *handlers.APIHandler
	WSHandler  *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	// Remote service client with a session manager that re-authenticates
	// once on rejection
	creds := cfg.LubeLogger.Credentials()
	app.SessionManager = lubelogger.NewSessionManager(creds, &http.Client{Timeout: cfg.LubeLogger.RequestTimeout}, logger)
	app.Client = lubelogger.NewClient(creds.BaseURL, app.SessionManager,
		lubelogger.WithTimeout(cfg.LubeLogger.RequestTimeout),
		lubelogger.WithRateLimit(cfg.LubeLogger.RateLimit),
		lubelogger.WithLogger(logger),
	)

	// Snapshot pipeline
	app.FactsService = facts.NewService(logger)
	app.SubscriptionService = events.NewService(logger)
	app.CoordinatorService = coordinator.NewService(app.Client, app.FactsService, app.SubscriptionService, logger, coordinator.Config{
		Concurrency:    cfg.LubeLogger.Concurrency,
		Interval:       cfg.LubeLogger.UpdateInterval,
		BackoffInitial: cfg.LubeLogger.BackoffInitial,
		BackoffMax:     cfg.LubeLogger.BackoffMax,
	})
	app.SchedulerService = scheduler.NewService(app.CoordinatorService, logger)

	// Setup and presentation
	app.SetupService = setup.NewService(logger, cfg.LubeLogger.RequestTimeout)
	app.EntityService = entities.NewService(logger)

	// HTTP handlers
	app.APIHandler = handlers.NewAPIHandler(app.CoordinatorService, app.EntityService, app.SetupService, logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.SubscriptionService, logger)

	logger.Info().Msg("Application initialized")
	return app, nil
}

// Context returns the application context, cancelled on Close.
func (a *App) Context() context.Context {
	return a.ctx
}

// Close shuts down services in reverse dependency order.
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}

	if a.CoordinatorService != nil {
		if err := a.CoordinatorService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Coordinator close failed")
		}
	}

	if a.WSHandler != nil {
		if err := a.WSHandler.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("WebSocket handler close failed")
		}
	}

	if a.SubscriptionService != nil {
		if err := a.SubscriptionService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Subscription service close failed")
		}
	}

	a.cancelCtx()
	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
