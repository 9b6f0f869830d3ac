package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inkwellhq/inkwell/internal/api/authz"
	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/graphql"
	httpapi "github.com/inkwellhq/inkwell/internal/api/http"
	"github.com/inkwellhq/inkwell/internal/api/idp"
	"github.com/inkwellhq/inkwell/internal/api/service"
	"github.com/inkwellhq/inkwell/internal/api/store"
	"github.com/inkwellhq/inkwell/internal/api/store/drivers/sqlite"
	"github.com/inkwellhq/inkwell/internal/api/subscription"
	"github.com/inkwellhq/inkwell/pkg/claimscache"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

// BuildVersion is stamped at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the API service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	provider idp.Provider
	verifier idp.Verifier
	cache    *claimscache.Cache[domain.Claims]
	bus      *subscription.Bus

	// Services
	tokenService        *service.TokenService
	userService         *service.UserService
	documentService     *service.DocumentService
	housekeepingService *service.HousekeepingService

	// Request path
	authorizer *authz.Authorizer
	manager    *subscription.Manager

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "inkwell-api",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := app.initProvider(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()

	if err := app.initHTTP(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("api service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down api service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Close subscription connections first so the HTTP shutdown is not held
	// open by long-lived WebSockets.
	app.manager.Shutdown(ctx)

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("api service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initProvider connects the Cognito client and the JWKS-backed verifier.
func (app *Application) initProvider(ctx context.Context) error {
	provider, err := idp.NewCognito(ctx, idp.CognitoConfig{
		Region:       app.cfg.CognitoRegion,
		UserPoolID:   app.cfg.CognitoUserPoolID,
		ClientID:     app.cfg.CognitoClientID,
		ClientSecret: app.cfg.CognitoClientSecret,
		Timeout:      app.cfg.ProviderTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize identity provider: %w", err)
	}
	app.provider = provider

	verifier, err := idp.NewJWKSVerifier(ctx, idp.VerifierConfig{
		Issuer:       app.cfg.Issuer(),
		ClientID:     app.cfg.CognitoClientID,
		FetchTimeout: app.cfg.ProviderTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}
	app.verifier = verifier

	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.cache = claimscache.New[domain.Claims](app.cfg.ClaimsCacheMaxTTL)
	app.bus = subscription.NewBus()

	app.tokenService = service.NewTokenService(app.provider, app.verifier, app.cache)
	app.userService = &service.UserService{
		Provider: app.provider,
		Tokens:   app.tokenService,
		Store:    app.db,
	}
	app.documentService = &service.DocumentService{
		Store:  app.db,
		Events: app.bus,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.cache,
		app.tokenService,
		app.bus,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP builds the authorizer, GraphQL schema, subscription manager, and
// HTTP server. A requirement the authorizer cannot evaluate fails here and
// aborts startup.
func (app *Application) initHTTP() error {
	app.authorizer = authz.NewAuthorizer(app.tokenService)
	app.authorizer.RegisterOwnerFunc(graphql.OwnerKeyDocument, func(ctx context.Context, args map[string]any) (string, error) {
		id, _ := args["id"].(string)
		owner, err := app.documentService.OwnerOf(ctx, id)
		if errors.Is(err, service.ErrDocumentNotFound) {
			return "", authz.ErrOwnerUnknown
		}
		return owner, err
	})
	app.authorizer.RegisterOwnerFunc(graphql.OwnerKeyDocumentEvent, func(_ context.Context, args map[string]any) (string, error) {
		owner, _ := args["owner"].(string)
		return owner, nil
	})

	schema, err := graphql.NewSchema(graphql.Config{
		Tokens:     app.tokenService,
		Users:      app.userService,
		Documents:  app.documentService,
		Authorizer: app.authorizer,
		Bus:        app.bus,
	})
	if err != nil {
		return fmt.Errorf("failed to build schema: %w", err)
	}

	app.manager = subscription.NewManager(schema, app.tokenService, app.logger, app.cfg.RecheckInterval)

	router := httpapi.NewRouter(schema, app.manager, app.db, BuildVersion, app.logger)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return nil
}
