// Package app assembles the server: configuration, logging, tracing,
// storage, services, router and lifecycle.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"licgate/internal/audit"
	"licgate/internal/config"
	apierrors "licgate/internal/errors"
	"licgate/internal/infrastructure"
	custommw "licgate/internal/middleware"
	"licgate/internal/services"
	"licgate/internal/session"
	"licgate/internal/store/sqlite"
	handlers "licgate/internal/transport/http"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Application is the composed server and its owned resources.
type Application struct {
	Config *config.Config
	Router *chi.Mux
	Server *http.Server
	Logger *slog.Logger

	db            *sql.DB
	logCloser     io.Closer
	otelProviders *infrastructure.OTelProviders
}

// NewApplication loads configuration and wires every layer together. The
// caller owns the returned application and must Run or Close it.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, logCloser, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(logger)

	logger.Info("application starting",
		slog.String("version", Version),
		slog.Int("port", cfg.Server.Port),
		slog.String("store_path", cfg.Store.Path),
	)

	otelProviders, err := infrastructure.InitializeOTel(io.Discard, logger)
	if err != nil {
		logger.Warn("tracing disabled", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, fmt.Errorf("open store: %w", err)
	}

	metrics := infrastructure.NewMetrics()

	licenseStore := sqlite.NewLicenseStore(db)
	sessionStore := sqlite.NewSessionStore(db)
	auditStore := sqlite.NewAuditStore(db)

	recorder := audit.NewRecorder(auditStore, logger, metrics.AuditDrops)
	tracker := session.NewTracker(sessionStore, logger)

	licenseService := services.NewLicenseService(licenseStore, recorder, metrics, logger)
	eventService := services.NewEventService(licenseStore, tracker, recorder, metrics, logger)
	adminService := services.NewAdminService(licenseStore, sessionStore, auditStore, logger)
	healthService := services.NewHealthService(licenseStore, Version, logger)

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		db:            db,
		logCloser:     logCloser,
		otelProviders: otelProviders,
	}

	app.Router = app.buildRouter(metrics,
		handlers.NewLicenseHandler(licenseService, logger),
		handlers.NewEventHandler(eventService, logger),
		handlers.NewAdminHandler(adminService, logger),
		handlers.NewHealthHandler(healthService, logger),
	)

	app.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

func (a *Application) buildRouter(metrics *infrastructure.Metrics, licenseHandler *handlers.LicenseHandler, eventHandler *handlers.EventHandler, adminHandler *handlers.AdminHandler, healthHandler *handlers.HealthHandler) *chi.Mux {
	cfg := a.Config
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.SecurityHeaders)
	r.Use(custommw.Timeout(cfg.Server.RequestTimeout))
	r.Use(chimiddleware.Compress(5))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	if cfg.Security.EnableCORS {
		r.Use(custommw.CORS(cfg.Security.AllowedOrigins, a.Logger))
	}
	if cfg.Security.RateLimit.Enabled {
		limiter := custommw.NewRateLimiter(
			cfg.Security.RateLimit.RPS,
			cfg.Security.RateLimit.Burst,
			a.Logger,
			metrics.RateLimited,
		)
		r.Use(limiter.Handler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Mount("/license", licenseHandler.Routes())
		r.Mount("/", eventHandler.Routes())

		r.Route("/admin", func(r chi.Router) {
			r.Use(custommw.AdminAuth(cfg.Security.AdminToken, a.Logger))
			r.Mount("/", adminHandler.Routes())
		})

		r.Get("/health", healthHandler.HealthCheck)
	})

	r.Handle("/metrics", metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.NotFoundError("route")))
	})

	return r
}

// Run serves until the context is cancelled or SIGINT/SIGTERM arrives, then
// shuts down gracefully within the configured timeout.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	a.Close()
	return err
}

// Close releases the application's resources. Safe after Run.
func (a *Application) Close() {
	if a.otelProviders != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelProviders.Shutdown(ctx)
		cancel()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error("closing store", slog.String("error", err.Error()))
		}
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}
