// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/fiche/internal/api"
	"github.com/starford/fiche/internal/crmservice"
	"github.com/starford/fiche/internal/export"
	"github.com/starford/fiche/internal/mcpserver"
	"github.com/starford/fiche/internal/metrics"
	"github.com/starford/fiche/internal/models"
	"github.com/starford/fiche/internal/pdfmerge"
	"github.com/starford/fiche/internal/registry"
	"github.com/starford/fiche/internal/safehttp"
	"github.com/starford/fiche/internal/seed"
	"github.com/starford/fiche/internal/session"
	"github.com/starford/fiche/internal/sse"
	"github.com/starford/fiche/internal/storage"
	"github.com/starford/fiche/internal/store"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(app.logWriter(os.Stdout), cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("files_root", cfg.Files.Root),
		slog.String("session_backend", cfg.Session.Backend),
		slog.Bool("registry_enabled", cfg.Registry.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	deps, cleanup, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	deps.Events = broker
	svc := crmservice.New(deps)

	// Apply template definitions before serving.
	seeder := seed.New(cfg.Seed.Dir, deps.DB, logger)
	onSeed := func(_ string, tpl *models.Template) {
		companyID, err := deps.DB.TemplateCompany(ctx, tpl.ID)
		if err != nil {
			return
		}
		broker.PublishChange(sse.TemplateUpdated, companyID, sse.Change{ID: tpl.ID, Version: tpl.Version})
	}
	if cfg.Seed.Dir != "" {
		if err := seeder.Sync(ctx, onSeed); err != nil {
			logger.Warn("initial seed sync failed", slog.String("error", err.Error()))
		}
	}

	// Build API router.
	apiRouter := api.NewRouter(svc, broker, api.RouterConfig{
		AuthEnabled:    cfg.Auth.AuthEnabled(),
		Token:          cfg.Auth.Token,
		MaxUploadBytes: cfg.Files.MaxUploadBytes,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// Health check and metrics endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svc.Ready(r.Context()); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start seed watcher with SSE callback.
	if cfg.Seed.Watch {
		g.Go(func() error {
			if err := seeder.Watch(gCtx, onSeed); err != nil {
				logger.Error("seed watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams only end when their clients go away.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown ends the errgroup once the signal handler has stopped the
// server, which cancels the seed watcher.
var errShutdown = errors.New("shutdown")

// Migrate applies pending schema migrations and returns the resulting version.
func Migrate(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.logWriter(os.Stdout), app.config.App.LogLevel)

	version, err := store.Migrate(app.config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Schema migrated",
		slog.String("sqlite_path", app.config.SQLite.Path),
		slog.Uint64("version", uint64(version)))
	return nil
}

// ServeMCP serves the MCP tool surface over stdio until the client
// disconnects. Logs default to stderr since stdout carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(app.logWriter(os.Stderr), cfg.App.LogLevel)
	slog.SetDefault(logger)

	deps, cleanup, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := mcpserver.New(crmservice.New(deps), cfg.MCP.Identity())
	logger.Info("MCP server starting on stdio", slog.String("user_id", cfg.MCP.UserID))
	return srv.ServeStdio()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// buildDeps opens the store and wires every collaborator of the service
// except the event broker. cleanup releases what was opened.
func buildDeps(ctx context.Context, cfg *Config, logger *slog.Logger) (crmservice.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (crmservice.Deps, func(), error) {
		cleanup()
		return crmservice.Deps{}, nil, err
	}

	// Ensure files directory exists.
	if err := os.MkdirAll(cfg.Files.Root, 0o755); err != nil {
		return fail(fmt.Errorf("create files dir: %w", err))
	}
	files, err := storage.NewFS(cfg.Files.Root, cfg.Files.URLPrefix)
	if err != nil {
		return fail(fmt.Errorf("init storage: %w", err))
	}

	// Initialize SQLite store.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fail(fmt.Errorf("init store: %w", err))
	}
	closers = append(closers, func() { _ = db.Close() })

	var sessions session.Store
	switch cfg.Session.Backend {
	case SessionBackendRedis:
		rs, err := session.NewRedis(ctx, session.RedisConfig{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
			TTL:      cfg.Session.TTL,
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = rs.Close() })
		sessions = rs
	default:
		sessions = session.NewMemory(cfg.Session.TTL)
	}

	// Record file lists may hold remote URLs; the export fetch only reaches
	// public addresses.
	httpClient := safehttp.NewClient(30 * time.Second)

	var lookup crmservice.Lookuper
	if cfg.Registry.Enabled {
		c, err := registry.New(registry.Config{
			URL:           cfg.Registry.URL,
			Token:         cfg.Registry.Token,
			Timeout:       cfg.Registry.Timeout,
			RatePerSecond: cfg.Registry.RatePerSecond,
			Burst:         cfg.Registry.Burst,
			Paths: registry.Paths{
				Name:       cfg.Registry.Paths.Name,
				Address:    cfg.Registry.Paths.Address,
				City:       cfg.Registry.Paths.City,
				PostalCode: cfg.Registry.Paths.PostalCode,
				TaxID:      cfg.Registry.Paths.TaxID,
			},
		}, nil)
		if err != nil {
			return fail(fmt.Errorf("init registry: %w", err))
		}
		lookup = c
	}

	return crmservice.Deps{
		DB:       db,
		Files:    files,
		Sessions: sessions,
		Lookup:   lookup,
		Composer: export.NewComposer(pdfmerge.New(files, httpClient, logger.With(slog.String("component", "pdfmerge")))),
		Logger:   logger,
	}, cleanup, nil
}
