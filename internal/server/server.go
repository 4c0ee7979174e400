// Package server is the wiring layer: it assembles the database, scraper,
// notifier, scheduler, tracker, services, and handlers, maps routes, and
// owns startup/shutdown.
//
// DEPENDENCY INJECTION FLOW:
// main.go reads config and hands it to New(), which builds the chain
//
//	sqlite.DB → Tracker → ProductService → ProductHandler
//	          ↘ AuthService → AuthHandler
//
// Each layer only receives what it needs: the service gets repository
// interfaces (not *sqlite.DB), handlers get services (not repositories).
// All of it is wired in one place — the "composition root" pattern.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/pricepulse/internal/auth"
	"github.com/sakif/pricepulse/internal/handler"
	"github.com/sakif/pricepulse/internal/middleware"
	"github.com/sakif/pricepulse/internal/notifier"
	sqliteRepo "github.com/sakif/pricepulse/internal/repository/sqlite"
	"github.com/sakif/pricepulse/internal/scheduler"
	"github.com/sakif/pricepulse/internal/scraper"
	"github.com/sakif/pricepulse/internal/service"
	"github.com/sakif/pricepulse/internal/tracker"
)

// Config holds everything the server needs, read from env in main.
type Config struct {
	Port          int
	DBPath        string
	JWTSecret     string
	TrackInterval time.Duration
	AlertPolicy   string // "fire-once" (default) or "reset-on-recovery"
	SMTP          notifier.SMTPConfig
}

// Server owns the router, the database connection, and the tracking
// scheduler. Both of the latter have lifecycles that must end when the
// server stops: the scheduler so no tick fires into a closed database,
// the database so the WAL flushes.
type Server struct {
	router   *chi.Mux
	config   Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	sched    *scheduler.Scheduler
	products *service.ProductService
}

// New assembles the full dependency chain. The scheduler is created but not
// started — Start() does that, so a Server that fails construction never
// fires a tick.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	policy, err := tracker.PolicyByName(cfg.AlertPolicy)
	if err != nil {
		db.Close()
		return nil, err
	}

	sched := scheduler.New(logger)
	fetcher := scraper.NewAmazonFetcher(logger)
	mailer := notifier.NewSMTPNotifier(cfg.SMTP, logger)
	trk := tracker.New(db, db, fetcher, mailer, policy, logger)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		sched:    sched,
		products: service.NewProductService(db, fetcher, sched, trk, cfg.TrackInterval, logger),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware and the route table.
//
// ROUTE STRUCTURE:
// POST   /register                   → create account
// POST   /token                      → login, returns bearer token
// GET    /users/me                   → current account          [auth]
// POST   /api/products               → register product         [auth]
// GET    /api/products               → list products            [auth]
// GET    /api/products/{id}          → product + price history  [auth]
// DELETE /api/products/{id}          → stop tracking + delete   [auth]
// POST   /api/products/{id}/refresh  → immediate re-scrape      [auth]
//
// MIDDLEWARE ORDER MATTERS — RequestID must precede Logger (the log line
// carries the ID), and Recoverer wraps everything below it.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID) // Adds X-Request-ID header
	s.router.Use(chimiddleware.RealIP)    // Extracts real IP from X-Forwarded-For
	s.router.Use(chimiddleware.Recoverer) // Recovers from panics, returns 500
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordService()

	authService := service.NewAuthService(s.db, passwords, tokens, s.logger)
	authHandler := handler.NewAuthHandler(authService, s.logger)
	productHandler := handler.NewProductHandler(s.products, s.logger)

	s.router.Post("/register", authHandler.HandleRegister)
	s.router.Post("/token", authHandler.HandleToken)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/users/me", authHandler.HandleMe)

		r.Route("/api", func(r chi.Router) {
			r.Post("/products", productHandler.HandleCreate)
			r.Get("/products", productHandler.HandleList)
			r.Get("/products/{id}", productHandler.HandleGet)
			r.Delete("/products/{id}", productHandler.HandleDelete)
			r.Post("/products/{id}/refresh", productHandler.HandleRefresh)
		})
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down in order:
//  1. Stop accepting new HTTP connections, drain in-flight requests (30s)
//  2. Stop the scheduler and wait for in-flight ticks to finish
//  3. Close the database (flushes WAL, releases the file lock)
//
// The scheduler must stop before the database closes, otherwise a tick in
// flight during shutdown would write into a closed pool.
func (s *Server) Start() error {
	defer s.db.Close()

	// Rebuild the tracking schedule for products that existed before this
	// process started, then begin ticking.
	if err := s.products.ScheduleAll(context.Background()); err != nil {
		return err
	}
	s.sched.Start()
	defer s.sched.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.Duration("trackInterval", s.config.TrackInterval),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
