// Package server is the composition root: it wires storage, services,
// handlers, and middleware into the route tree and owns the HTTP lifecycle.
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
	"github.com/go-chi/httprate"

	"github.com/writique/writique/internal/auth"
	"github.com/writique/writique/internal/handler"
	"github.com/writique/writique/internal/media"
	"github.com/writique/writique/internal/middleware"
	sqliteRepo "github.com/writique/writique/internal/repository/sqlite"
	"github.com/writique/writique/internal/service"
	"github.com/writique/writique/internal/webhook"
)

// Config holds everything the server needs to run. main.go fills it from the
// environment.
type Config struct {
	Port   int
	DBPath string

	// IdentitySecretKey verifies session tokens and authenticates calls to
	// the identity provider's user API.
	IdentitySecretKey string
	// IdentityAPIURL is the base URL of the provider's user API.
	IdentityAPIURL string
	// WebhookSecret is the whsec_ signing secret for lifecycle deliveries.
	WebhookSecret string
	// BootstrapAdminIDs are external subject ids granted the admin role on
	// first provisioning.
	BootstrapAdminIDs []string

	MaxUploadBytes      int64
	DefaultPostImageURL string

	// Media is nil when image uploads are not configured; posts then fall
	// back to URLs only.
	Media *media.S3Config
}

// Server owns the router and the resources that must be released on
// shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and assembles the full dependency chain. Handlers
// get services, services get repository interfaces, and only this package
// sees the concrete types.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes builds the middleware stack and the route tree.
//
// Three auth tiers:
//   - public: post reads, view counters, health, webhook (signature-verified)
//   - authenticated: post mutations (view increments included) and the
//     /users/me surface, behind RequireAuth + ResolveUser
//   - admin: /api/admin, additionally behind RequireAdmin
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	verifier, err := auth.NewSessionVerifier(s.config.IdentitySecretKey)
	if err != nil {
		return fmt.Errorf("creating token verifier: %w", err)
	}

	sigVerifier, err := webhook.NewSignatureVerifier(s.config.WebhookSecret)
	if err != nil {
		return fmt.Errorf("creating webhook verifier: %w", err)
	}

	var relay media.Relay
	if s.config.Media != nil {
		s3Relay, err := media.NewS3Relay(context.Background(), *s.config.Media, s.logger)
		if err != nil {
			return fmt.Errorf("creating media relay: %w", err)
		}
		relay = s3Relay
	} else {
		s.logger.Warn("media relay not configured, image uploads are disabled")
	}

	directory := auth.NewHTTPDirectory(s.config.IdentityAPIURL, s.config.IdentitySecretKey)

	userService := service.NewUserService(s.db, s.db, directory, s.config.BootstrapAdminIDs, s.logger)
	postService := service.NewPostService(s.db, relay, s.config.DefaultPostImageURL, s.logger)

	postHandler := handler.NewPostHandler(postService, s.config.MaxUploadBytes, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	webhookHandler := webhook.NewHandler(sigVerifier, userService, s.logger)

	requireAuth := auth.RequireAuth(verifier)
	resolveUser := auth.ResolveUser(userService, s.logger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Route("/api", func(r chi.Router) {
		// Public reads.
		r.Get("/posts", postHandler.HandleList)
		r.Get("/posts/{id}", postHandler.HandleGet)
		r.Get("/posts/{id}/views", postHandler.HandleViews)

		// Authenticated surface. View increments included: only signed-in
		// readers count.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(resolveUser)
			r.Use(httprate.LimitByIP(30, time.Minute))

			r.Post("/posts", postHandler.HandleCreate)
			r.Put("/posts/{id}", postHandler.HandleUpdate)
			r.Delete("/posts/{id}", postHandler.HandleDelete)
			r.Post("/posts/{id}/increment-views", postHandler.HandleIncrementViews)

			r.Get("/users/me", userHandler.HandleMe)
			r.Post("/users/me/favorites/{postId}", userHandler.HandleAddFavorite)
			r.Delete("/users/me/favorites/{postId}", userHandler.HandleRemoveFavorite)
		})

		// Admin surface.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(resolveUser)
			r.Use(auth.RequireAdmin())

			r.Get("/admin/users", userHandler.HandleListUsers)
		})

		// Lifecycle webhook: no bearer auth, the HMAC signature is the
		// credential.
		r.Post("/webhooks/identity", webhookHandler.ServeHTTP)
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then drains in-flight requests
// and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // image uploads relay synchronously
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
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
