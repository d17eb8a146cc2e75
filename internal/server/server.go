// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New builds every dependency once and hands
// each layer only what it needs.
//
//	config.Config → sqlite.DB → services → handlers → chi routes
//
// Handlers never touch the database and services never touch HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/avatar"
	"github.com/sakif/task-manager/internal/config"
	"github.com/sakif/task-manager/internal/handler"
	"github.com/sakif/task-manager/internal/middleware"
	"github.com/sakif/task-manager/internal/notify"
	sqliteRepo "github.com/sakif/task-manager/internal/repository/sqlite"
	"github.com/sakif/task-manager/internal/service"
)

// ServiceName identifies this process in traces.
const ServiceName = "task-manager"

const shutdownTimeout = 30 * time.Second

// Server owns the router and the resources that must be released on
// shutdown: the database pool and the background mail dispatcher.
type Server struct {
	router  *chi.Mux
	handler http.Handler
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	mailer  *notify.Async
}

// New wires the application from cfg.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		mailer: notify.NewAsync(newMailer(cfg, logger), logger),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	s.handler = otelhttp.NewHandler(s.router, ServiceName)

	return s, nil
}

// newMailer picks SendGrid when an API key is configured and falls back to
// logging the emails otherwise.
func newMailer(cfg config.Config, logger *slog.Logger) notify.Mailer {
	if cfg.SendGridAPIKey == "" {
		logger.Warn("SENDGRID_API_KEY not set; emails will only be logged")
		return notify.NewLogMailer(logger)
	}
	return notify.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFrom)
}

// setupRoutes configures middleware and routes.
//
//	POST   /users               sign up               public
//	POST   /users/login         log in                public
//	GET    /users/{id}/avatar   avatar (image/png)    public
//	POST   /users/logout        revoke this token
//	POST   /users/logoutAll     revoke all tokens
//	GET    /users/me            profile
//	PATCH  /users/me            update profile
//	DELETE /users/me            delete account and tasks
//	POST   /users/me/avatar     upload avatar
//	DELETE /users/me/avatar     remove avatar
//	POST   /tasks               create task
//	GET    /tasks               list own tasks
//	GET    /tasks/{id}          get own task
//	PATCH  /tasks/{id}          update own task
//	DELETE /tasks/{id}          delete own task
//
// Middleware runs in the order it is added: RequestID must come before the
// logger so every log line carries the ID.
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.JWTTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords, err := auth.NewPasswordService(s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password service: %w", err)
	}
	avatars := avatar.NewNormalizer(s.config.AvatarMaxBytes)

	authService := service.NewAuthService(s.db, tokens, passwords, s.mailer, s.logger)
	taskService := service.NewTaskService(s.db, s.logger)
	profileService := service.NewProfileService(s.db, s.db, passwords, avatars, s.mailer, s.logger)

	userHandler := handler.NewUserHandler(authService, profileService, s.logger)
	taskHandler := handler.NewTaskHandler(taskService, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)

	// Public
	s.router.Post("/users", userHandler.HandleSignUp)
	s.router.Post("/users/login", userHandler.HandleLogin)
	s.router.Get("/users/{id}/avatar", userHandler.HandleGetAvatar)

	// Authenticated
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authService))

		r.Post("/users/logout", userHandler.HandleLogout)
		r.Post("/users/logoutAll", userHandler.HandleLogoutAll)
		r.Get("/users/me", userHandler.HandleMe)
		r.Patch("/users/me", userHandler.HandleUpdateMe)
		r.Delete("/users/me", userHandler.HandleDeleteMe)
		r.Post("/users/me/avatar", userHandler.HandleUploadAvatar)
		r.Delete("/users/me/avatar", userHandler.HandleDeleteAvatar)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.HandleCreate)
			r.Get("/", taskHandler.HandleList)
			r.Get("/{id}", taskHandler.HandleGet)
			r.Patch("/{id}", taskHandler.HandleUpdate)
			r.Delete("/{id}", taskHandler.HandleDelete)
		})
	})

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Handler returns the fully wrapped HTTP handler. Tests drive it through
// httptest without opening a port.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close waits for pending emails and closes the database.
func (s *Server) Close() error {
	s.mailer.Close()
	return s.db.Close()
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, let in-flight requests finish, drain the mail
// queue, close the database.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

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
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
