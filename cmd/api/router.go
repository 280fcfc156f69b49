package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tasklist/tasklist/internal/config"
	"github.com/tasklist/tasklist/internal/handler"
	"github.com/tasklist/tasklist/internal/metrics"
	"github.com/tasklist/tasklist/internal/middleware"
	"github.com/tasklist/tasklist/internal/service"
)

// routerDeps collects what the HTTP surface needs.
type routerDeps struct {
	cfg         *config.Config
	logger      *slog.Logger
	tasks       *service.TaskService
	users       *service.UserService
	policy      *service.Policy
	limiter     middleware.RateLimiter
	db          handler.HealthChecker
	cache       handler.HealthChecker
	snapshotter metrics.Snapshotter
}

// setupRouter configures the chi router with all routes and middleware.
// Paths are matched with or without a trailing slash.
func setupRouter(d routerDeps) *chi.Mux {
	cfg, logger := d.cfg, d.logger

	h := handler.New()
	healthHandler := handler.NewHealthHandler(d.db, d.cache)
	metricsHandler := handler.NewMetricsHandler(d.snapshotter)
	userHandler := handler.NewUserHandler(d.users, logger)
	taskHandler := handler.NewTaskHandler(d.tasks, logger)
	adminHandler := handler.NewAdminHandler(d.tasks, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.StripSlashes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/", h.Hello)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	authCfg := middleware.AuthConfig{
		Logger:        logger,
		Authenticator: d.users,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:      logger,
		Limiter:     d.limiter,
		APIEnabled:  cfg.RateLimitAPIEnabled,
		APIRPM:      cfg.RateLimitAPIRPM,
		APIBurst:    cfg.RateLimitAPIBurst,
		AuthEnabled: cfg.RateLimitAuthEnabled,
		AuthRPS:     cfg.RateLimitAuthRPS,
		AuthBurst:   cfg.RateLimitAuthBurst,
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Credential endpoints (no auth, limited per IP)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(rateLimitCfg))

			r.Post("/user/register", userHandler.Register)
			r.Post("/token", userHandler.Token)
			r.Post("/token/refresh", userHandler.Refresh)
		})

		// Task endpoints (bearer token, limited per identity)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Use(middleware.RateLimitAPI(rateLimitCfg))

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", taskHandler.List)
				r.Post("/", taskHandler.Create)
				r.Get("/{id}", taskHandler.Get)
				r.Patch("/{id}", taskHandler.Update)
				r.Put("/{id}", taskHandler.Replace)
				r.Delete("/{id}", taskHandler.Delete)
			})

			r.With(middleware.RequireAdmin(d.policy, logger)).Get("/admin/tasks", adminHandler.ListTasks)
		})
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
