package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/modelry/modelry/internal/api/handlers"
	"github.com/modelry/modelry/internal/api/middleware"
	"github.com/modelry/modelry/internal/auth"
	"github.com/modelry/modelry/internal/store"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	JWTService     *auth.JWTService
	AuthService    *auth.Service
	DefaultOrgID   string
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow localhost in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Stores: elements feed project cascades, projects feed org cascades.
	elementStore := store.NewElementStore(cfg.DB, cfg.Logger)
	projectStore := store.NewProjectStore(cfg.DB, cfg.Logger, elementStore)
	orgStore := store.NewOrganizationStore(cfg.DB, cfg.Logger, projectStore, cfg.DefaultOrgID)

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService)
	orgHandler := handlers.NewOrganizationHandler(orgStore, cfg.AuthService)
	projectHandler := handlers.NewProjectHandler(projectStore, cfg.AuthService)
	elementHandler := handlers.NewElementHandler(projectStore)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			r.Get("/me", authHandler.Me)

			r.Route("/orgs", func(r chi.Router) {
				r.Get("/", orgHandler.List)
				r.Post("/", orgHandler.Create)

				r.Route("/{org}", func(r chi.Router) {
					r.Get("/", orgHandler.Get)
					r.Patch("/", orgHandler.Update)
					r.Delete("/", orgHandler.Delete)
					r.Post("/restore", orgHandler.Restore)
					r.Get("/permissions", orgHandler.Permissions)
					r.Put("/permissions", orgHandler.SetPermission)

					r.Route("/projects", func(r chi.Router) {
						r.Get("/", projectHandler.List)
						r.Post("/", projectHandler.Create)

						r.Route("/{proj}", func(r chi.Router) {
							r.Get("/", projectHandler.Get)
							r.Patch("/", projectHandler.Update)
							r.Delete("/", projectHandler.Delete)
							r.Post("/restore", projectHandler.Restore)
							r.Get("/permissions", projectHandler.Permissions)
							r.Put("/permissions", projectHandler.SetPermission)

							r.Route("/elements", func(r chi.Router) {
								r.Get("/", elementHandler.List)
								r.Post("/", elementHandler.Create)

								r.Route("/{id}", func(r chi.Router) {
									r.Get("/", elementHandler.Get)
									r.Patch("/", elementHandler.Update)
									r.Delete("/", elementHandler.Delete)
									r.Post("/restore", elementHandler.Restore)
								})
							})
						})
					})
				})
			})
		})
	})

	return &Router{Router: r}
}
