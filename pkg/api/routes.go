package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
	"github.com/ethpandaops/portfolioor/pkg/config"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	if timeout := s.cfg.Server.HandlerTimeoutDuration(); timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/config", s.handleConfig)

		r.Route("/auth", func(r chi.Router) {
			s.limit(r, s.cfg.Server.RateLimit.Auth)

			r.Post("/signup", s.handleSignUp)
			r.Post("/signin", s.handleSignIn)
			r.Post("/signout", s.handleSignOut)

			r.With(s.requireAuth).Get("/me", s.handleMe)
		})

		// Public reads; the caller is identified when credentials are sent.
		r.Group(func(r chi.Router) {
			s.limit(r, s.cfg.Server.RateLimit.Public)
			r.Use(s.optionalAuth)

			r.Get("/blogs", s.handleListPosts)
			r.Get("/blogs/{id}", s.handleGetPost)
			r.Get("/blogs/{id}/html", s.handleGetPostHTML)
			r.Get("/settings/projects", s.handleGetProjectSettings)
			r.Get("/projects", s.handleListProjects)
			r.Get("/projects/stats", s.handleProjectStats)
			r.Get("/images/*", s.handleGetImage)
		})

		// Authenticated users.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			s.limit(r, s.cfg.Server.RateLimit.Authenticated)

			r.Post("/blogs", s.handleCreatePost)

			r.Post("/blogs/approval", s.handleSubmitPost)
			r.Patch("/blogs/approval", s.handleReviewPost)
			r.Get("/blogs/approval", s.handleListApprovals)

			r.Get("/users", s.handleGetUsers)
			r.Post("/users", s.handleRegisterUser)
			r.Post("/users/promote-admin", s.handlePromoteAdmin)

			r.Post("/images", s.handleUploadImage)

			// Admin only.
			r.Group(func(r chi.Router) {
				r.Use(s.requireRole(store.RoleAdmin))

				r.Put("/blogs/{id}", s.handleUpdatePost)
				r.Delete("/blogs/{id}", s.handleDeletePost)
				r.Patch("/blogs/{id}/toggle", s.handleTogglePost)
				r.Post("/settings/projects", s.handleSaveProjectSettings)
			})
		})
	})

	return r
}

// limit installs per-IP rate limiting for a tier when enabled.
func (s *server) limit(r chi.Router, tier config.RateLimitTier) {
	if s.cfg.Server.RateLimit.Enabled {
		r.Use(s.rateLimitMiddleware(tier))
	}
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
