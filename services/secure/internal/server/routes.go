package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/jredh-dev/shroud/services/secure/internal/handlers"
	"github.com/jredh-dev/shroud/services/secure/internal/metrics"
	"github.com/jredh-dev/shroud/services/secure/internal/token"
	"github.com/jredh-dev/shroud/services/secure/internal/transport"
)

// Deps are the pieces Routes mounts.
type Deps struct {
	Layer    *transport.Layer
	Handlers *handlers.Handler
	Tokens   *token.Service
	Metrics  *metrics.Metrics
}

// Routes registers every endpoint behind the secure layer. Excluded paths
// such as /health and /metrics pass through it untouched.
func (s *Server) Routes(d Deps) {
	s.Router.Group(func(r chi.Router) {
		r.Use(d.Layer.Middleware)

		r.Get("/health", d.Handlers.Health)
		if d.Metrics != nil {
			r.Method("GET", "/metrics", d.Metrics.Handler())
		}

		r.Post("/auth/login", d.Handlers.Login)
		r.Route("/api", func(r chi.Router) {
			r.Use(handlers.AuthMiddleware(d.Tokens, s.log))
			r.Get("/profile", d.Handlers.Profile)
		})
	})
}
