package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sitepulse/collector/internal/config"
	"github.com/sitepulse/collector/internal/pkg/logger"
)

// Routes configures the collector's router: request-id and panic-recovery
// middleware, security headers on every response, and the configured CORS
// origin allow-list.
func (h *Handler) Routes(cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	// Only allow-listed origins may send tracker traffic; preflight
	// responses enumerate exactly the methods and headers the tracker uses.
	// An empty allow-list fails closed: the middleware is not installed at
	// all rather than inheriting the library's allow-everything default,
	// so no Origin ever receives a grant.
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	} else {
		logger.Warn("no CORS origins configured, cross-origin tracker traffic will be rejected")
	}

	r.Get("/health", h.HandleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/pageview", h.HandleCreate)
		r.Get("/pageview", h.HandleCreatePixel)
		r.Post("/engagement", h.HandleAppend)
		r.Post("/admin/sweep", h.HandleSweep)
	})

	return r
}

// securityHeaders attaches the content-security-policy to every response,
// same-origin ones included.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
