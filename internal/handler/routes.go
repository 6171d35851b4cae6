package handler

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"idphoto/internal/logging"
	"idphoto/internal/middleware"
)

// RouteOptions selects the optional middleware. Nil fields are skipped.
type RouteOptions struct {
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	CSRF        *middleware.CSRF
	// SessionMaxAge is the session cookie lifetime.
	SessionMaxAge time.Duration
}

// Router returns a chi router with the standard middleware stack and every
// route registered.
func (h *Handler) Router(opts RouteOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if opts.Logger != nil {
		r.Use(logging.HTTPMiddleware(opts.Logger))
	}
	h.RegisterRoutes(r, opts)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router, opts RouteOptions) {
	// Health check
	r.Get("/health", h.HealthCheck)

	// Static files (serve from embedded static/ subdirectory)
	if h.webFS != nil {
		if sub, err := fs.Sub(h.webFS, "static"); err == nil {
			r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
		}
	}

	r.Group(func(r chi.Router) {
		if opts.CSRF != nil {
			r.Use(opts.CSRF.Middleware())
		}
		r.Use(middleware.Sessions(h.store, opts.SessionMaxAge))

		r.Get("/", h.HomePage)

		r.Route("/api", func(r chi.Router) {
			if opts.RateLimiter != nil {
				r.Use(opts.RateLimiter.Middleware())
			}
			r.Get("/presets", h.Presets)

			r.Get("/photo", h.PhotoInfo)
			r.Post("/photo", h.UploadPhoto)
			r.Delete("/photo", h.ClearPhoto)
			r.Get("/photo/preview", h.PhotoPreview)
			r.Post("/photo/rotate", h.RotatePhoto)

			r.Post("/resize", h.ResizePhoto)
		})
	})
}
