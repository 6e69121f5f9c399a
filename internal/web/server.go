package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/resy-sniper/internal/auth"
	"github.com/example/resy-sniper/internal/logger"
	"github.com/example/resy-sniper/internal/ratelimit"
	"github.com/example/resy-sniper/internal/sniper"
)

type Deps struct {
	Snipes    *sniper.Service
	Limiter   *ratelimit.Limiter
	Auth      *auth.Store
	Log       logger.Logger
	StartTime time.Time
}

type Server struct {
	http *http.Server
	log  logger.Logger
}

func New(addr string, d Deps) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           Routes(d),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		log: d.Log,
	}
}

func Routes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	h := &handlers{d: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(d.Log))

	r.Get("/healthz", h.healthz)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)

	r.Route("/api", func(r chi.Router) {
		r.Use(d.Auth.RequireAuth)
		r.Use(middleware.Timeout(10 * time.Second))

		r.Post("/snipes", h.createSnipe)
		r.Get("/snipes", h.listSnipes)
		r.Get("/snipes/{id}", h.getSnipe)
		r.Delete("/snipes/{id}", h.cancelSnipe)

		r.Get("/ratelimits", h.rateLimits)
		r.Post("/ratelimits/{platform}/reset", h.resetRateLimit)
	})
	return r
}

// Start blocks until the server stops. A graceful Stop returns nil.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", logger.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("HTTP server shutting down")
	return s.http.Shutdown(ctx)
}
