package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/strivehq/hookgate/internal/config"
	"github.com/strivehq/hookgate/internal/ratelimit"
	"github.com/strivehq/hookgate/internal/storage"
)

type Server struct {
	cfg    config.ServerConfig
	router *chi.Mux
	log    zerolog.Logger
	http   *http.Server
}

func NewServer(cfg config.ServerConfig, store storage.Storage, authn Authenticator, limiter ratelimit.Limiter, dispatcher Dispatcher, log zerolog.Logger) *Server {
	s := &Server{
		cfg: cfg,
		log: log,
	}
	s.router = s.buildRouter(store, authn, limiter, dispatcher)
	return s
}

func (s *Server) buildRouter(store storage.Storage, authn Authenticator, limiter ratelimit.Limiter, dispatcher Dispatcher) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	dispatchHandler := NewDispatchHandler(dispatcher)
	subHandler := NewSubscriptionHandler(store)
	statsHandler := NewStatsHandler(store)

	// Health check — no auth
	r.Get("/health", statsHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(authn))
			r.Use(RateLimitMiddleware(limiter))

			// Dispatch
			r.Post("/dispatch", dispatchHandler.Dispatch)

			// Subscriptions
			r.Post("/subscriptions", subHandler.Create)
			r.Get("/subscriptions", subHandler.List)
			r.Get("/subscriptions/{id}", subHandler.Get)
			r.Patch("/subscriptions/{id}/enable", subHandler.Enable)
			r.Delete("/subscriptions/{id}", subHandler.Delete)
			r.Get("/subscriptions/{id}/deliveries", subHandler.Deliveries)

			// Stats
			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
