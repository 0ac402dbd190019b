package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"trafficSOS/internal/api/handlers/http/admin"
	"trafficSOS/internal/api/handlers/http/sos"
	"trafficSOS/internal/api/handlers/http/system"
	"trafficSOS/internal/config"
	"trafficSOS/internal/middleware"
	"trafficSOS/internal/observability"
)

type Server struct {
	logger *slog.Logger
	router *chi.Mux
	cfg    config.Config
}

// Handlers is everything the router mounts. Metrics may be nil.
type Handlers struct {
	SOS      *sos.Handler
	Admin    *admin.Handler
	System   *system.Handler
	Verifier middleware.TokenVerifier
	Metrics  *observability.Collector
}

func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	return &Server{
		logger: logger,
		router: InitRouter(ctx, cfg, h, logger),
		cfg:    *cfg,
	}
}

func (s *Server) Router() http.Handler { return s.router }

func InitRouter(ctx context.Context, cfg *config.Config, h Handlers, logger *slog.Logger) *chi.Mux {
	r := chi.NewMux()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)
	if h.Metrics != nil {
		r.Use(h.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	r.Get("/health", h.System.SystemHealth)
	r.Get("/ready", h.System.SystemReady)

	r.Route("/sos", func(sr chi.Router) {
		sr.Use(middleware.Authenticate(h.Verifier, logger))

		sr.With(middleware.Limit(ctx, cfg.Http.RateLimitRPS, cfg.Http.RateLimitBurst, 10*time.Minute, logger)).
			Post("/", h.SOS.SOSCreate)
		sr.Get("/", h.SOS.SOSList)
		sr.Get("/events", h.SOS.SOSEvents)

		sr.Route("/{accidentId}", func(cr chi.Router) {
			cr.Get("/", h.SOS.SOSGet)
			cr.Patch("/cancel", h.SOS.SOSCancel)
			cr.Patch("/status", h.SOS.SOSSetStatus)
		})
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(middleware.Authenticate(h.Verifier, logger))
		ar.Get("/stats", h.Admin.AdminStats)
	})

	return r
}

func (s *Server) Run(ctx context.Context) error {
	port := s.cfg.Http.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	srv := &http.Server{
		Addr:         port,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Http.ReadTimeout,
		WriteTimeout: s.cfg.Http.WriteTimeout,
		IdleTimeout:  30 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting HTTP server",
			slog.String("addr", srv.Addr),
			slog.Duration("read_timeout", s.cfg.Http.ReadTimeout),
			slog.Duration("write_timeout", s.cfg.Http.WriteTimeout),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("ListenAndServe error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server", slog.String("reason", ctx.Err().Error()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Http.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", slog.Any("error", err))
			return err
		}
		return nil

	case err := <-errChan:
		return err
	}
}
