// Package server - HTTP boundary of the detection service.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/logger"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "vision-processing-microservice"

// Version is the service version, overridden at link time.
var Version = "dev"

// Server is a thin wrapper over chi + stdlib http.Server.
type Server struct {
	cfg      config.Server
	pipeline *inference.Pipeline
	mux      *chi.Mux
	srv      *http.Server
}

// New creates the server and mounts every route.
//
// Arguments:
//   - cfg: The listener settings.
//   - pipeline: The shared detection pipeline, ready or degraded.
//
// Returns:
//   - *Server: The server; call Run to start listening.
func New(cfg config.Server, pipeline *inference.Pipeline) *Server {
	s := &Server{cfg: cfg, pipeline: pipeline, mux: chi.NewRouter()}

	s.mux.Use(
		RequestID,
		AccessLog(AccessLogOptions{Slow: 2 * time.Second}),
		RecoverJSON,
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", HeaderRequestID},
			ExposedHeaders: []string{HeaderRequestID},
			MaxAge:         300,
		}),
	)

	s.mux.Post("/detect", s.handleDetect)
	s.mux.Get("/health", s.handleHealth)
	s.mux.Get("/api/status", s.handleStatus)
	s.mux.Method(http.MethodGet, "/metrics", pipeline.Metrics().Handler())
	s.mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "route not found")
	})
	s.mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
	})

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// Handler returns the root handler (tests).
func (s *Server) Handler() http.Handler { return s.mux }

// Addr returns the listening address.
func (s *Server) Addr() string { return s.cfg.Addr }

// Run starts the server and blocks until it stops or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	log := logger.Named("http")
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Bool("model_loaded", s.pipeline.Detector().Available()).Msg("http listening")
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("http shutting down")
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
