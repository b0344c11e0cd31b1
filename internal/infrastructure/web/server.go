package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/basel-ax/tunerelay/internal/config"
	"github.com/basel-ax/tunerelay/internal/domain"
)

// Relay is the part of the service layer the HTTP handlers drive.
type Relay interface {
	Train(ctx context.Context, req domain.TrainingRequest) (string, error)
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// Readiness reports whether the relay can currently reach the provider.
type Readiness interface {
	Ready() (bool, string)
}

type Server struct {
	relay Relay
	ready Readiness
	cfg   *config.Config
	log   *zerolog.Logger
}

func NewServer(cfg *config.Config, relay Relay, ready Readiness, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{
		relay: relay,
		ready: ready,
		cfg:   cfg,
		log:   logger,
	}
}

// Routes builds the router. ctx bounds background work owned by middleware.
func (s *Server) Routes(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimiter(ctx, s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst))
		r.Post("/train", s.handleTrain)
		r.Post("/generate", s.handleGenerate)
	})

	if s.cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	if ok, reason := s.ready.Ready(); !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": reason})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
