package health

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"phantomd/services/factory"
)

// Config carries the handler dependencies.
type Config struct {
	Factory *factory.Factory
	Logger  *zap.Logger
}

// Server exposes liveness, readiness and the deployed trap inventory over
// HTTP. It stays silent about what the artifacts are; paths and counts only.
type Server struct {
	factory *factory.Factory
	log     *zap.Logger

	mu      sync.RWMutex
	ready   bool
	summary factory.Summary
}

// New initialises the server. The factory is required.
func New(cfg Config) (*Server, error) {
	if cfg.Factory == nil {
		return nil, errors.New("factory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{factory: cfg.Factory, log: cfg.Logger}, nil
}

// SetSummary records the deployment outcome and flips the server ready.
func (s *Server) SetSummary(sum factory.Summary) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.summary = sum
	s.ready = true
	s.mu.Unlock()
}

// Routes constructs the chi router containing all endpoints.
func (s *Server) Routes() (http.Handler, error) {
	if s == nil {
		return nil, errors.New("nil server")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/inventory", s.handleInventory)
	})

	return r, nil
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	if !ready {
		respondError(w, http.StatusServiceUnavailable, errors.New("deployment has not finished"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	sum := s.summary
	s.mu.RUnlock()

	respondJSON(w, http.StatusOK, map[string]any{"summary": sum})
}

func (s *Server) handleInventory(w http.ResponseWriter, _ *http.Request) {
	artifacts, err := s.factory.Inventory()
	if err != nil {
		s.log.Error("inventory walk", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if artifacts == nil {
		artifacts = []factory.ArtifactInfo{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"artifacts": artifacts,
		"count":     len(artifacts),
	})
}
