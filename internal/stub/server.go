// Package stub serves a simulated generation and guardrail service that speaks
// the runtime REST protocol, for offline benchmark runs and tests.
package stub

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/guardbench/internal/config"
	"github.com/raaihank/guardbench/internal/logger"
	"go.uber.org/zap"
)

// Server represents the stub service
type Server struct {
	mu          sync.RWMutex
	config      config.StubConfig
	guardrailID string
	logger      *logger.Logger
	guardrail   *Guardrail
	throttle    *throttle
	router      *mux.Router
	server      *http.Server

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a new stub server instance. An empty guardrailID accepts any guardrail.
func New(cfg config.StubConfig, guardrailID string, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.NewNop()
	}

	guardrail, err := NewGuardrail()
	if err != nil {
		return nil, fmt.Errorf("failed to create guardrail: %w", err)
	}

	server := &Server{
		config:      cfg,
		guardrailID: guardrailID,
		logger:      log.WithComponent("stub"),
		guardrail:   guardrail,
		throttle:    newThrottle(cfg.ThrottleRPS, cfg.ThrottleBurst),
		router:      mux.NewRouter(),
		rng:         rand.New(rand.NewSource(cfg.Seed)),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.NewRoute().Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.throttleMiddleware)
	api.HandleFunc("/model/{modelId}/invoke", s.handleInvoke).Methods(http.MethodPost)
	api.HandleFunc("/guardrail/{guardrailId}/version/{version}/apply", s.handleApplyGuardrail).Methods(http.MethodPost)
}

// Handler returns the router, for embedding in test servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	cfg := s.currentConfig()
	s.logger.Info("Starting stub service",
		zap.Int("port", cfg.Port),
		zap.Duration("base_latency", cfg.BaseLatency),
		zap.Duration("guardrail_latency", cfg.GuardrailLatency),
		zap.Float64("failure_rate", cfg.FailureRate),
	)

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping stub service")
	return s.server.Shutdown(ctx)
}

// UpdateConfig swaps the latency profile. The listen port is fixed at start.
func (s *Server) UpdateConfig(cfg config.StubConfig) {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	s.throttle.setLimit(cfg.ThrottleRPS, cfg.ThrottleBurst)

	s.logger.Info("Stub latency profile updated",
		zap.Duration("base_latency", cfg.BaseLatency),
		zap.Duration("jitter", cfg.Jitter),
		zap.Duration("guardrail_latency", cfg.GuardrailLatency),
		zap.Duration("check_latency", cfg.CheckLatency),
		zap.Float64("failure_rate", cfg.FailureRate),
		zap.Float64("throttle_rps", cfg.ThrottleRPS),
	)
}

func (s *Server) currentConfig() config.StubConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// jitter returns a uniform offset in [-max, max]
func (s *Server) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return time.Duration(s.rng.Int63n(int64(2*max)+1)) - max
}

func (s *Server) shouldFail(rate float64) bool {
	if rate <= 0 {
		return false
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < rate
}

// sleep waits for d or until the client goes away
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
