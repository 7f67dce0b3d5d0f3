// Package monitor streams benchmark progress to WebSocket clients and
// exposes trial metrics for Prometheus.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/logger"
	"go.uber.org/zap"
)

// Monitor records collector progress and serves it over HTTP
type Monitor struct {
	hub      *Hub
	metrics  *Metrics
	registry *prometheus.Registry
	router   *mux.Router
	server   *http.Server
	logger   *logger.Logger
	runID    string
	cancel   context.CancelFunc
}

// New creates a monitor with its own metrics registry
func New(addr, runID string, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("monitor").WithRunID(runID)

	registry := prometheus.NewRegistry()
	m := &Monitor{
		hub:      NewHub(log),
		metrics:  NewMetrics(registry),
		registry: registry,
		router:   mux.NewRouter(),
		logger:   log,
		runID:    runID,
	}
	m.setupRoutes()

	m.server = &http.Server{
		Addr:         addr,
		Handler:      m.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return m
}

func (m *Monitor) setupRoutes() {
	m.router.HandleFunc("/", serveDashboard).Methods("GET")
	m.router.HandleFunc("/health", m.handleHealth).Methods("GET")
	m.router.HandleFunc("/ws", m.hub.HandleWebSocket)
	m.router.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})).Methods("GET")
}

// Handler returns the HTTP handler, used by tests
func (m *Monitor) Handler() http.Handler {
	return m.router
}

// Hub returns the event hub
func (m *Monitor) Hub() *Hub {
	return m.hub
}

// Run starts the hub. It must be called before clients connect.
func (m *Monitor) Run(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.hub.Run(ctx)
}

// Start serves HTTP until Stop is called. Run must have been called first.
func (m *Monitor) Start() error {
	m.logger.Info("Starting monitor server", zap.String("addr", m.server.Addr))
	if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("monitor server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down and disconnects clients
func (m *Monitor) Stop(ctx context.Context) error {
	m.logger.Info("Stopping monitor server")
	if m.cancel != nil {
		m.cancel()
	}
	return m.server.Shutdown(ctx)
}

// ConfigurationStarted is called before a configuration's first trial
func (m *Monitor) ConfigurationStarted(configuration bench.Configuration, trials int) {
	m.publish(EventTypeConfigurationStarted, ConfigurationStartedEvent{
		Configuration: configuration,
		Trials:        trials,
	})
}

// TrialCompleted records one trial. Safe for concurrent use.
func (m *Monitor) TrialCompleted(trial bench.Trial) {
	config := string(trial.Configuration)
	outcome := string(trial.Outcome)

	m.metrics.trialsTotal.WithLabelValues(config, outcome).Inc()
	if trial.Succeeded() {
		m.metrics.trialLatency.WithLabelValues(config, outcome).Observe(trial.Latency().Seconds())
	}
	if trial.CheckDuration > 0 {
		m.metrics.checkLatency.WithLabelValues(config).Observe(trial.CheckDuration.Seconds())
	}

	m.publish(EventTypeTrialCompleted, TrialCompletedEvent{
		Seq:           trial.Seq,
		Configuration: trial.Configuration,
		Mode:          trial.Mode,
		Outcome:       trial.Outcome,
		LatencyMS:     millis(trial.Latency()),
		CheckMS:       millis(trial.CheckDuration),
		PIIDetected:   trial.PIIDetected,
		Error:         trial.Error,
	})
}

// RunFinished is called once with every trial of the run
func (m *Monitor) RunFinished(trials []bench.Trial) {
	finished := RunFinishedEvent{Trials: len(trials)}
	for _, t := range trials {
		if t.Succeeded() {
			finished.Successful++
		} else {
			finished.Failed++
		}
	}
	m.publish(EventTypeRunFinished, finished)
}

func (m *Monitor) publish(eventType EventType, data interface{}) {
	m.hub.BroadcastEvent(Event{
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     m.runID,
		Data:      data,
	})
}

func (m *Monitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := m.hub.GetStats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"run_id":  m.runID,
		"clients": stats.ActiveConnections,
	})
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
