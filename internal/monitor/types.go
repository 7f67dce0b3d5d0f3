package monitor

import (
	"time"

	"github.com/raaihank/guardbench/internal/bench"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeConfigurationStarted is sent before a configuration's first trial
	EventTypeConfigurationStarted EventType = "configuration_started"
	// EventTypeTrialCompleted is sent after every timed trial
	EventTypeTrialCompleted EventType = "trial_completed"
	// EventTypeRunFinished is sent once the collector returns
	EventTypeRunFinished EventType = "run_finished"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	RunID     string      `json:"run_id,omitempty"`
	Data      interface{} `json:"data"`
}

// ConfigurationStartedEvent announces the next configuration
type ConfigurationStartedEvent struct {
	Configuration bench.Configuration `json:"configuration"`
	Trials        int                 `json:"trials"`
}

// TrialCompletedEvent summarizes one trial. Prompts are never broadcast.
type TrialCompletedEvent struct {
	Seq           int                 `json:"seq"`
	Configuration bench.Configuration `json:"configuration"`
	Mode          bench.Mode          `json:"mode"`
	Outcome       bench.Outcome       `json:"outcome"`
	LatencyMS     float64             `json:"latency_ms"`
	CheckMS       float64             `json:"check_ms,omitempty"`
	PIIDetected   bool                `json:"pii_detected"`
	Error         string              `json:"error,omitempty"`
}

// RunFinishedEvent closes the stream for a run
type RunFinishedEvent struct {
	Trials     int `json:"trials"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Send        chan Event
	Events      map[EventType]bool // nil receives everything
	ConnectedAt time.Time
	IP          string
	UserAgent   string
}
