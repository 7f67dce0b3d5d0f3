package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/collector"
)

var _ collector.Recorder = (*Monitor)(nil)

func trial(configuration bench.Configuration, outcome bench.Outcome) bench.Trial {
	start := time.Now()
	return bench.Trial{
		Configuration: configuration,
		Mode:          bench.ModeSequential,
		Prompt:        "My email is test@example.com",
		Start:         start,
		End:           start.Add(120 * time.Millisecond),
		Outcome:       outcome,
	}
}

func startMonitor(t *testing.T) (*Monitor, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := New(":0", "run-1", nil)
	m.Run(ctx)
	server := httptest.NewServer(m.Handler())
	t.Cleanup(server.Close)
	return m, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.GetStats().ActiveConnections == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d clients, got %d", n, h.GetStats().ActiveConnections)
}

func readEvent(t *testing.T, conn *websocket.Conn, want EventType) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var event struct {
			Type  EventType              `json:"type"`
			RunID string                 `json:"run_id"`
			Data  map[string]interface{} `json:"data"`
		}
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("Failed to read %s event: %v", want, err)
		}
		if event.Type == want {
			if event.RunID != "run-1" {
				t.Errorf("Expected run id on event, got %q", event.RunID)
			}
			return event.Data
		}
	}
}

func TestMetrics(t *testing.T) {
	m := New(":0", "run-1", nil)

	m.TrialCompleted(trial(bench.ConfigBaseline, bench.OutcomeSuccess))
	m.TrialCompleted(trial(bench.ConfigBaseline, bench.OutcomeSuccess))
	m.TrialCompleted(trial(bench.ConfigGuardrail, bench.OutcomeTimeout))

	regex := trial(bench.ConfigRegex, bench.OutcomeSuccess)
	regex.CheckDuration = 300 * time.Microsecond
	m.TrialCompleted(regex)

	if got := testutil.ToFloat64(m.metrics.trialsTotal.WithLabelValues("baseline", "success")); got != 2 {
		t.Errorf("Expected 2 baseline trials, got %v", got)
	}
	if got := testutil.ToFloat64(m.metrics.trialsTotal.WithLabelValues("guardrail", "timeout")); got != 1 {
		t.Errorf("Expected 1 guardrail timeout, got %v", got)
	}
	if got := testutil.CollectAndCount(m.metrics.trialLatency); got != 2 {
		t.Errorf("Failed trials must not be observed as latency, got %d series", got)
	}
	if got := testutil.CollectAndCount(m.metrics.checkLatency); got != 1 {
		t.Errorf("Expected one check latency series, got %d", got)
	}
}

func TestConcurrentRecording(t *testing.T) {
	m, _ := startMonitor(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				m.TrialCompleted(trial(bench.ConfigGuardrail, bench.OutcomeBlocked))
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(m.metrics.trialsTotal.WithLabelValues("guardrail", "blocked")); got != 200 {
		t.Errorf("Expected 200 trials, got %v", got)
	}
}

func TestWebSocketEvents(t *testing.T) {
	m, server := startMonitor(t)
	conn := dial(t, server)
	waitForClients(t, m.Hub(), 1)

	m.ConfigurationStarted(bench.ConfigGuardrail, 30)
	data := readEvent(t, conn, EventTypeConfigurationStarted)
	if data["configuration"] != "guardrail" || data["trials"].(float64) != 30 {
		t.Errorf("Unexpected configuration event: %v", data)
	}

	m.TrialCompleted(trial(bench.ConfigGuardrail, bench.OutcomeBlocked))
	data = readEvent(t, conn, EventTypeTrialCompleted)
	if data["outcome"] != "blocked" || data["latency_ms"].(float64) != 120 {
		t.Errorf("Unexpected trial event: %v", data)
	}
	if _, ok := data["prompt"]; ok {
		t.Error("Prompts must not be broadcast")
	}

	m.RunFinished([]bench.Trial{
		trial(bench.ConfigGuardrail, bench.OutcomeBlocked),
		trial(bench.ConfigGuardrail, bench.OutcomeServiceError),
	})
	data = readEvent(t, conn, EventTypeRunFinished)
	if data["successful"].(float64) != 1 || data["failed"].(float64) != 1 {
		t.Errorf("Unexpected run event: %v", data)
	}
}

func TestSubscription(t *testing.T) {
	m, server := startMonitor(t)
	conn := dial(t, server)
	waitForClients(t, m.Hub(), 1)

	if err := conn.WriteJSON(ClientMessage{Type: "subscribe", Events: []EventType{EventTypeRunFinished}}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.hub.mu.Lock()
		subscribed := false
		for c := range m.hub.clients {
			subscribed = c.Events != nil
		}
		m.hub.mu.Unlock()
		if subscribed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.TrialCompleted(trial(bench.ConfigBaseline, bench.OutcomeSuccess))
	m.RunFinished(nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if event.Type == EventTypeConnection {
			continue
		}
		if event.Type != EventTypeRunFinished {
			t.Errorf("Subscribed client must only receive run_finished, got %s", event.Type)
		}
		return
	}
}

func TestHTTPRoutes(t *testing.T) {
	m, server := startMonitor(t)
	m.TrialCompleted(trial(bench.ConfigBaseline, bench.OutcomeSuccess))

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"guardbench_trial_latency_seconds", "guardbench_trials_total"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Metrics output missing %s", want)
		}
	}

	resp, err = http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Invalid health body: %v", err)
	}
	if health["status"] != "healthy" || health["run_id"] != "run-1" {
		t.Errorf("Unexpected health response: %v", health)
	}

	resp, err = http.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") || !strings.Contains(string(page), "/ws") {
		t.Errorf("Dashboard not served: %s", resp.Header.Get("Content-Type"))
	}
}

func TestHubShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := New(":0", "run-1", nil)
	m.Run(ctx)
	server := httptest.NewServer(m.Handler())
	defer server.Close()

	conn := dial(t, server)
	waitForClients(t, m.Hub(), 1)

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	if got := m.Hub().GetStats().ActiveConnections; got != 0 {
		t.Errorf("Expected clients disconnected, got %d", got)
	}
}
