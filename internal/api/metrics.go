package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quietroom/stillengine/internal/events"
	"github.com/quietroom/stillengine/internal/version"
)

// Metrics state
var (
	metricsState = &MetricsState{}
)

// MetricsState holds runtime metrics for the /metrics endpoint.
type MetricsState struct {
	mu                sync.RWMutex
	startTime         time.Time
	engineName        string
	sessionsStarted   int64
	segmentsCompleted int64
}

// InitMetrics initializes the metrics system. Must be called at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
}

// SetEngineName sets the engine name for metrics labels.
func SetEngineName(name string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.engineName = name
}

// GetEngineName returns the current engine name.
func GetEngineName() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.engineName
}

func countSessionStarted() {
	atomic.AddInt64(&metricsState.sessionsStarted, 1)
}

// CountSegmentCompleted increments the completed-segment counter.
func CountSegmentCompleted() {
	atomic.AddInt64(&metricsState.segmentsCompleted, 1)
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Gather metrics
	metricsState.mu.RLock()
	startTime := metricsState.startTime
	engineName := metricsState.engineName
	metricsState.mu.RUnlock()

	sessionsStarted := atomic.LoadInt64(&metricsState.sessionsStarted)
	segmentsCompleted := atomic.LoadInt64(&metricsState.segmentsCompleted)

	uptime := time.Since(startTime).Seconds()
	eventsTotal := events.TotalCount()

	readiness.mu.RLock()
	mqttConnected := readiness.mqttConnected
	postgresConnected := readiness.postgresConnected
	readiness.mu.RUnlock()

	wsClients := events.SubscriberCount()

	sessionActive := 0
	if manager != nil && manager.Active() {
		sessionActive = 1
	}

	mqttConnectedVal := 0
	if mqttConnected {
		mqttConnectedVal = 1
	}

	postgresConnectedVal := 0
	if postgresConnected {
		postgresConnectedVal = 1
	}

	// Get hostname for instance label
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	// Build Prometheus text format response
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper to write metric with optional labels
	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		if labels != "" {
			fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
		} else {
			fmt.Fprintf(w, "%s %v\n", name, value)
		}
	}

	// Common labels
	labels := fmt.Sprintf(`engine="%s",instance="%s",version="%s"`, engineName, hostname, version.Version)

	// Uptime
	writeMetric("still_uptime_seconds", "gauge",
		"Number of seconds since the engine started", uptime, labels)

	// Active session
	writeMetric("still_sessions_active", "gauge",
		"Whether a session is active (1) or not (0)", sessionActive, labels)

	// Sessions started
	writeMetric("still_sessions_started_total", "counter",
		"Total number of sessions started since startup", sessionsStarted, labels)

	// Segments completed
	writeMetric("still_segments_completed_total", "counter",
		"Total number of segments completed since startup", segmentsCompleted, labels)

	// Events total
	writeMetric("still_events_total", "counter",
		"Total number of events emitted since startup", eventsTotal, labels)

	// MQTT connected
	writeMetric("still_mqtt_connected", "gauge",
		"Whether MQTT broker is connected (1) or not (0)", mqttConnectedVal, labels)

	// Postgres connected
	writeMetric("still_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", postgresConnectedVal, labels)

	// WebSocket clients
	writeMetric("still_ws_clients", "gauge",
		"Number of active WebSocket client connections", wsClients, labels)
}
