package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/quietroom/stillengine/internal/events"
	"github.com/quietroom/stillengine/internal/library"
	"github.com/quietroom/stillengine/internal/paths"
	"github.com/quietroom/stillengine/internal/player"
	"github.com/quietroom/stillengine/internal/script"
	"github.com/quietroom/stillengine/internal/storage/postgres"
)

// Session is the playback surface the API drives. *player.Player
// satisfies it.
type Session interface {
	Start()
	Pause()
	Resume()
	SkipNext()
	SkipPrevious()
	Exit()
	Tap(pt paths.Point)
	DrawingSaved(image []byte, label string)
	DrawingCancelled()
	CurrentState() player.Snapshot
	SessionID() string
}

// SessionFactory builds a new session for a script. The wiring layer
// supplies it so the API stays ignorant of audio, cache, and storage
// construction.
type SessionFactory func(s *script.Script) (Session, error)

// ScriptSource lists and resolves scripts. *library.Catalog satisfies it.
type ScriptSource interface {
	Get(id string) *script.Script
	List() []library.Entry
}

// ErrSessionActive is returned when a start request arrives while a
// session is still running.
var ErrSessionActive = errors.New("a session is already active")

// ErrNoSession is returned when a control request arrives with no
// active session.
var ErrNoSession = errors.New("no active session")

// Manager owns the single active session. One engine drives one room;
// a second session cannot start until the first stops.
type Manager struct {
	mu      sync.Mutex
	factory SessionFactory
	scripts ScriptSource
	current Session
}

// NewManager creates a session manager.
func NewManager(scripts ScriptSource, factory SessionFactory) *Manager {
	return &Manager{scripts: scripts, factory: factory}
}

// StartSession creates and starts a session for the given script ID.
func (m *Manager) StartSession(scriptID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.CurrentState().State != player.StateStopped {
		return nil, ErrSessionActive
	}

	s := m.scripts.Get(scriptID)
	if s == nil {
		return nil, fmt.Errorf("unknown script: %s", scriptID)
	}

	sess, err := m.factory(s)
	if err != nil {
		return nil, err
	}
	m.current = sess
	sess.Start()
	countSessionStarted()
	return sess, nil
}

// Current returns the active session, or an error if none is running.
func (m *Manager) Current() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoSession
	}
	return m.current, nil
}

// Active reports whether a session is currently running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.CurrentState().State != player.StateStopped
}

var manager *Manager

// SetManager installs the session manager used by the session endpoints.
func SetManager(m *Manager) {
	manager = m
}

// DrawingQuerier retrieves stored drawings. *postgres.Client satisfies it.
type DrawingQuerier interface {
	QueryDrawings(sessionTS time.Time) ([]postgres.DrawingRow, error)
}

var drawingQuerier DrawingQuerier

// SetDrawingQuerier installs the store used by the /drawings endpoint.
func SetDrawingQuerier(q DrawingQuerier) {
	drawingQuerier = q
}

// readiness tracks component health for the /ready endpoint. Optional
// components do not block readiness when down.
var readiness = struct {
	mu                sync.RWMutex
	engineReady       bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}{}

// SetEngineReady marks the engine as having finished startup.
func SetEngineReady(ready bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.engineReady = ready
}

// SetMQTTStatus updates MQTT connectivity for readiness and metrics.
func SetMQTTStatus(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
}

// SetPostgresStatus updates Postgres connectivity for readiness and metrics.
func SetPostgresStatus(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "sessiond",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// ReadinessResponse reports per-component readiness.
type ReadinessResponse struct {
	Ready  bool            `json:"ready"`
	Checks map[string]bool `json:"checks"`
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	engineReady := readiness.engineReady
	mqttOK := readiness.mqttConnected || readiness.mqttOptional
	postgresOK := readiness.postgresConnected || readiness.postgresOptional
	readiness.mu.RUnlock()

	resp := ReadinessResponse{
		Ready: engineReady && mqttOK && postgresOK,
		Checks: map[string]bool{
			"engine":   engineReady,
			"mqtt":     mqttOK,
			"postgres": postgresOK,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events.Snapshot())
}

func scriptsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if manager == nil {
		_ = json.NewEncoder(w).Encode([]library.Entry{})
		return
	}
	_ = json.NewEncoder(w).Encode(manager.scripts.List())
}

// ControlResponse is the envelope for session control endpoints.
type ControlResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type StartRequest struct {
	ScriptID string `json:"script_id"`
}

func sessionStartHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: "method not allowed"})
		return
	}

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: "invalid JSON"})
		return
	}
	if req.ScriptID == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: "script_id required"})
		return
	}

	if manager == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: "engine not ready"})
		return
	}

	sess, err := manager.StartSession(req.ScriptID)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, ErrSessionActive) {
			status = http.StatusConflict
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: err.Error()})
		return
	}

	_ = json.NewEncoder(w).Encode(ControlResponse{OK: true, SessionID: sess.SessionID()})
}

func sessionStateHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sess, err := currentSession()
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(sess.CurrentState())
}

// sessionControlHandler builds a POST handler that applies fn to the
// active session.
func sessionControlHandler(fn func(Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: "method not allowed"})
			return
		}

		sess, err := currentSession()
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: err.Error()})
			return
		}

		fn(sess)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: true, SessionID: sess.SessionID()})
	}
}

type TapRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func sessionTapHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: "method not allowed"})
		return
	}

	var req TapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: "invalid JSON"})
		return
	}

	sess, err := currentSession()
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: err.Error()})
		return
	}

	sess.Tap(paths.Point{X: req.X, Y: req.Y})
	_ = json.NewEncoder(w).Encode(ControlResponse{OK: true, SessionID: sess.SessionID()})
}

type DrawingSavedRequest struct {
	Label string `json:"label"`
	Image []byte `json:"image"` // base64 in JSON
}

func sessionDrawingSavedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: "method not allowed"})
		return
	}

	var req DrawingSavedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: "invalid JSON"})
		return
	}

	sess, err := currentSession()
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: err.Error()})
		return
	}

	sess.DrawingSaved(req.Image, req.Label)
	_ = json.NewEncoder(w).Encode(ControlResponse{OK: true, SessionID: sess.SessionID()})
}

func drawingsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if drawingQuerier == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: "drawing storage not configured"})
		return
	}

	ts, err := time.Parse(time.RFC3339, r.URL.Query().Get("session_ts"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: "session_ts must be RFC3339"})
		return
	}

	rows, err := drawingQuerier.QueryDrawings(ts)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ControlResponse{OK: false, Error: err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(rows)
}

func currentSession() (Session, error) {
	if manager == nil {
		return nil, ErrNoSession
	}
	return manager.Current()
}

// ListenAndServe starts the API server on the given port.
// It blocks until the server exits.
func ListenAndServe(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler)
	mux.HandleFunc("/metrics", metricsHandler)
	mux.HandleFunc("/events", eventsHandler)
	mux.HandleFunc("/ws", wsEventsHandler)
	mux.HandleFunc("/scripts", scriptsHandler)
	mux.HandleFunc("/session", sessionStateHandler)
	mux.HandleFunc("/session/start", RequireAnyRole(sessionStartHandler))
	mux.HandleFunc("/session/pause", RequireAnyRole(sessionControlHandler(Session.Pause)))
	mux.HandleFunc("/session/resume", RequireAnyRole(sessionControlHandler(Session.Resume)))
	mux.HandleFunc("/session/skip-next", RequireAnyRole(sessionControlHandler(Session.SkipNext)))
	mux.HandleFunc("/session/skip-previous", RequireAnyRole(sessionControlHandler(Session.SkipPrevious)))
	mux.HandleFunc("/session/exit", RequireAnyRole(sessionControlHandler(Session.Exit)))
	mux.HandleFunc("/session/tap", RequireAnyRole(sessionTapHandler))
	mux.HandleFunc("/session/drawing/saved", RequireAnyRole(sessionDrawingSavedHandler))
	mux.HandleFunc("/session/drawing/cancelled", RequireAnyRole(sessionControlHandler(Session.DrawingCancelled)))
	mux.HandleFunc("/drawings", RequireAnyRole(drawingsHandler))

	addr := fmt.Sprintf(":%d", port)

	if IsTLSEnabled() {
		cfg := GetTLSConfig()
		log.Printf("API listening on %s (TLS)\n", addr)
		return http.ListenAndServeTLS(addr, cfg.CertFile, cfg.KeyFile, mux)
	}

	log.Printf("API listening on %s\n", addr)
	return http.ListenAndServe(addr, mux)
}

// Start starts the API server in a goroutine.
// Errors are logged but do not stop the caller.
func Start(port int) {
	go func() {
		if err := ListenAndServe(port); err != nil {
			log.Printf("api server error: %v", err)
		}
	}()
}
