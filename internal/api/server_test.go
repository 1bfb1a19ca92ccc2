package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quietroom/stillengine/internal/library"
	"github.com/quietroom/stillengine/internal/paths"
	"github.com/quietroom/stillengine/internal/player"
	"github.com/quietroom/stillengine/internal/script"
)

// stubSession records control calls and reports a controllable state.
type stubSession struct {
	state     player.State
	started   int
	paused    int
	resumed   int
	next      int
	prev      int
	exited    int
	taps      []paths.Point
	saved     []string
	cancelled int
}

func (s *stubSession) Start()          { s.started++; s.state = player.StatePlaying }
func (s *stubSession) Pause()          { s.paused++ }
func (s *stubSession) Resume()         { s.resumed++ }
func (s *stubSession) SkipNext()       { s.next++ }
func (s *stubSession) SkipPrevious()   { s.prev++ }
func (s *stubSession) Exit()           { s.exited++; s.state = player.StateStopped }
func (s *stubSession) Tap(pt paths.Point) { s.taps = append(s.taps, pt) }
func (s *stubSession) DrawingSaved(image []byte, label string) {
	s.saved = append(s.saved, label)
}
func (s *stubSession) DrawingCancelled() { s.cancelled++ }
func (s *stubSession) CurrentState() player.Snapshot {
	return player.Snapshot{State: s.state, SessionID: s.SessionID(), ScriptID: "morning"}
}
func (s *stubSession) SessionID() string { return "sess-test" }

// stubScripts serves one fixed script.
type stubScripts struct{}

func (stubScripts) Get(id string) *script.Script {
	if id != "morning" {
		return nil
	}
	return &script.Script{
		Version: 1,
		ID:      "morning",
		Name:    "Morning Calm",
		Segments: []script.Segment{
			{ID: "s1", Type: script.SegmentCushion, DurationSeconds: 5},
		},
	}
}

func (stubScripts) List() []library.Entry {
	return []library.Entry{{ID: "morning", Name: "Morning Calm", Segments: 1}}
}

func setupManager(t *testing.T) *stubSession {
	t.Helper()
	auth = nil // no auth configured = full access
	sess := &stubSession{}
	manager = NewManager(stubScripts{}, func(s *script.Script) (Session, error) {
		return sess, nil
	})
	t.Cleanup(func() { manager = nil })
	return sess
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
	if resp.Service != "sessiond" {
		t.Errorf("expected service 'sessiond', got '%s'", resp.Service)
	}
}

func TestReadyEndpoint_AllReady(t *testing.T) {
	SetEngineReady(true)
	SetMQTTStatus(true, false)
	SetPostgresStatus(true, false)

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	readyHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Ready {
		t.Errorf("expected ready=true, checks=%v", resp.Checks)
	}
}

func TestReadyEndpoint_EngineNotReady(t *testing.T) {
	SetEngineReady(false)
	SetMQTTStatus(true, false)
	SetPostgresStatus(true, false)

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	readyHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestReadyEndpoint_OptionalComponentDown(t *testing.T) {
	SetEngineReady(true)
	SetMQTTStatus(false, true)
	SetPostgresStatus(true, false)

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	readyHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("optional component should not block readiness, got %d", w.Code)
	}
}

func TestScriptsEndpoint(t *testing.T) {
	setupManager(t)

	req := httptest.NewRequest("GET", "/scripts", nil)
	w := httptest.NewRecorder()
	scriptsHandler(w, req)

	var entries []library.Entry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "morning" {
		t.Errorf("unexpected scripts list: %v", entries)
	}
}

func TestSessionStart(t *testing.T) {
	sess := setupManager(t)

	req := httptest.NewRequest("POST", "/session/start", strings.NewReader(`{"script_id":"morning"}`))
	w := httptest.NewRecorder()
	sessionStartHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if sess.started != 1 {
		t.Errorf("expected session started once, got %d", sess.started)
	}

	var resp ControlResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.OK || resp.SessionID != "sess-test" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSessionStartUnknownScript(t *testing.T) {
	setupManager(t)

	req := httptest.NewRequest("POST", "/session/start", strings.NewReader(`{"script_id":"nope"}`))
	w := httptest.NewRecorder()
	sessionStartHandler(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestSessionStartConflictWhileActive(t *testing.T) {
	setupManager(t)

	start := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/session/start", strings.NewReader(`{"script_id":"morning"}`))
		w := httptest.NewRecorder()
		sessionStartHandler(w, req)
		return w
	}

	if w := start(); w.Code != http.StatusOK {
		t.Fatalf("first start failed: %d", w.Code)
	}
	if w := start(); w.Code != http.StatusConflict {
		t.Errorf("expected status 409 while active, got %d", w.Code)
	}
}

func TestSessionStartAllowedAfterStop(t *testing.T) {
	sess := setupManager(t)

	req := httptest.NewRequest("POST", "/session/start", strings.NewReader(`{"script_id":"morning"}`))
	w := httptest.NewRecorder()
	sessionStartHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first start failed: %d", w.Code)
	}

	sess.state = player.StateStopped

	req2 := httptest.NewRequest("POST", "/session/start", strings.NewReader(`{"script_id":"morning"}`))
	w2 := httptest.NewRecorder()
	sessionStartHandler(w2, req2)
	if w2.Code != http.StatusOK {
		t.Errorf("expected restart after stop, got %d", w2.Code)
	}
}

func TestSessionControlsWithoutSession(t *testing.T) {
	setupManager(t)

	req := httptest.NewRequest("POST", "/session/pause", nil)
	w := httptest.NewRecorder()
	sessionControlHandler(Session.Pause)(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 with no session, got %d", w.Code)
	}
}

func TestSessionControlRoutes(t *testing.T) {
	sess := setupManager(t)
	if _, err := manager.StartSession("morning"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	post := func(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
		var rdr *strings.Reader
		if body == "" {
			rdr = strings.NewReader("{}")
		} else {
			rdr = strings.NewReader(body)
		}
		req := httptest.NewRequest("POST", path, rdr)
		w := httptest.NewRecorder()
		h(w, req)
		return w
	}

	post(sessionControlHandler(Session.Pause), "/session/pause", "")
	post(sessionControlHandler(Session.Resume), "/session/resume", "")
	post(sessionControlHandler(Session.SkipNext), "/session/skip-next", "")
	post(sessionControlHandler(Session.SkipPrevious), "/session/skip-previous", "")
	post(sessionTapHandler, "/session/tap", `{"x":42.5,"y":77}`)
	post(sessionDrawingSavedHandler, "/session/drawing/saved", `{"label":"shoulder","image":"cG5n"}`)
	post(sessionControlHandler(Session.DrawingCancelled), "/session/drawing/cancelled", "")
	post(sessionControlHandler(Session.Exit), "/session/exit", "")

	if sess.paused != 1 || sess.resumed != 1 || sess.next != 1 || sess.prev != 1 || sess.exited != 1 {
		t.Errorf("control calls not routed: %+v", sess)
	}
	if len(sess.taps) != 1 || sess.taps[0] != (paths.Point{X: 42.5, Y: 77}) {
		t.Errorf("tap not routed: %v", sess.taps)
	}
	if len(sess.saved) != 1 || sess.saved[0] != "shoulder" {
		t.Errorf("drawing save not routed: %v", sess.saved)
	}
	if sess.cancelled != 1 {
		t.Errorf("drawing cancel not routed: %d", sess.cancelled)
	}
}

func TestSessionControlRejectsGet(t *testing.T) {
	setupManager(t)

	req := httptest.NewRequest("GET", "/session/pause", nil)
	w := httptest.NewRecorder()
	sessionControlHandler(Session.Pause)(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestSessionStateEndpoint(t *testing.T) {
	setupManager(t)
	if _, err := manager.StartSession("morning"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/session", nil)
	w := httptest.NewRecorder()
	sessionStateHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var snap player.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snap.State != player.StatePlaying || snap.ScriptID != "morning" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	setupManager(t)
	InitMetrics()
	SetEngineName("studio-1")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	metricsHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, metric := range []string{
		"still_uptime_seconds",
		"still_sessions_active",
		"still_sessions_started_total",
		"still_segments_completed_total",
		"still_events_total",
		"still_mqtt_connected",
		"still_postgres_connected",
		"still_ws_clients",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
	if !strings.Contains(body, `engine="studio-1"`) {
		t.Errorf("metrics output missing engine label")
	}
}
