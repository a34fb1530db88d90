package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
	"github.com/GriffinCanCode/queue-sentinel/internal/geometry"
	"github.com/GriffinCanCode/queue-sentinel/internal/match"
	"github.com/GriffinCanCode/queue-sentinel/internal/orchestrator"
	"github.com/GriffinCanCode/queue-sentinel/internal/orchestrator/events"
	"github.com/GriffinCanCode/queue-sentinel/internal/screen"
	"github.com/GriffinCanCode/queue-sentinel/internal/session"
)

// mockOrchestrator for testing.
type mockOrchestrator struct {
	mu        sync.Mutex
	snap      session.Snapshot
	ready     bool
	windows   []screen.Window
	detection orchestrator.Detection
	detectErr error
	selected  []int
	watching  []bool
	resets    int
	cmdErr    error
	capture   image.Image
	recent    []events.Event
	eventsCh  chan events.Event
}

func newMockOrchestrator() *mockOrchestrator {
	return &mockOrchestrator{
		snap:     session.Snapshot{Mode: session.WindowSelect},
		eventsCh: make(chan events.Event, 10),
	}
}

func (m *mockOrchestrator) Status() session.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *mockOrchestrator) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *mockOrchestrator) Windows(context.Context) ([]screen.Window, error) { return m.windows, nil }

func (m *mockOrchestrator) Detection(context.Context) (orchestrator.Detection, error) {
	return m.detection, m.detectErr
}

func (m *mockOrchestrator) SelectRegion(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = append(m.selected, i)
	return m.cmdErr
}

func (m *mockOrchestrator) SetWatching(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watching = append(m.watching, on)
	if m.cmdErr == nil {
		m.snap.Watching = on
	}
	return m.cmdErr
}

func (m *mockOrchestrator) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return m.cmdErr
}

func (m *mockOrchestrator) LatestCapture() image.Image   { return m.capture }
func (m *mockOrchestrator) Events() <-chan events.Event  { return m.eventsCh }
func (m *mockOrchestrator) RecentEvents() []events.Event { return m.recent }

func oneRegion() orchestrator.Detection {
	sq := geometry.Square{Corners: [4]geometry.Point{{X: 40, Y: 40}, {X: 140, Y: 40}, {X: 140, Y: 140}, {X: 40, Y: 140}}}
	return orchestrator.Detection{
		WindowID: 2,
		Regions: []orchestrator.Region{{
			Index:   0,
			Square:  sq,
			Bounds:  image.Rect(45, 45, 135, 135),
			Preview: image.NewRGBA(image.Rect(0, 0, 90, 90)),
		}},
		Overlay: image.NewRGBA(image.Rect(0, 0, 200, 200)),
	}
}

func serve(t *testing.T, m *mockOrchestrator, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	s := New(m, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("sentinel_watching 0\n"))
	}))
	req := httptest.NewRequest(method, path, http.NoBody)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest("GET", "/test", http.NoBody)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewStatus(t *testing.T) {
	at := time.Unix(100, 0)
	tests := []struct {
		name        string
		snap        session.Snapshot
		running     string
		queuedLabel string
		distance    bool
	}{
		{"idle", session.Snapshot{Mode: session.WindowSelect}, LabelNotRunning, LabelNo, false},
		{"watching, absent", session.Snapshot{Mode: session.Main, Watching: true, LastCheck: at}, LabelRunning, LabelNo, false},
		{
			"watching, present",
			session.Snapshot{Mode: session.Main, Watching: true, MatchPending: true, LastVerdict: match.Verdict{Found: true, Distance: 0.01}},
			LabelRunning, LabelYes, true,
		},
		{"paused with stale pending", session.Snapshot{Mode: session.Main, MatchPending: true}, LabelNotRunning, LabelNo, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewStatus(tt.snap)
			assert.Equal(t, tt.snap.Mode.String(), got.Mode)
			assert.Equal(t, tt.running, got.Running)
			assert.Equal(t, tt.queuedLabel, got.QueuedLabel)
			assert.Equal(t, tt.queuedLabel == LabelYes, got.Queued)
			assert.Equal(t, tt.distance, got.LastDistance != nil)
			assert.Equal(t, !tt.snap.LastCheck.IsZero(), got.LastCheck != nil)
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	m := newMockOrchestrator()
	m.snap = session.Snapshot{
		Mode:         session.Main,
		Window:       &screen.Window{ID: 2, Title: "Age of Empires IV", Width: 800, Height: 600},
		HasReference: true,
		MatchFloor:   139,
		Watching:     true,
		MatchPending: true,
		LastVerdict:  match.Verdict{Found: true},
	}

	rec := serve(t, m, "GET", "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("x-trace-id"))

	var got StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "main", got.Mode)
	assert.Equal(t, LabelRunning, got.Running)
	assert.Equal(t, LabelYes, got.QueuedLabel)
	require.NotNil(t, got.Window)
	assert.Equal(t, "Age of Empires IV", got.Window.Title)
	assert.Equal(t, 139, got.MatchFloor)
}

func TestWindowsEndpoint(t *testing.T) {
	m := newMockOrchestrator()
	m.windows = []screen.Window{{ID: 1, Title: "terminal", AppName: "xterm"}, {ID: 2, Title: "game"}}

	rec := serve(t, m, "GET", "/api/windows")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []WindowInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "xterm", got[0].AppName)
}

func TestRegionsEndpoint(t *testing.T) {
	m := newMockOrchestrator()
	m.detection = oneRegion()

	rec := serve(t, m, "GET", "/api/regions")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []RegionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, RegionResponse{Index: 0, X: 45, Y: 45, Width: 90, Height: 90, MatchFloor: 140, PreviewURL: "/api/regions/0/preview.png"}, got[0])
}

func TestRegionsWithoutWindow(t *testing.T) {
	m := newMockOrchestrator()
	m.detectErr = apperrors.New(apperrors.NotFound, "no target window")

	rec := serve(t, m, "GET", "/api/regions")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestImageEndpoints(t *testing.T) {
	m := newMockOrchestrator()
	m.detection = oneRegion()
	m.capture = image.NewRGBA(image.Rect(0, 0, 1920, 1080))

	tests := []struct {
		path   string
		status int
	}{
		{"/api/regions/0/preview.png", http.StatusOK},
		{"/api/regions/overlay.png", http.StatusOK},
		{"/api/capture.png", http.StatusOK},
		{"/api/regions/3/preview.png", http.StatusBadRequest},
		{"/api/regions/x/preview.png", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(t, m, "GET", tt.path)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestCaptureWithoutWindow(t *testing.T) {
	rec := serve(t, newMockOrchestrator(), "GET", "/api/capture.png")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommandEndpoints(t *testing.T) {
	m := newMockOrchestrator()

	rec := serve(t, m, "POST", "/api/regions/2/select")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{2}, m.selected)

	rec = serve(t, m, "POST", "/api/watch/start")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(t, m, "POST", "/api/watch/stop")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []bool{true, false}, m.watching)

	rec = serve(t, m, "POST", "/api/reset")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, m.resets)

	rec = serve(t, m, "GET", "/api/reset")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"rejected", apperrors.New(apperrors.TransitionRejected, "cannot toggle watching in window_select").WithMetadata("mode", "window_select"), http.StatusConflict, "TRANSITION_REJECTED"},
		{"out of range", apperrors.New(apperrors.RegionOutOfRange, "region 4 out of range"), http.StatusBadRequest, "REGION_OUT_OF_RANGE"},
		{"plain error", errors.New("disk full"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockOrchestrator()
			m.cmdErr = tt.err

			rec := serve(t, m, "POST", "/api/watch/start")
			assert.Equal(t, tt.status, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.TraceID)
		})
	}
}

func TestEventsEndpoint(t *testing.T) {
	m := newMockOrchestrator()
	rec := serve(t, m, "GET", "/api/events")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	m.recent = []events.Event{{Kind: events.WindowFound, Mode: "region_select", Message: "found game"}}
	rec = serve(t, m, "GET", "/api/events")
	var got []events.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, events.WindowFound, got[0].Kind)
}

func TestMetricsRoute(t *testing.T) {
	rec := serve(t, newMockOrchestrator(), "GET", "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sentinel_watching")
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{}
	for i := 0; i < RateLimitMessages; i++ {
		assert.True(t, rl.allow(), "message %d", i)
	}
	assert.False(t, rl.allow())
}

func TestWebSocket(t *testing.T) {
	m := newMockOrchestrator()
	m.snap = session.Snapshot{Mode: session.Main, HasReference: true}
	s := New(m, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// initial status
	var status StatusMessage
	require.NoError(t, wsjson.Read(ctx, conn, &status))
	assert.Equal(t, "status", status.Type)
	assert.Equal(t, "main", status.Status.Mode)

	// command round trip
	require.NoError(t, wsjson.Write(ctx, conn, CommandMessage{Type: "watch", Enabled: true}))
	var res ResultMessage
	require.NoError(t, wsjson.Read(ctx, conn, &res))
	assert.Equal(t, ResultMessage{Type: "result", Command: "watch", OK: true}, res)

	require.NoError(t, wsjson.Write(ctx, conn, CommandMessage{Type: "launch"}))
	require.NoError(t, wsjson.Read(ctx, conn, &res))
	assert.False(t, res.OK)
	assert.Equal(t, "INVALID_ARGUMENT", res.Code)

	// events are broadcast
	m.eventsCh <- events.Event{Kind: events.QueueAbsent, Mode: "main"}
	var evt EventMessage
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, "event", evt.Type)
	assert.Equal(t, events.QueueAbsent, evt.Event.Kind)
}

func TestWebSocketStatusPush(t *testing.T) {
	m := newMockOrchestrator()
	s := New(m, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.Run(ctx)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	m.mu.Lock()
	m.snap = session.Snapshot{Mode: session.RegionSelect, Epoch: 1}
	m.mu.Unlock()

	// skip pushes until the change shows up
	for {
		var msg StatusMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Status.Mode == "region_select" {
			assert.Equal(t, uint64(1), msg.Status.Epoch)
			return
		}
	}
}

type fakeReady struct{ ready bool }

func (f *fakeReady) Ready() bool { return f.ready }

func TestHealth(t *testing.T) {
	ready := &fakeReady{}
	gs, h := NewGRPCServer(ready)
	defer gs.Stop()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := h.srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.Status
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(HealthService))

	ready.ready = true
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, h.Update())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(HealthService))

	ready.ready = false
	h.Update()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(HealthService))
}
