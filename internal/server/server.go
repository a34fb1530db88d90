package server

import (
	"context"
	"encoding/json"
	"image"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
	"github.com/GriffinCanCode/queue-sentinel/internal/orchestrator"
	"github.com/GriffinCanCode/queue-sentinel/internal/orchestrator/events"
	"github.com/GriffinCanCode/queue-sentinel/internal/screen"
	"github.com/GriffinCanCode/queue-sentinel/internal/session"
	"github.com/GriffinCanCode/queue-sentinel/internal/trace"
)

// Orchestrator is the part of orchestrator.Manager the server drives.
type Orchestrator interface {
	Status() session.Snapshot
	Ready() bool
	Windows(ctx context.Context) ([]screen.Window, error)
	Detection(ctx context.Context) (orchestrator.Detection, error)
	SelectRegion(i int) error
	SetWatching(on bool) error
	Reset() error
	LatestCapture() image.Image
	Events() <-chan events.Event
	RecentEvents() []events.Event
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

// CommandMessage is sent by clients: "watch" (enabled), "select" (index) or "reset".
type CommandMessage struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled,omitempty"`
	Index   int    `json:"index,omitempty"`
}

type StatusMessage struct {
	Type   string         `json:"type"`
	Status StatusResponse `json:"status"`
}

type EventMessage struct {
	Type  string       `json:"type"`
	Event events.Event `json:"event"`
}

type ResultMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

type RateLimitedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	orch    Orchestrator
	metrics http.Handler
	mu      sync.RWMutex
	conns   map[*websocket.Conn]*rateLimiter
}

// New creates a server. metricsHandler may be nil.
func New(orch Orchestrator, metricsHandler http.Handler) *Server {
	s := &Server{
		orch:    orch,
		metrics: metricsHandler,
		conns:   make(map[*websocket.Conn]*rateLimiter),
	}
	go s.broadcastEvents()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/windows", s.handleWindows)
	mux.HandleFunc("GET /api/regions", s.handleRegions)
	mux.HandleFunc("GET /api/regions/overlay.png", s.handleOverlay)
	mux.HandleFunc("GET /api/regions/{index}/preview.png", s.handlePreview)
	mux.HandleFunc("POST /api/regions/{index}/select", s.handleSelect)
	mux.HandleFunc("POST /api/watch/start", s.handleWatch(true))
	mux.HandleFunc("POST /api/watch/stop", s.handleWatch(false))
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/capture.png", s.handleCapture)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Run pushes status snapshots to WebSocket clients until ctx is done: on
// every change, and at least once per StatusPushInterval.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(StatusPollInterval)
	defer ticker.Stop()

	var last fingerprint
	var lastPush time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			snap := s.orch.Status()
			fp := fingerprintOf(snap)
			if fp == last && now.Sub(lastPush) < StatusPushInterval {
				continue
			}
			last, lastPush = fp, now
			s.broadcast(StatusMessage{Type: "status", Status: NewStatus(snap)})
		}
	}
}

func (s *Server) broadcastEvents() {
	for evt := range s.orch.Events() {
		s.broadcast(EventMessage{Type: "event", Event: evt})
	}
}

func (s *Server) broadcast(msg any) {
	s.mu.RLock()
	for conn := range s.conns {
		go func(c *websocket.Conn) {
			ctx, cancel := context.WithTimeout(context.Background(), WriteTimeout)
			defer cancel()
			_ = wsjson.Write(ctx, c, msg)
		}(conn)
	}
	s.mu.RUnlock()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	rl := &rateLimiter{}
	s.mu.Lock()
	s.conns[conn] = rl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	// Get trace context from HTTP upgrade request
	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	_ = wsjson.Write(baseCtx, conn, StatusMessage{Type: "status", Status: NewStatus(s.orch.Status())})

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, RateLimitedMessage{
				Type:    "error",
				Message: "rate limit exceeded",
			})
			continue
		}

		var cmd CommandMessage
		if err := json.Unmarshal(msg, &cmd); err != nil {
			continue
		}

		ctx, _ := trace.EnsureContext(baseCtx)
		_ = wsjson.Write(ctx, conn, s.handleCommand(ctx, cmd))
	}
}

func (s *Server) handleCommand(ctx context.Context, cmd CommandMessage) ResultMessage {
	ctx, span := trace.StartSpan(ctx, "ws_command")
	span.SetAttr("command", cmd.Type)

	var err error
	switch cmd.Type {
	case "watch":
		err = s.orch.SetWatching(cmd.Enabled)
	case "select":
		err = s.orch.SelectRegion(cmd.Index)
	case "reset":
		err = s.orch.Reset()
	default:
		err = apperrors.Newf(apperrors.InvalidArgument, "unknown command %q", cmd.Type)
	}
	span.Finish(err)

	res := ResultMessage{Type: "result", Command: cmd.Type, OK: err == nil}
	if err != nil {
		trace.Logger(ctx).Info("command rejected", "command", cmd.Type, "error", err)
		res.Code = string(apperrors.CodeOf(err))
		res.Error = err.Error()
	}
	return res
}
