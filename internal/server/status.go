package server

import (
	"time"

	"github.com/GriffinCanCode/queue-sentinel/internal/screen"
	"github.com/GriffinCanCode/queue-sentinel/internal/session"
)

// Labels shown to the operator.
const (
	LabelRunning    = "Running"
	LabelNotRunning = "Not running"
	LabelYes        = "Yes"
	LabelNo         = "No"
)

// WindowInfo is the JSON form of screen.Window.
type WindowInfo struct {
	ID      uint64 `json:"id"`
	PID     int32  `json:"pid,omitempty"`
	Title   string `json:"title"`
	AppName string `json:"app_name,omitempty"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

func windowInfo(w screen.Window) WindowInfo {
	return WindowInfo{
		ID:      w.ID,
		PID:     w.PID,
		Title:   w.Title,
		AppName: w.AppName,
		X:       w.X,
		Y:       w.Y,
		Width:   w.Width,
		Height:  w.Height,
	}
}

// StatusResponse is the JSON form of a session snapshot.
type StatusResponse struct {
	Mode         string      `json:"mode"`
	Window       *WindowInfo `json:"window,omitempty"`
	Windows      int         `json:"windows"`
	HasReference bool        `json:"has_reference"`
	MatchFloor   int         `json:"match_floor,omitempty"`
	Watching     bool        `json:"watching"`
	Running      string      `json:"running"`
	Queued       bool        `json:"queued"`
	QueuedLabel  string      `json:"queued_label"`
	LastCapture  *time.Time  `json:"last_capture,omitempty"`
	LastCheck    *time.Time  `json:"last_check,omitempty"`
	LastDistance *float64    `json:"last_distance,omitempty"`
	Epoch        uint64      `json:"epoch"`
}

// NewStatus renders a snapshot.
func NewStatus(s session.Snapshot) StatusResponse {
	resp := StatusResponse{
		Mode:         s.Mode.String(),
		Windows:      len(s.Windows),
		HasReference: s.HasReference,
		MatchFloor:   s.MatchFloor,
		Watching:     s.Watching,
		Running:      LabelNotRunning,
		Queued:       s.Queued(),
		QueuedLabel:  LabelNo,
		Epoch:        s.Epoch,
	}
	if s.Window != nil {
		w := windowInfo(*s.Window)
		resp.Window = &w
	}
	if s.Watching {
		resp.Running = LabelRunning
	}
	if resp.Queued {
		resp.QueuedLabel = LabelYes
	}
	if !s.LastCapture.IsZero() {
		t := s.LastCapture
		resp.LastCapture = &t
	}
	if !s.LastCheck.IsZero() {
		t := s.LastCheck
		resp.LastCheck = &t
	}
	if s.Watching && s.LastVerdict.Found {
		d := s.LastVerdict.Distance
		resp.LastDistance = &d
	}
	return resp
}

// fingerprint is the part of a snapshot whose change triggers a push.
type fingerprint struct {
	mode      session.Mode
	window    bool
	reference bool
	watching  bool
	pending   bool
	epoch     uint64
	lastCheck time.Time
}

func fingerprintOf(s session.Snapshot) fingerprint {
	return fingerprint{
		mode:      s.Mode,
		window:    s.Window != nil,
		reference: s.HasReference,
		watching:  s.Watching,
		pending:   s.MatchPending,
		epoch:     s.Epoch,
		lastCheck: s.LastCheck,
	}
}
