// Package session holds the single mutable record shared by the interactive
// loop and the watcher. Every accessor takes the lock for a bounded copy or
// update only; nothing here captures or matches.
package session

import (
	"image"
	"time"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
	"github.com/GriffinCanCode/queue-sentinel/internal/match"
	"github.com/GriffinCanCode/queue-sentinel/internal/reference"
	"github.com/GriffinCanCode/queue-sentinel/internal/screen"
	"github.com/GriffinCanCode/queue-sentinel/internal/syncx"
)

// State is the guarded record.
type State struct {
	Mode         Mode
	Captures     []screen.Capture // last window scan
	Window       *screen.Capture  // target window, nil when not on record
	Reference    *reference.Template
	Watching     bool
	MatchPending bool
	LastCapture  time.Time
	LastVerdict  match.Verdict
	LastCheck    time.Time
	// Epoch changes whenever the target window or reference is replaced, so
	// a watch cycle that started before can detect it is stale.
	Epoch uint64
}

// Snapshot is a read-only copy of State for rendering.
type Snapshot struct {
	Mode         Mode
	Windows      []screen.Window
	Window       *screen.Window
	HasReference bool
	MatchFloor   int
	Watching     bool
	MatchPending bool
	LastCapture  time.Time
	LastCheck    time.Time
	LastVerdict  match.Verdict
	Epoch        uint64
}

// Queued reports the operator-facing "queued?" flag: only meaningful while watching.
func (s Snapshot) Queued() bool { return s.Watching && s.MatchPending }

// WatchInput is what one watch cycle needs from the record.
type WatchInput struct {
	Window    screen.Window
	Reference *reference.Template
	Watching  bool
	Epoch     uint64
}

// Session guards State.
type Session struct {
	g *syncx.RWGuard[State]
}

// New creates a session in WindowSelect.
func New() *Session {
	return &Session{g: syncx.NewGuard(State{Mode: WindowSelect})}
}

// Snapshot copies the record.
func (s *Session) Snapshot() Snapshot {
	return syncx.View(s.g, func(st *State) Snapshot {
		snap := Snapshot{
			Mode:         st.Mode,
			HasReference: st.Reference != nil,
			Watching:     st.Watching,
			MatchPending: st.MatchPending,
			LastCapture:  st.LastCapture,
			LastCheck:    st.LastCheck,
			LastVerdict:  st.LastVerdict,
			Epoch:        st.Epoch,
		}
		if st.Reference != nil {
			snap.MatchFloor = st.Reference.MatchFloor
		}
		if st.Window != nil {
			w := st.Window.Window
			snap.Window = &w
		}
		snap.Windows = make([]screen.Window, len(st.Captures))
		for i, c := range st.Captures {
			snap.Windows[i] = c.Window
		}
		return snap
	})
}

// Mode returns the current mode.
func (s *Session) Mode() Mode {
	return syncx.View(s.g, func(st *State) Mode { return st.Mode })
}

// Reference returns the active template, or nil.
func (s *Session) Reference() *reference.Template {
	return syncx.View(s.g, func(st *State) *reference.Template { return st.Reference })
}

// Captures returns the last window scan.
func (s *Session) Captures() []screen.Capture {
	return syncx.View(s.g, func(st *State) []screen.Capture { return st.Captures })
}

// WindowCapture returns the freshest capture of the target window.
func (s *Session) WindowCapture() (screen.Capture, bool) {
	var c screen.Capture
	var ok bool
	s.g.Read(func(st *State) {
		if st.Window != nil {
			c, ok = *st.Window, true
		}
	})
	return c, ok
}

// SetCaptures records a window scan.
func (s *Session) SetCaptures(caps []screen.Capture) {
	s.g.Write(func(st *State) { st.Captures = caps })
}

// FoundWindow records the target window and moves WindowSelect to RegionSelect.
func (s *Session) FoundWindow(c screen.Capture) error {
	return syncx.Mutate(s.g, func(st *State) error {
		if err := st.apply(WindowFound); err != nil {
			return err
		}
		st.Window = &c
		st.LastCapture = c.TakenAt
		st.Epoch++
		return nil
	})
}

// ChooseReference installs t and moves RegionSelect to Main.
func (s *Session) ChooseReference(t *reference.Template) error {
	if t == nil || t.Image == nil {
		return apperrors.New(apperrors.InvalidArgument, "reference has no image")
	}
	return syncx.Mutate(s.g, func(st *State) error {
		if err := st.apply(ReferenceChosen); err != nil {
			return err
		}
		st.Reference = t
		st.MatchPending = false
		st.LastVerdict = match.Verdict{}
		st.Epoch++
		return nil
	})
}

// Reset clears the reference, watching and the window record, returning to WindowSelect.
func (s *Session) Reset() error {
	return syncx.Mutate(s.g, func(st *State) error {
		if err := st.apply(OperatorReset); err != nil {
			return err
		}
		st.Reference = nil
		st.Watching = false
		st.MatchPending = false
		st.LastVerdict = match.Verdict{}
		st.Window = nil
		st.Epoch++
		return nil
	})
}

// SetWatching toggles the watcher. Only valid in Main.
func (s *Session) SetWatching(on bool) error {
	return syncx.Mutate(s.g, func(st *State) error {
		if st.Mode != Main {
			return apperrors.Newf(apperrors.TransitionRejected, "cannot toggle watching in %s", st.Mode).
				WithMetadata("mode", st.Mode.String())
		}
		st.Watching = on
		if !on {
			st.MatchPending = false
		}
		return nil
	})
}

// WatchInput copies what a watch cycle needs; false when no window is on record.
func (s *Session) WatchInput() (WatchInput, bool) {
	var in WatchInput
	var ok bool
	s.g.Read(func(st *State) {
		if st.Window == nil {
			return
		}
		in = WatchInput{Window: st.Window.Window, Reference: st.Reference, Watching: st.Watching, Epoch: st.Epoch}
		ok = true
	})
	return in, ok
}

// LoseWindowAt drops the window record and returns to WindowSelect. The
// reference survives so the session can resume when the window reappears.
// A cycle that started before epoch moved on is ignored.
func (s *Session) LoseWindowAt(epoch uint64) bool {
	return syncx.Mutate(s.g, func(st *State) bool {
		if st.Epoch != epoch {
			return false
		}
		_ = st.apply(WindowLost)
		st.Window = nil
		st.MatchPending = false
		st.Epoch++
		return true
	})
}

// RefreshCapture stores a fresh frame of the target window.
func (s *Session) RefreshCapture(epoch uint64, c screen.Capture) bool {
	return syncx.Mutate(s.g, func(st *State) bool {
		if st.Epoch != epoch || st.Window == nil {
			return false
		}
		st.Window = &c
		st.LastCapture = c.TakenAt
		return true
	})
}

// RecordVerdict stores the frame and, if still watching, the verdict.
// It reports whether the verdict was applied.
func (s *Session) RecordVerdict(epoch uint64, c screen.Capture, v match.Verdict, at time.Time) bool {
	return syncx.Mutate(s.g, func(st *State) bool {
		if st.Epoch != epoch || st.Window == nil {
			return false
		}
		st.Window = &c
		st.LastCapture = c.TakenAt
		if !st.Watching {
			return false
		}
		st.MatchPending = v.Found
		st.LastVerdict = v
		st.LastCheck = at
		return true
	})
}

// LatestImage returns the freshest frame of the target window, or nil.
func (s *Session) LatestImage() image.Image {
	c, ok := s.WindowCapture()
	if !ok || c.Image == nil {
		return nil
	}
	return c.Image
}

func (st *State) apply(e Event) error {
	to, ok := Next(st.Mode, e)
	if !ok {
		return apperrors.Newf(apperrors.TransitionRejected, "%s is not valid in %s", e, st.Mode).
			WithMetadata("mode", st.Mode.String()).
			WithMetadata("event", e.String())
	}
	st.Mode = to
	return nil
}
