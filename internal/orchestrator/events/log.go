// Package events keeps a short history of operator-visible session events and
// hands each one to a single broadcaster.
package events

import (
	"sync"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	WindowFound     Kind = "window_found"
	WindowLost      Kind = "window_lost"
	ReferenceChosen Kind = "reference_chosen"
	ReferenceLoaded Kind = "reference_loaded"
	WatchStarted    Kind = "watch_started"
	WatchStopped    Kind = "watch_stopped"
	QueuePresent    Kind = "queue_present"
	QueueAbsent     Kind = "queue_absent"
	Reset           Kind = "reset"
)

// Event is one entry of the history.
type Event struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Mode    string    `json:"mode"`
	At      time.Time `json:"at"`
}

// Log is a bounded in-memory event history.
type Log struct {
	mu       sync.RWMutex
	entries  []Event
	maxSize  int
	eventsCh chan Event
	now      func() time.Time
}

// NewLog creates a log keeping maxEntries events with a broadcast buffer of eventBuffer.
func NewLog(maxEntries, eventBuffer int) *Log {
	return &Log{
		entries:  make([]Event, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
		now:      time.Now,
	}
}

// Add records an event and emits it.
func (l *Log) Add(kind Kind, mode, message string) Event {
	e := Event{Kind: kind, Message: message, Mode: mode, At: l.now()}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.maxSize {
		l.entries = l.entries[len(l.entries)-l.maxSize:]
	}
	l.mu.Unlock()

	l.Emit(e)
	return e
}

// Since returns the events recorded within the last d, oldest first.
func (l *Log) Since(d time.Duration) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cutoff := l.now().Add(-d)
	var out []Event
	for _, e := range l.entries {
		if !e.At.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns a copy of every retained event.
func (l *Log) Entries() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]Event, len(l.entries))
	copy(result, l.entries)
	return result
}

// Events returns the broadcast channel.
func (l *Log) Events() <-chan Event {
	return l.eventsCh
}

// Emit sends an event to the broadcaster (non-blocking). Events are dropped
// when nobody drains the channel.
func (l *Log) Emit(e Event) {
	select {
	case l.eventsCh <- e:
	default:
	}
}
