// Package eventlog retains the most recent transport events in a bounded,
// FIFO-evicting ring buffer for display and debugging.
package eventlog

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultCapacity is the number of entries retained when no capacity is
// configured.
const DefaultCapacity = 100

// Direction tags whether an event was sent to or received from the API.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Entry wraps a transport event with local bookkeeping. Entries are never
// mutated after creation except for the Expanded display flag.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Direction Direction      `json:"direction"`
	Event     map[string]any `json:"event"`
	Expanded  bool           `json:"expanded"`
}

// Log is a bounded, ordered collection of entries. Once full, recording a
// new entry evicts the oldest one. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	head    int // index of the oldest entry
	size    int
}

// New creates a log that retains at most capacity entries. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: make([]Entry, capacity)}
}

// Record appends an entry for the event with a freshly generated identifier
// and the current timestamp, evicting the oldest entry if the log is full.
// It returns the new entry's ID.
func (l *Log) Record(event map[string]any, direction Direction) string {
	entry := Entry{
		ID:        ulid.Make().String(),
		Timestamp: time.Now(),
		Direction: direction,
		Event:     event,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size < len(l.entries) {
		l.entries[(l.head+l.size)%len(l.entries)] = entry
		l.size++
	} else {
		// Full: overwrite the oldest slot and advance the head.
		l.entries[l.head] = entry
		l.head = (l.head + 1) % len(l.entries)
	}

	return entry.ID
}

// Entries returns a snapshot of the current entries, oldest first. The
// snapshot is independent of later Record/Clear calls.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.entries[(l.head+i)%len(l.entries)]
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Capacity returns the configured maximum number of entries.
func (l *Log) Capacity() int {
	return len(l.entries)
}

// SetExpanded sets the display flag on the entry with the given ID. It
// reports whether the entry was found.
func (l *Log) SetExpanded(id string, expanded bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := 0; i < l.size; i++ {
		idx := (l.head + i) % len(l.entries)
		if l.entries[idx].ID == id {
			l.entries[idx].Expanded = expanded
			return true
		}
	}
	return false
}

// Clear empties the collection unconditionally.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head = 0
	l.size = 0
}
