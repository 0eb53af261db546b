// Package monitor runs the background loops: the session timer sweep and the
// group streak sweep. Each loop owns its own ticker and cancellation and
// reads shared state through the same locks as the event path.
package monitor

import (
	"sync"
	"time"
)

// TimerEntry is the tracked state of one running session room.
type TimerEntry struct {
	StartedAt time.Time
	Warned    bool
}

// Timers is the room-timer map shared between the event router (which starts
// timers on first join) and the timer monitor (which sweeps them).
type Timers struct {
	mu      sync.Mutex
	entries map[string]*TimerEntry
}

// NewTimers creates an empty timer table.
func NewTimers() *Timers {
	return &Timers{entries: make(map[string]*TimerEntry)}
}

// Start begins tracking a room. Subsequent joins keep the original start
// time, so the session clock runs from the first join.
func (t *Timers) Start(room string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[room]; ok {
		return
	}
	t.entries[room] = &TimerEntry{StartedAt: time.Now().UTC()}
}

// StartAt is Start with an explicit start time.
func (t *Timers) StartAt(room string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[room]; ok {
		return
	}
	t.entries[room] = &TimerEntry{StartedAt: at}
}

// Remove drops a room from tracking.
func (t *Timers) Remove(room string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, room)
}

// MarkWarned records that the room's single warning has been sent.
func (t *Timers) MarkWarned(room string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[room]; ok {
		entry.Warned = true
	}
}

// Snapshot copies the table so sweeps never iterate a map being mutated by
// joins or removals.
func (t *Timers) Snapshot() map[string]TimerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]TimerEntry, len(t.entries))
	for room, entry := range t.entries {
		out[room] = *entry
	}
	return out
}
