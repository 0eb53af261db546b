package monitor

import (
	"context"
	"log"
	"math"
	"time"

	"discussio-backend/internal/config"
	"discussio-backend/internal/hub"
)

// Broadcaster fans an event out to every connection in a room.
type Broadcaster interface {
	BroadcastRoom(room string, msg hub.WSMessage)
}

// SessionEnder persists a session's end state.
type SessionEnder interface {
	End(ctx context.Context, id string) error
}

// RoomCloser tears down the external media room.
type RoomCloser interface {
	CloseRoom(room string)
}

// SessionWarning is the payload of a session_warning broadcast.
type SessionWarning struct {
	Room             string `json:"room"`
	MinutesRemaining int    `json:"minutes_remaining"`
}

// SessionEnded is the payload of a session_ended broadcast.
type SessionEnded struct {
	Room string `json:"room"`
}

// SessionTimerMonitor enforces session duration limits: one warning per
// session past the warning threshold, a hard end past the maximum.
type SessionTimerMonitor struct {
	timers      *Timers
	sessions    SessionEnder
	broadcaster Broadcaster
	media       RoomCloser
	cfg         config.SessionConfig
}

// NewSessionTimerMonitor wires the monitor to the shared timer table.
func NewSessionTimerMonitor(timers *Timers, sessions SessionEnder, broadcaster Broadcaster, media RoomCloser, cfg config.SessionConfig) *SessionTimerMonitor {
	return &SessionTimerMonitor{
		timers:      timers,
		sessions:    sessions,
		broadcaster: broadcaster,
		media:       media,
		cfg:         cfg,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (m *SessionTimerMonitor) Run(ctx context.Context) {
	log.Printf("[Timer] monitoring sessions every %s (warn %s, end %s)",
		m.cfg.CheckInterval, m.cfg.WarningAfter, m.cfg.MaxDuration)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Timer] stopped")
			return
		case <-ticker.C:
			m.Sweep(time.Now().UTC())
		}
	}
}

// Sweep walks a snapshot of the timer table once.
func (m *SessionTimerMonitor) Sweep(now time.Time) {
	for room, entry := range m.timers.Snapshot() {
		elapsed := now.Sub(entry.StartedAt)

		if elapsed > m.cfg.MaxDuration {
			m.endSession(room)
			continue
		}

		if elapsed > m.cfg.WarningAfter && !entry.Warned {
			remaining := int(math.Ceil((m.cfg.MaxDuration - elapsed).Minutes()))
			m.broadcaster.BroadcastRoom(room, hub.WSMessage{Type: "session_warning", Payload: SessionWarning{
				Room:             room,
				MinutesRemaining: remaining,
			}})
			m.timers.MarkWarned(room)
			log.Printf("[Timer] warned %s, %d minutes remaining", room, remaining)
		}
	}
}

// endSession closes a room that hit the hard limit. Persistence failures are
// logged; the broadcast and the media teardown still run so connected clients
// always learn the session is over.
func (m *SessionTimerMonitor) endSession(room string) {
	if id, ok := hub.SessionID(room); ok {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CheckInterval)
		if err := m.sessions.End(ctx, id); err != nil {
			log.Printf("[Timer] persist end of %s: %v", id, err)
		}
		cancel()
	}

	m.broadcaster.BroadcastRoom(room, hub.WSMessage{Type: "session_ended", Payload: SessionEnded{Room: room}})
	m.media.CloseRoom(room)
	m.timers.Remove(room)
	log.Printf("[Timer] ended %s", room)
}
