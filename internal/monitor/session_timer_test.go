package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"discussio-backend/internal/config"
	"discussio-backend/internal/hub"
)

type fakeBroadcaster struct {
	events []hub.WSMessage
	rooms  []string
}

func (f *fakeBroadcaster) BroadcastRoom(room string, msg hub.WSMessage) {
	f.rooms = append(f.rooms, room)
	f.events = append(f.events, msg)
}

func (f *fakeBroadcaster) byType(eventType string) []hub.WSMessage {
	var out []hub.WSMessage
	for _, msg := range f.events {
		if msg.Type == eventType {
			out = append(out, msg)
		}
	}
	return out
}

type fakeEnder struct {
	ended []string
	err   error
}

func (f *fakeEnder) End(_ context.Context, id string) error {
	f.ended = append(f.ended, id)
	return f.err
}

type fakeCloser struct {
	closed []string
}

func (f *fakeCloser) CloseRoom(room string) {
	f.closed = append(f.closed, room)
}

func timerConfig() config.SessionConfig {
	return config.SessionConfig{
		WarningAfter:  15 * time.Minute,
		MaxDuration:   20 * time.Minute,
		CheckInterval: 30 * time.Second,
	}
}

func TestSessionTimerWarnThenEnd(t *testing.T) {
	timers := NewTimers()
	broadcaster := &fakeBroadcaster{}
	ender := &fakeEnder{}
	closer := &fakeCloser{}
	m := NewSessionTimerMonitor(timers, ender, broadcaster, closer, timerConfig())

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	room := hub.WhiteboardRoom("65f000000000000000000001")
	timers.StartAt(room, start)

	// before the warning threshold nothing fires
	m.Sweep(start.Add(10 * time.Minute))
	if len(broadcaster.events) != 0 {
		t.Fatalf("events before threshold: %v", broadcaster.events)
	}

	// one warning past the threshold, idempotent across sweeps
	m.Sweep(start.Add(16 * time.Minute))
	m.Sweep(start.Add(17 * time.Minute))
	warnings := broadcaster.byType("session_warning")
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want exactly 1", len(warnings))
	}
	warning := warnings[0].Payload.(SessionWarning)
	if warning.MinutesRemaining != 4 {
		t.Errorf("minutes_remaining = %d, want 4", warning.MinutesRemaining)
	}

	// past the hard limit the session ends
	m.Sweep(start.Add(21 * time.Minute))
	if got := broadcaster.byType("session_ended"); len(got) != 1 {
		t.Fatalf("got %d session_ended events, want 1", len(got))
	}
	if len(ender.ended) != 1 || ender.ended[0] != "65f000000000000000000001" {
		t.Errorf("ended sessions = %v", ender.ended)
	}
	if len(closer.closed) != 1 || closer.closed[0] != room {
		t.Errorf("closed rooms = %v", closer.closed)
	}

	// the entry is gone; later sweeps see nothing
	m.Sweep(start.Add(30 * time.Minute))
	if got := broadcaster.byType("session_ended"); len(got) != 1 {
		t.Errorf("session_ended fired again after removal: %d", len(got))
	}
}

func TestSessionTimerEndSurvivesStoreFailure(t *testing.T) {
	timers := NewTimers()
	broadcaster := &fakeBroadcaster{}
	ender := &fakeEnder{err: errors.New("mongo down")}
	closer := &fakeCloser{}
	m := NewSessionTimerMonitor(timers, ender, broadcaster, closer, timerConfig())

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	room := hub.WhiteboardRoom("65f000000000000000000002")
	timers.StartAt(room, start)

	m.Sweep(start.Add(25 * time.Minute))

	// clients still hear about the end and the media room still goes away
	if got := broadcaster.byType("session_ended"); len(got) != 1 {
		t.Errorf("got %d session_ended events, want 1", len(got))
	}
	if len(closer.closed) != 1 {
		t.Errorf("media room not closed: %v", closer.closed)
	}
	if len(timers.Snapshot()) != 0 {
		t.Error("timer entry survived the end")
	}
}

func TestTimersStartKeepsOriginalClock(t *testing.T) {
	timers := NewTimers()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	timers.StartAt("whiteboard:abc", start)
	timers.StartAt("whiteboard:abc", start.Add(10*time.Minute)) // second join

	snap := timers.Snapshot()
	if entry, ok := snap["whiteboard:abc"]; !ok || !entry.StartedAt.Equal(start) {
		t.Errorf("entry = %+v, want start %v", entry, start)
	}
}
