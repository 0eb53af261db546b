package presence

import (
	"fmt"
	"sort"
	"testing"
)

func TestRegistryRegisterIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Register("conn-1", "user-a")
	r.Register("conn-1", "user-a")

	conns := r.ConnectionsFor("user-a")
	if len(conns) != 1 || conns[0] != "conn-1" {
		t.Errorf("ConnectionsFor = %v, want [conn-1]", conns)
	}
}

func TestRegistryUnregisterUnknownIsNoop(t *testing.T) {
	r := NewRegistry()

	userID, last := r.Unregister("never-registered")
	if userID != "" || last {
		t.Errorf("Unregister(unknown) = (%q, %v), want (\"\", false)", userID, last)
	}
}

func TestRegistryLastConnection(t *testing.T) {
	r := NewRegistry()

	const n = 5
	for i := 0; i < n; i++ {
		r.Register(fmt.Sprintf("conn-%d", i), "user-a")
	}

	for i := 0; i < n; i++ {
		userID, last := r.Unregister(fmt.Sprintf("conn-%d", i))
		if userID != "user-a" {
			t.Fatalf("Unregister conn-%d: user = %q, want user-a", i, userID)
		}
		wantLast := i == n-1
		if last != wantLast {
			t.Errorf("Unregister conn-%d: last = %v, want %v", i, last, wantLast)
		}
	}

	if conns := r.ConnectionsFor("user-a"); len(conns) != 0 {
		t.Errorf("user-a still has connections after all unregistered: %v", conns)
	}
	if _, ok := r.UserFor("conn-0"); ok {
		t.Error("conn-0 still resolves after unregister")
	}
}

func TestRegistryMultipleTabs(t *testing.T) {
	r := NewRegistry()

	r.Register("tab-1", "user-a")
	r.Register("tab-2", "user-a")
	r.Register("tab-3", "user-b")

	conns := r.ConnectionsFor("user-a")
	sort.Strings(conns)
	if len(conns) != 2 || conns[0] != "tab-1" || conns[1] != "tab-2" {
		t.Errorf("ConnectionsFor(user-a) = %v, want [tab-1 tab-2]", conns)
	}

	// closing one tab is not the last connection
	if _, last := r.Unregister("tab-1"); last {
		t.Error("Unregister(tab-1) reported last connection, user still has tab-2")
	}
	if _, last := r.Unregister("tab-2"); !last {
		t.Error("Unregister(tab-2) did not report last connection")
	}
}

func TestRegistryRebindConnection(t *testing.T) {
	r := NewRegistry()

	r.Register("conn-1", "user-a")
	r.Register("conn-1", "user-b")

	if conns := r.ConnectionsFor("user-a"); len(conns) != 0 {
		t.Errorf("user-a kept stale connection: %v", conns)
	}
	if user, _ := r.UserFor("conn-1"); user != "user-b" {
		t.Errorf("UserFor(conn-1) = %q, want user-b", user)
	}
}

func TestRoomPresenceLifecycle(t *testing.T) {
	p := NewRoomPresence()

	p.Join("room-1", "user-a", "conn-1", nil)
	p.Join("room-1", "user-b", "conn-2", nil)
	p.Join("room-2", "user-a", "conn-1", nil)

	if got := len(p.Snapshot("room-1")); got != 2 {
		t.Errorf("room-1 online = %d, want 2", got)
	}

	if !p.Leave("room-1", "user-b") {
		t.Error("Leave(room-1, user-b) = false, want true")
	}
	if p.Leave("room-1", "user-b") {
		t.Error("second Leave(room-1, user-b) = true, want false")
	}

	affected := p.RemoveUser("user-a")
	sort.Strings(affected)
	if len(affected) != 2 || affected[0] != "room-1" || affected[1] != "room-2" {
		t.Errorf("RemoveUser affected = %v, want [room-1 room-2]", affected)
	}

	// both rooms emptied out and were dropped
	if got := len(p.Snapshot("room-1")); got != 0 {
		t.Errorf("room-1 online after removal = %d, want 0", got)
	}
	if got := len(p.Snapshot("room-2")); got != 0 {
		t.Errorf("room-2 online after removal = %d, want 0", got)
	}
}
