package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"discussio-backend/internal/config"
	"discussio-backend/internal/store"
)

type fakeStreakStore struct {
	groups  []*store.Group
	senders map[string]int // groupID -> distinct senders in window
	streaks map[string]*store.GroupStreak
	failing map[string]bool
	saves   int
}

func newFakeStreakStore() *fakeStreakStore {
	return &fakeStreakStore{
		senders: make(map[string]int),
		streaks: make(map[string]*store.GroupStreak),
		failing: make(map[string]bool),
	}
}

func (f *fakeStreakStore) addGroup(members int) string {
	group := &store.Group{ID: primitive.NewObjectID()}
	for i := 0; i < members; i++ {
		group.Members = append(group.Members, primitive.NewObjectID())
	}
	f.groups = append(f.groups, group)
	return group.ID.Hex()
}

func (f *fakeStreakStore) List(context.Context) ([]*store.Group, error) {
	return f.groups, nil
}

func (f *fakeStreakStore) CountDistinctSenders(_ context.Context, groupID string, _ time.Time) (int, error) {
	if f.failing[groupID] {
		return 0, errors.New("messages collection unavailable")
	}
	return f.senders[groupID], nil
}

func (f *fakeStreakStore) GetStreak(_ context.Context, groupID string) (*store.GroupStreak, error) {
	return f.streaks[groupID], nil
}

func (f *fakeStreakStore) SaveStreak(_ context.Context, groupID string, count int, lastActiveDay string) error {
	f.saves++
	f.streaks[groupID] = &store.GroupStreak{StreakCount: count, LastActiveDay: lastActiveDay}
	return nil
}

func streakConfig() config.StreakConfig {
	return config.StreakConfig{
		MinPercent:    0.2,
		MinAbsolute:   2,
		CheckInterval: time.Hour,
		MaxGapDays:    7,
	}
}

func TestStreakIncrementAndSameDayIdempotence(t *testing.T) {
	st := newFakeStreakStore()
	gid := st.addGroup(10) // threshold = max(2, round(10*0.2)) = 2
	st.senders[gid] = 2

	m := NewStreakMonitor(st, streakConfig())
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	m.Sweep(context.Background(), now)
	got := st.streaks[gid]
	if got == nil || got.StreakCount != 1 {
		t.Fatalf("streak after first sweep = %+v, want count 1", got)
	}
	if got.LastActiveDay != "2026-03-02" {
		t.Errorf("last_active_day = %q, want 2026-03-02", got.LastActiveDay)
	}

	// a second sweep the same day must not double count
	m.Sweep(context.Background(), now.Add(time.Hour))
	if got := st.streaks[gid]; got.StreakCount != 1 {
		t.Errorf("streak after same-day resweep = %d, want 1", got.StreakCount)
	}
	if st.saves != 1 {
		t.Errorf("saves = %d, want 1", st.saves)
	}

	// next day extends the streak
	m.Sweep(context.Background(), now.AddDate(0, 0, 1))
	if got := st.streaks[gid]; got.StreakCount != 2 {
		t.Errorf("streak next day = %d, want 2", got.StreakCount)
	}
}

func TestStreakGapTolerance(t *testing.T) {
	tests := []struct {
		name      string
		lastDay   string
		prevCount int
		want      int
	}{
		{name: "within tolerance continues", lastDay: "2026-02-26", prevCount: 5, want: 6},
		{name: "beyond tolerance restarts at one", lastDay: "2026-02-10", prevCount: 5, want: 1},
		{name: "no history starts at one", lastDay: "", prevCount: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStreakStore()
			gid := st.addGroup(10)
			st.senders[gid] = 3
			if tt.lastDay != "" {
				st.streaks[gid] = &store.GroupStreak{StreakCount: tt.prevCount, LastActiveDay: tt.lastDay}
			}

			m := NewStreakMonitor(st, streakConfig())
			m.Sweep(context.Background(), time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

			if got := st.streaks[gid].StreakCount; got != tt.want {
				t.Errorf("streak = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStreakResetAfterLongInactivity(t *testing.T) {
	st := newFakeStreakStore()
	gid := st.addGroup(10)
	st.senders[gid] = 0
	st.streaks[gid] = &store.GroupStreak{StreakCount: 4, LastActiveDay: "2026-02-10"}

	m := NewStreakMonitor(st, streakConfig())
	m.Sweep(context.Background(), time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	if got := st.streaks[gid].StreakCount; got != 0 {
		t.Errorf("streak = %d, want 0 after exceeding the gap tolerance", got)
	}
}

func TestStreakQuietDayWithinToleranceUntouched(t *testing.T) {
	st := newFakeStreakStore()
	gid := st.addGroup(10)
	st.senders[gid] = 1 // below threshold
	st.streaks[gid] = &store.GroupStreak{StreakCount: 4, LastActiveDay: "2026-03-01"}

	m := NewStreakMonitor(st, streakConfig())
	m.Sweep(context.Background(), time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	if got := st.streaks[gid].StreakCount; got != 4 {
		t.Errorf("streak = %d, want 4 untouched", got)
	}
	if st.saves != 0 {
		t.Errorf("saves = %d, want 0", st.saves)
	}
}

func TestStreakPerGroupOverrides(t *testing.T) {
	st := newFakeStreakStore()
	gid := st.addGroup(10)
	st.senders[gid] = 4
	// derived threshold would be 2; the override demands 5
	st.streaks[gid] = &store.GroupStreak{Threshold: 5}

	m := NewStreakMonitor(st, streakConfig())
	m.Sweep(context.Background(), time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	if got := st.streaks[gid].StreakCount; got != 0 {
		t.Errorf("streak = %d, want 0 below the overridden threshold", got)
	}
}

func TestStreakSweepIsolatesGroupFailures(t *testing.T) {
	st := newFakeStreakStore()
	broken := st.addGroup(10)
	healthy := st.addGroup(10)
	st.failing[broken] = true
	st.senders[healthy] = 3

	m := NewStreakMonitor(st, streakConfig())
	m.Sweep(context.Background(), time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	if got := st.streaks[healthy]; got == nil || got.StreakCount != 1 {
		t.Errorf("healthy group streak = %+v, want count 1", got)
	}
}
