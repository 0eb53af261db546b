package monitor

import (
	"context"
	"log"
	"time"

	"discussio-backend/internal/config"
	"discussio-backend/internal/store"
)

const dayLayout = "2006-01-02"

// StreakStore is the slice of the group store the streak sweep reads and
// writes.
type StreakStore interface {
	List(ctx context.Context) ([]*store.Group, error)
	CountDistinctSenders(ctx context.Context, groupID string, since time.Time) (int, error)
	GetStreak(ctx context.Context, groupID string) (*store.GroupStreak, error)
	SaveStreak(ctx context.Context, groupID string, count int, lastActiveDay string) error
}

// StreakMonitor maintains per-group engagement streaks: groups where enough
// distinct members posted in the trailing 24 hours extend their streak.
type StreakMonitor struct {
	groups StreakStore
	cfg    config.StreakConfig
}

// NewStreakMonitor creates a StreakMonitor.
func NewStreakMonitor(groups StreakStore, cfg config.StreakConfig) *StreakMonitor {
	return &StreakMonitor{groups: groups, cfg: cfg}
}

// Run sweeps on the configured interval until the context is cancelled.
func (m *StreakMonitor) Run(ctx context.Context) {
	log.Printf("[Streaks] checking groups every %s", m.cfg.CheckInterval)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Streaks] stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx, time.Now().UTC())
		}
	}
}

// Sweep checks every group once. One group's failure never aborts the rest.
func (m *StreakMonitor) Sweep(ctx context.Context, now time.Time) {
	groups, err := m.groups.List(ctx)
	if err != nil {
		log.Printf("[Streaks] list groups: %v", err)
		return
	}

	for _, group := range groups {
		if err := m.checkGroup(ctx, group, now); err != nil {
			log.Printf("[Streaks] group %s: %v", group.ID.Hex(), err)
		}
	}
}

func (m *StreakMonitor) checkGroup(ctx context.Context, group *store.Group, now time.Time) error {
	groupID := group.ID.Hex()
	today := now.Format(dayLayout)

	streak, err := m.groups.GetStreak(ctx, groupID)
	if err != nil {
		return err
	}

	// per-group overrides win over the global defaults
	effective := m.cfg
	override := 0
	count := 0
	lastDay := ""
	if streak != nil {
		override = streak.Threshold
		count = streak.StreakCount
		lastDay = streak.LastActiveDay
		if streak.MinPercent > 0 {
			effective.MinPercent = streak.MinPercent
		}
	}
	threshold := effective.Threshold(len(group.Members), override)

	active, err := m.groups.CountDistinctSenders(ctx, groupID, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}

	gap := daysBetween(lastDay, now)

	if active >= threshold {
		if lastDay == today {
			// already counted today
			return nil
		}
		if lastDay != "" && gap <= m.cfg.MaxGapDays {
			count++
		} else {
			count = 1
		}
		log.Printf("[Streaks] group %s qualified (%d/%d active), streak=%d", groupID, active, threshold, count)
		return m.groups.SaveStreak(ctx, groupID, count, today)
	}

	// not qualified: the streak survives brief gaps, then resets to zero
	if lastDay != "" && gap > m.cfg.MaxGapDays && count != 0 {
		log.Printf("[Streaks] group %s inactive for %d days, streak reset", groupID, gap)
		return m.groups.SaveStreak(ctx, groupID, 0, lastDay)
	}
	return nil
}

// daysBetween counts whole days from an ISO date to now. Unparseable or empty
// dates count as an unbounded gap.
func daysBetween(day string, now time.Time) int {
	if day == "" {
		return int(^uint(0) >> 1)
	}
	parsed, err := time.Parse(dayLayout, day)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(midnight.Sub(parsed).Hours() / 24)
}
