package energy

import (
	"math"
	"testing"
	"time"
)

func TestModel_StartsFull(t *testing.T) {
	m := NewModel(0, 0)
	if got := m.Value(); got != 1 {
		t.Errorf("initial energy = %v, want 1", got)
	}
}

func TestModel_ReplySpendsEnergy(t *testing.T) {
	now := time.Now()
	m := NewModel(0.05, 0.10)
	m.SetNowFunc(func() time.Time { return now })

	m.OnReplySent()
	m.OnReplySent()
	if got := m.Value(); math.Abs(got-0.80) > 1e-9 {
		t.Errorf("energy after 2 replies = %v, want 0.80", got)
	}
}

func TestModel_RecoversOverTime(t *testing.T) {
	now := time.Now()
	m := NewModel(0.05, 0.10)
	m.SetNowFunc(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		m.OnReplySent() // down to 0.50
	}

	now = now.Add(4 * time.Minute) // +0.20
	if got := m.Value(); math.Abs(got-0.70) > 1e-9 {
		t.Errorf("energy after 4 min recovery = %v, want 0.70", got)
	}

	// Recovery caps at 1.
	now = now.Add(time.Hour)
	if got := m.Value(); got != 1 {
		t.Errorf("energy after long recovery = %v, want capped at 1", got)
	}
}

func TestModel_FloorsAtZero(t *testing.T) {
	now := time.Now()
	m := NewModel(0.05, 0.30)
	m.SetNowFunc(func() time.Time { return now })

	for i := 0; i < 10; i++ {
		m.OnReplySent()
	}
	if got := m.Value(); got != 0 {
		t.Errorf("energy = %v, want floored at 0", got)
	}
}

func TestActivityTracker_Level(t *testing.T) {
	now := time.Now()
	a := NewActivityTracker(5*time.Minute, 10)
	a.SetNowFunc(func() time.Time { return now })

	if count, level := a.Level("k"); count != 0 || level != 0 {
		t.Errorf("empty window = (%d, %v), want (0, 0)", count, level)
	}

	// 25 messages in a 5-minute/10-per-minute window -> 25/50 = 0.5.
	for i := 0; i < 25; i++ {
		a.Record("k")
	}
	count, level := a.Level("k")
	if count != 25 {
		t.Errorf("count = %d, want 25", count)
	}
	if math.Abs(level-0.5) > 1e-9 {
		t.Errorf("level = %v, want 0.5", level)
	}
}

func TestActivityTracker_EvictsExpired(t *testing.T) {
	now := time.Now()
	a := NewActivityTracker(time.Minute, 10)
	a.SetNowFunc(func() time.Time { return now })

	a.Record("k")
	a.Record("k")

	now = now.Add(2 * time.Minute)
	if count, _ := a.Level("k"); count != 0 {
		t.Errorf("count = %d, want 0 after window expiry", count)
	}
}

func TestActivityTracker_LevelClamped(t *testing.T) {
	now := time.Now()
	a := NewActivityTracker(time.Minute, 1)
	a.SetNowFunc(func() time.Time { return now })

	for i := 0; i < 100; i++ {
		a.Record("k")
	}
	if _, level := a.Level("k"); level != 1 {
		t.Errorf("level = %v, want clamped at 1", level)
	}
}
