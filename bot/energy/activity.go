package energy

import (
	"sync"
	"time"
)

const (
	defaultActivityWindow     = 5 * time.Minute
	defaultActivityNormalizer = 10 // messages per minute read as fully active
)

// ActivityTracker keeps a sliding window of message timestamps per group.
// Bot-originated messages must not be recorded by the caller, so the bot
// never inflates its own view of the room.
type ActivityTracker struct {
	mu         sync.Mutex
	windows    map[string][]time.Time
	window     time.Duration
	normalizer int
	nowFunc    func() time.Time
}

// NewActivityTracker creates a tracker (defaults: 5 min window,
// 10 msg/min normalizer).
func NewActivityTracker(window time.Duration, normalizer int) *ActivityTracker {
	if window <= 0 {
		window = defaultActivityWindow
	}
	if normalizer <= 0 {
		normalizer = defaultActivityNormalizer
	}
	return &ActivityTracker{
		windows:    make(map[string][]time.Time),
		window:     window,
		normalizer: normalizer,
		nowFunc:    time.Now,
	}
}

// SetNowFunc overrides the clock. Test use only.
func (a *ActivityTracker) SetNowFunc(now func() time.Time) { a.nowFunc = now }

// Record notes one user message in the group's window.
func (a *ActivityTracker) Record(sessionKey string) {
	now := a.nowFunc()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.windows[sessionKey] = append(a.evictLocked(sessionKey, now), now)
}

// Level evicts expired entries and returns the message count plus a
// normalized activity level in [0,1].
func (a *ActivityTracker) Level(sessionKey string) (int, float64) {
	now := a.nowFunc()
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.evictLocked(sessionKey, now)
	a.windows[sessionKey] = kept

	count := len(kept)
	level := float64(count) / a.window.Minutes() / float64(a.normalizer)
	if level > 1 {
		level = 1
	}
	return count, level
}

func (a *ActivityTracker) evictLocked(sessionKey string, now time.Time) []time.Time {
	cutoff := now.Add(-a.window)
	ring := a.windows[sessionKey]
	i := 0
	for ; i < len(ring); i++ {
		if ring[i].After(cutoff) {
			break
		}
	}
	return ring[i:]
}
