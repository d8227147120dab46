// Package debounce coalesces bursts of messages from a single sender
// into one snapshot. Each (platform, group, user) key owns a single
// cancellable timer; a new message resets the timer and extends the
// buffered burst.
package debounce

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/groupparrot/bot"
)

const defaultDelay = 5 * time.Second

// Snapshot is the debounced aggregation handed to the flush callback.
type Snapshot struct {
	UserKey   string
	Events    []*bot.EnrichedEvent
	LastEvent *bot.EnrichedEvent
	Count     int
	FirstAt   time.Time
	LastAt    time.Time
}

type pendingEntry struct {
	events  []*bot.EnrichedEvent
	timer   *time.Timer
	gen     uint64
	firstAt time.Time
	lastAt  time.Time
}

// Debouncer buffers events per user key and flushes each burst exactly
// once after the quiet window elapses.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry
	delay   time.Duration
	logger  *slog.Logger
	closed  bool
	nextGen uint64
}

// New creates a debouncer with the given quiet window (default 5s).
func New(delay time.Duration, logger *slog.Logger) *Debouncer {
	if delay <= 0 {
		delay = defaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		pending: make(map[string]*pendingEntry),
		delay:   delay,
		logger:  logger,
	}
}

// Debounce buffers the event under its user key and returns immediately.
// When the quiet window elapses without further traffic from the same
// key, onFlush receives the snapshot exactly once. The replaced timer is
// stopped atomically with the installation of the new one, so an old
// generation can never deliver.
func (d *Debouncer) Debounce(event *bot.EnrichedEvent, onFlush func(*Snapshot)) {
	key := event.UserKey()
	now := event.IngestTime
	if now.IsZero() {
		now = time.Now()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Debug("debouncer closed, dropping event", "user_key", key)
		return
	}

	entry, ok := d.pending[key]
	if ok {
		// Reset: cancel the old timer before installing the new one.
		entry.timer.Stop()
		entry.events = append(entry.events, event)
		entry.lastAt = now
	} else {
		entry = &pendingEntry{
			events:  []*bot.EnrichedEvent{event},
			firstAt: now,
			lastAt:  now,
		}
		d.pending[key] = entry
	}
	d.nextGen++
	gen := d.nextGen
	entry.gen = gen
	entry.timer = time.AfterFunc(d.delay, func() {
		d.flush(key, gen, onFlush)
	})
	d.mu.Unlock()
}

// flush removes the entry and delivers it, but only when the firing
// timer still owns the entry. A fired timer that finds a newer
// generation (or no entry at all) is a no-op.
func (d *Debouncer) flush(key string, gen uint64, onFlush func(*Snapshot)) {
	d.mu.Lock()
	entry, ok := d.pending[key]
	if !ok || entry.gen != gen || d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	snap := &Snapshot{
		UserKey:   key,
		Events:    entry.events,
		LastEvent: entry.events[len(entry.events)-1],
		Count:     len(entry.events),
		FirstAt:   entry.firstAt,
		LastAt:    entry.lastAt,
	}
	onFlush(snap)
}

// PendingCount returns the number of buffered user keys. Debug surface.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Shutdown cancels all timers and drops buffered events. The
// conversation log already retained them at preprocess time.
func (d *Debouncer) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for key, entry := range d.pending {
		entry.timer.Stop()
		delete(d.pending, key)
	}
}
