// Package convlog keeps the in-memory conversation log: a bounded,
// append-only ring of turns per session key. Thread-safe for concurrent
// access from the orchestrator and the debug surface.
package convlog

import (
	"sync"
	"time"

	"github.com/hrygo/groupparrot/bot"
)

const defaultMaxTurns = 50

// Store holds per-key bounded turn rings.
type Store struct {
	mu       sync.RWMutex
	rings    map[string][]bot.ChatTurn
	maxTurns int
}

// NewStore creates a conversation store keeping at most maxTurns per key
// (default 50).
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Store{
		rings:    make(map[string][]bot.ChatTurn),
		maxTurns: maxTurns,
	}
}

// AppendTurn appends a turn under the given session key, evicting the
// oldest turn when the ring is full.
func (s *Store) AppendTurn(key string, turn bot.ChatTurn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.rings[key]
	if !ok {
		ring = make([]bot.ChatTurn, 0, s.maxTurns)
	}
	ring = append(ring, turn)
	if len(ring) > s.maxTurns {
		ring = ring[len(ring)-s.maxTurns:]
	}
	s.rings[key] = ring
}

// RecentTurns returns a snapshot of the most recent turns for a key,
// oldest first. limit <= 0 returns the whole ring.
func (s *Store) RecentTurns(key string, limit int) []bot.ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.rings[key]
	if !ok || len(ring) == 0 {
		return nil
	}
	if limit > 0 && limit < len(ring) {
		ring = ring[len(ring)-limit:]
	}

	// Return a copy so callers never observe later appends.
	out := make([]bot.ChatTurn, len(ring))
	copy(out, ring)
	return out
}

// Clear removes all turns for a key.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, key)
}

// Len returns the current number of turns stored under a key.
func (s *Store) Len(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rings[key])
}
