// Package session holds per-session turn-taking state and the per-key
// FIFO queues that serialize all orchestration work inside one session.
// A session is the scope platform:groupId.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TypingToken is the single cancellation primitive of a send in flight.
// Exactly one token may be active per session; only the pipeline that
// acquired it may end it.
type TypingToken struct {
	id        string
	startedAt time.Time
	cancelled atomic.Bool
	incoming  atomic.Int32
}

// ID returns the token's unique id.
func (t *TypingToken) ID() string { return t.id }

// StartedAt returns when typing began.
func (t *TypingToken) StartedAt() time.Time { return t.startedAt }

// Cancel marks the token cancelled. Idempotent.
func (t *TypingToken) Cancel() { t.cancelled.Store(true) }

// Cancelled reports whether the send has been interrupted.
func (t *TypingToken) Cancelled() bool { return t.cancelled.Load() }

// NoteIncoming counts one user message arriving while typing and returns
// the new count.
func (t *TypingToken) NoteIncoming() int32 { return t.incoming.Add(1) }

// IncomingWhileTyping returns the number of user messages seen since the
// token was acquired.
func (t *TypingToken) IncomingWhileTyping() int32 { return t.incoming.Load() }

// State is the turn-taking state of one session.
type State struct {
	mu             sync.Mutex
	lastBotReplyAt time.Time
	typing         *TypingToken
	forceQuote     bool
	messageSeq     int64
}

// Snapshot is a read-only view of session state for the debug surface.
type Snapshot struct {
	LastBotReplyAt      time.Time `json:"last_bot_reply_at"`
	Typing              bool      `json:"typing"`
	TypingTokenID       string    `json:"typing_token_id,omitempty"`
	IncomingWhileTyping int32     `json:"incoming_while_typing"`
	ForceQuoteNextFlush bool      `json:"force_quote_next_flush"`
	MessageSeq          int64     `json:"message_seq"`
}

// Store maps session keys to state and task queues. States are created
// lazily on first reference and live for the process lifetime.
type Store struct {
	mu      sync.Mutex
	states  map[string]*State
	queues  map[string]*taskQueue
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  bool
	nowFunc func() time.Time
}

// NewStore creates a session store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		states:  make(map[string]*State),
		queues:  make(map[string]*taskQueue),
		logger:  logger,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock. Test use only.
func (s *Store) SetNowFunc(now func() time.Time) { s.nowFunc = now }

func (s *Store) get(key string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if !ok {
		st = &State{}
		s.states[key] = st
	}
	return st
}

// NextMessageSeq assigns the next strictly monotone sequence number for
// the session.
func (s *Store) NextMessageSeq(key string) int64 {
	st := s.get(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.messageSeq++
	return st.messageSeq
}

// StartTyping installs a fresh typing token for the session, replacing
// (and cancelling) any previous one, and resets the incoming counter.
func (s *Store) StartTyping(key string) *TypingToken {
	st := s.get(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.typing != nil {
		st.typing.Cancel()
	}
	token := &TypingToken{
		id:        uuid.NewString(),
		startedAt: s.nowFunc(),
	}
	st.typing = token
	return token
}

// EndTyping clears the active token. No-op when the given token is not
// the current one, so a stale owner can never clear a newer send.
func (s *Store) EndTyping(key string, token *TypingToken) {
	if token == nil {
		return
	}
	st := s.get(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.typing == token {
		st.typing = nil
	}
}

// ActiveToken returns the current typing token, or nil.
func (s *Store) ActiveToken(key string) *TypingToken {
	st := s.get(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.typing
}

// LastBotReplyAt returns the timestamp of the previous successful send.
func (s *Store) LastBotReplyAt(key string) time.Time {
	st := s.get(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastBotReplyAt
}

// SetLastBotReplyAt records a successful send.
func (s *Store) SetLastBotReplyAt(key string, ts time.Time) {
	st := s.get(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastBotReplyAt = ts
}

// MarkForceQuoteNextFlush makes the next reply carry an explicit quote
// reference regardless of the gap rule.
func (s *Store) MarkForceQuoteNextFlush(key string) {
	st := s.get(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.forceQuote = true
}

// ClearForceQuoteNextFlush resets the force-quote bit after a successful
// send.
func (s *Store) ClearForceQuoteNextFlush(key string) {
	st := s.get(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.forceQuote = false
}

// ForceQuoteNextFlush reports the force-quote bit.
func (s *Store) ForceQuoteNextFlush(key string) bool {
	st := s.get(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.forceQuote
}

// SnapshotOf returns a read-only view of a session's state.
func (s *Store) SnapshotOf(key string) Snapshot {
	st := s.get(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	snap := Snapshot{
		LastBotReplyAt:      st.lastBotReplyAt,
		ForceQuoteNextFlush: st.forceQuote,
		MessageSeq:          st.messageSeq,
	}
	if st.typing != nil {
		snap.Typing = true
		snap.TypingTokenID = st.typing.ID()
		snap.IncomingWhileTyping = st.typing.IncomingWhileTyping()
	}
	return snap
}

// Keys returns all known session keys.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.states))
	for k := range s.states {
		keys = append(keys, k)
	}
	return keys
}

// Shutdown cancels all active typing tokens, stops accepting new work,
// and waits for the session queues to drain or the context to expire.
func (s *Store) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	for _, st := range s.states {
		st.mu.Lock()
		if st.typing != nil {
			st.typing.Cancel()
		}
		st.mu.Unlock()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("session queues did not drain before deadline")
	}
}
