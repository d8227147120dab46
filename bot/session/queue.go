package session

import (
	"fmt"
	"log/slog"
	"sync"
)

// taskQueue runs submitted functions one at a time in submission order.
// The drain goroutine exists only while tasks are pending, so idle
// sessions cost nothing.
type taskQueue struct {
	mu      sync.Mutex
	pending []func()
	running bool
}

// RunQueued submits fn to the session's FIFO queue. Tasks for the same
// key never overlap; tasks for different keys run concurrently. A panic
// inside fn is recovered and logged so the queue keeps draining.
func (s *Store) RunQueued(key string, fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("session store closed, dropping task", "session_key", key)
		return
	}
	q, ok := s.queues[key]
	if !ok {
		q = &taskQueue{}
		s.queues[key] = q
	}
	s.mu.Unlock()

	q.mu.Lock()
	q.pending = append(q.pending, fn)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	s.wg.Add(1)
	go s.drain(key, q)
}

func (s *Store) drain(key string, q *taskQueue) {
	defer s.wg.Done()
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		s.runProtected(key, fn)
	}
}

// runProtected executes one task, absorbing panics so a failing task
// never breaks the queue for subsequent ones.
func (s *Store) runProtected(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session task panicked",
				slog.String("session_key", key),
				slog.String("panic", fmt.Sprintf("%v", r)))
		}
	}()
	fn()
}

// PendingTasks returns the number of queued-but-unstarted tasks for a
// key. Debug surface only.
func (s *Store) PendingTasks(key string) int {
	s.mu.Lock()
	q, ok := s.queues[key]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
