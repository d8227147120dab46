// Package energy models the bot's global willingness to talk and the
// per-group activity level. Energy recovers over time and is spent on
// every reply; activity is a sliding window of recent group traffic.
package energy

import (
	"sync"
	"time"
)

const (
	defaultRecoveryPerMinute = 0.05
	defaultCostPerReply      = 0.10
)

// Model is the process-global energy value in [0,1], initial 1.
// Recovery is applied lazily on read; updates are atomic against
// concurrent readers.
type Model struct {
	mu          sync.Mutex
	value       float64
	lastUpdate  time.Time
	recoveryMin float64
	cost        float64
	nowFunc     func() time.Time
}

// NewModel creates an energy model (defaults: +0.05/min, -0.10/reply).
func NewModel(recoveryPerMinute, costPerReply float64) *Model {
	if recoveryPerMinute <= 0 {
		recoveryPerMinute = defaultRecoveryPerMinute
	}
	if costPerReply <= 0 {
		costPerReply = defaultCostPerReply
	}
	m := &Model{
		value:       1,
		recoveryMin: recoveryPerMinute,
		cost:        costPerReply,
		nowFunc:     time.Now,
	}
	m.lastUpdate = m.nowFunc()
	return m
}

// SetNowFunc overrides the clock. Test use only.
func (m *Model) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = now
	m.lastUpdate = now()
}

// Value applies elapsed recovery and returns the current energy.
func (m *Model) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked()
}

func (m *Model) refreshLocked() float64 {
	now := m.nowFunc()
	elapsed := now.Sub(m.lastUpdate).Minutes()
	if elapsed > 0 {
		m.value = min(1, m.value+elapsed*m.recoveryMin)
		m.lastUpdate = now
	}
	return m.value
}

// OnReplySent spends the per-reply cost, flooring at 0.
func (m *Model) OnReplySent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshLocked()
	m.value = max(0, m.value-m.cost)
}
