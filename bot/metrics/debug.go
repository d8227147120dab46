package metrics

import (
	"sync"
	"time"
)

// PlanRecord is the last planner decision kept per session.
type PlanRecord struct {
	At          time.Time          `json:"at"`
	TraceID     string             `json:"trace_id,omitempty"`
	Mode        string             `json:"mode"`
	ShouldReply bool               `json:"should_reply"`
	Probability float64            `json:"probability"`
	Reason      string             `json:"reason,omitempty"`
	Factors     map[string]float64 `json:"factors,omitempty"`
}

// PromptRecord is the last prompt assembly kept per session, flattened
// to text for operational inspection.
type PromptRecord struct {
	At       time.Time `json:"at"`
	TraceID  string    `json:"trace_id,omitempty"`
	System   string    `json:"system"`
	User     string    `json:"user"`
	ReplyLen int       `json:"reply_len"`
}

// DebugRegistry retains the most recent plan and prompt per session key
// for the read-only debug surface.
type DebugRegistry struct {
	mu      sync.RWMutex
	plans   map[string]PlanRecord
	prompts map[string]PromptRecord
}

// NewDebugRegistry creates an empty registry.
func NewDebugRegistry() *DebugRegistry {
	return &DebugRegistry{
		plans:   make(map[string]PlanRecord),
		prompts: make(map[string]PromptRecord),
	}
}

// RecordPlan stores the session's latest planner decision.
func (d *DebugRegistry) RecordPlan(sessionKey string, rec PlanRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plans[sessionKey] = rec
}

// RecordPrompt stores the session's latest prompt assembly.
func (d *DebugRegistry) RecordPrompt(sessionKey string, rec PromptRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts[sessionKey] = rec
}

// LastPlan returns the latest plan for a session, if any.
func (d *DebugRegistry) LastPlan(sessionKey string) (PlanRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.plans[sessionKey]
	return rec, ok
}

// LastPrompt returns the latest prompt assembly for a session, if any.
func (d *DebugRegistry) LastPrompt(sessionKey string) (PromptRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.prompts[sessionKey]
	return rec, ok
}
