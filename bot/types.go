// Package bot defines the shared data model of the conversation engine:
// inbound chat events, stored conversation turns, and the persona/style
// knobs the reply pipeline works with.
package bot

import (
	"fmt"
	"time"
)

// Platform represents a supported chat platform.
type Platform string

const (
	PlatformQQ       Platform = "qq"
	PlatformTelegram Platform = "telegram"
	PlatformWeChat   Platform = "wechat"
	PlatformWeb      Platform = "web"
)

// IsValid checks if the platform is valid.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformQQ, PlatformTelegram, PlatformWeChat, PlatformWeb:
		return true
	default:
		return false
	}
}

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// ChatEvent is a normalized inbound message from a platform adapter.
// It is immutable after ingestion; orchestration attaches derived fields
// to an EnrichedEvent wrapper instead of mutating the event.
type ChatEvent struct {
	Platform    Platform
	GroupID     string
	UserID      string
	MessageID   string
	RawText     string
	Timestamp   time.Time // event time as reported by the platform, may be zero
	IngestTime  time.Time // local receive time, filled by the orchestrator if unset
	MentionsBot bool
	FromBot     bool
	UserName    string
	GroupName   string
	IsPrivate   bool
}

// SessionKey scopes one conversation channel: platform:groupId.
func (e *ChatEvent) SessionKey() string {
	return fmt.Sprintf("%s:%s", e.Platform, e.GroupID)
}

// UserKey scopes one sender inside a channel: platform:groupId:userId.
func (e *ChatEvent) UserKey() string {
	return fmt.Sprintf("%s:%s:%s", e.Platform, e.GroupID, e.UserID)
}

// EventTime returns the platform timestamp, falling back to ingest time.
func (e *ChatEvent) EventTime() time.Time {
	if !e.Timestamp.IsZero() {
		return e.Timestamp
	}
	return e.IngestTime
}

// ChatTurn is one record of the conversation log. Appended only;
// the store keeps a bounded ring per session key.
type ChatTurn struct {
	Role        Role
	Content     string
	Timestamp   time.Time
	UserID      string
	UserName    string
	MentionsBot bool
	IsCommand   bool
}

// QuoteTarget identifies the user message a reply should reference
// via the platform's native quote mechanism.
type QuoteTarget struct {
	MessageID string
	UserID    string
	Seq       int64
	Text      string
}

// EnrichedEvent wraps a ChatEvent with orchestration-private fields.
// The public event stays untouched so adapters can share it freely.
type EnrichedEvent struct {
	ChatEvent

	// Seq is the per-session monotone sequence number assigned when the
	// orchestrator first observes the event.
	Seq int64

	// MergedText is the debounced snapshot's texts joined into one string.
	// Empty for non-debounced (command / mention) events.
	MergedText string

	// QuoteTarget is the scored quote candidate of a debounced snapshot.
	QuoteTarget *QuoteTarget

	// SnapshotCount is the number of events coalesced into this one.
	SnapshotCount int
}

// Text returns the merged snapshot text when present, else the raw text.
func (e *EnrichedEvent) Text() string {
	if e.MergedText != "" {
		return e.MergedText
	}
	return e.RawText
}

// Persona describes the bot's fixed character used in the system prompt.
type Persona struct {
	Name        string
	Description string
	Tone        string
	Constraints []string
}

// DynamicStyle carries the per-reply style knobs derived from the
// planner mode, blended with intimacy and energy.
type DynamicStyle struct {
	Tone     string
	Slang    float64 // 0..1
	Intimacy float64 // 0..1

	// Delivery knobs consumed by the utterance planner.
	Verbosity                float64 // 0..1
	MultiUtterancePreference float64 // 0..1
}
