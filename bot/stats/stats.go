// Package stats maintains running per-member and per-group statistics:
// intimacy, message rate, repetition, meme spread, spam taxonomy and
// urgency. All derived scores are clamped to [0,1].
package stats

import (
	"sync"
	"time"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/textsig"
)

const (
	defaultMemberRecent = 30
	defaultGroupRecent  = 60

	rateWindow       = 5 * time.Minute
	repetitionWindow = 2 * time.Minute
	tenureFullDays   = 14.0
)

type timedText struct {
	at     time.Time
	userID string
	text   string
}

// MemberStats holds the raw counters for one (platform, group, user).
type MemberStats struct {
	TotalMessagesFromUser int64
	TotalRepliesFromBot   int64
	TotalMentionsBot      int64
	FirstSeenAt           time.Time
	LastActiveAt          time.Time
	LastRepliedAt         time.Time

	recent []timedText // bounded FIFO
}

// MemberSnapshot is a read-only copy for the debug surface.
type MemberSnapshot struct {
	TotalMessagesFromUser int64     `json:"total_messages_from_user"`
	TotalRepliesFromBot   int64     `json:"total_replies_from_bot"`
	TotalMentionsBot      int64     `json:"total_mentions_bot"`
	FirstSeenAt           time.Time `json:"first_seen_at"`
	LastActiveAt          time.Time `json:"last_active_at"`
	LastRepliedAt         time.Time `json:"last_replied_at,omitempty"`
	Intimacy              float64   `json:"intimacy"`
}

// Registry is the process-wide stats store. Entries are created lazily
// and kept for the process lifetime.
type Registry struct {
	mu           sync.RWMutex
	members      map[string]*MemberStats // platform:groupId:userId
	groups       map[string][]timedText  // platform:groupId, bounded FIFO
	memberRecent int
	groupRecent  int
	nowFunc      func() time.Time
}

// NewRegistry creates a stats registry with the given recent-buffer
// bounds (defaults 30 per member, 60 per group).
func NewRegistry(memberRecent, groupRecent int) *Registry {
	if memberRecent <= 0 {
		memberRecent = defaultMemberRecent
	}
	if groupRecent <= 0 {
		groupRecent = defaultGroupRecent
	}
	return &Registry{
		members:      make(map[string]*MemberStats),
		groups:       make(map[string][]timedText),
		memberRecent: memberRecent,
		groupRecent:  groupRecent,
		nowFunc:      time.Now,
	}
}

// SetNowFunc overrides the clock. Test use only.
func (r *Registry) SetNowFunc(now func() time.Time) { r.nowFunc = now }

func memberKey(platform bot.Platform, groupID, userID string) string {
	return string(platform) + ":" + groupID + ":" + userID
}

func groupKey(platform bot.Platform, groupID string) string {
	return string(platform) + ":" + groupID
}

func (r *Registry) memberLocked(key string, ts time.Time) *MemberStats {
	m, ok := r.members[key]
	if !ok {
		m = &MemberStats{FirstSeenAt: ts}
		r.members[key] = m
	}
	return m
}

// OnUserMessage records one inbound user message.
func (r *Registry) OnUserMessage(platform bot.Platform, groupID, userID string, ts time.Time, text string, mentionsBot bool) {
	if ts.IsZero() {
		ts = r.nowFunc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.memberLocked(memberKey(platform, groupID, userID), ts)
	m.TotalMessagesFromUser++
	if mentionsBot {
		m.TotalMentionsBot++
	}
	m.LastActiveAt = ts
	m.recent = append(m.recent, timedText{at: ts, userID: userID, text: text})
	if len(m.recent) > r.memberRecent {
		m.recent = m.recent[len(m.recent)-r.memberRecent:]
	}

	gk := groupKey(platform, groupID)
	ring := append(r.groups[gk], timedText{at: ts, userID: userID, text: text})
	if len(ring) > r.groupRecent {
		ring = ring[len(ring)-r.groupRecent:]
	}
	r.groups[gk] = ring
}

// OnBotReply records one bot reply addressed to the user.
func (r *Registry) OnBotReply(platform bot.Platform, groupID, userID string, ts time.Time) {
	if ts.IsZero() {
		ts = r.nowFunc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.memberLocked(memberKey(platform, groupID, userID), ts)
	m.TotalRepliesFromBot++
	m.LastRepliedAt = ts
}

// Intimacy derives the relationship score:
// 0.15 base + reply ratio + mention ratio + tenure, clamped to [0,1].
func (r *Registry) Intimacy(platform bot.Platform, groupID, userID string) float64 {
	r.mu.RLock()
	m, ok := r.members[memberKey(platform, groupID, userID)]
	if !ok {
		r.mu.RUnlock()
		return 0.15
	}
	msgs := float64(m.TotalMessagesFromUser)
	replies := float64(m.TotalRepliesFromBot)
	mentions := float64(m.TotalMentionsBot)
	firstSeen := m.FirstSeenAt
	r.mu.RUnlock()

	if msgs < 1 {
		msgs = 1
	}
	tenureDays := r.nowFunc().Sub(firstSeen).Hours() / 24
	score := 0.15 +
		0.4*textsig.Clamp01(replies/msgs) +
		0.2*textsig.Clamp01(mentions/msgs) +
		0.25*textsig.Clamp01(tenureDays/tenureFullDays)
	return textsig.Clamp01(score)
}

// UserMessageRate returns the sender's activity in the last 5 minutes,
// normalized so 10 messages per minute reads as 1.0.
func (r *Registry) UserMessageRate(platform bot.Platform, groupID, userID string) float64 {
	now := r.nowFunc()
	cutoff := now.Add(-rateWindow)

	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[memberKey(platform, groupID, userID)]
	if !ok {
		return 0
	}
	count := 0
	for _, t := range m.recent {
		if t.at.After(cutoff) {
			count++
		}
	}
	return textsig.Clamp01(float64(count) / (rateWindow.Minutes() * 10))
}

// UserRepetitionScore measures how often the sender repeated the same
// normalized text within the last 2 minutes: (max-1)/3 clamped.
func (r *Registry) UserRepetitionScore(platform bot.Platform, groupID, userID string) float64 {
	now := r.nowFunc()
	cutoff := now.Add(-repetitionWindow)

	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[memberKey(platform, groupID, userID)]
	if !ok {
		return 0
	}
	counts := make(map[string]int)
	maxCount := 0
	for _, t := range m.recent {
		if !t.at.After(cutoff) {
			continue
		}
		n := textsig.Normalize(t.text)
		if n == "" {
			continue
		}
		counts[n]++
		if counts[n] > maxCount {
			maxCount = counts[n]
		}
	}
	if maxCount <= 1 {
		return 0
	}
	return textsig.Clamp01(float64(maxCount-1) / 3)
}

// GroupMemeScore measures how many distinct users echoed the given text
// (normalized-equal) in the last 2 minutes: (distinct-1)/4 clamped.
func (r *Registry) GroupMemeScore(platform bot.Platform, groupID, text string) float64 {
	now := r.nowFunc()
	cutoff := now.Add(-repetitionWindow)
	norm := textsig.Normalize(text)
	if norm == "" {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make(map[string]bool)
	for _, t := range r.groups[groupKey(platform, groupID)] {
		if !t.at.After(cutoff) {
			continue
		}
		if textsig.Normalize(t.text) == norm {
			users[t.userID] = true
		}
	}
	if len(users) <= 1 {
		return 0
	}
	return textsig.Clamp01(float64(len(users)-1) / 4)
}

// recentUserTexts returns the sender's messages inside the window,
// oldest first.
func (r *Registry) recentUserTexts(platform bot.Platform, groupID, userID string, window time.Duration) []timedText {
	now := r.nowFunc()
	cutoff := now.Add(-window)

	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[memberKey(platform, groupID, userID)]
	if !ok {
		return nil
	}
	out := make([]timedText, 0, len(m.recent))
	for _, t := range m.recent {
		if t.at.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// Snapshot returns a read-only view of the member's counters for the
// debug surface. The second result is false when the member is unknown.
func (r *Registry) Snapshot(platform bot.Platform, groupID, userID string) (MemberSnapshot, bool) {
	r.mu.RLock()
	m, ok := r.members[memberKey(platform, groupID, userID)]
	if !ok {
		r.mu.RUnlock()
		return MemberSnapshot{}, false
	}
	snap := MemberSnapshot{
		TotalMessagesFromUser: m.TotalMessagesFromUser,
		TotalRepliesFromBot:   m.TotalRepliesFromBot,
		TotalMentionsBot:      m.TotalMentionsBot,
		FirstSeenAt:           m.FirstSeenAt,
		LastActiveAt:          m.LastActiveAt,
		LastRepliedAt:         m.LastRepliedAt,
	}
	r.mu.RUnlock()
	snap.Intimacy = r.Intimacy(platform, groupID, userID)
	return snap, true
}
