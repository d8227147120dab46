package stats

import (
	"math"
	"testing"
	"time"

	"github.com/hrygo/groupparrot/bot"
)

const (
	tg = bot.PlatformTelegram
	g1 = "g1"
	u1 = "u1"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestIntimacy_UnknownMemberBaseline(t *testing.T) {
	r := NewRegistry(0, 0)
	if got := r.Intimacy(tg, g1, "stranger"); got != 0.15 {
		t.Errorf("Intimacy(unknown) = %v, want baseline 0.15", got)
	}
}

func TestIntimacy_GrowsWithRepliesAndTenure(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(0, 0)
	r.SetNowFunc(fixedClock(now))

	firstSeen := now.Add(-14 * 24 * time.Hour) // full tenure
	r.OnUserMessage(tg, g1, u1, firstSeen, "hi", false)
	r.OnUserMessage(tg, g1, u1, now, "hi again", true)
	r.OnBotReply(tg, g1, u1, now)

	// msgs=2, replies=1, mentions=1, tenure=14d:
	// 0.15 + 0.4*0.5 + 0.2*0.5 + 0.25*1 = 0.70
	got := r.Intimacy(tg, g1, u1)
	if math.Abs(got-0.70) > 1e-9 {
		t.Errorf("Intimacy = %v, want 0.70", got)
	}
}

func TestIntimacy_ClampedAtOne(t *testing.T) {
	now := time.Now()
	r := NewRegistry(0, 0)
	r.OnUserMessage(tg, g1, u1, now.Add(-30*24*time.Hour), "hi", true)
	for i := 0; i < 5; i++ {
		r.OnBotReply(tg, g1, u1, now)
	}

	if got := r.Intimacy(tg, g1, u1); got > 1 {
		t.Errorf("Intimacy = %v, exceeded clamp", got)
	}
}

func TestUserMessageRate(t *testing.T) {
	now := time.Now()
	r := NewRegistry(0, 0)
	r.SetNowFunc(fixedClock(now))

	if r.UserMessageRate(tg, g1, u1) != 0 {
		t.Error("rate for unknown member should be 0")
	}

	// 10 messages inside the 5-minute window -> 10/50 = 0.2.
	for i := 0; i < 10; i++ {
		r.OnUserMessage(tg, g1, u1, now.Add(-time.Minute), "m", false)
	}
	// One stale message outside the window, must not count.
	r.OnUserMessage(tg, g1, u1, now.Add(-10*time.Minute), "old", false)

	got := r.UserMessageRate(tg, g1, u1)
	if math.Abs(got-0.2) > 1e-9 {
		t.Errorf("UserMessageRate = %v, want 0.2", got)
	}
}

func TestUserRepetitionScore(t *testing.T) {
	now := time.Now()
	r := NewRegistry(0, 0)
	r.SetNowFunc(fixedClock(now))

	r.OnUserMessage(tg, g1, u1, now.Add(-30*time.Second), "哈哈哈", false)
	if r.UserRepetitionScore(tg, g1, u1) != 0 {
		t.Error("single message should score 0")
	}

	// Same text with varied trailing punctuation normalizes equal.
	r.OnUserMessage(tg, g1, u1, now.Add(-20*time.Second), "哈哈哈！", false)
	r.OnUserMessage(tg, g1, u1, now.Add(-10*time.Second), "哈哈哈。", false)

	// max=3 -> (3-1)/3
	got := r.UserRepetitionScore(tg, g1, u1)
	if math.Abs(got-2.0/3) > 1e-9 {
		t.Errorf("UserRepetitionScore = %v, want 2/3", got)
	}
}

func TestGroupMemeScore(t *testing.T) {
	now := time.Now()
	r := NewRegistry(0, 0)
	r.SetNowFunc(fixedClock(now))

	// One user echoing alone is not a group meme.
	r.OnUserMessage(tg, g1, "a", now.Add(-time.Minute), "蚌埠住了", false)
	if r.GroupMemeScore(tg, g1, "蚌埠住了") != 0 {
		t.Error("single-user echo should score 0")
	}

	// Three distinct users -> (3-1)/4 = 0.5.
	r.OnUserMessage(tg, g1, "b", now.Add(-50*time.Second), "蚌埠住了", false)
	r.OnUserMessage(tg, g1, "c", now.Add(-40*time.Second), "蚌埠住了！", false)

	got := r.GroupMemeScore(tg, g1, "蚌埠住了")
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("GroupMemeScore = %v, want 0.5", got)
	}
}

func TestSnapshot(t *testing.T) {
	now := time.Now()
	r := NewRegistry(0, 0)

	if _, ok := r.Snapshot(tg, g1, "nobody"); ok {
		t.Error("snapshot of unknown member should report !ok")
	}

	r.OnUserMessage(tg, g1, u1, now, "hi", true)
	r.OnBotReply(tg, g1, u1, now)

	snap, ok := r.Snapshot(tg, g1, u1)
	if !ok {
		t.Fatal("snapshot missing for known member")
	}
	if snap.TotalMessagesFromUser != 1 || snap.TotalRepliesFromBot != 1 || snap.TotalMentionsBot != 1 {
		t.Errorf("snapshot counters = %+v", snap)
	}
	if snap.Intimacy <= 0 {
		t.Error("snapshot intimacy not derived")
	}
}

func TestRecentBufferBounded(t *testing.T) {
	now := time.Now()
	r := NewRegistry(5, 8)
	for i := 0; i < 20; i++ {
		r.OnUserMessage(tg, g1, u1, now, "m", false)
	}

	r.mu.RLock()
	memberLen := len(r.members[memberKey(tg, g1, u1)].recent)
	groupLen := len(r.groups[groupKey(tg, g1)])
	r.mu.RUnlock()

	if memberLen != 5 {
		t.Errorf("member recent = %d, want bounded at 5", memberLen)
	}
	if groupLen != 8 {
		t.Errorf("group recent = %d, want bounded at 8", groupLen)
	}
}
