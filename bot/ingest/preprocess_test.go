package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/convlog"
	"github.com/hrygo/groupparrot/bot/stats"
)

func newPre(t *testing.T) (*Preprocessor, *convlog.Store, *stats.Registry) {
	t.Helper()
	log := convlog.NewStore(50)
	reg := stats.NewRegistry(0, 0)
	return NewPreprocessor(log, reg, 30*time.Second, nil), log, reg
}

func userEvent(text string) *bot.ChatEvent {
	now := time.Now()
	return &bot.ChatEvent{
		Platform:   bot.PlatformTelegram,
		GroupID:    "g1",
		UserID:     "u1",
		RawText:    text,
		Timestamp:  now,
		IngestTime: now,
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		text      string
		mentions  bool
		isCommand bool
	}{
		{"/help", false, true},
		{"！stats", false, true},
		{"  /energy", false, true},
		{"你好", false, false},
		{"help me", false, false},
	}
	for _, c := range cases {
		e := userEvent(c.text)
		e.MentionsBot = c.mentions
		cls := Classify(e)
		if cls.IsCommand != c.isCommand {
			t.Errorf("Classify(%q).IsCommand = %v, want %v", c.text, cls.IsCommand, c.isCommand)
		}
	}
}

func TestProcess_DropsMalformed(t *testing.T) {
	p, log, _ := newPre(t)

	cases := []*bot.ChatEvent{
		nil,
		{Platform: bot.PlatformTelegram, UserID: "u1"},              // no group
		{Platform: bot.PlatformTelegram, GroupID: "g1"},             // no user
		{Platform: "matrix", GroupID: "g1", UserID: "u1"},           // bad platform
	}
	for i, e := range cases {
		ok, err := p.Process(e)
		if ok || !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("case %d: Process = (%v, %v), want (false, ErrInvalidEvent)", i, ok, err)
		}
	}
	if log.Len("telegram:g1") != 0 {
		t.Error("malformed events must not reach the conversation log")
	}
}

func TestProcess_NormalMessageContinues(t *testing.T) {
	p, log, reg := newPre(t)

	e := userEvent("下午去打球吗")
	ok, err := p.Process(e)
	if !ok || err != nil {
		t.Fatalf("Process = (%v, %v), want (true, nil)", ok, err)
	}
	if log.Len(e.SessionKey()) != 1 {
		t.Error("turn not appended")
	}
	snap, found := reg.Snapshot(e.Platform, e.GroupID, e.UserID)
	if !found || snap.TotalMessagesFromUser != 1 {
		t.Error("stats not updated for normal message")
	}
}

func TestProcess_BotEchoStoredButStops(t *testing.T) {
	p, log, reg := newPre(t)

	e := userEvent("我是机器人自己发的")
	e.FromBot = true
	ok, err := p.Process(e)
	if ok || err != nil {
		t.Fatalf("Process(bot echo) = (%v, %v), want (false, nil)", ok, err)
	}

	turns := log.RecentTurns(e.SessionKey(), 0)
	if len(turns) != 1 || turns[0].Role != bot.RoleBot {
		t.Error("bot echo should be stored as a bot turn")
	}
	if _, found := reg.Snapshot(e.Platform, e.GroupID, e.UserID); found {
		t.Error("bot echo must not feed member stats")
	}
}

// TestProcess_StaleBackfill covers delayed event delivery: old messages
// land in the log for context but never trigger planning or stats.
func TestProcess_StaleBackfill(t *testing.T) {
	p, log, reg := newPre(t)

	e := userEvent("半小时前的消息")
	e.Timestamp = e.IngestTime.Add(-time.Minute)
	ok, err := p.Process(e)
	if ok || err != nil {
		t.Fatalf("Process(stale) = (%v, %v), want (false, nil)", ok, err)
	}
	if log.Len(e.SessionKey()) != 1 {
		t.Error("stale event should still be stored for context")
	}
	if _, found := reg.Snapshot(e.Platform, e.GroupID, e.UserID); found {
		t.Error("stale event must not feed member stats")
	}
}

// Stale commands and mentions still go through: the user is addressing
// the bot directly, lag does not matter.
func TestProcess_StaleCommandAndMentionPass(t *testing.T) {
	p, _, _ := newPre(t)

	cmd := userEvent("/help")
	cmd.Timestamp = cmd.IngestTime.Add(-time.Minute)
	if ok, _ := p.Process(cmd); !ok {
		t.Error("stale command should still continue")
	}

	mention := userEvent("还在吗")
	mention.MentionsBot = true
	mention.Timestamp = mention.IngestTime.Add(-time.Minute)
	if ok, _ := p.Process(mention); !ok {
		t.Error("stale mention should still continue")
	}
}

func TestProcess_FillsIngestTime(t *testing.T) {
	p, _, _ := newPre(t)

	e := userEvent("hi")
	e.IngestTime = time.Time{}
	if ok, _ := p.Process(e); !ok {
		t.Fatal("expected continue")
	}
	if e.IngestTime.IsZero() {
		t.Error("ingest time not filled")
	}
}
