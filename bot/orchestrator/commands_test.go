package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/energy"
	"github.com/hrygo/groupparrot/bot/stats"
)

func commandEvent(text string) *bot.EnrichedEvent {
	return &bot.EnrichedEvent{ChatEvent: bot.ChatEvent{
		Platform: bot.PlatformTelegram,
		GroupID:  "g1",
		UserID:   "u1",
		RawText:  text,
	}}
}

func newCommandsFixture() (*Commands, *fakeSender, *stats.Registry, *energy.Model) {
	sender := &fakeSender{}
	reg := stats.NewRegistry(0, 0)
	em := energy.NewModel(0, 0)
	c := NewCommands(bot.Persona{Name: "小鹦"}, sender, reg, em, nil)
	return c, sender, reg, em
}

func TestCommands_Help(t *testing.T) {
	c, sender, _, _ := newCommandsFixture()

	if err := c.Handle(context.Background(), commandEvent("/help")); err != nil {
		t.Fatalf("Handle err = %v", err)
	}
	got := sender.messages()[0].Text
	for _, want := range []string{"小鹦", "/stats", "/energy"} {
		if !strings.Contains(got, want) {
			t.Errorf("help text missing %q:\n%s", want, got)
		}
	}
}

func TestCommands_Unknown(t *testing.T) {
	c, sender, _, _ := newCommandsFixture()

	c.Handle(context.Background(), commandEvent("/teleport"))
	if got := sender.messages()[0].Text; !strings.Contains(got, "不认识") {
		t.Errorf("unknown command reply = %q", got)
	}
}

func TestCommands_Stats(t *testing.T) {
	t.Run("first_time_user", func(t *testing.T) {
		c, sender, _, _ := newCommandsFixture()
		c.Handle(context.Background(), commandEvent("/stats"))
		if got := sender.messages()[0].Text; !strings.Contains(got, "第一次") {
			t.Errorf("stats reply = %q, want the first-timer hint", got)
		}
	})

	t.Run("with_history", func(t *testing.T) {
		c, sender, reg, _ := newCommandsFixture()
		now := time.Now()
		reg.OnUserMessage(bot.PlatformTelegram, "g1", "u1", now, "你好", false)
		reg.OnUserMessage(bot.PlatformTelegram, "g1", "u1", now, "小鹦在吗", true)
		reg.OnBotReply(bot.PlatformTelegram, "g1", "u1", now)

		c.Handle(context.Background(), commandEvent("/stats"))
		got := sender.messages()[0].Text
		for _, want := range []string{"发了 2 条消息", "@过我 1 次", "我回过你 1 次"} {
			if !strings.Contains(got, want) {
				t.Errorf("stats reply missing %q:\n%s", want, got)
			}
		}
	})
}

func TestCommands_Energy(t *testing.T) {
	c, sender, _, em := newCommandsFixture()

	c.Handle(context.Background(), commandEvent("/energy"))
	if got := sender.messages()[0].Text; !strings.Contains(got, "精力满满") {
		t.Errorf("fresh bot reply = %q", got)
	}

	// Five replies at 0.10 each land in the middle band.
	for i := 0; i < 5; i++ {
		em.OnReplySent()
	}
	c.Handle(context.Background(), commandEvent("/energy"))
	if got := sender.messages()[1].Text; !strings.Contains(got, "还行") {
		t.Errorf("middling energy reply = %q", got)
	}

	for i := 0; i < 5; i++ {
		em.OnReplySent()
	}
	c.Handle(context.Background(), commandEvent("/energy"))
	if got := sender.messages()[2].Text; !strings.Contains(got, "有点累") {
		t.Errorf("tired reply = %q", got)
	}
}

func TestCommandName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/help", "help"},
		{"！stats", "stats"},
		{"/Help me please", "help"},
		{"  /energy  ", "energy"},
		{"/", ""},
	}
	for _, tc := range cases {
		if got := commandName(tc.in); got != tc.want {
			t.Errorf("commandName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
