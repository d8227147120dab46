package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/replyctx"
)

var testPersona = bot.Persona{
	Name:        "小鹦",
	Description: "常驻群里的大学生",
	Tone:        "口语化、简短",
	Constraints: []string{"不聊政治话题"},
}

func TestBuildSystem(t *testing.T) {
	b := NewBuilder(testPersona)
	sys := b.BuildSystem()

	for _, want := range []string{"你是 小鹦", "常驻群里的大学生", "人设风格：口语化、简短", "禁止AI腔", "不聊政治话题"} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q:\n%s", want, sys)
		}
	}
}

func TestBuildMessages_BlockLayout(t *testing.T) {
	now := time.Now()
	b := NewBuilder(testPersona)

	target := bot.ChatTurn{Role: bot.RoleUser, UserID: "u1", UserName: "阿黄", Content: "这是啥情况？", Timestamp: now}
	rctx := &replyctx.Context{
		RecentTurns: []bot.ChatTurn{
			{Role: bot.RoleUser, UserID: "u2", UserName: "小李", Content: "之前聊的", Timestamp: now.Add(-time.Minute)},
			{Role: bot.RoleBot, Content: "我答过一嘴", Timestamp: now.Add(-50 * time.Second)},
			target,
		},
		TargetTurn:   &target,
		TopicSummary: "刚刚在问问题或讨论某个疑问",
	}
	style := &bot.DynamicStyle{Tone: "轻松", Slang: 0.4, Intimacy: 0.3}

	msgs := b.BuildMessages(rctx, style, "他上周说过自己在学吉他")
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Fatalf("roles = %s,%s, want system,user", msgs[0].Role, msgs[1].Role)
	}

	user := msgs[1].Content
	for _, block := range []string{"[INSTRUCTION]", "[STYLE]", "[SUMMARY]", "[MEMORY]", "[HISTORICAL]", "[NEW_WINDOW]", "[TARGET]"} {
		if !strings.Contains(user, block) {
			t.Errorf("user prompt missing block %s:\n%s", block, user)
		}
	}

	// Turns split at the bot's last turn.
	hist := user[strings.Index(user, "[HISTORICAL]"):strings.Index(user, "[NEW_WINDOW]")]
	if !strings.Contains(hist, "小李: 之前聊的") || !strings.Contains(hist, "你: 我答过一嘴") {
		t.Errorf("historical block wrong:\n%s", hist)
	}
	neww := user[strings.Index(user, "[NEW_WINDOW]"):strings.Index(user, "[TARGET]")]
	if !strings.Contains(neww, "阿黄: 这是啥情况？") {
		t.Errorf("new window block wrong:\n%s", neww)
	}
	if !strings.Contains(user, "[STYLE] tone=轻松; slang=0.40; intimacy=0.30") {
		t.Errorf("style block wrong:\n%s", user)
	}
}

func TestBuildMessages_OmitsEmptyBlocks(t *testing.T) {
	b := NewBuilder(testPersona)
	rctx := &replyctx.Context{}

	msgs := b.BuildMessages(rctx, nil, "")
	user := msgs[1].Content

	for _, block := range []string{"[STYLE]", "[SUMMARY]", "[MEMORY]", "[HISTORICAL]", "[NEW_WINDOW]", "[TARGET]"} {
		if strings.Contains(user, block) {
			t.Errorf("empty context should omit %s:\n%s", block, user)
		}
	}
	if !strings.Contains(user, "[INSTRUCTION]") {
		t.Error("instruction block must always be present")
	}
}

func TestRenderTurn(t *testing.T) {
	t.Run("bot_renders_as_you", func(t *testing.T) {
		got := renderTurn(bot.ChatTurn{Role: bot.RoleBot, Content: "好说"})
		if got != "你: 好说" {
			t.Errorf("renderTurn = %q", got)
		}
	})

	t.Run("fallback_to_user_id", func(t *testing.T) {
		got := renderTurn(bot.ChatTurn{Role: bot.RoleUser, UserID: "u9", Content: "hi"})
		if got != "u9: hi" {
			t.Errorf("renderTurn = %q", got)
		}
	})

	t.Run("newlines_escaped", func(t *testing.T) {
		got := renderTurn(bot.ChatTurn{Role: bot.RoleUser, UserName: "a", Content: "第一行\n第二行"})
		if strings.Contains(got, "\n") {
			t.Errorf("raw newline survived: %q", got)
		}
		if !strings.Contains(got, `\n`) {
			t.Errorf("escaped newline missing: %q", got)
		}
	})

	t.Run("mention_prefix", func(t *testing.T) {
		got := renderTurn(bot.ChatTurn{Role: bot.RoleUser, UserName: "a", Content: "在吗", MentionsBot: true})
		if !strings.Contains(got, "@你 在吗") {
			t.Errorf("mention prefix missing: %q", got)
		}
	})
}
