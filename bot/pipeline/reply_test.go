package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/convlog"
	"github.com/hrygo/groupparrot/bot/energy"
	"github.com/hrygo/groupparrot/bot/planner"
	"github.com/hrygo/groupparrot/bot/prompt"
	"github.com/hrygo/groupparrot/bot/replyctx"
	"github.com/hrygo/groupparrot/bot/session"
	"github.com/hrygo/groupparrot/bot/stats"
)

type fakeChat struct {
	reply string
	err   error
	calls int
	last  []prompt.Message
}

func (f *fakeChat) Chat(_ context.Context, messages []prompt.Message) (string, error) {
	f.calls++
	f.last = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type replyFixture struct {
	pipe     *ReplyPipeline
	chat     *fakeChat
	log      *convlog.Store
	reg      *stats.Registry
	em       *energy.Model
	sessions *session.Store
}

func newReplyFixture(chat *fakeChat, rnd planner.Rand) *replyFixture {
	cfg := bot.DefaultConfig()
	log := convlog.NewStore(50)
	reg := stats.NewRegistry(0, 0)
	em := energy.NewModel(0, 0)
	at := energy.NewActivityTracker(0, 0)
	sessions := session.NewStore(nil)

	var svc ChatService
	if chat != nil {
		svc = chat
	}
	pipe := NewReplyPipeline(ReplyDeps{
		Planner:  planner.New(reg, em, at, &cfg, rnd),
		Context:  replyctx.NewBuilder(log),
		Prompts:  prompt.NewBuilder(bot.Persona{Name: "小鹦"}),
		Chat:     svc,
		Stats:    reg,
		Energy:   em,
		Log:      log,
		Sessions: sessions,
		Persona:  bot.Persona{Name: "小鹦"},
	})
	pipe.SetSleepFunc(noSleep)
	return &replyFixture{pipe: pipe, chat: chat, log: log, reg: reg, em: em, sessions: sessions}
}

func mentionEvent() *bot.EnrichedEvent {
	return &bot.EnrichedEvent{
		ChatEvent: bot.ChatEvent{
			Platform:    bot.PlatformTelegram,
			GroupID:     "g1",
			UserID:      "u1",
			UserName:    "阿黄",
			RawText:     "在不在",
			MentionsBot: true,
		},
		Seq: 1,
	}
}

func TestReplyRun_MentionProducesReply(t *testing.T) {
	chat := &fakeChat{reply: "在的在的"}
	fx := newReplyFixture(chat, nil)

	res, err := fx.pipe.Run(context.Background(), mentionEvent())
	if err != nil {
		t.Fatalf("Run err = %v", err)
	}
	if res.Skip || res.Text != "在的在的" {
		t.Fatalf("result = %+v, want the LLM reply", res)
	}
	if !res.IsAtReply {
		t.Error("mention must flag IsAtReply")
	}
	if res.TraceID == "" {
		t.Error("trace id missing")
	}
	if chat.calls != 1 {
		t.Errorf("chat calls = %d, want 1", chat.calls)
	}
	if len(chat.last) != 2 || chat.last[0].Role != "system" {
		t.Error("prompt shape wrong")
	}
}

func TestReplyRun_SkipWhenPlannerDeclines(t *testing.T) {
	chat := &fakeChat{reply: "不该被调用"}
	// Dice roll 0.99 forces a skip for plain traffic.
	fx := newReplyFixture(chat, constRand(0.99))

	e := mentionEvent()
	e.MentionsBot = false
	e.RawText = "随便聊聊"

	res, err := fx.pipe.Run(context.Background(), e)
	if err != nil {
		t.Fatalf("Run err = %v", err)
	}
	if !res.Skip {
		t.Fatal("expected planner skip")
	}
	if chat.calls != 0 {
		t.Error("LLM must not be called on skip")
	}
}

func TestReplyRun_NotConfigured(t *testing.T) {
	fx := newReplyFixture(nil, nil)

	_, err := fx.pipe.Run(context.Background(), mentionEvent())
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestReplyRun_LLMFailureSurfaces(t *testing.T) {
	wantErr := errors.New("upstream 500")
	fx := newReplyFixture(&fakeChat{err: wantErr}, nil)

	_, err := fx.pipe.Run(context.Background(), mentionEvent())
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want the LLM error", err)
	}
}

func TestCommitReply_SideEffects(t *testing.T) {
	chat := &fakeChat{reply: "好嘞"}
	fx := newReplyFixture(chat, nil)
	e := mentionEvent()

	res, err := fx.pipe.Run(context.Background(), e)
	if err != nil {
		t.Fatalf("Run err = %v", err)
	}
	fx.pipe.CommitReply(e, res.Plan, res.Text)

	turns := fx.log.RecentTurns(e.SessionKey(), 0)
	if len(turns) == 0 || turns[len(turns)-1].Role != bot.RoleBot {
		t.Error("bot turn not appended on commit")
	}
	if turns[len(turns)-1].Content != "好嘞" {
		t.Error("bot turn content mismatch")
	}

	snap, ok := fx.reg.Snapshot(e.Platform, e.GroupID, e.UserID)
	if !ok || snap.TotalRepliesFromBot != 1 {
		t.Error("reply stats not recorded")
	}
	if fx.em.Value() >= 1 {
		t.Error("energy not spent on commit")
	}
}

// constRand returns the same float forever; Intn is always 0.
type constRand float64

func (c constRand) Float64() float64 { return float64(c) }
func (constRand) Intn(int) int       { return 0 }
