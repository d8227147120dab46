package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/energy"
	"github.com/hrygo/groupparrot/bot/pipeline"
	"github.com/hrygo/groupparrot/bot/stats"
)

// Commands answers the built-in slash commands directly, without the
// planner or the LLM. It runs inside the session queue, so replies never
// interleave with in-flight conversational sends.
type Commands struct {
	persona bot.Persona
	sender  pipeline.Sender
	stats   *stats.Registry
	energy  *energy.Model
	logger  *slog.Logger
}

// NewCommands wires the built-in dispatcher.
func NewCommands(persona bot.Persona, sender pipeline.Sender, reg *stats.Registry, em *energy.Model, logger *slog.Logger) *Commands {
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{
		persona: persona,
		sender:  sender,
		stats:   reg,
		energy:  em,
		logger:  logger,
	}
}

// Handle parses and answers one command event.
func (c *Commands) Handle(ctx context.Context, e *bot.EnrichedEvent) error {
	name := commandName(e.RawText)
	c.logger.Info("command received",
		slog.String("session_key", e.SessionKey()),
		slog.String("command", name))

	var reply string
	switch name {
	case "help", "h":
		reply = c.helpText()
	case "stats":
		reply = c.statsText(e)
	case "energy":
		reply = c.energyText()
	default:
		reply = fmt.Sprintf("不认识 /%s 这个命令哦，发 /help 看看我会什么～", name)
	}
	if c.sender == nil {
		return nil
	}
	return c.sender.SendText(ctx, e.GroupID, reply, "")
}

func (c *Commands) helpText() string {
	return strings.Join([]string{
		fmt.Sprintf("我是 %s，平时就在群里陪大家聊天。", c.persona.Name),
		"/help - 看这份说明",
		"/stats - 看你在本群的聊天统计",
		"/energy - 看我现在的精力值",
	}, "\n")
}

func (c *Commands) statsText(e *bot.EnrichedEvent) string {
	if c.stats == nil {
		return "统计还没开始记录呢。"
	}
	snap, ok := c.stats.Snapshot(e.Platform, e.GroupID, e.UserID)
	if !ok {
		return "这好像是你第一次发言，还没攒下统计呢。"
	}
	return fmt.Sprintf("你在本群发了 %d 条消息，@过我 %d 次，我回过你 %d 次，亲密度 %.2f。",
		snap.TotalMessagesFromUser, snap.TotalMentionsBot, snap.TotalRepliesFromBot, snap.Intimacy)
}

func (c *Commands) energyText() string {
	if c.energy == nil {
		return "精力值还没初始化。"
	}
	v := c.energy.Value()
	switch {
	case v > 0.7:
		return fmt.Sprintf("精力满满（%.0f%%），随便聊！", v*100)
	case v > 0.3:
		return fmt.Sprintf("还行（%.0f%%），聊是能聊的。", v*100)
	default:
		return fmt.Sprintf("有点累了（%.0f%%），让我缓缓……", v*100)
	}
}

// commandName strips the "/" or fullwidth "！" prefix and returns the
// lowercased first word.
func commandName(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "/")
	t = strings.TrimPrefix(t, "！")
	if i := strings.IndexAny(t, " \t\n"); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(t)
}
