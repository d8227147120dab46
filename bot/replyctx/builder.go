// Package replyctx selects the conversation slices a reply is grounded
// on: a HISTORICAL window before the bot's last turn, the NEW_WINDOW
// after it, the merged target run, and an optional topic hint.
package replyctx

import (
	"strings"
	"time"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/convlog"
	"github.com/hrygo/groupparrot/bot/textsig"
)

const (
	fetchLimit       = 40
	preBotTurns      = 5
	coldWindowTurns  = 6
	maxRecentTurns   = 12
	sameTopicWindow  = 2 * time.Minute
	runMergeInterval = 5 * time.Second
)

// Meta describes the shape of the selected context.
type Meta struct {
	SinceLastBot     time.Duration `json:"since_last_bot_ms"`
	MessagesInWindow int           `json:"messages_in_window"`
	IsSameTopic      bool          `json:"is_same_topic"`
}

// Context is the reply pipeline's view of the conversation.
type Context struct {
	RecentTurns  []bot.ChatTurn
	TargetTurn   *bot.ChatTurn
	TopicSummary string
	Meta         Meta
}

// Builder reads the conversation store.
type Builder struct {
	log     *convlog.Store
	nowFunc func() time.Time
}

// NewBuilder creates a context builder.
func NewBuilder(log *convlog.Store) *Builder {
	return &Builder{log: log, nowFunc: time.Now}
}

// SetNowFunc overrides the clock. Test use only.
func (b *Builder) SetNowFunc(now func() time.Time) { b.nowFunc = now }

// Build selects the context for the given event.
func (b *Builder) Build(e *bot.EnrichedEvent) *Context {
	turns := b.log.RecentTurns(e.SessionKey(), fetchLimit)
	now := b.nowFunc()

	lastBotIdx := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == bot.RoleBot {
			lastBotIdx = i
			break
		}
	}

	sinceLastBot := time.Duration(0)
	if lastBotIdx >= 0 {
		sinceLastBot = now.Sub(turns[lastBotIdx].Timestamp)
	}

	// Warm topic: keep a short run-up before the bot's last turn plus
	// everything said since. Cold topic: just the tail.
	var candidate []bot.ChatTurn
	sameTopicEligible := lastBotIdx >= 0 && sinceLastBot < sameTopicWindow
	if sameTopicEligible {
		start := lastBotIdx - preBotTurns
		if start < 0 {
			start = 0
		}
		candidate = turns[start:]
	} else if len(turns) > coldWindowTurns {
		candidate = turns[len(turns)-coldWindowTurns:]
	} else {
		candidate = turns
	}

	messagesInWindow := 0
	if lastBotIdx >= 0 {
		messagesInWindow = len(turns) - lastBotIdx - 1
	} else {
		messagesInWindow = len(candidate)
	}

	target, runText := mergeTrailingRun(candidate)

	recent := candidate
	if len(recent) > maxRecentTurns {
		recent = recent[len(recent)-maxRecentTurns:]
	}
	out := make([]bot.ChatTurn, len(recent))
	copy(out, recent)

	return &Context{
		RecentTurns:  out,
		TargetTurn:   target,
		TopicSummary: topicSummary(runText),
		Meta: Meta{
			SinceLastBot:     sinceLastBot,
			MessagesInWindow: messagesInWindow,
			IsSameTopic:      sameTopicEligible && messagesInWindow > 1,
		},
	}
}

// mergeTrailingRun walks backwards from the last turn, extending the run
// while the prior turn has the same speaker and arrived within 5s. The
// target is the last turn of the run; the run's texts are joined for the
// topic heuristic.
func mergeTrailingRun(turns []bot.ChatTurn) (*bot.ChatTurn, string) {
	if len(turns) == 0 {
		return nil, ""
	}
	end := len(turns) - 1
	start := end
	for start > 0 {
		prior := turns[start-1]
		cur := turns[start]
		if prior.UserID != cur.UserID || prior.Role != cur.Role {
			break
		}
		if cur.Timestamp.Sub(prior.Timestamp) > runMergeInterval {
			break
		}
		start--
	}
	parts := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		parts = append(parts, turns[i].Content)
	}
	target := turns[end]
	return &target, strings.Join(parts, " ")
}

// topicSummary is a cheap first-match heuristic over the target run.
func topicSummary(text string) string {
	if text == "" {
		return ""
	}
	switch {
	case strings.ContainsAny(text, "?？"):
		return "刚刚在问问题或讨论某个疑问"
	case textsig.EmojiDensity(text) > 0.3:
		return "大家在刷表情，气氛比较轻松"
	case strings.Contains(text, "@"):
		return "有人在@别人互相调侃"
	case textsig.HasLaughter(text):
		return "群里气氛活跃，大家在哈哈哈"
	default:
		return ""
	}
}
