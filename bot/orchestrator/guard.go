package orchestrator

import (
	"time"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/textsig"
)

// guardDecision explains why a flush was allowed or skipped.
type guardDecision struct {
	Allow  bool
	Reason string
}

// turnTakingGuard gates debounced flushes so the bot does not answer
// every burst right after it just spoke. Mentions and commands never
// reach it.
type turnTakingGuard struct {
	cfg     *bot.Config
	nowFunc func() time.Time
}

// check applies the guard rules in order: force-quote, cooled-down,
// question burst; everything else is skipped.
func (g *turnTakingGuard) check(forceQuote bool, lastBotReplyAt time.Time, count int, mergedText string) guardDecision {
	if forceQuote {
		return guardDecision{Allow: true, Reason: "force-quote"}
	}
	if lastBotReplyAt.IsZero() || g.nowFunc().Sub(lastBotReplyAt) >= g.cfg.CooldownHard {
		return guardDecision{Allow: true, Reason: "cooled-down"}
	}
	if count >= 2 && textsig.IsQuestion(mergedText) {
		return guardDecision{Allow: true, Reason: "question-burst"}
	}
	return guardDecision{Allow: false, Reason: "turn-taking"}
}
