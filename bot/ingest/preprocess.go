// Package ingest validates and preprocesses inbound events: it appends
// every message to the conversation log, filters bot echoes and stale
// backfill, and classifies commands and mentions for the orchestrator.
package ingest

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/convlog"
	"github.com/hrygo/groupparrot/bot/stats"
)

// ErrInvalidEvent marks a malformed event dropped at preprocess.
var ErrInvalidEvent = errors.New("ingest: invalid event")

// Classification is the orchestrator's branch input.
type Classification struct {
	IsCommand bool
	IsMention bool
}

// Classify detects the command prefix ("/" or fullwidth "！") and the
// bot mention flag.
func Classify(e *bot.ChatEvent) Classification {
	return Classification{
		IsCommand: IsCommandText(e.RawText),
		IsMention: e.MentionsBot,
	}
}

// IsCommandText reports whether the text starts a slash command.
func IsCommandText(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "/") || strings.HasPrefix(t, "！")
}

// Preprocessor appends events to the conversation log and feeds member
// stats, deciding whether orchestration should continue.
type Preprocessor struct {
	log         *convlog.Store
	stats       *stats.Registry
	maxEventLag time.Duration
	logger      *slog.Logger
	nowFunc     func() time.Time
}

// NewPreprocessor creates a preprocessor. maxEventLag is the stale
// backfill threshold (default 30s).
func NewPreprocessor(log *convlog.Store, reg *stats.Registry, maxEventLag time.Duration, logger *slog.Logger) *Preprocessor {
	if maxEventLag <= 0 {
		maxEventLag = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{
		log:         log,
		stats:       reg,
		maxEventLag: maxEventLag,
		logger:      logger,
		nowFunc:     time.Now,
	}
}

// SetNowFunc overrides the clock. Test use only.
func (p *Preprocessor) SetNowFunc(now func() time.Time) { p.nowFunc = now }

// Process validates the event, appends the turn, and updates stats.
// It returns false when orchestration must stop: malformed events, bot
// echoes, and stale backfill.
func (p *Preprocessor) Process(e *bot.ChatEvent) (bool, error) {
	if e == nil || e.GroupID == "" || e.UserID == "" || !e.Platform.IsValid() {
		p.logger.Warn("dropping malformed event",
			slog.String("platform", string(eventPlatform(e))),
			slog.String("group_id", eventGroup(e)))
		return false, ErrInvalidEvent
	}
	if e.IngestTime.IsZero() {
		e.IngestTime = p.nowFunc()
	}

	cls := Classify(e)
	role := bot.RoleUser
	if e.FromBot {
		role = bot.RoleBot
	}
	p.log.AppendTurn(e.SessionKey(), bot.ChatTurn{
		Role:        role,
		Content:     e.RawText,
		Timestamp:   e.EventTime(),
		UserID:      e.UserID,
		UserName:    e.UserName,
		MentionsBot: e.MentionsBot,
		IsCommand:   cls.IsCommand,
	})

	// Bot echoes are context only.
	if e.FromBot {
		return false, nil
	}

	// Stale backfill: kept for context, but stats and planning skip it.
	if !e.Timestamp.IsZero() && !cls.IsCommand && !cls.IsMention {
		if lag := e.IngestTime.Sub(e.Timestamp); lag > p.maxEventLag {
			p.logger.Debug("stale backfill, stored without processing",
				slog.String("session_key", e.SessionKey()),
				slog.Duration("lag", lag))
			return false, nil
		}
	}

	p.stats.OnUserMessage(e.Platform, e.GroupID, e.UserID, e.EventTime(), e.RawText, e.MentionsBot)
	return true, nil
}

func eventPlatform(e *bot.ChatEvent) bot.Platform {
	if e == nil {
		return ""
	}
	return e.Platform
}

func eventGroup(e *bot.ChatEvent) string {
	if e == nil {
		return ""
	}
	return e.GroupID
}
