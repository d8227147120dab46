package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/metrics"
	"github.com/hrygo/groupparrot/bot/planner"
	"github.com/hrygo/groupparrot/bot/session"
	"github.com/hrygo/groupparrot/bot/textsig"
)

// Sender delivers text to the platform. Implementations must be safe to
// call concurrently across sessions.
type Sender interface {
	// SendText sends one message; replyTo is the platform message id to
	// quote, empty for a plain message.
	SendText(ctx context.Context, groupID, text, replyTo string) error
}

// TypingNotifier is implemented by senders whose platform exposes a
// native "typing" action. Optional.
type TypingNotifier interface {
	NotifyTyping(ctx context.Context, groupID string)
}

// SendOutcome reports how a send ended.
type SendOutcome struct {
	Sent      bool
	Cancelled bool
	Segments  int
}

const (
	brkMarker   = "<brk>"
	maxSegments = 3
)

// SendPipeline simulates typing latency, splits the reply into
// segments, and aborts cooperatively when the typing token is cancelled
// by fresh incoming traffic.
type SendPipeline struct {
	sessions *session.Store
	sender   Sender
	cfg      *bot.Config
	rand     planner.Rand
	utter    *UtterancePlanner
	metrics  *metrics.Collector
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration)
}

// NewSendPipeline wires a send pipeline.
func NewSendPipeline(sessions *session.Store, sender Sender, cfg *bot.Config, rnd planner.Rand, col *metrics.Collector, logger *slog.Logger) *SendPipeline {
	if rnd == nil {
		rnd = planner.NewLockedRand(time.Now().UnixNano())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SendPipeline{
		sessions: sessions,
		sender:   sender,
		cfg:      cfg,
		rand:     rnd,
		utter:    NewUtterancePlanner(rnd),
		metrics:  col,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// SetSleepFunc overrides the sleeper. Test use only.
func (sp *SendPipeline) SetSleepFunc(sleep func(ctx context.Context, d time.Duration)) {
	sp.sleep = sleep
}

// Send delivers the reply. It acquires the session's typing token,
// decides the quote reference, sleeps through the simulated typing
// delay, then dispatches the segments. Cancellation is checked before
// and after every sleep; the token is always released on exit.
func (sp *SendPipeline) Send(ctx context.Context, e *bot.EnrichedEvent, text string, persona SendPersona, isAtReply bool) (SendOutcome, error) {
	sessionKey := e.SessionKey()
	token := sp.sessions.StartTyping(sessionKey)
	defer sp.sessions.EndTyping(sessionKey, token)

	replyTo := sp.decideReplyTo(e)
	plan := sp.utter.Plan(text, persona.Verbosity, persona.MultiUtterancePreference, isAtReply)

	if notifier, ok := sp.sender.(TypingNotifier); ok {
		notifier.NotifyTyping(ctx, e.GroupID)
	}
	if !sp.pause(ctx, token, sp.typingDelay(text)) {
		return sp.cancelled(sessionKey, token, 0), nil
	}

	if strings.Contains(text, brkMarker) || strings.Contains(text, "\n") {
		return sp.sendMarked(ctx, e, token, text, replyTo)
	}
	return sp.sendPlanned(ctx, e, token, plan, replyTo)
}

// sendMarked handles explicit <brk> / newline splits from the LLM.
func (sp *SendPipeline) sendMarked(ctx context.Context, e *bot.EnrichedEvent, token *session.TypingToken, text, replyTo string) (SendOutcome, error) {
	segments := splitMarked(text)
	sent := 0
	for i, seg := range segments {
		if i > 0 {
			prevLen := textsig.RuneLen(segments[i-1])
			if !sp.pause(ctx, token, sp.segmentDelay(prevLen)) {
				return sp.cancelled(e.SessionKey(), token, sent), nil
			}
		}
		if token.Cancelled() {
			return sp.cancelled(e.SessionKey(), token, sent), nil
		}
		ref := ""
		if i == 0 {
			ref = replyTo
		}
		if err := sp.sender.SendText(ctx, e.GroupID, seg, ref); err != nil {
			return sp.failed(e.SessionKey(), sent, err)
		}
		sent++
		sp.noteSegment()
	}
	sp.noteReply()
	return SendOutcome{Sent: true, Segments: sent}, nil
}

// sendPlanned walks the utterance plan's own pacing.
func (sp *SendPipeline) sendPlanned(ctx context.Context, e *bot.EnrichedEvent, token *session.TypingToken, plan UtterancePlan, replyTo string) (SendOutcome, error) {
	sent := 0
	for i, seg := range plan.Segments {
		if seg.Delay > 0 {
			if !sp.pause(ctx, token, seg.Delay) {
				return sp.cancelled(e.SessionKey(), token, sent), nil
			}
		}
		if token.Cancelled() {
			return sp.cancelled(e.SessionKey(), token, sent), nil
		}
		ref := ""
		if i == 0 {
			ref = replyTo
		}
		if err := sp.sender.SendText(ctx, e.GroupID, seg.Text, ref); err != nil {
			return sp.failed(e.SessionKey(), sent, err)
		}
		sent++
		sp.noteSegment()
	}
	sp.noteReply()
	return SendOutcome{Sent: true, Segments: sent}, nil
}

// decideReplyTo applies the quote rule: use the candidate only when the
// force-quote bit is set or the event lags the quote target by at least
// the configured message gap.
func (sp *SendPipeline) decideReplyTo(e *bot.EnrichedEvent) string {
	qt := e.QuoteTarget
	if qt == nil || qt.MessageID == "" || qt.MessageID == "0" {
		return ""
	}
	if sp.sessions.ForceQuoteNextFlush(e.SessionKey()) {
		return qt.MessageID
	}
	if e.Seq-qt.Seq >= sp.cfg.QuoteMessageGap {
		return qt.MessageID
	}
	return ""
}

// typingDelay models reading-and-typing time for the reply length.
func (sp *SendPipeline) typingDelay(text string) time.Duration {
	d := sp.cfg.TypingBase +
		time.Duration(textsig.RuneLen(text))*sp.cfg.TypingPerChar +
		time.Duration(sp.rand.Intn(int(sp.cfg.TypingJitter/time.Millisecond)))*time.Millisecond
	if d < sp.cfg.TypingMin {
		d = sp.cfg.TypingMin
	}
	if d > sp.cfg.TypingMax {
		d = sp.cfg.TypingMax
	}
	return d
}

// segmentDelay paces follow-up segments by the previous segment's length.
func (sp *SendPipeline) segmentDelay(prevLen int) time.Duration {
	d := sp.cfg.SegmentDelayBase +
		time.Duration(prevLen)*sp.cfg.SegmentDelayPerChar +
		time.Duration(sp.rand.Intn(int(sp.cfg.SegmentDelayJitter/time.Millisecond)))*time.Millisecond
	if d > sp.cfg.SegmentDelayCap {
		d = sp.cfg.SegmentDelayCap
	}
	return d
}

// pause sleeps for d, returning false when the token was cancelled
// before or after the sleep, or the context expired.
func (sp *SendPipeline) pause(ctx context.Context, token *session.TypingToken, d time.Duration) bool {
	if token.Cancelled() || ctx.Err() != nil {
		return false
	}
	sp.sleep(ctx, d)
	return !token.Cancelled() && ctx.Err() == nil
}

func (sp *SendPipeline) cancelled(sessionKey string, token *session.TypingToken, sent int) SendOutcome {
	if sp.metrics != nil {
		sp.metrics.SendCancelled.Inc()
	}
	sp.logger.Info("send cancelled by incoming traffic",
		slog.String("session_key", sessionKey),
		slog.String("token_id", token.ID()),
		slog.Int("segments_sent", sent))
	return SendOutcome{Sent: false, Cancelled: true, Segments: sent}
}

func (sp *SendPipeline) failed(sessionKey string, sent int, err error) (SendOutcome, error) {
	if sp.metrics != nil {
		sp.metrics.SendFailures.Inc()
	}
	sp.logger.Error("adapter send failed",
		slog.String("session_key", sessionKey),
		slog.Int("segments_sent", sent),
		slog.String("error", err.Error()))
	return SendOutcome{Sent: false, Segments: sent}, err
}

func (sp *SendPipeline) noteSegment() {
	if sp.metrics != nil {
		sp.metrics.SegmentsSent.Inc()
	}
}

func (sp *SendPipeline) noteReply() {
	if sp.metrics != nil {
		sp.metrics.RepliesSent.Inc()
	}
}

// splitMarked splits on <brk>, then on newlines, trims, drops empties,
// and keeps the first three segments.
func splitMarked(text string) []string {
	var out []string
	for _, chunk := range strings.Split(text, brkMarker) {
		for _, line := range strings.Split(chunk, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			out = append(out, line)
			if len(out) == maxSegments {
				return out
			}
		}
	}
	if len(out) == 0 {
		out = []string{strings.TrimSpace(text)}
	}
	return out
}
