// Package orchestrator wires the conversation engine together: it
// serializes all work per session, routes commands and mentions past
// the debouncer, guards turn-taking, and drives the reply and send
// pipelines with typing interruption.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/convlog"
	"github.com/hrygo/groupparrot/bot/debounce"
	"github.com/hrygo/groupparrot/bot/energy"
	"github.com/hrygo/groupparrot/bot/ingest"
	"github.com/hrygo/groupparrot/bot/metrics"
	"github.com/hrygo/groupparrot/bot/pipeline"
	"github.com/hrygo/groupparrot/bot/planner"
	"github.com/hrygo/groupparrot/bot/prompt"
	"github.com/hrygo/groupparrot/bot/replyctx"
	"github.com/hrygo/groupparrot/bot/session"
	"github.com/hrygo/groupparrot/bot/stats"
	"github.com/hrygo/groupparrot/bot/textsig"
)

// CommandHandler dispatches slash commands. The orchestrator recognizes
// the "/" and "！" prefixes and forwards the event untouched.
type CommandHandler interface {
	Handle(ctx context.Context, e *bot.EnrichedEvent) error
}

// Deps bundles the engine's collaborators. Chat may be nil when no LLM
// is configured; the engine then answers with a plaintext receipt.
type Deps struct {
	Config   *bot.Config
	Persona  bot.Persona
	Sender   pipeline.Sender
	Chat     pipeline.ChatService
	Commands CommandHandler
	Rand     planner.Rand
	Metrics  *metrics.Collector
	Logger   *slog.Logger
}

// Engine is the conversation orchestrator.
type Engine struct {
	cfg       *bot.Config
	persona   bot.Persona
	sessions  *session.Store
	debouncer *debounce.Debouncer
	pre       *ingest.Preprocessor
	stats     *stats.Registry
	energy    *energy.Model
	activity  *energy.ActivityTracker
	planner   *planner.Planner
	log       *convlog.Store
	prompts   *prompt.Builder
	replyCtx  *replyctx.Builder
	guard     *turnTakingGuard
	chat      pipeline.ChatService
	sender    pipeline.Sender
	commands  CommandHandler
	rand      planner.Rand
	col       *metrics.Collector
	debug     *metrics.DebugRegistry
	logger    *slog.Logger
	nowFunc   func() time.Time

	// rootCtx outlives the adapter callbacks that enqueue work; queued
	// tasks run under it so a short-lived inbound context cannot abort
	// a reply mid-flight.
	rootCtx context.Context
	cancel  context.CancelFunc

	// test hooks threaded into freshly built pipelines
	replySleep func(ctx context.Context, d time.Duration)
	sendSleep  func(ctx context.Context, d time.Duration)
}

// New creates an engine with all orchestration state freshly
// initialized. Orchestration state is process-local and resets on
// restart; only the conversation log semantics survive in external
// stores, which this engine does not use.
func New(deps Deps) *Engine {
	cfg := deps.Config
	if cfg == nil {
		c := bot.DefaultConfig()
		cfg = &c
	}
	cfg.Normalize()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rnd := deps.Rand
	if rnd == nil {
		rnd = planner.NewLockedRand(time.Now().UnixNano())
	}

	log := convlog.NewStore(cfg.RingBufferMaxTurns)
	reg := stats.NewRegistry(cfg.MemberRecentMessages, cfg.GroupRecentMessages)
	em := energy.NewModel(cfg.EnergyRecoveryPerMinute, cfg.EnergyCostPerReply)
	at := energy.NewActivityTracker(cfg.ActivityWindow, cfg.ActivityNormalizer)

	rootCtx, cancel := context.WithCancel(context.Background())
	en := &Engine{
		cfg:       cfg,
		persona:   deps.Persona,
		sessions:  session.NewStore(logger),
		debouncer: debounce.New(cfg.DebounceDelay, logger),
		pre:       ingest.NewPreprocessor(log, reg, cfg.StaleMaxEventLag, logger),
		stats:     reg,
		energy:    em,
		activity:  at,
		planner:   planner.New(reg, em, at, cfg, rnd),
		log:       log,
		prompts:   prompt.NewBuilder(deps.Persona),
		replyCtx:  replyctx.NewBuilder(log),
		guard:     &turnTakingGuard{cfg: cfg, nowFunc: time.Now},
		chat:      deps.Chat,
		sender:    deps.Sender,
		commands:  deps.Commands,
		rand:      rnd,
		col:       deps.Metrics,
		debug:     metrics.NewDebugRegistry(),
		logger:    logger,
		nowFunc:   time.Now,
		rootCtx:   rootCtx,
		cancel:    cancel,
	}
	return en
}

// SetCommands installs the command dispatcher. Called once at bootstrap,
// after the engine's stats and energy accessors are available to it.
func (en *Engine) SetCommands(h CommandHandler) { en.commands = h }

// Sessions exposes the session store (debug surface).
func (en *Engine) Sessions() *session.Store { return en.sessions }

// Stats exposes the stats registry (debug surface, command handlers).
func (en *Engine) Stats() *stats.Registry { return en.stats }

// Energy exposes the energy model (debug surface, command handlers).
func (en *Engine) Energy() *energy.Model { return en.energy }

// Debug exposes the last-plan/last-prompt registry.
func (en *Engine) Debug() *metrics.DebugRegistry { return en.debug }

// PendingDebounce returns the number of buffered debounce keys.
func (en *Engine) PendingDebounce() int { return en.debouncer.PendingCount() }

// ConversationLog exposes the in-memory conversation store.
func (en *Engine) ConversationLog() *convlog.Store { return en.log }

// SetNowFunc overrides the clock across the engine's own components.
// Test use only.
func (en *Engine) SetNowFunc(now func() time.Time) {
	en.nowFunc = now
	en.guard.nowFunc = now
	en.pre.SetNowFunc(now)
	en.planner.SetNowFunc(now)
	en.replyCtx.SetNowFunc(now)
	en.stats.SetNowFunc(now)
	en.energy.SetNowFunc(now)
	en.activity.SetNowFunc(now)
	en.sessions.SetNowFunc(now)
}

// SetSleepFuncs overrides the pipelines' sleepers. Test use only.
func (en *Engine) SetSleepFuncs(reply, send func(ctx context.Context, d time.Duration)) {
	en.replySleep = reply
	en.sendSleep = send
}

// HandleEvent is the adapter entry point. It never returns an error;
// failures are logged and absorbed so the inbound stream keeps flowing.
func (en *Engine) HandleEvent(e *bot.ChatEvent) {
	if e == nil {
		return
	}
	if en.col != nil {
		en.col.EventsIn.Inc()
	}
	if e.IngestTime.IsZero() {
		e.IngestTime = en.nowFunc()
	}

	ok, err := en.pre.Process(e)
	if err != nil {
		if en.col != nil {
			en.col.EventsDropped.Inc()
		}
		return
	}
	if !ok {
		// Bot echo or stale backfill: stored for context only.
		if en.col != nil && !e.FromBot {
			en.col.StaleBackfill.Inc()
		}
		return
	}

	sessionKey := e.SessionKey()
	enriched := &bot.EnrichedEvent{
		ChatEvent: *e,
		Seq:       en.sessions.NextMessageSeq(sessionKey),
	}

	en.noteTypingInterruption(sessionKey)

	cls := ingest.Classify(e)
	if cls.IsCommand || cls.IsMention {
		en.sessions.RunQueued(sessionKey, func() {
			en.processEvent(en.rootCtx, enriched)
		})
		return
	}

	en.debouncer.Debounce(enriched, func(snap *debounce.Snapshot) {
		en.sessions.RunQueued(sessionKey, func() {
			en.handleDebounced(en.rootCtx, snap)
		})
	})
}

// noteTypingInterruption counts the incoming message against the active
// typing token and cancels the in-flight send once the threshold is
// reached, arming the force-quote bit for the next flush.
func (en *Engine) noteTypingInterruption(sessionKey string) {
	token := en.sessions.ActiveToken(sessionKey)
	if token == nil {
		return
	}
	n := token.NoteIncoming()
	if int(n) >= en.cfg.InterruptThreshold && !token.Cancelled() {
		token.Cancel()
		en.sessions.MarkForceQuoteNextFlush(sessionKey)
		if en.col != nil {
			en.col.InterruptionsHit.Inc()
		}
		en.logger.Info("typing interrupted by incoming traffic",
			slog.String("session_key", sessionKey),
			slog.String("token_id", token.ID()),
			slog.Int("incoming", int(n)))
	}
}

// handleDebounced merges the snapshot, scores the quote target, and
// runs the turn-taking guard before entering the shared process path.
func (en *Engine) handleDebounced(ctx context.Context, snap *debounce.Snapshot) {
	if en.col != nil {
		en.col.DebounceFlushes.Inc()
	}
	if snap.Count == 0 {
		return
	}

	merged := mergeTexts(snap)
	quote := pickQuoteTarget(snap)

	last := snap.LastEvent
	enriched := &bot.EnrichedEvent{
		ChatEvent:     last.ChatEvent,
		Seq:           last.Seq,
		MergedText:    merged,
		QuoteTarget:   quote,
		SnapshotCount: snap.Count,
	}

	sessionKey := enriched.SessionKey()
	decision := en.guard.check(
		en.sessions.ForceQuoteNextFlush(sessionKey),
		en.sessions.LastBotReplyAt(sessionKey),
		snap.Count,
		merged,
	)
	if !decision.Allow {
		if en.col != nil {
			en.col.GuardSkips.Inc()
		}
		en.logger.Debug("turn-taking guard skipped flush",
			slog.String("session_key", sessionKey),
			slog.Int("count", snap.Count))
		return
	}

	en.processEvent(ctx, enriched)
}

// processEvent is the shared path for command and conversational
// events. Every failure is caught here and absorbed; the session queue
// always drains.
func (en *Engine) processEvent(ctx context.Context, e *bot.EnrichedEvent) {
	sessionKey := e.SessionKey()

	cls := ingest.Classify(&e.ChatEvent)
	if cls.IsCommand {
		if en.col != nil {
			en.col.CommandsHandled.Inc()
		}
		if en.commands == nil {
			en.logger.Warn("no command dispatcher configured", slog.String("session_key", sessionKey))
			return
		}
		if err := en.commands.Handle(ctx, e); err != nil {
			en.logger.Error("command failed",
				slog.String("session_key", sessionKey),
				slog.String("error", err.Error()))
		}
		return
	}

	// Pipelines are built per event so they observe the engine's
	// current collaborators.
	replyPipe := pipeline.NewReplyPipeline(pipeline.ReplyDeps{
		Planner:  en.planner,
		Context:  en.replyCtx,
		Prompts:  en.prompts,
		Chat:     en.chat,
		Stats:    en.stats,
		Energy:   en.energy,
		Log:      en.log,
		Sessions: en.sessions,
		Persona:  en.persona,
		Metrics:  en.col,
		Debug:    en.debug,
		Logger:   en.logger,
	})
	replyPipe.SetNowFunc(en.nowFunc)
	if en.replySleep != nil {
		replyPipe.SetSleepFunc(en.replySleep)
	}
	sendPipe := pipeline.NewSendPipeline(en.sessions, en.sender, en.cfg, en.rand, en.col, en.logger)
	if en.sendSleep != nil {
		sendPipe.SetSleepFunc(en.sendSleep)
	}

	res, err := replyPipe.Run(ctx, e)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotConfigured) {
			en.sendFallbackReceipt(ctx, e)
			return
		}
		// LLM failure: the turn is skipped, nothing committed.
		en.logger.Error("reply pipeline failed",
			slog.String("session_key", sessionKey),
			slog.String("error", err.Error()))
		return
	}
	if res.Skip {
		return
	}
	if en.sender == nil {
		en.logger.Warn("reply produced but no sender configured", slog.String("session_key", sessionKey))
		return
	}

	outcome, err := sendPipe.Send(ctx, e, res.Text, res.Persona, res.IsAtReply)
	if err != nil || !outcome.Sent {
		// On cancellation the interruption path already armed the
		// force-quote bit; on failure the turn is simply dropped.
		return
	}

	en.sessions.ClearForceQuoteNextFlush(sessionKey)
	replyPipe.CommitReply(e, res.Plan, res.Text)
	en.sessions.SetLastBotReplyAt(sessionKey, en.nowFunc())
}

// sendFallbackReceipt answers with a plain one-liner when no LLM is
// configured, so the bot is not completely mute during setup.
func (en *Engine) sendFallbackReceipt(ctx context.Context, e *bot.EnrichedEvent) {
	if en.sender == nil {
		return
	}
	msg := "我在呢，不过现在还没接上大脑，稍后再聊～"
	if err := en.sender.SendText(ctx, e.GroupID, msg, ""); err != nil {
		en.logger.Error("fallback receipt failed",
			slog.String("session_key", e.SessionKey()),
			slog.String("error", err.Error()))
	}
}

// Shutdown cancels all debounce timers and typing tokens and waits for
// session queues to drain or ctx to expire.
func (en *Engine) Shutdown(ctx context.Context) {
	en.debouncer.Shutdown()
	en.cancel()
	en.sessions.Shutdown(ctx)
	en.logger.Info("orchestrator stopped")
}

const mergeMaxTexts = 6

// mergeTexts joins the snapshot's last texts into the planning target.
func mergeTexts(snap *debounce.Snapshot) string {
	events := snap.Events
	if len(events) > mergeMaxTexts {
		events = events[len(events)-mergeMaxTexts:]
	}
	parts := make([]string, 0, len(events))
	for _, e := range events {
		t := strings.TrimSpace(e.RawText)
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// pickQuoteTarget scores burst events to find the message worth
// quoting: questions and substantial texts near the end of the burst
// win; ties go to the later arrival. Small bursts target the last event.
func pickQuoteTarget(snap *debounce.Snapshot) *bot.QuoteTarget {
	events := snap.Events
	if len(events) == 0 {
		return nil
	}
	pick := events[len(events)-1]
	if snap.Count >= 3 {
		best := -1
		for i, e := range events {
			score := 0
			if textsig.IsQuestion(e.RawText) {
				score += 3
			}
			if textsig.RuneLen(e.RawText) >= 12 {
				score += 2
			}
			if !textsig.IsPunctuationOnly(e.RawText) {
				score++
			}
			if i >= len(events)-2 {
				score++
			}
			if score >= best {
				best = score
				pick = e
			}
		}
	}
	return &bot.QuoteTarget{
		MessageID: pick.MessageID,
		UserID:    pick.UserID,
		Seq:       pick.Seq,
		Text:      pick.RawText,
	}
}
