// Package pipeline turns a planner decision into a delivered reply: it
// assembles context and prompt, calls the LLM, then simulates typing
// and dispatches the segments with mid-send cancellation.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/convlog"
	"github.com/hrygo/groupparrot/bot/energy"
	"github.com/hrygo/groupparrot/bot/metrics"
	"github.com/hrygo/groupparrot/bot/planner"
	"github.com/hrygo/groupparrot/bot/prompt"
	"github.com/hrygo/groupparrot/bot/replyctx"
	"github.com/hrygo/groupparrot/bot/session"
	"github.com/hrygo/groupparrot/bot/stats"
)

// ErrNotConfigured marks a reply attempt without a configured LLM.
var ErrNotConfigured = errors.New("pipeline: llm not configured")

// ChatService is the minimal LLM surface the pipeline needs.
type ChatService interface {
	Chat(ctx context.Context, messages []prompt.Message) (string, error)
}

// SendPersona carries the delivery knobs handed to the send pipeline.
type SendPersona struct {
	Verbosity                float64
	MultiUtterancePreference float64
}

// ReplyResult is the reply pipeline's outcome, held until the
// orchestrator commits it after a successful send.
type ReplyResult struct {
	Skip       bool
	SkipReason string
	Text       string
	Plan       *planner.Result
	Persona    SendPersona
	IsAtReply  bool
	TraceID    string
}

// ReplyPipeline runs planner -> context -> prompt -> LLM.
type ReplyPipeline struct {
	planner  *planner.Planner
	builder  *replyctx.Builder
	prompts  *prompt.Builder
	chat     ChatService // nil when no LLM is configured
	stats    *stats.Registry
	energy   *energy.Model
	log      *convlog.Store
	sessions *session.Store
	persona  bot.Persona
	metrics  *metrics.Collector
	debug    *metrics.DebugRegistry
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration)
	nowFunc  func() time.Time
}

// ReplyDeps bundles the collaborators of a reply pipeline.
type ReplyDeps struct {
	Planner  *planner.Planner
	Context  *replyctx.Builder
	Prompts  *prompt.Builder
	Chat     ChatService
	Stats    *stats.Registry
	Energy   *energy.Model
	Log      *convlog.Store
	Sessions *session.Store
	Persona  bot.Persona
	Metrics  *metrics.Collector
	Debug    *metrics.DebugRegistry
	Logger   *slog.Logger
}

// NewReplyPipeline wires a reply pipeline from its dependencies.
func NewReplyPipeline(deps ReplyDeps) *ReplyPipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplyPipeline{
		planner:  deps.Planner,
		builder:  deps.Context,
		prompts:  deps.Prompts,
		chat:     deps.Chat,
		stats:    deps.Stats,
		energy:   deps.Energy,
		log:      deps.Log,
		sessions: deps.Sessions,
		persona:  deps.Persona,
		metrics:  deps.Metrics,
		debug:    deps.Debug,
		logger:   logger,
		sleep:    sleepCtx,
		nowFunc:  time.Now,
	}
}

// SetSleepFunc overrides the delay sleeper. Test use only.
func (rp *ReplyPipeline) SetSleepFunc(sleep func(ctx context.Context, d time.Duration)) {
	rp.sleep = sleep
}

// SetNowFunc overrides the clock. Test use only.
func (rp *ReplyPipeline) SetNowFunc(now func() time.Time) { rp.nowFunc = now }

// Run plans and produces the reply text for one conversational event.
// Command decisions are skipped here; the orchestrator owns that path.
func (rp *ReplyPipeline) Run(ctx context.Context, e *bot.EnrichedEvent) (*ReplyResult, error) {
	sessionKey := e.SessionKey()
	traceID := shortuuid.New()

	plan := rp.planner.Plan(e, rp.sessions.LastBotReplyAt(sessionKey))
	rp.recordPlan(sessionKey, traceID, plan)

	if !plan.ShouldReply {
		rp.logger.Debug("planner skip",
			slog.String("session_key", sessionKey),
			slog.String("reason", plan.Meta.Reason),
			slog.Float64("probability", plan.Meta.Probability))
		return &ReplyResult{Skip: true, SkipReason: plan.Meta.Reason, Plan: plan, TraceID: traceID}, nil
	}
	if plan.Mode == planner.ModeCommand {
		return &ReplyResult{Skip: true, SkipReason: "command", Plan: plan, TraceID: traceID}, nil
	}

	if plan.Delay > 0 {
		rp.sleep(ctx, plan.Delay)
	}

	rctx := rp.builder.Build(e)
	intimacy := rp.stats.Intimacy(e.Platform, e.GroupID, e.UserID)
	energyVal := rp.energy.Value()
	if rp.metrics != nil {
		rp.metrics.EnergyGauge.Set(energyVal)
	}
	style := deriveStyle(plan.Mode, intimacy, energyVal)
	messages := rp.prompts.BuildMessages(rctx, style, "")

	if rp.chat == nil {
		return nil, ErrNotConfigured
	}

	start := rp.nowFunc()
	reply, err := rp.chat.Chat(ctx, messages)
	if rp.metrics != nil {
		rp.metrics.LLMLatency.Observe(rp.nowFunc().Sub(start).Seconds())
	}
	if err != nil {
		if rp.metrics != nil {
			rp.metrics.LLMFailures.Inc()
		}
		return nil, err
	}

	rp.recordPrompt(sessionKey, traceID, messages, len(reply))

	return &ReplyResult{
		Text:    reply,
		Plan:    plan,
		TraceID: traceID,
		Persona: SendPersona{
			Verbosity:                style.Verbosity,
			MultiUtterancePreference: style.MultiUtterancePreference,
		},
		IsAtReply: e.MentionsBot,
	}, nil
}

// CommitReply runs the post-send side effects: append the bot turn,
// update reply stats, and spend energy. The orchestrator calls this
// only after all segments were delivered.
func (rp *ReplyPipeline) CommitReply(e *bot.EnrichedEvent, plan *planner.Result, text string) {
	now := rp.nowFunc()
	rp.log.AppendTurn(e.SessionKey(), bot.ChatTurn{
		Role:      bot.RoleBot,
		Content:   text,
		Timestamp: now,
		UserName:  rp.persona.Name,
	})
	rp.stats.OnBotReply(e.Platform, e.GroupID, e.UserID, now)
	rp.energy.OnReplySent()
	if rp.metrics != nil {
		rp.metrics.EnergyGauge.Set(rp.energy.Value())
	}
	rp.logger.Info("reply committed",
		slog.String("session_key", e.SessionKey()),
		slog.String("mode", string(plan.Mode)),
		slog.Int("len", len(text)))
}

func (rp *ReplyPipeline) recordPlan(sessionKey, traceID string, plan *planner.Result) {
	if rp.metrics != nil {
		rp.metrics.PlansByMode.WithLabelValues(string(plan.Mode)).Inc()
	}
	if rp.debug != nil {
		rp.debug.RecordPlan(sessionKey, metrics.PlanRecord{
			At:          rp.nowFunc(),
			TraceID:     traceID,
			Mode:        string(plan.Mode),
			ShouldReply: plan.ShouldReply,
			Probability: plan.Meta.Probability,
			Reason:      plan.Meta.Reason,
			Factors:     plan.Meta.Factors,
		})
	}
}

func (rp *ReplyPipeline) recordPrompt(sessionKey, traceID string, messages []prompt.Message, replyLen int) {
	if rp.debug == nil || len(messages) < 2 {
		return
	}
	rp.debug.RecordPrompt(sessionKey, metrics.PromptRecord{
		At:       rp.nowFunc(),
		TraceID:  traceID,
		System:   messages[0].Content,
		User:     messages[1].Content,
		ReplyLen: replyLen,
	})
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
