// Package planner decides whether, when and how the bot replies. It
// layers base interest, social attention, persona talkativeness and
// energy into a reply probability, applies group-activity dampeners and
// spam modifiers, and rolls the dice. Deterministic given the same
// inputs and RNG state.
package planner

import (
	"math/rand"
	"sync"
	"time"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/energy"
	"github.com/hrygo/groupparrot/bot/ingest"
	"github.com/hrygo/groupparrot/bot/stats"
	"github.com/hrygo/groupparrot/bot/textsig"
)

// Mode is the reply register the pipeline renders with.
type Mode string

const (
	ModeIgnore         Mode = "ignore"
	ModeCommand        Mode = "command"
	ModeSmalltalk      Mode = "smalltalk"
	ModeCasual         Mode = "casual"
	ModeFragment       Mode = "fragment"
	ModeDirectAnswer   Mode = "directAnswer"
	ModePassiveAck     Mode = "passiveAcknowledge"
	ModePlayfulTease   Mode = "playfulTease"
	ModeEmpathySupport Mode = "empathySupport"
	ModeDeflect        Mode = "deflect"
)

// Meta carries the probability breakdown for debugging.
type Meta struct {
	Probability float64            `json:"probability"`
	Factors     map[string]float64 `json:"factors,omitempty"`
	SpamType    stats.SpamType     `json:"spam_type,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

// Result is the planner's decision.
type Result struct {
	ShouldReply bool          `json:"should_reply"`
	Mode        Mode          `json:"mode"`
	Delay       time.Duration `json:"delay_ms"`
	Meta        Meta          `json:"meta"`
}

// Rand is the injectable randomness source. *rand.Rand satisfies it but
// is not safe for concurrent use; wrap with NewLockedRand.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// NewLockedRand returns a goroutine-safe Rand seeded deterministically.
func NewLockedRand(seed int64) Rand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

// Planner scores events against the stats, energy and activity sinks.
type Planner struct {
	stats    *stats.Registry
	energy   *energy.Model
	activity *energy.ActivityTracker
	cfg      *bot.Config
	rand     Rand
	nowFunc  func() time.Time
}

// New creates a planner. rnd may be nil, in which case a time-seeded
// locked source is used.
func New(reg *stats.Registry, em *energy.Model, at *energy.ActivityTracker, cfg *bot.Config, rnd Rand) *Planner {
	if rnd == nil {
		rnd = NewLockedRand(time.Now().UnixNano())
	}
	return &Planner{
		stats:    reg,
		energy:   em,
		activity: at,
		cfg:      cfg,
		rand:     rnd,
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the clock. Test use only.
func (p *Planner) SetNowFunc(now func() time.Time) { p.nowFunc = now }

const (
	mentionDelay         = 600 * time.Millisecond
	replyDelayBase       = 500 * time.Millisecond
	replyDelayJitter     = 300 // ms, exclusive upper bound
	personaTalkativeness = 0.35
	lurkingProbability   = 0.10
)

// Plan scores one event. lastBotReplyAt is the session's previous
// successful send timestamp (zero when the bot has never spoken).
func (p *Planner) Plan(e *bot.EnrichedEvent, lastBotReplyAt time.Time) *Result {
	text := e.Text()

	// Feed the group activity window; the bot's own traffic never gets
	// here (preprocess stops FromBot events).
	p.activity.Record(e.SessionKey())

	if ingest.IsCommandText(text) {
		return &Result{ShouldReply: true, Mode: ModeCommand, Meta: Meta{Reason: "command"}}
	}
	if e.MentionsBot {
		return &Result{ShouldReply: true, Mode: ModeSmalltalk, Delay: mentionDelay, Meta: Meta{Reason: "mention"}}
	}

	now := p.nowFunc()
	isQuestion := textsig.IsQuestion(text)
	strongEmotion := textsig.HasStrongEmotion(text)

	// Hard and soft cooldowns apply only to unremarkable traffic.
	if !lastBotReplyAt.IsZero() && !isQuestion && !strongEmotion {
		since := now.Sub(lastBotReplyAt)
		if since < p.cfg.CooldownHard {
			return ignore("cooldown-hard", 0, nil)
		}
		if since < p.cfg.CooldownSoft && p.rand.Float64() < p.cfg.SoftSkipProbability {
			return ignore("cooldown-soft", 0, nil)
		}
	}

	baseInterest := p.baseInterest(text, isQuestion)
	intimacy := p.stats.Intimacy(e.Platform, e.GroupID, e.UserID)
	socialAttention := (0.5*intimacy + 0.5*boolTo(e.MentionsBot)) * 0.7
	energyFactor := p.energy.Value()

	prob := 0.20*baseInterest +
		0.25*socialAttention +
		0.10*personaTalkativeness +
		0.25*energyFactor

	factors := map[string]float64{
		"base_interest":    baseInterest,
		"social_attention": socialAttention,
		"energy":           energyFactor,
		"intimacy":         intimacy,
	}

	// A noisy room suppresses the urge to jump in.
	_, activityLevel := p.activity.Level(e.SessionKey())
	factors["group_activity"] = activityLevel
	switch {
	case activityLevel > 0.7:
		prob *= 0.3
	case activityLevel > 0.5:
		prob *= 0.5
	}

	spamType := p.stats.ClassifySpam(e.Platform, e.GroupID, e.UserID)
	urgency := 0.0
	switch spamType {
	case stats.SpamHelpSeeking:
		prob *= 1.2
		urgency = p.stats.UrgencyScore(e.Platform, e.GroupID, e.UserID)
		factors["urgency"] = urgency
		if urgency > 0.65 && prob < 0.5 {
			prob = 0.5
		}
	case stats.SpamMemePlay:
		prob *= 0.6
	case stats.SpamNoise:
		prob *= 0.2
	}

	repetition := p.stats.UserRepetitionScore(e.Platform, e.GroupID, e.UserID)
	if repetition > 0.5 && spamType != stats.SpamHelpSeeking {
		prob *= 0.5
	}
	if p.stats.GroupMemeScore(e.Platform, e.GroupID, text) > 0.4 {
		prob += 0.05
	}
	prob = textsig.Clamp01(prob)

	if p.rand.Float64() >= prob {
		return ignore("dice-skip", prob, factors)
	}

	mode := p.pickMode(intimacy, spamType, urgency)
	delay := replyDelayBase + time.Duration(p.rand.Intn(replyDelayJitter))*time.Millisecond
	return &Result{
		ShouldReply: true,
		Mode:        mode,
		Delay:       delay,
		Meta: Meta{
			Probability: prob,
			Factors:     factors,
			SpamType:    spamType,
			Reason:      "dice-reply",
		},
	}
}

// baseInterest grades the text itself, with a 10% "lurking" short-circuit
// that keeps the bot quiet regardless of content.
func (p *Planner) baseInterest(text string, isQuestion bool) float64 {
	if p.rand.Float64() < lurkingProbability {
		return 0.05
	}
	score := 0.0
	if isQuestion {
		score += 0.25
	}
	if textsig.HasHelpWords(text) {
		score += 0.25
	}
	lenBoost := float64(textsig.RuneLen(text)) / 100
	if lenBoost > 0.2 {
		lenBoost = 0.2
	}
	score += lenBoost
	if textsig.HasTopicKeywords(text) {
		score += 0.1
	}
	return textsig.Clamp01(score) * 0.6
}

// pickMode maps intimacy bands and spam state to a reply register.
func (p *Planner) pickMode(intimacy float64, spamType stats.SpamType, urgency float64) Mode {
	if spamType == stats.SpamHelpSeeking && urgency > 0.7 {
		return ModeDirectAnswer
	}
	roll := p.rand.Float64()
	switch {
	case intimacy < 0.3:
		// Strangers get low-commitment registers.
		switch {
		case roll < 0.4:
			return ModeFragment
		case roll < 0.7:
			return ModePassiveAck
		default:
			return ModeCasual
		}
	case intimacy > 0.7:
		if roll < 0.25 {
			return ModePlayfulTease
		}
	}
	switch {
	case roll < 0.7:
		return ModeCasual
	case roll < 0.9:
		return ModeFragment
	default:
		return ModeSmalltalk
	}
}

func ignore(reason string, prob float64, factors map[string]float64) *Result {
	return &Result{
		ShouldReply: false,
		Mode:        ModeIgnore,
		Meta:        Meta{Probability: prob, Factors: factors, Reason: reason},
	}
}

func boolTo(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
