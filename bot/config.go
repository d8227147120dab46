package bot

import "time"

// Config holds every orchestration tunable. Zero values are replaced by
// defaults in Normalize, so a partially filled struct is safe to use.
type Config struct {
	// Debounce
	DebounceDelay time.Duration // burst coalescing window per (platform,group,user)

	// Cooldown
	CooldownHard        time.Duration // below this, non-question traffic is ignored
	CooldownSoft        time.Duration // below this, skip probabilistically
	SoftSkipProbability float64

	// Typing simulation
	TypingMin     time.Duration
	TypingMax     time.Duration
	TypingBase    time.Duration
	TypingPerChar time.Duration
	TypingJitter  time.Duration

	// Inter-segment delays for multi-part replies
	SegmentDelayBase    time.Duration
	SegmentDelayPerChar time.Duration
	SegmentDelayJitter  time.Duration
	SegmentDelayCap     time.Duration

	// Conversation log / activity window
	RingBufferMaxTurns int
	ActivityWindow     time.Duration
	ActivityNormalizer int // messages per minute considered "very active"

	// Energy model
	EnergyRecoveryPerMinute float64
	EnergyCostPerReply      float64

	// Typing interruption / quote gap
	InterruptThreshold   int
	QuoteMessageGap      int64
	StaleMaxEventLag     time.Duration
	MemberRecentMessages int
	GroupRecentMessages  int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		DebounceDelay:           5 * time.Second,
		CooldownHard:            5 * time.Second,
		CooldownSoft:            12 * time.Second,
		SoftSkipProbability:     0.65,
		TypingMin:               2800 * time.Millisecond,
		TypingMax:               8 * time.Second,
		TypingBase:              time.Second,
		TypingPerChar:           60 * time.Millisecond,
		TypingJitter:            1500 * time.Millisecond,
		SegmentDelayBase:        500 * time.Millisecond,
		SegmentDelayPerChar:     40 * time.Millisecond,
		SegmentDelayJitter:      700 * time.Millisecond,
		SegmentDelayCap:         3 * time.Second,
		RingBufferMaxTurns:      50,
		ActivityWindow:          5 * time.Minute,
		ActivityNormalizer:      10,
		EnergyRecoveryPerMinute: 0.05,
		EnergyCostPerReply:      0.10,
		InterruptThreshold:      3,
		QuoteMessageGap:         3,
		StaleMaxEventLag:        30 * time.Second,
		MemberRecentMessages:    30,
		GroupRecentMessages:     60,
	}
}

// Normalize fills zero fields with defaults and returns the receiver
// for chaining.
func (c *Config) Normalize() *Config {
	def := DefaultConfig()
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = def.DebounceDelay
	}
	if c.CooldownHard <= 0 {
		c.CooldownHard = def.CooldownHard
	}
	if c.CooldownSoft <= 0 {
		c.CooldownSoft = def.CooldownSoft
	}
	if c.SoftSkipProbability <= 0 {
		c.SoftSkipProbability = def.SoftSkipProbability
	}
	if c.TypingMin <= 0 {
		c.TypingMin = def.TypingMin
	}
	if c.TypingMax <= 0 {
		c.TypingMax = def.TypingMax
	}
	if c.TypingBase <= 0 {
		c.TypingBase = def.TypingBase
	}
	if c.TypingPerChar <= 0 {
		c.TypingPerChar = def.TypingPerChar
	}
	if c.TypingJitter <= 0 {
		c.TypingJitter = def.TypingJitter
	}
	if c.SegmentDelayBase <= 0 {
		c.SegmentDelayBase = def.SegmentDelayBase
	}
	if c.SegmentDelayPerChar <= 0 {
		c.SegmentDelayPerChar = def.SegmentDelayPerChar
	}
	if c.SegmentDelayJitter <= 0 {
		c.SegmentDelayJitter = def.SegmentDelayJitter
	}
	if c.SegmentDelayCap <= 0 {
		c.SegmentDelayCap = def.SegmentDelayCap
	}
	if c.RingBufferMaxTurns <= 0 {
		c.RingBufferMaxTurns = def.RingBufferMaxTurns
	}
	if c.ActivityWindow <= 0 {
		c.ActivityWindow = def.ActivityWindow
	}
	if c.ActivityNormalizer <= 0 {
		c.ActivityNormalizer = def.ActivityNormalizer
	}
	if c.EnergyRecoveryPerMinute <= 0 {
		c.EnergyRecoveryPerMinute = def.EnergyRecoveryPerMinute
	}
	if c.EnergyCostPerReply <= 0 {
		c.EnergyCostPerReply = def.EnergyCostPerReply
	}
	if c.InterruptThreshold <= 0 {
		c.InterruptThreshold = def.InterruptThreshold
	}
	if c.QuoteMessageGap <= 0 {
		c.QuoteMessageGap = def.QuoteMessageGap
	}
	if c.StaleMaxEventLag <= 0 {
		c.StaleMaxEventLag = def.StaleMaxEventLag
	}
	if c.MemberRecentMessages <= 0 {
		c.MemberRecentMessages = def.MemberRecentMessages
	}
	if c.GroupRecentMessages <= 0 {
		c.GroupRecentMessages = def.GroupRecentMessages
	}
	return c
}
