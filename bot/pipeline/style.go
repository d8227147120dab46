package pipeline

import (
	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/planner"
	"github.com/hrygo/groupparrot/bot/textsig"
)

// baseStyle is the fixed per-mode style table, blended at runtime with
// intimacy and energy.
var baseStyle = map[planner.Mode]bot.DynamicStyle{
	planner.ModeSmalltalk:      {Tone: "自然闲聊", Slang: 0.4, Verbosity: 0.6, MultiUtterancePreference: 0.4},
	planner.ModeCasual:         {Tone: "轻松随意", Slang: 0.5, Verbosity: 0.5, MultiUtterancePreference: 0.5},
	planner.ModeFragment:       {Tone: "碎片化短句", Slang: 0.6, Verbosity: 0.2, MultiUtterancePreference: 0.7},
	planner.ModeDirectAnswer:   {Tone: "直接给出可行建议", Slang: 0.2, Verbosity: 0.8, MultiUtterancePreference: 0.2},
	planner.ModePassiveAck:     {Tone: "简单附和", Slang: 0.3, Verbosity: 0.1, MultiUtterancePreference: 0.2},
	planner.ModePlayfulTease:   {Tone: "调侃玩笑", Slang: 0.8, Verbosity: 0.4, MultiUtterancePreference: 0.6},
	planner.ModeEmpathySupport: {Tone: "共情安慰", Slang: 0.2, Verbosity: 0.7, MultiUtterancePreference: 0.3},
	planner.ModeDeflect:        {Tone: "不接茬岔开话题", Slang: 0.5, Verbosity: 0.3, MultiUtterancePreference: 0.3},
}

// deriveStyle blends the mode's fixed table with the sender's intimacy
// and the bot's current energy: familiar users get more slang, a tired
// bot talks less.
func deriveStyle(mode planner.Mode, intimacy, energyVal float64) *bot.DynamicStyle {
	base, ok := baseStyle[mode]
	if !ok {
		base = baseStyle[planner.ModeCasual]
	}
	return &bot.DynamicStyle{
		Tone:                     base.Tone,
		Slang:                    textsig.Clamp01(base.Slang + 0.2*intimacy),
		Intimacy:                 textsig.Clamp01(intimacy),
		Verbosity:                textsig.Clamp01(base.Verbosity * (0.6 + 0.4*energyVal)),
		MultiUtterancePreference: textsig.Clamp01(base.MultiUtterancePreference * (0.6 + 0.4*energyVal)),
	}
}
