package pipeline

import (
	"strings"
	"time"

	"github.com/hrygo/groupparrot/bot/planner"
	"github.com/hrygo/groupparrot/bot/textsig"
)

// UtteranceSegment is one message of a multi-part reply with the pause
// preceding it.
type UtteranceSegment struct {
	Text  string
	Delay time.Duration
}

// UtterancePlan is the delivery plan for a reply without explicit <brk>
// markers.
type UtterancePlan struct {
	Segments []UtteranceSegment
}

// UtterancePlanner decides single vs. multi-send from the reply length
// and the persona's verbosity / multi-utterance preference.
type UtterancePlanner struct {
	rand planner.Rand
}

// NewUtterancePlanner creates an utterance planner.
func NewUtterancePlanner(rnd planner.Rand) *UtterancePlanner {
	if rnd == nil {
		rnd = planner.NewLockedRand(time.Now().UnixNano())
	}
	return &UtterancePlanner{rand: rnd}
}

const (
	singleAlways      = 40
	singleLowVerbose  = 80
	singleReluctant   = 150
	singleAtReply     = 120
	longPartThreshold = 40
)

// Plan splits the text into naturally paced segments.
func (p *UtterancePlanner) Plan(text string, verbosity, multiPref float64, isAtReply bool) UtterancePlan {
	length := textsig.RuneLen(text)

	single := false
	switch {
	case length <= singleAlways:
		single = true
	case length <= singleLowVerbose && verbosity < 0.5:
		single = true
	case length <= singleReluctant && (verbosity < 0.2 || multiPref < 0.2):
		single = true
	case isAtReply && length <= singleAtReply && verbosity < 0.6:
		single = true
	}
	if single {
		return UtterancePlan{Segments: []UtteranceSegment{{Text: text}}}
	}

	parts := splitSentences(text)
	if len(parts) <= 1 {
		return UtterancePlan{Segments: []UtteranceSegment{{Text: text}}}
	}

	target := p.targetCount(length, verbosity, multiPref)
	segments := packParts(parts, target)

	out := make([]UtteranceSegment, 0, len(segments))
	for i, seg := range segments {
		if i < len(segments)-1 {
			// Casual feel: drop trailing sentence punctuation mid-stream.
			seg = strings.TrimRight(seg, "。！？!?")
		}
		var delay time.Duration
		if i > 0 {
			ms := float64(400+p.rand.Intn(500)) * (1 + 0.3*verbosity)
			delay = time.Duration(ms) * time.Millisecond
		}
		out = append(out, UtteranceSegment{Text: seg, Delay: delay})
	}
	return UtterancePlan{Segments: out}
}

// targetCount scales 2..4 with length and the delivery preferences.
func (p *UtterancePlanner) targetCount(length int, verbosity, multiPref float64) int {
	target := 2
	if length > 160 {
		target++
	}
	if (verbosity+multiPref)/2 > 0.6 {
		target++
	}
	if target > 4 {
		target = 4
	}
	return target
}

// splitSentences breaks on sentence punctuation (keeping it attached),
// then further splits parts longer than 40 runes on commas.
func splitSentences(text string) []string {
	var parts []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		switch r {
		case '。', '！', '？', '!', '?', '\n':
			if s := strings.TrimSpace(cur.String()); s != "" {
				parts = append(parts, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		parts = append(parts, s)
	}

	var out []string
	for _, part := range parts {
		if textsig.RuneLen(part) <= longPartThreshold {
			out = append(out, part)
			continue
		}
		out = append(out, splitOnCommas(part)...)
	}
	return out
}

func splitOnCommas(part string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range part {
		if r == '，' || r == ',' {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	if len(out) == 0 {
		return []string{part}
	}
	return out
}

// packParts groups consecutive parts into at most target segments of
// roughly equal length.
func packParts(parts []string, target int) []string {
	if len(parts) <= target {
		return parts
	}
	total := 0
	for _, p := range parts {
		total += textsig.RuneLen(p)
	}
	perSegment := total / target

	segments := make([]string, 0, target)
	var cur strings.Builder
	curLen := 0
	for _, p := range parts {
		cur.WriteString(p)
		curLen += textsig.RuneLen(p)
		if curLen >= perSegment && len(segments) < target-1 {
			segments = append(segments, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	if cur.Len() > 0 {
		segments = append(segments, cur.String())
	}
	return segments
}
