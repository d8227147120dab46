package pipeline

import (
	"strings"
	"testing"
)

// fixedRand always returns the same values; enough for delay math.
type fixedRand struct {
	f float64
	n int
}

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) Intn(n int) int {
	if r.n >= n {
		return n - 1
	}
	return r.n
}

func TestUtterancePlan_SingleThresholds(t *testing.T) {
	p := NewUtterancePlanner(fixedRand{})

	short := strings.Repeat("好", 30)
	t.Run("short_always_single", func(t *testing.T) {
		plan := p.Plan(short, 0.9, 0.9, false)
		if len(plan.Segments) != 1 {
			t.Errorf("segments = %d, want 1 for <= 40 runes", len(plan.Segments))
		}
	})

	medium := strings.Repeat("中等长度的句子。", 9) // 72 runes
	t.Run("medium_single_when_terse", func(t *testing.T) {
		plan := p.Plan(medium, 0.3, 0.9, false)
		if len(plan.Segments) != 1 {
			t.Errorf("segments = %d, want 1 for low verbosity", len(plan.Segments))
		}
	})
	t.Run("medium_splits_when_verbose", func(t *testing.T) {
		plan := p.Plan(medium, 0.8, 0.8, false)
		if len(plan.Segments) < 2 {
			t.Errorf("segments = %d, want multi for verbose persona", len(plan.Segments))
		}
	})

	t.Run("at_reply_stays_single_longer", func(t *testing.T) {
		text := strings.Repeat("回答提到的点。", 14) // 98 runes
		plan := p.Plan(text, 0.5, 0.9, true)
		if len(plan.Segments) != 1 {
			t.Errorf("segments = %d, want 1 for @-reply under 120 runes", len(plan.Segments))
		}
	})
}

func TestUtterancePlan_SplitShape(t *testing.T) {
	p := NewUtterancePlanner(fixedRand{n: 100})

	text := "先说第一件事情的来龙去脉。然后是第二件事的细节部分！接着聊聊第三点的看法。最后还有一点补充说明？"
	plan := p.Plan(text, 0.9, 0.9, false)

	if len(plan.Segments) < 2 || len(plan.Segments) > 4 {
		t.Fatalf("segments = %d, want 2..4", len(plan.Segments))
	}
	if plan.Segments[0].Delay != 0 {
		t.Error("first segment must have no delay")
	}
	for i, seg := range plan.Segments {
		if i > 0 && seg.Delay <= 0 {
			t.Errorf("segment %d delay = %v, want > 0", i, seg.Delay)
		}
		if i < len(plan.Segments)-1 {
			for _, p := range []string{"。", "！", "？", "!", "?"} {
				if strings.HasSuffix(seg.Text, p) {
					t.Errorf("mid-stream segment %d keeps trailing punctuation: %q", i, seg.Text)
				}
			}
		}
	}

	if !strings.HasPrefix(text, plan.Segments[0].Text[:len("先说")]) {
		t.Error("first segment does not start the original text")
	}
}

func TestUtterancePlan_NoSentenceBoundaryStaysSingle(t *testing.T) {
	p := NewUtterancePlanner(fixedRand{})
	// 90 runes, no sentence punctuation and no commas.
	text := strings.Repeat("连绵不绝", 23)
	plan := p.Plan(text, 0.9, 0.9, false)
	if len(plan.Segments) != 1 {
		t.Errorf("segments = %d, want 1 when nothing can split", len(plan.Segments))
	}
}

func TestUtterancePlan_DelayScalesWithVerbosity(t *testing.T) {
	terse := NewUtterancePlanner(fixedRand{n: 0})
	text := "第一句话讲清楚了事情发生的经过。第二句话补充了当时在场的人都说了什么！第三句话给出了接下来的打算。"

	planLow := terse.Plan(text, 0.6, 0.9, false)
	planHigh := terse.Plan(text, 1.0, 0.9, false)
	if len(planLow.Segments) < 2 || len(planHigh.Segments) < 2 {
		t.Fatal("expected multi-segment plans")
	}
	if planHigh.Segments[1].Delay <= planLow.Segments[1].Delay {
		t.Errorf("delay did not scale with verbosity: %v vs %v",
			planHigh.Segments[1].Delay, planLow.Segments[1].Delay)
	}
}

func TestTargetCount(t *testing.T) {
	p := NewUtterancePlanner(fixedRand{})
	if got := p.targetCount(100, 0.3, 0.3); got != 2 {
		t.Errorf("targetCount(short, terse) = %d, want 2", got)
	}
	if got := p.targetCount(200, 0.9, 0.9); got != 4 {
		t.Errorf("targetCount(long, verbose) = %d, want 4", got)
	}
}

func TestSplitSentences_CommaFallbackForLongParts(t *testing.T) {
	long := strings.Repeat("甲", 30) + "，" + strings.Repeat("乙", 30) + "。"
	parts := splitSentences(long)
	if len(parts) != 2 {
		t.Errorf("parts = %d, want comma split of a 61-rune sentence", len(parts))
	}
}
