package pipeline

import (
	"math"
	"testing"

	"github.com/hrygo/groupparrot/bot/planner"
)

func TestDeriveStyle_BlendsIntimacyAndEnergy(t *testing.T) {
	s := deriveStyle(planner.ModeCasual, 0.5, 1.0)

	// slang = 0.5 + 0.2*0.5, verbosity = 0.5 * (0.6+0.4).
	if math.Abs(s.Slang-0.6) > 1e-9 {
		t.Errorf("slang = %v, want 0.6", s.Slang)
	}
	if math.Abs(s.Verbosity-0.5) > 1e-9 {
		t.Errorf("verbosity = %v, want 0.5", s.Verbosity)
	}
	if s.Intimacy != 0.5 {
		t.Errorf("intimacy = %v, want passthrough 0.5", s.Intimacy)
	}
}

func TestDeriveStyle_TiredBotTalksLess(t *testing.T) {
	fresh := deriveStyle(planner.ModeSmalltalk, 0.3, 1.0)
	tired := deriveStyle(planner.ModeSmalltalk, 0.3, 0.0)

	if tired.Verbosity >= fresh.Verbosity {
		t.Errorf("tired verbosity %v not below fresh %v", tired.Verbosity, fresh.Verbosity)
	}
	if tired.MultiUtterancePreference >= fresh.MultiUtterancePreference {
		t.Error("tired bot should prefer fewer utterances")
	}
	if tired.Tone != fresh.Tone {
		t.Error("energy must not change the tone")
	}
}

func TestDeriveStyle_UnknownModeFallsBackToCasual(t *testing.T) {
	got := deriveStyle(planner.Mode("mystery"), 0, 1)
	want := deriveStyle(planner.ModeCasual, 0, 1)
	if got.Tone != want.Tone {
		t.Errorf("fallback tone = %q, want casual %q", got.Tone, want.Tone)
	}
}
