package stats

import (
	"time"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/textsig"
)

// SpamType is the coarse classification of a sender's recent pattern.
type SpamType string

const (
	SpamNormal      SpamType = "NORMAL"
	SpamHelpSeeking SpamType = "HELP_SEEKING"
	SpamMemePlay    SpamType = "MEME_PLAY"
	SpamNoise       SpamType = "NOISE"
)

const (
	spamWindow        = 2 * time.Minute
	spamMinMessages   = 3
	noiseThreshold    = 0.6
	helpThreshold     = 0.5
	memePlayThreshold = 0.5
)

// ClassifySpam inspects the sender's last two minutes of traffic.
// With fewer than three messages in the window the answer is NORMAL.
// Otherwise noise, help-seeking and meme-play sub-scores are computed
// from lexical cues; the first threshold crossed, in that order, wins.
func (r *Registry) ClassifySpam(platform bot.Platform, groupID, userID string) SpamType {
	recent := r.recentUserTexts(platform, groupID, userID, spamWindow)
	if len(recent) < spamMinMessages {
		return SpamNormal
	}

	var (
		punctOnly  int
		short      int
		questions  int
		helpCues   int
		memeSum    float64
		emojiSum   float64
		totalRunes int
	)
	for _, t := range recent {
		if textsig.IsPunctuationOnly(t.text) {
			punctOnly++
		}
		if textsig.RuneLen(t.text) <= 4 {
			short++
		}
		if textsig.IsQuestion(t.text) {
			questions++
		}
		if textsig.HasHelpWords(t.text) {
			helpCues++
		}
		memeSum += textsig.MemeScore(t.text)
		emojiSum += textsig.EmojiDensity(t.text)
		totalRunes += textsig.RuneLen(t.text)
	}
	n := float64(len(recent))
	avgLen := float64(totalRunes) / n

	// Noise: short punctuation-heavy bursts with no lexical content.
	noiseScore := 0.5*(float64(punctOnly)/n) +
		0.3*(float64(short)/n) +
		0.2*lengthPenalty(avgLen)

	// Help seeking: questions and explicit pleas dominate the burst.
	helpScore := 0.6*(float64(questions)/n) + 0.4*(float64(helpCues)/n)

	// Meme play: meme lexicon and emoji density.
	memeScore := 0.7*(memeSum/n) + 0.3*textsig.Clamp01(emojiSum/n*2)

	switch {
	case noiseScore > noiseThreshold:
		return SpamNoise
	case helpScore > helpThreshold:
		return SpamHelpSeeking
	case memeScore > memePlayThreshold:
		return SpamMemePlay
	default:
		return SpamNormal
	}
}

// lengthPenalty maps average message length to a noise contribution:
// 1.0 for empty, fading to 0 at 10 runes.
func lengthPenalty(avgLen float64) float64 {
	if avgLen >= 10 {
		return 0
	}
	return (10 - avgLen) / 10
}

// UrgencyScore grades a HELP_SEEKING burst: message pressure, intimacy,
// and the bot's reply history with the sender.
func (r *Registry) UrgencyScore(platform bot.Platform, groupID, userID string) float64 {
	recent := r.recentUserTexts(platform, groupID, userID, spamWindow)
	n := float64(len(recent))
	pressure := n / 5
	if pressure > 1 {
		pressure = 1
	}

	intimacy := r.Intimacy(platform, groupID, userID)

	r.mu.RLock()
	var replyRatio float64
	if m, ok := r.members[memberKey(platform, groupID, userID)]; ok && m.TotalMessagesFromUser > 0 {
		replyRatio = textsig.Clamp01(float64(m.TotalRepliesFromBot) / float64(m.TotalMessagesFromUser))
	}
	r.mu.RUnlock()

	return textsig.Clamp01(0.6*pressure + 0.2*intimacy + 0.2*replyRatio)
}
