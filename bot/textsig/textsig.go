// Package textsig extracts lexical signals from chat text: questions,
// strong emotion, help seeking, meme play, punctuation noise. The
// lexicons are tuned for mixed Chinese/English group chat.
package textsig

import (
	"strings"
	"unicode"
)

var interrogatives = []string{
	"吗", "呢", "什么", "为什么", "为啥", "怎么", "怎样", "咋", "谁",
	"哪", "几", "多少", "难道", "是不是", "有没有", "能不能", "可不可以",
	"how", "why", "what", "when", "where", "who", "which",
}

var helpWords = []string{
	"求", "救", "帮", "请问", "请教", "跪求", "急", "在线等", "怎么办",
	"help", "please", "how to", "anyone",
}

var strongEmotion = []string{
	"！！", "!!", "？！", "?!", "气死", "哭了", "崩溃", "怒", "吐了",
	"救命", "绝了", "离谱", "无语", "😭", "😡", "🤬", "💢",
}

var memeLexicon = []string{
	"哈哈", "hh", "hhh", "xswl", "笑死", "草", "艹", "666", "绷不住",
	"蚌埠住", "乐", "笑", "lol", "lmao", "233", "doge", "🐶", "🤣", "😂",
}

var laughterTokens = []string{
	"哈哈", "hhh", "hh", "233", "xswl", "笑死", "lol", "lmao", "🤣", "😂",
}

var topicKeywords = []string{
	"游戏", "电影", "音乐", "代码", "工作", "学习", "吃", "喝", "旅游",
	"番", "剧", "球", "车", "手机", "电脑",
}

// IsQuestion reports whether the text asks something: a question mark or
// a Chinese/English interrogative.
func IsQuestion(text string) bool {
	if strings.ContainsAny(text, "?？") {
		return true
	}
	lower := strings.ToLower(text)
	for _, w := range interrogatives {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// HasStrongEmotion reports whether the text carries strong-emotion
// markers (stacked punctuation, distress words, angry/crying emoji).
func HasStrongEmotion(text string) bool {
	for _, m := range strongEmotion {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// HasHelpWords reports whether the text contains help-seeking cues.
func HasHelpWords(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range helpWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// HasTopicKeywords reports whether the text touches common chat topics.
func HasTopicKeywords(text string) bool {
	for _, w := range topicKeywords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// MemeScore returns the fraction [0,1] of meme lexicon hits, saturating
// at three distinct hits.
func MemeScore(text string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, w := range memeLexicon {
		if strings.Contains(lower, w) {
			hits++
			if hits >= 3 {
				break
			}
		}
	}
	return float64(hits) / 3
}

// HasLaughter reports whether the text contains laughter tokens.
func HasLaughter(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range laughterTokens {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// IsPunctuationOnly reports whether the trimmed text consists solely of
// punctuation and symbols.
func IsPunctuationOnly(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// EmojiDensity returns the fraction [0,1] of runes that are emoji or
// symbol runes.
func EmojiDensity(text string) float64 {
	total := 0
	emoji := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r >= 0x1F000 || unicode.Is(unicode.So, r) {
			emoji++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(emoji) / float64(total)
}

// Normalize lowercases the text and strips whitespace and trailing
// sentence punctuation, so repeated messages compare equal.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRight(s, "。！？.!?~～")
	return strings.Join(strings.Fields(s), " ")
}

// RuneLen counts runes, the length unit for typing-delay math.
func RuneLen(text string) int {
	return len([]rune(text))
}

// Clamp01 bounds v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
