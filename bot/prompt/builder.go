// Package prompt composes the two-message prompt the LLM receives: a
// persona system message and a structured user message with
// INSTRUCTION / STYLE / SUMMARY / MEMORY / HISTORICAL / NEW_WINDOW /
// TARGET blocks.
package prompt

import (
	"fmt"
	"strings"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/replyctx"
)

// Message is one chat message handed to the LLM client.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

const instructionBlock = `[INSTRUCTION]
1. 只回复 TARGET 中的内容，HISTORICAL 和 NEW_WINDOW 仅作为背景参考。
2. 严格遵守 STYLE 指定的语气和亲密度。
3. 如果想分多条发送，用 <brk> 分隔，最多 3 段。
4. 只输出要发送的内容本身，不要换行，不要任何解释。`

// Builder renders prompts for a fixed persona.
type Builder struct {
	persona bot.Persona
}

// NewBuilder creates a prompt builder for the persona.
func NewBuilder(persona bot.Persona) *Builder {
	return &Builder{persona: persona}
}

// BuildSystem renders the persona system message.
func (b *Builder) BuildSystem() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "你是 %s, %s\n", b.persona.Name, b.persona.Description)
	fmt.Fprintf(&sb, "人设风格：%s\n", b.persona.Tone)
	sb.WriteString("语言约束：禁止AI腔、讲大道理、格式化、分点、括号动作")
	for _, c := range b.persona.Constraints {
		sb.WriteString("\n")
		sb.WriteString(c)
	}
	return sb.String()
}

// BuildMessages composes [system, user]. Empty blocks are omitted from
// the user message. memory is an optional long-term memory digest.
func (b *Builder) BuildMessages(rctx *replyctx.Context, style *bot.DynamicStyle, memory string) []Message {
	historical, newWindow := splitWindows(rctx.RecentTurns)

	blocks := make([]string, 0, 7)
	blocks = append(blocks, instructionBlock)
	if s := styleBlock(style); s != "" {
		blocks = append(blocks, s)
	}
	if rctx.TopicSummary != "" {
		blocks = append(blocks, "[SUMMARY]\n"+rctx.TopicSummary)
	}
	if memory != "" {
		blocks = append(blocks, "[MEMORY]\n"+memory)
	}
	if len(historical) > 0 {
		blocks = append(blocks, "[HISTORICAL]\n"+renderTurns(historical))
	}
	if len(newWindow) > 0 {
		blocks = append(blocks, "[NEW_WINDOW]\n"+renderTurns(newWindow))
	}
	if rctx.TargetTurn != nil {
		blocks = append(blocks, "[TARGET]\n"+renderTurn(*rctx.TargetTurn))
	}

	return []Message{
		{Role: "system", Content: b.BuildSystem()},
		{Role: "user", Content: strings.Join(blocks, "\n\n")},
	}
}

// splitWindows separates the turns at the last bot turn: everything up
// to and including it is HISTORICAL, the rest is NEW_WINDOW.
func splitWindows(turns []bot.ChatTurn) (historical, newWindow []bot.ChatTurn) {
	lastBot := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == bot.RoleBot {
			lastBot = i
			break
		}
	}
	if lastBot < 0 {
		return nil, turns
	}
	return turns[:lastBot+1], turns[lastBot+1:]
}

// styleBlock renders "[STYLE] tone=…; slang=N.NN; intimacy=N.NN" using
// only set fields.
func styleBlock(style *bot.DynamicStyle) string {
	if style == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if style.Tone != "" {
		parts = append(parts, "tone="+style.Tone)
	}
	if style.Slang > 0 {
		parts = append(parts, fmt.Sprintf("slang=%.2f", style.Slang))
	}
	if style.Intimacy > 0 {
		parts = append(parts, fmt.Sprintf("intimacy=%.2f", style.Intimacy))
	}
	if len(parts) == 0 {
		return ""
	}
	return "[STYLE] " + strings.Join(parts, "; ")
}

func renderTurns(turns []bot.ChatTurn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, renderTurn(t))
	}
	return strings.Join(lines, "\n")
}

// renderTurn formats "{name}: {text}". Bot turns render as 你; stored
// newlines are escaped; mentions gain a leading @你 when absent.
func renderTurn(t bot.ChatTurn) string {
	name := t.UserName
	if t.Role == bot.RoleBot {
		name = "你"
	} else if name == "" {
		name = t.UserID
	}
	text := strings.ReplaceAll(t.Content, "\n", `\n`)
	if t.MentionsBot && !strings.Contains(text, "@你") {
		text = "@你 " + text
	}
	return name + ": " + text
}
