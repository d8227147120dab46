// Package adapter defines the platform boundary: outbound senders and
// the rate-limit wrapper shared by all channel implementations.
package adapter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/bot/pipeline"
)

// EventHandler receives normalized inbound events from a channel.
type EventHandler interface {
	HandleEvent(e *bot.ChatEvent)
}

// Source is a long-running inbound channel. Run blocks until ctx is
// cancelled, delivering every inbound message to the handler.
type Source interface {
	Run(ctx context.Context, h EventHandler) error
}

// RateLimitedSender wraps a sender with a token-bucket limiter so the
// bot stays under platform flood limits even when several sessions
// reply at once.
type RateLimitedSender struct {
	inner   pipeline.Sender
	limiter *rate.Limiter
}

// NewRateLimitedSender allows perSecond sends sustained, with the given
// burst.
func NewRateLimitedSender(inner pipeline.Sender, perSecond float64, burst int) *RateLimitedSender {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedSender{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// SendText waits for a token, then forwards to the wrapped sender.
func (s *RateLimitedSender) SendText(ctx context.Context, groupID, text, replyTo string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return s.inner.SendText(ctx, groupID, text, replyTo)
}

// NotifyTyping forwards the typing action when the wrapped sender
// supports it. Typing actions are not rate limited; they are cheap and
// platforms tolerate them.
func (s *RateLimitedSender) NotifyTyping(ctx context.Context, groupID string) {
	if n, ok := s.inner.(pipeline.TypingNotifier); ok {
		n.NotifyTyping(ctx, groupID)
	}
}
