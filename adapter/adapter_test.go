package adapter

import (
	"context"
	"testing"
)

type countSender struct {
	sent   int
	typing int
}

func (c *countSender) SendText(context.Context, string, string, string) error {
	c.sent++
	return nil
}

func (c *countSender) NotifyTyping(context.Context, string) { c.typing++ }

// plainSender has no typing support.
type plainSender struct{}

func (plainSender) SendText(context.Context, string, string, string) error { return nil }

func TestRateLimitedSender_Forwards(t *testing.T) {
	inner := &countSender{}
	s := NewRateLimitedSender(inner, 1000, 5)

	for i := 0; i < 3; i++ {
		if err := s.SendText(context.Background(), "g1", "hi", ""); err != nil {
			t.Fatalf("SendText err = %v", err)
		}
	}
	if inner.sent != 3 {
		t.Errorf("forwarded %d sends, want 3", inner.sent)
	}

	s.NotifyTyping(context.Background(), "g1")
	if inner.typing != 1 {
		t.Error("typing action not forwarded")
	}
}

func TestRateLimitedSender_CancelledContext(t *testing.T) {
	// Rate 1/s with an empty bucket forces a wait the context cuts short.
	s := NewRateLimitedSender(&countSender{}, 1, 1)
	s.SendText(context.Background(), "g1", "drain the bucket", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendText(ctx, "g1", "hi", ""); err == nil {
		t.Error("expected an error when the context is cancelled mid-wait")
	}
}

func TestRateLimitedSender_TypingWithoutSupport(t *testing.T) {
	s := NewRateLimitedSender(&plainSender{}, 10, 1)
	// Must be a silent no-op.
	s.NotifyTyping(context.Background(), "g1")
}

func TestRateLimitedSender_FloorsBadConfig(t *testing.T) {
	s := NewRateLimitedSender(&countSender{}, 0, 0)
	if err := s.SendText(context.Background(), "g1", "hi", ""); err != nil {
		t.Errorf("SendText err = %v, want the floored limiter to pass one send", err)
	}
}
