package bus

import (
	"context"
	"testing"
	"time"
)

func TestInboundRoundTrip(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(InboundMessage{ChatID: "x", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok || msg.Content != "hi" {
		t.Errorf("round trip failed: %v %v", msg, ok)
	}
}

func TestConsumeInboundStopsOnCancel(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Error("consume succeeded on cancelled context")
	}
}

func TestPublishInboundDropsWhenSaturated(t *testing.T) {
	b := NewMessageBus()
	// Fill the queue past capacity; the overflow must drop, not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize+10; i++ {
			b.PublishInbound(InboundMessage{ChatID: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishInbound blocked on a full queue")
	}
}

func TestOutboundRoundTrip(t *testing.T) {
	b := NewMessageBus()
	b.PublishOutbound(OutboundMessage{ChatID: "x", Content: "reply"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	msg, ok := b.SubscribeOutbound(ctx)
	if !ok || msg.Content != "reply" {
		t.Errorf("round trip failed: %v %v", msg, ok)
	}
}
