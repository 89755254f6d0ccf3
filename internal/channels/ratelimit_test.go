package channels

import (
	"context"
	"testing"
	"time"
)

func TestSendLimiterAllowsBurst(t *testing.T) {
	l := NewSendLimiter()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	for i := 0; i < chatSendBurst; i++ {
		if err := l.Wait(ctx, "chat"); err != nil {
			t.Fatalf("burst send %d throttled: %v", i, err)
		}
	}
}

func TestSendLimiterThrottlesBeyondBurst(t *testing.T) {
	l := NewSendLimiter()
	bg := context.Background()

	for i := 0; i < chatSendBurst; i++ {
		if err := l.Wait(bg, "chat"); err != nil {
			t.Fatal(err)
		}
	}

	// The next send needs a token refill; an already-expired context must
	// refuse instead of sending immediately.
	ctx, cancel := context.WithTimeout(bg, time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "chat"); err == nil {
		t.Error("send beyond burst was not throttled")
	}
}

func TestSendLimiterChatsAreIndependent(t *testing.T) {
	l := NewSendLimiter()
	bg := context.Background()

	for i := 0; i < chatSendBurst; i++ {
		if err := l.Wait(bg, "chat-a"); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(bg, 100*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "chat-b"); err != nil {
		t.Errorf("fresh chat throttled by another chat's burst: %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("short string changed: %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("Truncate = %q", got)
	}
}
