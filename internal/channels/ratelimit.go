package channels

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Outbound pacing: WhatsApp flags accounts that blast messages, so sends are
// throttled per chat on top of a global ceiling.
const (
	globalSendRate  = 5.0 // messages per second across all chats
	globalSendBurst = 10
	chatSendRate    = 1.0 // messages per second to a single chat
	chatSendBurst   = 3

	maxTrackedChats = 4096
)

// SendLimiter paces outbound sends. Safe for concurrent use.
type SendLimiter struct {
	global *rate.Limiter

	mu    sync.Mutex
	chats map[string]*rate.Limiter
}

func NewSendLimiter() *SendLimiter {
	return &SendLimiter{
		global: rate.NewLimiter(rate.Limit(globalSendRate), globalSendBurst),
		chats:  make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a send to chatID is allowed or ctx is done.
func (l *SendLimiter) Wait(ctx context.Context, chatID string) error {
	if err := l.chatLimiter(chatID).Wait(ctx); err != nil {
		return err
	}
	return l.global.Wait(ctx)
}

func (l *SendLimiter) chatLimiter(chatID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.chats[chatID]; ok {
		return lim
	}
	// Hard cap on tracked chats; eviction order does not matter, an evicted
	// chat just starts with a fresh burst.
	if len(l.chats) >= maxTrackedChats {
		for k := range l.chats {
			delete(l.chats, k)
			break
		}
	}
	lim := rate.NewLimiter(rate.Limit(chatSendRate), chatSendBurst)
	l.chats[chatID] = lim
	return lim
}
