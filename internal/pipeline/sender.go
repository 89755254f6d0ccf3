package pipeline

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/frontdesk/internal/bus"
	"github.com/nextlevelbuilder/frontdesk/internal/channels"
	"github.com/nextlevelbuilder/frontdesk/internal/operator"
)

// Sender is the single outbound path to the transport. Every send is
// fingerprinted into the echo cache first, so the self-message echo the
// bridge reflects back is recognized as ours.
type Sender struct {
	channel channels.Channel
	echoes  *operator.EchoCache
}

func NewSender(channel channels.Channel, echoes *operator.EchoCache) *Sender {
	return &Sender{channel: channel, echoes: echoes}
}

// Send delivers content to a chat. The echo fingerprint is recorded before
// the write so the reflected self message can never race it.
func (s *Sender) Send(ctx context.Context, chatID, content string) error {
	s.echoes.Record(chatID, content)
	return s.channel.Send(ctx, bus.OutboundMessage{ChatID: chatID, Content: content})
}

// Typing shows the typing indicator when the transport supports it.
func (s *Sender) Typing(ctx context.Context, chatID string) {
	tc, ok := s.channel.(channels.TypingChannel)
	if !ok {
		return
	}
	if err := tc.SendTyping(ctx, chatID); err != nil {
		slog.Debug("typing indicator failed", "chat_id", chatID, "error", err)
	}
}

// runOutbound drains the bus outbound queue into the transport.
func (p *Pipeline) runOutbound(ctx context.Context) {
	for {
		msg, ok := p.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if err := p.sender.Send(ctx, msg.ChatID, msg.Content); err != nil {
			slog.Warn("outbound send failed", "persona", p.persona.Name,
				"chat_id", msg.ChatID, "error", err)
		}
	}
}
