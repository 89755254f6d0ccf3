package bus

import (
	"context"
	"time"
)

// InboundMessage represents a chat event received from a channel.
type InboundMessage struct {
	Channel   string            `json:"channel"`
	SenderID  string            `json:"sender_id"`
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	Kind      string            `json:"kind,omitempty"` // "text", "image", "audio", "video", "file"
	Timestamp time.Time         `json:"timestamp"`
	IsGroup   bool              `json:"is_group,omitempty"`
	HasMedia  bool              `json:"has_media,omitempty"`
	FromSelf  bool              `json:"from_self,omitempty"` // sent from the bot's own account
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MessageRouter abstracts inbound/outbound routing between a channel and the
// pipeline consuming it.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
