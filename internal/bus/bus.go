// Package bus carries messages between the transport channel and the
// per-persona pipeline. One MessageBus instance per persona.
package bus

import (
	"context"
	"log/slog"
)

const queueSize = 256

// MessageBus is a buffered in-process queue pair for one persona.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// NewMessageBus creates a bus with bounded queues.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, queueSize),
		outbound: make(chan OutboundMessage, queueSize),
	}
}

// PublishInbound queues an inbound message. Drops (with a log line) when the
// pipeline is saturated rather than blocking the transport read loop.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("inbound queue full, dropping message",
			"channel", msg.Channel, "chat_id", msg.ChatID)
	}
}

// ConsumeInbound blocks until a message arrives or ctx is done.
// The second return is false when ctx was cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

// PublishOutbound queues an outbound message for the sender loop.
// Blocks when the queue is full; the sender loop drains it continuously.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound blocks until an outbound message is available or ctx is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}
