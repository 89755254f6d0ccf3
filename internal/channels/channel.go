// Package channels is the transport abstraction: a Channel connects one bot
// persona to its messaging platform and exchanges messages with the pipeline
// through the message bus.
package channels

import (
	"context"

	"github.com/nextlevelbuilder/frontdesk/internal/bus"
)

// Channel is the interface every transport implementation satisfies.
type Channel interface {
	// Name returns the transport identifier (e.g. "whatsapp").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning reports whether the channel is actively processing messages.
	IsRunning() bool
}

// TypingChannel is implemented by transports that can show a typing
// indicator while a reply is being composed.
type TypingChannel interface {
	Channel
	SendTyping(ctx context.Context, chatID string) error
}

// BaseChannel provides shared plumbing for channel implementations.
type BaseChannel struct {
	name    string
	bus     *bus.MessageBus
	running bool
}

func NewBaseChannel(name string, msgBus *bus.MessageBus) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// HandleMessage publishes a received message to the bus. This is the standard
// path for transports to forward inbound traffic.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) {
	msg.Channel = c.name
	c.bus.PublishInbound(msg)
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
