// Package whatsapp connects one bot persona to a WhatsApp bridge over
// WebSocket. The bridge (whatsapp-web.js based) speaks the actual WhatsApp
// protocol; this channel exchanges JSON frames with it.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/frontdesk/internal/bus"
	"github.com/nextlevelbuilder/frontdesk/internal/channels"
)

// inboundFrame is one JSON event from the bridge.
// type "message" is a resident message; "self_message" is something sent from
// the bot's own account (our echo or a human operator).
type inboundFrame struct {
	Type     string   `json:"type"`
	From     string   `json:"from"`
	Chat     string   `json:"chat"`
	Content  string   `json:"content"`
	Kind     string   `json:"kind"`
	ID       string   `json:"id"`
	FromName string   `json:"from_name"`
	Media    []string `json:"media"`
}

// outboundFrame is one JSON command to the bridge.
type outboundFrame struct {
	Type    string `json:"type"` // "message" or "typing"
	To      string `json:"to"`
	Content string `json:"content,omitempty"`
}

// Channel connects to a WhatsApp bridge via WebSocket with automatic
// reconnection. One Channel per persona.
type Channel struct {
	*channels.BaseChannel
	bridgeURL string
	limiter   *channels.SendLimiter

	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a WhatsApp channel for one persona's bridge.
func New(bridgeURL string, msgBus *bus.MessageBus) (*Channel, error) {
	if bridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", msgBus),
		bridgeURL:   bridgeURL,
		limiter:     channels.NewSendLimiter(),
	}, nil
}

// Start connects to the bridge and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.bridgeURL)

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		// Don't fail hard, the reconnect loop keeps trying.
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop gracefully shuts down the channel.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.SetRunning(false)
	return nil
}

// Send delivers an outbound message to the bridge, paced by the send limiter.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if err := c.limiter.Wait(ctx, msg.ChatID); err != nil {
		return fmt.Errorf("send rate wait: %w", err)
	}
	return c.writeFrame(outboundFrame{Type: "message", To: msg.ChatID, Content: msg.Content})
}

// SendTyping shows the typing indicator in a chat. Best effort.
func (c *Channel) SendTyping(_ context.Context, chatID string) error {
	return c.writeFrame(outboundFrame{Type: "typing", To: chatID})
}

func (c *Channel) writeFrame(frame outboundFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal whatsapp frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write whatsapp frame: %w", err)
	}
	return nil
}

// connect establishes the WebSocket connection to the bridge.
func (c *Channel) connect() error {
	// Copy the default dialer; mutating the shared one races with other
	// personas reconnecting at the same time.
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.bridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.bridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.bridgeURL)
	return nil
}

// listenLoop reads frames from the bridge with automatic reconnection.
func (c *Channel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, 30*time.Second)
				continue
			}

			backoff = time.Second
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("whatsapp read error, will reconnect", "error", err)

			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			slog.Warn("invalid whatsapp frame JSON", "error", err)
			continue
		}

		switch frame.Type {
		case "message":
			c.handleIncoming(frame, false)
		case "self_message":
			c.handleIncoming(frame, true)
		}
	}
}

// handleIncoming publishes a bridge frame to the bus.
func (c *Channel) handleIncoming(frame inboundFrame, fromSelf bool) {
	chatID := frame.Chat
	if chatID == "" {
		chatID = frame.From
	}
	if chatID == "" {
		return
	}

	content := frame.Content
	kind := frame.Kind
	if kind == "" {
		kind = "text"
	}

	metadata := make(map[string]string)
	if frame.ID != "" {
		metadata["message_id"] = frame.ID
	}
	if frame.FromName != "" {
		metadata["user_name"] = frame.FromName
	}

	slog.Debug("whatsapp frame received",
		"chat_id", chatID,
		"from_self", fromSelf,
		"kind", kind,
		"preview", channels.Truncate(content, 50),
	)

	c.HandleMessage(bus.InboundMessage{
		SenderID:  frame.From,
		ChatID:    chatID,
		Content:   content,
		Kind:      kind,
		Timestamp: time.Now(),
		IsGroup:   strings.HasSuffix(chatID, "@g.us"),
		HasMedia:  len(frame.Media) > 0,
		FromSelf:  fromSelf,
		Metadata:  metadata,
	})
}
