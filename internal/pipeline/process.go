package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/frontdesk/internal/bus"
	"github.com/nextlevelbuilder/frontdesk/internal/conversation"
	"github.com/nextlevelbuilder/frontdesk/internal/tickets"
)

// processBatch handles one debounced batch for a conversation. Runs on the
// batcher's goroutine; the batcher guarantees no concurrent pass per key.
func (p *Pipeline) processBatch(key string, msgs []bus.InboundMessage) {
	if len(msgs) == 0 {
		return
	}
	chatID := msgs[0].ChatID

	ctx, cancel := context.WithTimeout(p.runCtx, batchTimeout)
	defer cancel()

	turns := make([]conversation.Turn, 0, len(msgs))
	var parts []string
	for _, m := range msgs {
		t := inboundTurn(m)
		turns = append(turns, t)
		parts = append(parts, t.Content)
	}
	batchText := strings.Join(parts, "\n")

	// Durability is best effort: a store failure must not cost the user
	// their reply, so the in-memory batch stands in for the log below.
	persisted := true
	if err := p.log.Append(key, turns...); err != nil {
		slog.Error("failed to record inbound turns", "key", key, "error", err)
		persisted = false
	}

	// The mute may have landed while the batch was debouncing.
	if p.mutes.IsMuted(key) {
		return
	}

	p.sender.Typing(ctx, chatID)

	reply := p.respond(ctx, key, batchText, turns, persisted)
	if reply == "" {
		return
	}

	p.bus.PublishOutbound(bus.OutboundMessage{ChatID: chatID, Content: reply})
	if err := p.log.Append(key, conversation.NewTurn(conversation.RoleAssistant, reply)); err != nil {
		slog.Warn("failed to record reply turn", "key", key, "error", err)
	}
	p.summarizer.MaybeCompact(ctx, key)
}

// respond decides the reply for a batch. Empty means stay silent. batch holds
// the turns of this pass so classification still works when they never made
// it into the log.
func (p *Pipeline) respond(ctx context.Context, key, batchText string, batch []conversation.Turn, persisted bool) string {
	// A pending confirmation owns the conversation until it resolves.
	if p.coordinator.HasPending(key) {
		reply, outcome := p.coordinator.Resolve(ctx, key, batchText)
		switch outcome {
		case tickets.OutcomeExpired, tickets.OutcomeTopicChanged:
			// The pending is gone; the batch is a fresh request now.
		default:
			return reply
		}
	}

	history, err := p.log.History(key)
	if err != nil {
		slog.Error("failed to load history", "key", key, "error", err)
		history, persisted = nil, false
	}
	if !persisted {
		history = append(history, batch...)
	}

	cat := p.classifier.Route(ctx, history)
	if cat != conversation.CategoryNone {
		complete, questions := p.classifier.Completeness(ctx, cat, history)
		if !complete {
			if len(questions) == 0 {
				return msgNeedDetails
			}
			return strings.Join(questions, "\n")
		}

		reply, outcome := p.coordinator.Propose(ctx, key, cat, history)
		if outcome != tickets.OutcomeExtractFailed {
			return reply
		}
		// Extraction failed after a complete-looking conversation; fall back
		// to the conversational path rather than going silent.
	}

	if p.classifier.AccountQuestion(ctx, history) {
		if reply, handled := p.bridge.Answer(ctx, key, history); handled {
			return reply
		}
	}

	reply, err := p.classifier.Reply(ctx, p.prompts.Prompt(p.persona.Name), history)
	if err != nil {
		slog.Warn("conversational reply failed", "key", key, "error", err)
		return msgFallback
	}
	return reply
}
