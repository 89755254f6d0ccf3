// Package pipeline is the per-persona orchestrator: it consumes inbound
// messages, debounces them into batches, and walks each batch through
// arbitration, routing, the ticket state machine, the directory bridge, and
// the conversational fallback.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/frontdesk/internal/bus"
	"github.com/nextlevelbuilder/frontdesk/internal/channels"
	"github.com/nextlevelbuilder/frontdesk/internal/config"
	"github.com/nextlevelbuilder/frontdesk/internal/conversation"
	"github.com/nextlevelbuilder/frontdesk/internal/debounce"
	"github.com/nextlevelbuilder/frontdesk/internal/directory"
	"github.com/nextlevelbuilder/frontdesk/internal/intent"
	"github.com/nextlevelbuilder/frontdesk/internal/mute"
	"github.com/nextlevelbuilder/frontdesk/internal/operator"
	"github.com/nextlevelbuilder/frontdesk/internal/tickets"
)

const (
	// DebounceQuiet is how long a conversation must stay silent before its
	// buffered messages are processed as one batch.
	DebounceQuiet = 5 * time.Second

	// batchTimeout bounds one batch's worth of LLM calls and sends.
	batchTimeout = 2 * time.Minute
)

// Deps are the shared services one pipeline builds on.
type Deps struct {
	Bus        *bus.MessageBus
	Channel    channels.Channel
	Log        *conversation.Log
	States     *conversation.Registry
	Mutes      *mute.Registry
	Classifier *intent.Classifier
	Summarizer *conversation.Summarizer
	Prompts    *config.PromptStore
	Directory  directory.Resolver
}

// Pipeline drives one persona end to end.
type Pipeline struct {
	persona config.PersonaConfig

	bus        *bus.MessageBus
	log        *conversation.Log
	states     *conversation.Registry
	mutes      *mute.Registry
	classifier *intent.Classifier
	summarizer *conversation.Summarizer
	prompts    *config.PromptStore

	sender      *Sender
	coordinator *tickets.Coordinator
	bridge      *directory.Bridge
	arbiter     *operator.Arbiter
	batcher     *debounce.Batcher[bus.InboundMessage]

	runCtx context.Context
}

// New wires a pipeline for one persona.
func New(persona config.PersonaConfig, d Deps) *Pipeline {
	p := &Pipeline{
		persona:    persona,
		bus:        d.Bus,
		log:        d.Log,
		states:     d.States,
		mutes:      d.Mutes,
		classifier: d.Classifier,
		summarizer: d.Summarizer,
		prompts:    d.Prompts,
	}

	echoes := operator.NewEchoCache()
	p.sender = NewSender(d.Channel, echoes)
	p.coordinator = tickets.NewCoordinator(d.Classifier, d.States, d.Mutes, p.sender, persona)
	p.bridge = directory.NewBridge(d.Directory, d.Classifier, d.States)
	p.batcher = debounce.New[bus.InboundMessage](DebounceQuiet, p.processBatch)
	p.arbiter = operator.NewArbiter(echoes, d.Log, p.batcher, p.coordinator)

	return p
}

// Run consumes the inbound queue until ctx is done. Blocking.
func (p *Pipeline) Run(ctx context.Context) error {
	p.runCtx = ctx
	go p.runOutbound(ctx)

	slog.Info("pipeline running", "persona", p.persona.Name)

	for {
		msg, ok := p.bus.ConsumeInbound(ctx)
		if !ok {
			return ctx.Err()
		}
		p.dispatch(msg)
	}
}

// key builds the conversation key for a chat: {persona}:{chatID}.
func (p *Pipeline) key(chatID string) string {
	return p.persona.Name + ":" + chatID
}

// dispatch routes one raw inbound event. Fast path only; anything that talks
// to the LLM goes through the batcher.
func (p *Pipeline) dispatch(msg bus.InboundMessage) {
	key := p.key(msg.ChatID)

	if msg.FromSelf {
		// The echo recheck can sleep; keep it off the consume loop so one
		// self message never stalls intake for every other conversation.
		go p.arbiter.HandleSelfMessage(key, msg.ChatID, msg.Content)
		return
	}

	// Group chats are dispatch destinations, not conversations the bot holds.
	if msg.IsGroup {
		return
	}

	if p.persona.Admin && msg.ChatID == p.persona.AdminPeer && strings.HasPrefix(msg.Content, "!") {
		p.handleAdminCommand(msg)
		return
	}

	if strings.TrimSpace(msg.Content) == "!reset" {
		p.handleReset(key, msg.ChatID)
		return
	}

	if p.mutes.IsMuted(key) {
		// The conversation still records while muted so context survives.
		if err := p.log.Append(key, inboundTurn(msg)); err != nil {
			slog.Warn("failed to record muted turn", "key", key, "error", err)
		}
		return
	}

	p.batcher.Enqueue(key, msg)
}

// handleReset wipes a conversation on explicit user request.
func (p *Pipeline) handleReset(key, chatID string) {
	p.batcher.Cancel(key)
	p.coordinator.Abandon(key)
	p.states.Forget(key)
	if err := p.log.Delete(key); err != nil {
		slog.Warn("reset: failed to delete conversation", "key", key, "error", err)
	}

	slog.Info("conversation reset", "key", key)
	p.bus.PublishOutbound(bus.OutboundMessage{ChatID: chatID, Content: msgResetDone})
}

// inboundTurn converts a bus message into a log turn, substituting a
// placeholder for media the bot cannot read.
func inboundTurn(msg bus.InboundMessage) conversation.Turn {
	content := msg.Content
	kind := conversation.Kind(msg.Kind)
	if kind == "" {
		kind = conversation.KindText
	}
	if content == "" {
		content = mediaPlaceholder(kind)
	}
	t := conversation.NewTurn(conversation.RoleUser, content)
	t.Kind = kind
	return t
}

func mediaPlaceholder(kind conversation.Kind) string {
	switch kind {
	case conversation.KindImage:
		return "[фото]"
	case conversation.KindAudio:
		return "[голосовое сообщение]"
	case conversation.KindVideo:
		return "[видео]"
	case conversation.KindFile:
		return "[файл]"
	default:
		return "[пустое сообщение]"
	}
}

const (
	msgResetDone = "История диалога очищена. Чем могу помочь?"

	// msgFallback covers total LLM failure on the conversational path.
	msgFallback = "Извините, сейчас я не могу ответить. Попробуйте, пожалуйста, написать чуть позже."

	// msgNeedDetails is the generic clarification when the completeness check
	// finds gaps but produced no usable questions.
	msgNeedDetails = "Чтобы оформить заявку, напишите, пожалуйста, ваши фамилию и имя, адрес и суть проблемы."
)
