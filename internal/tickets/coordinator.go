package tickets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/frontdesk/internal/config"
	"github.com/nextlevelbuilder/frontdesk/internal/conversation"
	"github.com/nextlevelbuilder/frontdesk/internal/intent"
	"github.com/nextlevelbuilder/frontdesk/internal/mute"
)

// Outcome names the state-machine transition a coordinator call took.
type Outcome string

const (
	OutcomeProposed       Outcome = "proposed"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeExtractFailed  Outcome = "extract_failed"
	OutcomeConfirmed      Outcome = "confirmed"
	OutcomeDenied         Outcome = "denied"
	OutcomeExpired        Outcome = "expired"
	OutcomeTopicChanged   Outcome = "topic_changed"
	OutcomeReask          Outcome = "reask"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
	OutcomeNoPending      Outcome = "no_pending"
)

// Dispatcher delivers a formatted ticket message to a staff chat.
type Dispatcher interface {
	Send(ctx context.Context, chatID, content string) error
}

// Coordinator owns the per-conversation ticket state machine:
// NONE → PROPOSED → {CONFIRMED, DENIED, EXPIRED, TOPIC_CHANGED}.
// All pending-confirmation and dedup mutations go through the conversation
// state registry, so they are serialized per conversation key.
type Coordinator struct {
	classifier *intent.Classifier
	states     *conversation.Registry
	mutes      *mute.Registry
	dispatch   Dispatcher
	persona    config.PersonaConfig
	now        func() time.Time
}

// NewCoordinator wires a coordinator for one persona.
func NewCoordinator(classifier *intent.Classifier, states *conversation.Registry, mutes *mute.Registry, dispatch Dispatcher, persona config.PersonaConfig) *Coordinator {
	return &Coordinator{
		classifier: classifier,
		states:     states,
		mutes:      mutes,
		dispatch:   dispatch,
		persona:    persona,
		now:        time.Now,
	}
}

// HasPending reports whether a confirmation is outstanding and still fresh.
// A stale pending is dropped on sight: a late "yes" must never act on it.
func (co *Coordinator) HasPending(key string) bool {
	fresh := false
	cutoff := co.now().Add(-ConfirmTTL)
	co.states.Do(key, func(s *conversation.State) {
		if s.Pending == nil {
			return
		}
		if s.Pending.CreatedAt.Before(cutoff) {
			s.Pending = nil
			return
		}
		fresh = true
	})
	return fresh
}

// Abandon drops any pending confirmation without a user-visible reaction
// (operator override, reset, mute).
func (co *Coordinator) Abandon(key string) {
	co.states.Do(key, func(s *conversation.State) {
		s.Pending = nil
	})
}

// Propose runs the NONE → PROPOSED transition: extract structured fields,
// check for duplicates, and either short-circuit to an "already in progress"
// reply or store the pending confirmation and return the summary to confirm.
func (co *Coordinator) Propose(ctx context.Context, key string, cat conversation.Category, history []conversation.Turn) (string, Outcome) {
	draft, err := co.classifier.ExtractTicket(ctx, cat, history)
	if err != nil {
		// Extraction is part of the classification stage: fail safe, no ticket.
		slog.Warn("ticket extraction failed, not proposing", "key", key, "error", err)
		return "", OutcomeExtractFailed
	}

	now := co.now()

	var records []conversation.DedupRecord
	co.states.Do(key, func(s *conversation.State) {
		records = append(records, s.Dedup...)
	})

	duplicate := isExactDuplicate(records, draft, now)
	if !duplicate {
		duplicate = co.classifier.SemanticDuplicate(ctx, draft, recentRecords(records, now))
	}
	if duplicate && !co.classifier.InsistsOnNew(ctx, history) {
		slog.Info("duplicate ticket suppressed", "key", key, "issue", Normalize(draft.Issue))
		return msgDuplicate(draft), OutcomeDuplicate
	}

	snapshot := make([]conversation.Turn, len(history))
	copy(snapshot, history)

	co.states.Do(key, func(s *conversation.State) {
		s.Pending = &conversation.PendingTicket{
			Draft:     draft,
			History:   snapshot,
			CreatedAt: now,
		}
	})

	slog.Info("ticket proposed", "key", key, "category", cat)
	return msgConfirmSummary(draft), OutcomeProposed
}

// Resolve handles the user's reply while a confirmation is pending.
// Returns the reply to send ("" for silent outcomes) and the transition
// taken. OutcomeExpired and OutcomeTopicChanged mean the caller should
// reprocess the message as a fresh turn.
func (co *Coordinator) Resolve(ctx context.Context, key, reply string) (string, Outcome) {
	var pending *conversation.PendingTicket
	cutoff := co.now().Add(-ConfirmTTL)
	expired := false

	co.states.Do(key, func(s *conversation.State) {
		if s.Pending == nil {
			return
		}
		if s.Pending.CreatedAt.Before(cutoff) {
			s.Pending = nil
			expired = true
			return
		}
		pending = s.Pending
	})

	if expired {
		slog.Info("pending confirmation expired", "key", key)
		return "", OutcomeExpired
	}
	if pending == nil {
		return "", OutcomeNoPending
	}

	switch co.classifier.Confirmation(ctx, reply) {
	case intent.VerdictConfirm:
		return co.confirm(ctx, key, pending)

	case intent.VerdictDeny:
		co.states.Do(key, func(s *conversation.State) { s.Pending = nil })
		slog.Info("ticket denied by user", "key", key)
		return msgDenied, OutcomeDenied

	default:
		if co.classifier.TopicChange(ctx, reply) {
			co.states.Do(key, func(s *conversation.State) { s.Pending = nil })
			slog.Info("pending confirmation abandoned, topic changed", "key", key)
			return "", OutcomeTopicChanged
		}
		return msgReask, OutcomeReask
	}
}

// confirm runs PROPOSED → CONFIRMED: dispatch to the staff chat, record the
// dedup entry, and answer with the ticket id and a contact-time hint.
func (co *Coordinator) confirm(ctx context.Context, key string, pending *conversation.PendingTicket) (string, Outcome) {
	draft := pending.Draft
	ticket := Ticket{ID: NewTicketID(), Draft: draft, CreatedAt: co.now()}

	dest := co.destination(draft.Category)
	if err := co.dispatch.Send(ctx, dest, msgStaffTicket(ticket)); err != nil {
		// Not retried, not recorded as created: the user gets an apology with
		// a human fallback instead of a phantom ticket id.
		slog.Error("ticket dispatch failed", "key", key, "dest", dest, "error", err)
		co.states.Do(key, func(s *conversation.State) { s.Pending = nil })
		return msgDispatchFailed(co.persona.FallbackPhone), OutcomeDispatchFailed
	}

	co.states.Do(key, func(s *conversation.State) {
		s.Pending = nil
		s.Dedup = append(s.Dedup, conversation.DedupRecord{
			Address:   Normalize(draft.Address),
			Issue:     Normalize(draft.Issue),
			CreatedAt: ticket.CreatedAt,
		})
	})

	if draft.Category == conversation.CategoryAdmin {
		co.mutes.Mute(key, AdminCooldown)
		slog.Info("admin ticket: conversation muted for cool-down", "key", key)
	}

	slog.Info("ticket dispatched", "key", key, "ticket_id", ticket.ID, "category", draft.Category)
	return msgConfirmed(ticket), OutcomeConfirmed
}

func (co *Coordinator) destination(cat conversation.Category) string {
	switch cat {
	case conversation.CategoryAccounting:
		return co.persona.Routing.Accounting
	case conversation.CategoryAdmin:
		return co.persona.Routing.Admin
	default:
		return co.persona.Routing.General
	}
}

// --- user- and staff-facing message templates ---

const (
	msgDenied = "Хорошо, заявку не отправляю. Подскажите, что нужно исправить?"
	msgReask  = "Подтвердите, пожалуйста: всё верно? Ответьте «да» или «нет»."
)

func msgConfirmSummary(d conversation.TicketDraft) string {
	var sb strings.Builder
	sb.WriteString("Проверьте, пожалуйста, заявку:\n")
	fmt.Fprintf(&sb, "— Имя: %s\n", d.FullName)
	fmt.Fprintf(&sb, "— Адрес: %s\n", d.Address)
	if d.Contact != "" {
		fmt.Fprintf(&sb, "— Контакт: %s\n", d.Contact)
	}
	fmt.Fprintf(&sb, "— Суть: %s\n", d.Issue)
	sb.WriteString("Всё верно?")
	return sb.String()
}

func msgConfirmed(t Ticket) string {
	return fmt.Sprintf("Заявка #%s принята. %s", t.ID, contactHint(t.CreatedAt))
}

func msgDuplicate(d conversation.TicketDraft) string {
	return fmt.Sprintf(
		"По адресу %s уже есть заявка с этой проблемой, она в работе. "+
			"Если это другая проблема — напишите, и я оформлю новую заявку.",
		d.Address)
}

func msgDispatchFailed(fallbackPhone string) string {
	msg := "Извините, не получилось передать заявку диспетчеру."
	if fallbackPhone != "" {
		msg += fmt.Sprintf(" Пожалуйста, позвоните нам напрямую: %s.", fallbackPhone)
	} else {
		msg += " Пожалуйста, попробуйте чуть позже."
	}
	return msg
}

func msgStaffTicket(t Ticket) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Новая заявка #%s (%s)\n", t.ID, t.Draft.Category)
	fmt.Fprintf(&sb, "Имя: %s\n", t.Draft.FullName)
	fmt.Fprintf(&sb, "Адрес: %s\n", t.Draft.Address)
	if t.Draft.Contact != "" {
		fmt.Fprintf(&sb, "Контакт: %s\n", t.Draft.Contact)
	}
	fmt.Fprintf(&sb, "Проблема: %s\n", t.Draft.Issue)
	if t.Draft.Detail != "" {
		fmt.Fprintf(&sb, "Подробности: %s\n", t.Draft.Detail)
	}
	return strings.TrimRight(sb.String(), "\n")
}
