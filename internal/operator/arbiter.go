package operator

import (
	"log/slog"

	"github.com/nextlevelbuilder/frontdesk/internal/conversation"
)

// BatchCanceler discards any queued-but-unprocessed input for a conversation.
type BatchCanceler interface {
	Cancel(key string)
}

// PendingDropper abandons an outstanding ticket confirmation.
type PendingDropper interface {
	Abandon(key string)
}

// Arbiter decides what a self message means. An echo of our own send is
// dropped; anything else is a human operator taking over, and the bot backs
// off that conversation turn.
type Arbiter struct {
	echoes  *EchoCache
	log     *conversation.Log
	batches BatchCanceler
	pending PendingDropper
}

func NewArbiter(echoes *EchoCache, log *conversation.Log, batches BatchCanceler, pending PendingDropper) *Arbiter {
	return &Arbiter{echoes: echoes, log: log, batches: batches, pending: pending}
}

// HandleSelfMessage processes one self-message event for a conversation key.
// Returns true when an operator intervention was detected.
func (a *Arbiter) HandleSelfMessage(key, chatID, content string) bool {
	if a.echoes.IsEcho(chatID, content) {
		return false
	}

	slog.Info("operator intervention detected", "key", key)

	// The operator owns the conversation now: whatever the user said that we
	// have not answered yet is the operator's to handle.
	a.batches.Cancel(key)
	a.pending.Abandon(key)

	turn := conversation.NewTurn(conversation.RoleAssistant, content)
	turn.Operator = true
	if err := a.log.Append(key, turn); err != nil {
		slog.Warn("failed to record operator turn", "key", key, "error", err)
	}
	return true
}
