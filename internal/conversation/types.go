// Package conversation holds the per-resident conversation model: the durable
// turn log, and the ephemeral per-conversation aggregate (pending ticket,
// dedup ledger, cached resident identity) with per-key locking.
package conversation

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Kind identifies the media type of a turn.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
	KindFile  Kind = "file"
)

// Category is the routing classification of a resident request.
type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryAccounting Category = "accounting"
	CategoryAdmin      Category = "admin"
	CategoryNone       Category = "none"
)

// ParseCategory maps free text to a Category, defaulting to none.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryGeneral, CategoryAccounting, CategoryAdmin:
		return Category(s)
	default:
		return CategoryNone
	}
}

// Turn is one message unit in a conversation's ordered log.
// Operator marks turns a human operator typed through the bot's own account;
// they read as assistant continuity, never as input to react to.
type Turn struct {
	Role      Role      `json:"role"`
	Kind      Kind      `json:"kind,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Operator  bool      `json:"operator,omitempty"`
}

// NewTurn builds a text turn stamped now.
func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Kind: KindText, Content: content, Timestamp: time.Now()}
}

// Record is the persisted form of one conversation.
type Record struct {
	Key     string    `json:"key"` // {persona}:{chatID}
	Turns   []Turn    `json:"turns"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// TicketDraft is the structured request extracted from conversation context.
type TicketDraft struct {
	Category Category `json:"category"`
	FullName string   `json:"full_name"`
	Address  string   `json:"address"`
	Contact  string   `json:"contact,omitempty"`
	Issue    string   `json:"issue"`  // short issue summary
	Detail   string   `json:"detail,omitempty"`
}

// PendingTicket is an extracted ticket awaiting the user's yes/no.
type PendingTicket struct {
	Draft     TicketDraft
	History   []Turn // snapshot at proposal time
	CreatedAt time.Time
}

// DedupRecord remembers a dispatched ticket for duplicate suppression.
// Address and Issue are stored normalized.
type DedupRecord struct {
	Address   string
	Issue     string
	CreatedAt time.Time
}

// ResidentRef caches a resolved resident identity for a bounded time so a
// follow-up ticket in the same conversation skips re-asking name/address.
type ResidentRef struct {
	AccountNumber string
	FullName      string
	Apartment     string
	Address       string
	CachedAt      time.Time
}
