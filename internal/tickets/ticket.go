// Package tickets turns classified resident requests into dispatched tickets:
// extraction, duplicate suppression, the pending-confirmation handshake, and
// delivery to the staff chat for the routing category.
package tickets

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/frontdesk/internal/conversation"
)

const (
	// ConfirmTTL is how long a proposed ticket waits for the user's yes/no.
	ConfirmTTL = 10 * time.Minute

	// DedupWindow is the sliding span within which a matching address+issue
	// is treated as the same ticket.
	DedupWindow = 24 * time.Hour

	// AdminCooldown mutes a conversation after an admin ticket so the bot
	// stays quiet while a human takes over.
	AdminCooldown = 24 * time.Hour
)

// Ticket is a confirmed, dispatched request.
type Ticket struct {
	ID        string
	Draft     conversation.TicketDraft
	CreatedAt time.Time
}

// NewTicketID generates a short unique id: 8 uppercase hex chars from a UUID.
func NewTicketID() string {
	id := uuid.New()
	return strings.ToUpper(fmt.Sprintf("%x", id[:4]))
}

// Normalize folds text for exact duplicate matching: lowercase, punctuation
// stripped, whitespace collapsed.
func Normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// isExactDuplicate reports whether the draft matches a dedup record inside
// the window. Records outside the window are ignored, not purged.
func isExactDuplicate(records []conversation.DedupRecord, draft conversation.TicketDraft, now time.Time) bool {
	addr, issue := Normalize(draft.Address), Normalize(draft.Issue)
	cutoff := now.Add(-DedupWindow)
	for _, r := range records {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		if r.Address == addr && r.Issue == issue {
			return true
		}
	}
	return false
}

// recentRecords returns the dedup records still inside the window.
func recentRecords(records []conversation.DedupRecord, now time.Time) []conversation.DedupRecord {
	cutoff := now.Add(-DedupWindow)
	var recent []conversation.DedupRecord
	for _, r := range records {
		if !r.CreatedAt.Before(cutoff) {
			recent = append(recent, r)
		}
	}
	return recent
}
