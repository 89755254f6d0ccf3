package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/frontdesk/internal/conversation"
	"github.com/nextlevelbuilder/frontdesk/internal/intent"
)

// CacheTTL bounds how long a resolved resident identity is reused within a
// conversation before the directory is consulted again.
const CacheTTL = 30 * time.Minute

// Bridge answers account-number questions: extract who is asking, look them
// up, and reply with the account number when the directory has a match.
type Bridge struct {
	resolver   Resolver
	classifier *intent.Classifier
	states     *conversation.Registry
	now        func() time.Time
}

// NewBridge wires the directory bridge. resolver may be nil when no
// directory service is configured; Answer then reports not handled.
func NewBridge(resolver Resolver, classifier *intent.Classifier, states *conversation.Registry) *Bridge {
	return &Bridge{resolver: resolver, classifier: classifier, states: states, now: time.Now}
}

// Answer resolves an account-number question. handled is false whenever the
// bridge cannot give a definitive answer (no resolver, identity not stated,
// no match, lookup failure); the caller then continues conversationally and
// asks for whatever is missing.
func (b *Bridge) Answer(ctx context.Context, key string, history []conversation.Turn) (reply string, handled bool) {
	if b.resolver == nil {
		return "", false
	}

	if cached := b.cached(key); cached != nil {
		return msgAccount(cached.FullName, cached.AccountNumber), true
	}

	fullName, address := b.classifier.ExtractIdentity(ctx, history)
	if fullName == "" || address == "" {
		return "", false
	}

	resident, err := b.resolver.Lookup(ctx, fullName, address)
	if err != nil {
		slog.Warn("directory lookup failed", "key", key, "error", err)
		return "", false
	}
	if resident == nil {
		slog.Info("directory: no match", "key", key, "full_name", fullName)
		return "", false
	}

	b.states.Do(key, func(s *conversation.State) {
		s.Resident = &conversation.ResidentRef{
			AccountNumber: resident.AccountNumber,
			FullName:      resident.FullName,
			Apartment:     resident.Apartment,
			Address:       resident.Address,
			CachedAt:      b.now(),
		}
	})

	return msgAccount(resident.FullName, resident.AccountNumber), true
}

// cached returns the resident ref if it is still inside CacheTTL.
func (b *Bridge) cached(key string) *conversation.ResidentRef {
	var ref *conversation.ResidentRef
	cutoff := b.now().Add(-CacheTTL)
	b.states.Do(key, func(s *conversation.State) {
		if s.Resident == nil {
			return
		}
		if s.Resident.CachedAt.Before(cutoff) {
			s.Resident = nil
			return
		}
		ref = s.Resident
	})
	return ref
}

func msgAccount(fullName, account string) string {
	return fmt.Sprintf("%s, ваш лицевой счёт: %s.", fullName, account)
}
