// Package operator tells the bot's own outbound echoes apart from messages a
// human operator typed through the same account, and yields the conversation
// to the operator when one steps in.
package operator

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

const (
	// fingerprintTTL bounds how long an outbound send is remembered. Echoes
	// arrive within seconds; anything later is not ours.
	fingerprintTTL = 5 * time.Minute

	// A self message with no fingerprint match may simply have raced our
	// send. Recheck a few times before calling it an operator.
	recheckAttempts = 3
	recheckDelay    = 150 * time.Millisecond
)

// EchoCache remembers recent outbound sends so self-message events can be
// matched against them.
type EchoCache struct {
	mu      sync.Mutex
	entries map[string]time.Time // fingerprint -> expiry
	now     func() time.Time
	sleep   func(time.Duration)
}

func NewEchoCache() *EchoCache {
	return &EchoCache{
		entries: make(map[string]time.Time),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// fingerprint keys a send by destination and normalized content. Whitespace
// differences survive the bridge round-trip, so they are folded out.
func fingerprint(chatID, content string) string {
	h := sha256.New()
	h.Write([]byte(chatID))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(strings.Fields(content), " ")))
	return hex.EncodeToString(h.Sum(nil))
}

// Record registers an outbound send about to go over the wire.
func (c *EchoCache) Record(chatID, content string) {
	fp := fingerprint(chatID, content)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fp] = c.now().Add(fingerprintTTL)
	c.pruneLocked()
}

// matchOnce consumes a matching fingerprint if present.
func (c *EchoCache) matchOnce(chatID, content string) bool {
	fp := fingerprint(chatID, content)
	c.mu.Lock()
	defer c.mu.Unlock()
	expiry, ok := c.entries[fp]
	if !ok {
		return false
	}
	delete(c.entries, fp)
	return !c.now().After(expiry)
}

// IsEcho reports whether a self message matches a recent outbound send.
// Misses are rechecked briefly: the bridge can surface the echo before the
// send path finishes recording it.
func (c *EchoCache) IsEcho(chatID, content string) bool {
	if c.matchOnce(chatID, content) {
		return true
	}
	for i := 0; i < recheckAttempts; i++ {
		c.sleep(recheckDelay)
		if c.matchOnce(chatID, content) {
			return true
		}
	}
	return false
}

func (c *EchoCache) pruneLocked() {
	now := c.now()
	for fp, expiry := range c.entries {
		if now.After(expiry) {
			delete(c.entries, fp)
		}
	}
}
