package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/frontdesk/internal/store"
)

// Log is the durable per-conversation turn log on top of a KV medium.
// Every mutation is a whole-record replacement performed under a per-key
// lock, so interleaved handlers for different conversations never lose
// updates and a crash never leaves a torn record.
type Log struct {
	kv    store.KV
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLog wraps a KV store.
func NewLog(kv store.KV) *Log {
	return &Log{kv: kv, locks: make(map[string]*sync.Mutex)}
}

func (l *Log) keyLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// History returns the ordered turns for a conversation, empty when none.
func (l *Log) History(key string) ([]Turn, error) {
	rec, err := l.load(key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return rec.Turns, nil
}

// Append adds turns to the end of a conversation's log.
func (l *Log) Append(key string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	m := l.keyLock(key)
	m.Lock()
	defer m.Unlock()

	rec, err := l.load(key)
	if err != nil {
		return err
	}
	now := time.Now()
	if rec == nil {
		rec = &Record{Key: key, Created: now}
	}
	rec.Turns = append(rec.Turns, turns...)
	rec.Updated = now

	return l.save(rec)
}

// CompactPrefix swaps the first snapshotLen turns for compacted (used by
// summarization). Turns appended after the snapshot was taken are kept, so a
// slow summarization never loses a concurrent append.
func (l *Log) CompactPrefix(key string, snapshotLen int, compacted []Turn) error {
	m := l.keyLock(key)
	m.Lock()
	defer m.Unlock()

	rec, err := l.load(key)
	if err != nil {
		return err
	}
	now := time.Now()
	if rec == nil {
		rec = &Record{Key: key, Created: now}
	}
	if snapshotLen > len(rec.Turns) {
		snapshotLen = len(rec.Turns)
	}
	rec.Turns = append(compacted, rec.Turns[snapshotLen:]...)
	rec.Updated = now

	return l.save(rec)
}

// Delete removes a conversation entirely (explicit reset).
func (l *Log) Delete(key string) error {
	m := l.keyLock(key)
	m.Lock()
	defer m.Unlock()
	return l.kv.Delete(key)
}

// Keys lists all persisted conversation keys. Other subsystems share the KV
// under reserved prefixes ("mute:"); those are filtered out.
func (l *Log) Keys() ([]string, error) {
	keys, err := l.kv.ListKeys()
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, "mute:") {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// Stats reports total conversations and total turns across the store.
func (l *Log) Stats() (conversations, turns int) {
	keys, err := l.Keys()
	if err != nil {
		return 0, 0
	}
	for _, key := range keys {
		history, err := l.History(key)
		if err != nil {
			continue
		}
		conversations++
		turns += len(history)
	}
	return conversations, turns
}

func (l *Log) load(key string) (*Record, error) {
	data, err := l.kv.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", key, err)
	}
	return &rec, nil
}

func (l *Log) save(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := l.kv.Put(rec.Key, data); err != nil {
		return fmt.Errorf("save conversation %s: %w", rec.Key, err)
	}
	return nil
}
