package mute

import (
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/frontdesk/internal/store"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) ListKeys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memKV) Close() error { return nil }

func TestMuteUnmute(t *testing.T) {
	r := NewRegistry(newMemKV())

	if r.IsMuted("main:chat") {
		t.Fatal("fresh key is muted")
	}

	r.Mute("main:chat", 0)
	muted, until := r.Status("main:chat")
	if !muted || until != nil {
		t.Errorf("indefinite mute: muted=%v until=%v", muted, until)
	}

	r.Unmute("main:chat")
	if r.IsMuted("main:chat") {
		t.Error("still muted after Unmute")
	}
}

func TestBoundedMuteExpiresLazily(t *testing.T) {
	r := NewRegistry(newMemKV())
	r.Mute("main:chat", 10*time.Millisecond)

	if !r.IsMuted("main:chat") {
		t.Fatal("not muted immediately after Mute")
	}

	time.Sleep(30 * time.Millisecond)
	if r.IsMuted("main:chat") {
		t.Error("mute did not expire")
	}
}

func TestMutesSurviveRestart(t *testing.T) {
	kv := newMemKV()

	r1 := NewRegistry(kv)
	r1.Mute("main:chat", time.Hour)
	r1.Mute("main:other", 0)

	r2 := NewRegistry(kv)
	if !r2.IsMuted("main:chat") || !r2.IsMuted("main:other") {
		t.Error("persisted mutes not loaded on restart")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	r := NewRegistry(newMemKV())
	r.Mute("main:expired", time.Millisecond)
	r.Mute("main:kept", time.Hour)

	time.Sleep(10 * time.Millisecond)

	if n := r.Sweep(); n != 1 {
		t.Errorf("Sweep dropped %d, want 1", n)
	}
	if !r.IsMuted("main:kept") {
		t.Error("Sweep dropped a live mute")
	}
}
