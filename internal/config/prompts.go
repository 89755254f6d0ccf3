package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// PromptStore serves persona system prompts, preferring {dir}/{persona}.md
// over the inline config value, and hot-reloads files on change so prompt
// wording can be tuned without restarting the bot.
type PromptStore struct {
	mu       sync.RWMutex
	dir      string
	inline   map[string]string // persona → config system_prompt
	fromFile map[string]string // persona → file contents
	watcher  *fsnotify.Watcher
}

// NewPromptStore loads prompt files for the given personas and starts the
// directory watcher. dir may be empty (inline prompts only).
func NewPromptStore(dir string, personas []PersonaConfig) (*PromptStore, error) {
	ps := &PromptStore{
		dir:      dir,
		inline:   make(map[string]string, len(personas)),
		fromFile: make(map[string]string),
	}
	for _, p := range personas {
		ps.inline[p.Name] = p.SystemPrompt
	}
	if dir == "" {
		return ps, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	ps.loadAll()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	ps.watcher = watcher
	go ps.watchLoop()

	return ps, nil
}

// Prompt returns the current system prompt for a persona.
func (ps *PromptStore) Prompt(persona string) string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if s, ok := ps.fromFile[persona]; ok && s != "" {
		return s
	}
	return ps.inline[persona]
}

// Close stops the watcher.
func (ps *PromptStore) Close() error {
	if ps.watcher != nil {
		return ps.watcher.Close()
	}
	return nil
}

func (ps *PromptStore) loadAll() {
	entries, err := os.ReadDir(ps.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		ps.loadFile(filepath.Join(ps.dir, e.Name()))
	}
}

func (ps *PromptStore) loadFile(path string) {
	persona := strings.TrimSuffix(filepath.Base(path), ".md")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ps.mu.Lock()
			delete(ps.fromFile, persona)
			ps.mu.Unlock()
		}
		return
	}

	ps.mu.Lock()
	ps.fromFile[persona] = strings.TrimSpace(string(data))
	ps.mu.Unlock()

	slog.Info("persona prompt loaded", "persona", persona, "path", path)
}

func (ps *PromptStore) watchLoop() {
	for {
		select {
		case ev, ok := <-ps.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".md" {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				ps.loadFile(ev.Name)
			}
		case err, ok := <-ps.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("prompt watcher error", "error", err)
		}
	}
}
