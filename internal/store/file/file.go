// Package file implements store.KV with one JSON file per key.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/frontdesk/internal/store"
)

const fileExt = ".json"

// KV stores each key as {dir}/{sanitized-key}.json.
// Writes are atomic: temp file → fsync → rename.
type KV struct {
	dir string
}

// New creates the storage directory if needed and returns a file-backed KV.
func New(dir string) (*KV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &KV{dir: dir}, nil
}

func (k *KV) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(k.path(key))
	if os.IsNotExist(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (k *KV) Put(key string, value []byte) error {
	name := sanitizeFilename(key)
	if name == "" || !filepath.IsLocal(name) {
		return os.ErrInvalid
	}

	// Atomic write: temp file → rename
	tmp, err := os.CreateTemp(k.dir, "record-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, filepath.Join(k.dir, name+fileExt)); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func (k *KV) Delete(key string) error {
	if err := os.Remove(k.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (k *KV) ListKeys() ([]string, error) {
	entries, err := os.ReadDir(k.dir)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		keys = append(keys, unsanitizeFilename(strings.TrimSuffix(e.Name(), fileExt)))
	}
	return keys, nil
}

func (k *KV) Close() error { return nil }

func (k *KV) path(key string) string {
	return filepath.Join(k.dir, sanitizeFilename(key)+fileExt)
}

// Keys contain ":" (persona:chat) and "@" (WhatsApp JIDs); neither is safe in
// every filesystem, so they map to "_" and "+". Bytes that would collide with
// that mapping, and path separators, are hex-escaped so ListKeys recovers
// every key exactly.
func sanitizeFilename(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		switch c := key[i]; c {
		case ':':
			b.WriteByte('_')
		case '@':
			b.WriteByte('+')
		case '_', '+', '%', '/', '\\':
			fmt.Fprintf(&b, "%%%02X", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func unsanitizeFilename(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		switch c := name[i]; c {
		case '_':
			b.WriteByte(':')
		case '+':
			b.WriteByte('@')
		case '%':
			if i+2 < len(name) {
				if v, err := strconv.ParseUint(name[i+1:i+3], 16, 8); err == nil {
					b.WriteByte(byte(v))
					i += 2
					continue
				}
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
