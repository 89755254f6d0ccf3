// Package store defines the durable key-value medium the bot persists
// conversation records into. Implementations: file (one JSON file per key),
// sqlite, and postgres.
package store

import "errors"

// ErrNotFound is returned by Get when no record exists for a key.
var ErrNotFound = errors.New("store: key not found")

// KV is the minimal persistence surface the pipeline depends on.
// Values are whole-record replacements; implementations must make Put
// atomic per key so a crash never leaves a half-written record.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	ListKeys() ([]string, error)
	Close() error
}
