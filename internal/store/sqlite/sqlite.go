// Package sqlite implements store.KV on a local SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/frontdesk/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`

// KV persists records in a single-table SQLite database.
type KV struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path.
func New(path string) (*KV, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// modernc sqlite is single-writer; serialize access through one conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &KV{db: db}, nil
}

func (k *KV) Get(key string) ([]byte, error) {
	var value []byte
	err := k.db.QueryRow(`SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return value, nil
}

func (k *KV) Put(key string, value []byte) error {
	_, err := k.db.Exec(
		`INSERT INTO records (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite put %s: %w", key, err)
	}
	return nil
}

func (k *KV) Delete(key string) error {
	if _, err := k.db.Exec(`DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	return nil
}

func (k *KV) ListKeys() ([]string, error) {
	rows, err := k.db.Query(`SELECT key FROM records ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (k *KV) Close() error { return k.db.Close() }
