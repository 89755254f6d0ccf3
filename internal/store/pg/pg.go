// Package pg implements store.KV on Postgres via pgx, for deployments where
// several bot processes share one database.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nextlevelbuilder/frontdesk/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS frontdesk_records (
	key   TEXT PRIMARY KEY,
	value BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// KV persists records in a frontdesk_records table.
type KV struct {
	pool *pgxpool.Pool
}

// New connects to Postgres with the given DSN and ensures the schema exists.
func New(ctx context.Context, dsn string) (*KV, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init postgres schema: %w", err)
	}
	return &KV{pool: pool}, nil
}

func (k *KV) Get(key string) ([]byte, error) {
	var value []byte
	err := k.pool.QueryRow(context.Background(),
		`SELECT value FROM frontdesk_records WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg get %s: %w", key, err)
	}
	return value, nil
}

func (k *KV) Put(key string, value []byte) error {
	_, err := k.pool.Exec(context.Background(),
		`INSERT INTO frontdesk_records (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("pg put %s: %w", key, err)
	}
	return nil
}

func (k *KV) Delete(key string) error {
	if _, err := k.pool.Exec(context.Background(),
		`DELETE FROM frontdesk_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("pg delete %s: %w", key, err)
	}
	return nil
}

func (k *KV) ListKeys() ([]string, error) {
	rows, err := k.pool.Query(context.Background(),
		`SELECT key FROM frontdesk_records ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("pg list keys: %w", err)
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

func (k *KV) Close() error {
	k.pool.Close()
	return nil
}
