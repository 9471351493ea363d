// Package pgstore implements the managed-KV-document store variant on
// jackc/pgx/v5, backed by a single table keyed by (keyspace, key).
package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/store"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS kv_store (
	keyspace TEXT NOT NULL,
	key      TEXT NOT NULL,
	value    BYTEA NOT NULL,
	PRIMARY KEY (keyspace, key)
);
`

// Store is a Postgres-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and ensures the kv_store table exists
// by running the inline DDL above; there is no separate migration step.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "connecting to postgres", err)
	}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, apperr.Wrap(apperr.Store, "creating kv_store table", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Keyspace(_ context.Context, name string) (store.Keyspace, error) {
	return &keyspace{pool: s.pool, name: name}, nil
}

func (s *Store) Batch() store.Batch {
	return &batch{pool: s.pool}
}

func (s *Store) Persist(_ context.Context) error {
	return nil // managed backend: commits are already durable.
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type keyspace struct {
	pool *pgxpool.Pool
	name string
}

func (k *keyspace) InsertRaw(ctx context.Context, key string, value []byte) error {
	_, err := k.pool.Exec(ctx,
		`INSERT INTO kv_store (keyspace, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (keyspace, key) DO UPDATE SET value = EXCLUDED.value`,
		k.name, key, value)
	if err != nil {
		return apperr.Wrap(apperr.Store, "pg upsert", err)
	}
	return nil
}

func (k *keyspace) GetRaw(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := k.pool.QueryRow(ctx,
		`SELECT value FROM kv_store WHERE keyspace = $1 AND key = $2`,
		k.name, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "pg select", err)
	}
	return value, nil
}

func (k *keyspace) Remove(ctx context.Context, key string) error {
	_, err := k.pool.Exec(ctx,
		`DELETE FROM kv_store WHERE keyspace = $1 AND key = $2`, k.name, key)
	if err != nil {
		return apperr.Wrap(apperr.Store, "pg delete", err)
	}
	return nil
}

func (k *keyspace) ContainsKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := k.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM kv_store WHERE keyspace = $1 AND key = $2)`,
		k.name, key).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.Store, "pg exists", err)
	}
	return exists, nil
}

func (k *keyspace) PrefixIterRaw(ctx context.Context, prefix string) ([]store.KV, error) {
	rows, err := k.pool.Query(ctx,
		`SELECT key, value FROM kv_store WHERE keyspace = $1 AND key LIKE $2 ESCAPE '\'`,
		k.name, escapeLike(prefix)+"%")
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "pg scan", err)
	}
	defer rows.Close()

	var out []store.KV
	for rows.Next() {
		var kv store.KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, apperr.Wrap(apperr.Store, "pg scan row", err)
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Store, "pg scan rows", err)
	}
	return out, nil
}

// TakeRaw realizes the consume-once primitive with a single atomic
// statement: Postgres guarantees DELETE ... RETURNING is indivisible
// under row-level locking, so concurrent callers cannot both observe
// a non-empty result.
func (k *keyspace) TakeRaw(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := k.pool.QueryRow(ctx,
		`DELETE FROM kv_store WHERE keyspace = $1 AND key = $2 RETURNING value`,
		k.name, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "pg take", err)
	}
	return value, nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

type batch struct {
	pool *pgxpool.Pool
	ops  []store.BatchOp
}

func (b *batch) Insert(ks, key string, value []byte) {
	b.ops = append(b.ops, store.BatchOp{Keyspace: ks, Key: key, Value: value})
}

func (b *batch) Remove(ks, key string) {
	b.ops = append(b.ops, store.BatchOp{Keyspace: ks, Key: key, Value: nil})
}

func (b *batch) Commit(ctx context.Context) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Store, "pg begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	for _, op := range b.ops {
		if op.Value == nil {
			if _, err := tx.Exec(ctx,
				`DELETE FROM kv_store WHERE keyspace = $1 AND key = $2`,
				op.Keyspace, op.Key); err != nil {
				return apperr.Wrap(apperr.Store, "pg batch delete", err)
			}
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO kv_store (keyspace, key, value) VALUES ($1, $2, $3)
			 ON CONFLICT (keyspace, key) DO UPDATE SET value = EXCLUDED.value`,
			op.Keyspace, op.Key, op.Value); err != nil {
			return apperr.Wrap(apperr.Store, "pg batch upsert", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.Store, "pg batch commit", err)
	}
	return nil
}
