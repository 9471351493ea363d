// Package redisstore implements the in-memory-KV-network store variant
// on redis/go-redis/v9. Keyspaces are modeled as key prefixes since
// Redis has a single flat keyspace per database.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/store"
)

// Store is a redis-backed store.Store.
type Store struct {
	client *redis.Client
}

// Open parses redisURL (as accepted by redis.ParseURL) and pings the
// server, matching the teacher's internal/platform.NewRedisClient idiom.
func Open(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.Config, "parsing redis url", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperr.Wrap(apperr.Store, "pinging redis", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Keyspace(_ context.Context, name string) (store.Keyspace, error) {
	return &keyspace{client: s.client, prefix: name + ":"}, nil
}

func (s *Store) Batch() store.Batch {
	return &batch{client: s.client}
}

func (s *Store) Persist(_ context.Context) error {
	return nil // managed backend: durability is the server's concern.
}

func (s *Store) Close() error {
	return s.client.Close()
}

type keyspace struct {
	client *redis.Client
	prefix string
}

func (k *keyspace) full(key string) string { return k.prefix + key }

func (k *keyspace) InsertRaw(ctx context.Context, key string, value []byte) error {
	if err := k.client.Set(ctx, k.full(key), value, 0).Err(); err != nil {
		return apperr.Wrap(apperr.Store, "redis set", err)
	}
	return nil
}

func (k *keyspace) GetRaw(ctx context.Context, key string) ([]byte, error) {
	v, err := k.client.Get(ctx, k.full(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "redis get", err)
	}
	return v, nil
}

func (k *keyspace) Remove(ctx context.Context, key string) error {
	if err := k.client.Del(ctx, k.full(key)).Err(); err != nil {
		return apperr.Wrap(apperr.Store, "redis del", err)
	}
	return nil
}

func (k *keyspace) ContainsKey(ctx context.Context, key string) (bool, error) {
	n, err := k.client.Exists(ctx, k.full(key)).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.Store, "redis exists", err)
	}
	return n > 0, nil
}

func (k *keyspace) PrefixIterRaw(ctx context.Context, prefix string) ([]store.KV, error) {
	var out []store.KV
	pattern := k.full(prefix) + "*"
	iter := k.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		v, err := k.client.Get(ctx, full).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between SCAN and GET; not an error.
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.Store, "redis get during scan", err)
		}
		out = append(out, store.KV{Key: full[len(k.prefix):], Value: v})
	}
	if err := iter.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Store, "redis scan", err)
	}
	return out, nil
}

// TakeRaw uses GETDEL, which Redis executes as a single atomic server
// command — the cleanest realization of spec.md §5's take guarantee.
func (k *keyspace) TakeRaw(ctx context.Context, key string) ([]byte, error) {
	v, err := k.client.GetDel(ctx, k.full(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "redis getdel", err)
	}
	return v, nil
}

type batch struct {
	client *redis.Client
	ops    []store.BatchOp
}

func (b *batch) Insert(ks, key string, value []byte) {
	b.ops = append(b.ops, store.BatchOp{Keyspace: ks, Key: key, Value: value})
}

func (b *batch) Remove(ks, key string) {
	b.ops = append(b.ops, store.BatchOp{Keyspace: ks, Key: key, Value: nil})
}

// Commit runs the queued operations inside a MULTI/EXEC transaction,
// which Redis guarantees executes all-or-nothing against the dataset
// (no partial application is observable by other clients).
func (b *batch) Commit(ctx context.Context) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range b.ops {
			full := fmt.Sprintf("%s:%s", op.Keyspace, op.Key)
			if op.Value == nil {
				pipe.Del(ctx, full)
				continue
			}
			pipe.Set(ctx, full, op.Value, 0)
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.Store, "redis batch commit", err)
	}
	return nil
}
