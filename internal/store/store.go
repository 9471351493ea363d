// Package store defines the pluggable key-value storage abstraction
// every other component is built on: keyspaces, raw/typed access,
// atomic batches, prefix scans, and the consume-once take primitive.
package store

import (
	"context"
	"encoding/json"

	"github.com/affinidi/webvh-server/internal/apperr"
)

// Fixed keyspace names persisted under data_dir for the embedded
// backend; alternate backends map these to tables/containers/collections.
const (
	KeyspaceSessions = "sessions"
	KeyspaceACL      = "acl"
	KeyspaceDIDs     = "dids"
	KeyspaceStats    = "stats"
)

// KV is one raw key/value pair returned by a prefix scan.
type KV struct {
	Key   string
	Value []byte
}

// Keyspace is a logically isolated namespace within a Store.
type Keyspace interface {
	InsertRaw(ctx context.Context, key string, value []byte) error
	GetRaw(ctx context.Context, key string) ([]byte, error) // nil, nil on absence
	Remove(ctx context.Context, key string) error
	ContainsKey(ctx context.Context, key string) (bool, error)
	PrefixIterRaw(ctx context.Context, prefix string) ([]KV, error)
	// TakeRaw atomically reads and removes key in one step. Returns
	// nil, nil on absence. Two concurrent TakeRaw calls against the
	// same key must produce at most one non-nil result.
	TakeRaw(ctx context.Context, key string) ([]byte, error)
}

// BatchOp is one write queued in a Batch.
type BatchOp struct {
	Keyspace string
	Key      string
	Value    []byte // nil means Remove
}

// Batch accumulates writes across keyspaces for atomic commit.
type Batch interface {
	Insert(ks, key string, value []byte)
	Remove(ks, key string)
	Commit(ctx context.Context) error
}

// Store is the top-level capability surface. Concrete variants:
// boltstore (embedded-LSM), pgstore (managed-KV-document), dynamostore
// (managed-KV-wide-column), redisstore (in-memory-KV-network).
type Store interface {
	// Keyspace obtains a named namespace. boltstore creates its bucket
	// if needed; dynamostore creates nothing and expects the table to
	// exist already.
	Keyspace(ctx context.Context, name string) (Keyspace, error)
	Batch() Batch
	// Persist flushes durably; a no-op for managed backends.
	Persist(ctx context.Context) error
	Close() error
}

// Insert serializes v as JSON and writes it under key.
func Insert[T any](ctx context.Context, ks Keyspace, key string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return apperr.Wrap(apperr.Serialization, "encoding value", err)
	}
	if err := ks.InsertRaw(ctx, key, b); err != nil {
		return err
	}
	return nil
}

// Get reads and deserializes the value at key. Returns ok=false,
// nil error on absence.
func Get[T any](ctx context.Context, ks Keyspace, key string) (v T, ok bool, err error) {
	raw, err := ks.GetRaw(ctx, key)
	if err != nil {
		return v, false, err
	}
	if raw == nil {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, apperr.Wrap(apperr.Serialization, "decoding value", err)
	}
	return v, true, nil
}

// Take atomically reads and removes the value at key. Used for
// single-use ceremony state (WebAuthn registration/auth state,
// enrollment tokens). Returns ok=false, nil error on absence.
func Take[T any](ctx context.Context, ks Keyspace, key string) (v T, ok bool, err error) {
	raw, err := ks.TakeRaw(ctx, key)
	if err != nil {
		return v, false, err
	}
	if raw == nil {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, apperr.Wrap(apperr.Serialization, "decoding value", err)
	}
	return v, true, nil
}
