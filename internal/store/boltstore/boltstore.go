// Package boltstore implements the embedded-LSM store variant on
// go.etcd.io/bbolt, one bucket per keyspace.
package boltstore

import (
	"context"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/store"
)

// Store is a bbolt-backed store.Store.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database file under dataDir.
func Open(dataDir string) (*Store, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "webvh.db"), 0o600, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "opening bolt database", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Keyspace(_ context.Context, name string) (store.Keyspace, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "creating bucket", err)
	}
	return &keyspace{db: s.db, name: []byte(name)}, nil
}

func (s *Store) Batch() store.Batch {
	return &batch{db: s.db}
}

func (s *Store) Persist(_ context.Context) error {
	return nil // bbolt fsyncs on every commit; no separate flush needed.
}

func (s *Store) Close() error {
	return s.db.Close()
}

type keyspace struct {
	db   *bolt.DB
	name []byte
}

func (k *keyspace) InsertRaw(_ context.Context, key string, value []byte) error {
	err := k.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(k.name).Put([]byte(key), value)
	})
	if err != nil {
		return apperr.Wrap(apperr.Store, "bolt put", err)
	}
	return nil
}

func (k *keyspace) GetRaw(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := k.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(k.name).Get([]byte(key))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "bolt get", err)
	}
	return out, nil
}

func (k *keyspace) Remove(_ context.Context, key string) error {
	err := k.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(k.name).Delete([]byte(key))
	})
	if err != nil {
		return apperr.Wrap(apperr.Store, "bolt delete", err)
	}
	return nil
}

func (k *keyspace) ContainsKey(_ context.Context, key string) (bool, error) {
	var found bool
	err := k.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(k.name).Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, apperr.Wrap(apperr.Store, "bolt get", err)
	}
	return found, nil
}

func (k *keyspace) PrefixIterRaw(_ context.Context, prefix string) ([]store.KV, error) {
	var out []store.KV
	err := k.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(k.name).Cursor()
		p := []byte(prefix)
		for key, v := c.Seek(p); key != nil && hasPrefix(key, p); key, v = c.Next() {
			out = append(out, store.KV{Key: string(key), Value: append([]byte(nil), v...)})
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "bolt scan", err)
	}
	return out, nil
}

// TakeRaw reads and deletes key inside a single write transaction,
// which bbolt already serializes per-database, giving the atomicity
// spec.md §5 requires.
func (k *keyspace) TakeRaw(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := k.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(k.name)
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return b.Delete([]byte(key))
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "bolt take", err)
	}
	return out, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

type batch struct {
	db  *bolt.DB
	ops []store.BatchOp
}

func (b *batch) Insert(ks, key string, value []byte) {
	b.ops = append(b.ops, store.BatchOp{Keyspace: ks, Key: key, Value: value})
}

func (b *batch) Remove(ks, key string) {
	b.ops = append(b.ops, store.BatchOp{Keyspace: ks, Key: key, Value: nil})
}

func (b *batch) Commit(_ context.Context) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, op := range b.ops {
			bucket, err := tx.CreateBucketIfNotExists([]byte(op.Keyspace))
			if err != nil {
				return err
			}
			if op.Value == nil {
				if err := bucket.Delete([]byte(op.Key)); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put([]byte(op.Key), op.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.Store, "bolt batch commit", err)
	}
	return nil
}
