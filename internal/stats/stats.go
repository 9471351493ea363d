// Package stats implements C7: per-DID resolve/update counters plus an
// incrementally-maintained server-wide rollup, grounded on
// original_source/webvh-server/src/stats/mod.rs and expanded with the
// `stats:server` aggregate GET /api/stats exposes.
package stats

import (
	"context"
	"time"

	"github.com/affinidi/webvh-server/internal/store"
)

const serverKey = "stats:server"

// DidStats is one DID's resolve/update counters, keyed at
// stats:{mnemonic}.
type DidStats struct {
	TotalResolves  uint64     `json:"totalResolves"`
	TotalUpdates   uint64     `json:"totalUpdates"`
	LastResolvedAt *time.Time `json:"lastResolvedAt,omitempty"`
	LastUpdatedAt  *time.Time `json:"lastUpdatedAt,omitempty"`
}

// ServerStats is the maintained rollup across every hosted DID.
type ServerStats struct {
	TotalDIDs     int64  `json:"totalDids"`
	TotalResolves uint64 `json:"totalResolves"`
	TotalUpdates  uint64 `json:"totalUpdates"`
}

func didKey(mnemonic string) string { return "stats:" + mnemonic }

// Get returns mnemonic's stats, or zero-value stats if none exist yet.
func Get(ctx context.Context, ks store.Keyspace, mnemonic string) (DidStats, error) {
	s, ok, err := store.Get[DidStats](ctx, ks, didKey(mnemonic))
	if err != nil {
		return DidStats{}, err
	}
	if !ok {
		return DidStats{}, nil
	}
	return s, nil
}

// GetServer returns the maintained server-wide rollup.
func GetServer(ctx context.Context, ks store.Keyspace) (ServerStats, error) {
	s, ok, err := store.Get[ServerStats](ctx, ks, serverKey)
	if err != nil {
		return ServerStats{}, err
	}
	if !ok {
		return ServerStats{}, nil
	}
	return s, nil
}

// IncrementResolves bumps mnemonic's resolve counter and the server
// rollup's resolve counter.
func IncrementResolves(ctx context.Context, ks store.Keyspace, mnemonic string) error {
	now := time.Now()
	s, err := Get(ctx, ks, mnemonic)
	if err != nil {
		return err
	}
	s.TotalResolves++
	s.LastResolvedAt = &now
	if err := store.Insert(ctx, ks, didKey(mnemonic), s); err != nil {
		return err
	}

	srv, err := GetServer(ctx, ks)
	if err != nil {
		return err
	}
	srv.TotalResolves++
	return store.Insert(ctx, ks, serverKey, srv)
}

// IncrementUpdates bumps mnemonic's update counter and the server
// rollup's update counter.
func IncrementUpdates(ctx context.Context, ks store.Keyspace, mnemonic string) error {
	now := time.Now()
	s, err := Get(ctx, ks, mnemonic)
	if err != nil {
		return err
	}
	s.TotalUpdates++
	s.LastUpdatedAt = &now
	if err := store.Insert(ctx, ks, didKey(mnemonic), s); err != nil {
		return err
	}

	srv, err := GetServer(ctx, ks)
	if err != nil {
		return err
	}
	srv.TotalUpdates++
	return store.Insert(ctx, ks, serverKey, srv)
}

// RecordDIDCreated increments the server rollup's DID count. Called
// outside the create_did batch since the stats keyspace is separate
// from the dids keyspace the reservation batch writes to.
func RecordDIDCreated(ctx context.Context, ks store.Keyspace) error {
	srv, err := GetServer(ctx, ks)
	if err != nil {
		return err
	}
	srv.TotalDIDs++
	return store.Insert(ctx, ks, serverKey, srv)
}

// RecordDIDDeleted decrements the server rollup's DID count.
func RecordDIDDeleted(ctx context.Context, ks store.Keyspace) error {
	srv, err := GetServer(ctx, ks)
	if err != nil {
		return err
	}
	if srv.TotalDIDs > 0 {
		srv.TotalDIDs--
	}
	return store.Insert(ctx, ks, serverKey, srv)
}

// Delete removes mnemonic's stats record.
func Delete(ctx context.Context, ks store.Keyspace, mnemonic string) error {
	return ks.Remove(ctx, didKey(mnemonic))
}
