// Package storetest holds a behavioral conformance suite shared by
// every store.Store backend's own tests.
package storetest

import (
	"context"
	"testing"

	"github.com/affinidi/webvh-server/internal/store"
)

type stringVal struct {
	Name string `json:"name"`
}

// RunConformance exercises the full store.Store contract against s.
func RunConformance(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	ks, err := s.Keyspace(ctx, "widgets")
	if err != nil {
		t.Fatalf("Keyspace: %v", err)
	}

	if err := store.Insert(ctx, ks, "a", stringVal{Name: "alpha"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok, err := store.Get[stringVal](ctx, ks, "a")
	if err != nil || !ok || got.Name != "alpha" {
		t.Fatalf("Get roundtrip: got=%+v ok=%v err=%v", got, ok, err)
	}

	if _, ok, err := store.Get[stringVal](ctx, ks, "missing"); err != nil || ok {
		t.Fatalf("Get missing: ok=%v err=%v", ok, err)
	}

	exists, err := ks.ContainsKey(ctx, "a")
	if err != nil || !exists {
		t.Fatalf("ContainsKey: exists=%v err=%v", exists, err)
	}

	if err := ks.InsertRaw(ctx, "b", []byte("raw-bytes")); err != nil {
		t.Fatalf("InsertRaw: %v", err)
	}
	raw, err := ks.GetRaw(ctx, "b")
	if err != nil || string(raw) != "raw-bytes" {
		t.Fatalf("GetRaw: raw=%q err=%v", raw, err)
	}

	if err := ks.InsertRaw(ctx, "prefix:1", []byte("one")); err != nil {
		t.Fatalf("InsertRaw prefix:1: %v", err)
	}
	if err := ks.InsertRaw(ctx, "prefix:2", []byte("two")); err != nil {
		t.Fatalf("InsertRaw prefix:2: %v", err)
	}
	kvs, err := ks.PrefixIterRaw(ctx, "prefix:")
	if err != nil || len(kvs) != 2 {
		t.Fatalf("PrefixIterRaw: got %d, err=%v", len(kvs), err)
	}

	if err := ks.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if exists, err := ks.ContainsKey(ctx, "a"); err != nil || exists {
		t.Fatalf("ContainsKey after remove: exists=%v err=%v", exists, err)
	}

	// take: consume-once.
	if err := store.Insert(ctx, ks, "ceremony", stringVal{Name: "once"}); err != nil {
		t.Fatalf("Insert ceremony: %v", err)
	}
	v, ok, err := store.Take[stringVal](ctx, ks, "ceremony")
	if err != nil || !ok || v.Name != "once" {
		t.Fatalf("Take first: v=%+v ok=%v err=%v", v, ok, err)
	}
	_, ok, err = store.Take[stringVal](ctx, ks, "ceremony")
	if err != nil || ok {
		t.Fatalf("Take second: ok=%v err=%v (expected consumed)", ok, err)
	}

	// batch atomicity across keyspaces.
	other, err := s.Keyspace(ctx, "gadgets")
	if err != nil {
		t.Fatalf("Keyspace gadgets: %v", err)
	}
	b := s.Batch()
	b.Insert("widgets", "batch-key", []byte("w"))
	b.Insert("gadgets", "batch-key", []byte("g"))
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if raw, err := ks.GetRaw(ctx, "batch-key"); err != nil || string(raw) != "w" {
		t.Fatalf("batch widgets: raw=%q err=%v", raw, err)
	}
	if raw, err := other.GetRaw(ctx, "batch-key"); err != nil || string(raw) != "g" {
		t.Fatalf("batch gadgets: raw=%q err=%v", raw, err)
	}

	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}
}
