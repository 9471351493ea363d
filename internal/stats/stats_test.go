package stats_test

import (
	"context"
	"testing"

	"github.com/affinidi/webvh-server/internal/stats"
	"github.com/affinidi/webvh-server/internal/store/boltstore"
)

func TestIncrementResolvesUpdatesServerRollup(t *testing.T) {
	s, err := boltstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	ks, err := s.Keyspace(ctx, "stats")
	if err != nil {
		t.Fatalf("Keyspace: %v", err)
	}

	if err := stats.IncrementResolves(ctx, ks, "apple-banana"); err != nil {
		t.Fatalf("IncrementResolves: %v", err)
	}
	if err := stats.IncrementResolves(ctx, ks, "apple-banana"); err != nil {
		t.Fatalf("IncrementResolves: %v", err)
	}
	if err := stats.IncrementUpdates(ctx, ks, "apple-banana"); err != nil {
		t.Fatalf("IncrementUpdates: %v", err)
	}

	did, err := stats.Get(ctx, ks, "apple-banana")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if did.TotalResolves != 2 || did.TotalUpdates != 1 {
		t.Fatalf("did stats = %+v, want resolves=2 updates=1", did)
	}
	if did.LastResolvedAt == nil || did.LastUpdatedAt == nil {
		t.Fatalf("expected last_*_at to be set: %+v", did)
	}

	srv, err := stats.GetServer(ctx, ks)
	if err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if srv.TotalResolves != 2 || srv.TotalUpdates != 1 {
		t.Fatalf("server stats = %+v, want resolves=2 updates=1", srv)
	}
}

func TestRecordDIDCreatedAndDeleted(t *testing.T) {
	s, err := boltstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	ks, err := s.Keyspace(ctx, "stats")
	if err != nil {
		t.Fatalf("Keyspace: %v", err)
	}

	if err := stats.RecordDIDCreated(ctx, ks); err != nil {
		t.Fatalf("RecordDIDCreated: %v", err)
	}
	if err := stats.RecordDIDCreated(ctx, ks); err != nil {
		t.Fatalf("RecordDIDCreated: %v", err)
	}
	srv, err := stats.GetServer(ctx, ks)
	if err != nil || srv.TotalDIDs != 2 {
		t.Fatalf("GetServer after two creates: srv=%+v err=%v", srv, err)
	}

	if err := stats.RecordDIDDeleted(ctx, ks); err != nil {
		t.Fatalf("RecordDIDDeleted: %v", err)
	}
	srv, err = stats.GetServer(ctx, ks)
	if err != nil || srv.TotalDIDs != 1 {
		t.Fatalf("GetServer after one delete: srv=%+v err=%v", srv, err)
	}
}

func TestDeleteRemovesDidStats(t *testing.T) {
	s, err := boltstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	ks, err := s.Keyspace(ctx, "stats")
	if err != nil {
		t.Fatalf("Keyspace: %v", err)
	}

	if err := stats.IncrementResolves(ctx, ks, "x"); err != nil {
		t.Fatalf("IncrementResolves: %v", err)
	}
	if err := stats.Delete(ctx, ks, "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	did, err := stats.Get(ctx, ks, "x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if did.TotalResolves != 0 {
		t.Fatalf("expected zero-value stats after delete, got %+v", did)
	}
}
