package didops_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/affinidi/webvh-server/internal/acl"
	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/config"
	"github.com/affinidi/webvh-server/internal/didops"
	"github.com/affinidi/webvh-server/internal/store"
	"github.com/affinidi/webvh-server/internal/store/boltstore"
)

func newService(t *testing.T) (*didops.Service, context.Context) {
	t.Helper()
	s, err := boltstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	dids, err := s.Keyspace(ctx, store.KeyspaceDIDs)
	if err != nil {
		t.Fatalf("Keyspace dids: %v", err)
	}
	aclKS, err := s.Keyspace(ctx, store.KeyspaceACL)
	if err != nil {
		t.Fatalf("Keyspace acl: %v", err)
	}
	statsKS, err := s.Keyspace(ctx, store.KeyspaceStats)
	if err != nil {
		t.Fatalf("Keyspace stats: %v", err)
	}

	cfg := &config.Config{
		BaseURL:             "http://localhost:8085",
		DefaultMaxDIDCount:  100,
		DefaultMaxTotalSize: 1024 * 1024,
	}

	return &didops.Service{Store: s, Dids: dids, ACL: aclKS, Stats: statsKS, Config: cfg}, ctx
}

const validJSONL = `{"versionId":"1-abc","versionTime":"2025-01-23T04:12:36Z","parameters":{"method":"did:webvh:1.0"},"state":{"id":"did:webvh:scid:localhost%3A8085:apple-banana"}}`

func TestCreateDIDRandomMnemonicShape(t *testing.T) {
	svc, ctx := newService(t)
	caller := didops.Caller{DID: "did:example:alice", Role: acl.RoleOwner}

	res, err := svc.CreateDID(ctx, caller, nil)
	if err != nil {
		t.Fatalf("CreateDID: %v", err)
	}
	if !regexp.MustCompile(`^[a-z]+-[a-z]+$`).MatchString(res.Mnemonic) {
		t.Fatalf("mnemonic %q does not match [a-z]+-[a-z]+", res.Mnemonic)
	}

	entries, err := svc.ListDIDs(ctx, caller, nil)
	if err != nil {
		t.Fatalf("ListDIDs: %v", err)
	}
	if len(entries) != 1 || entries[0].Mnemonic != res.Mnemonic {
		t.Fatalf("ListDIDs = %+v, want exactly one entry for %q", entries, res.Mnemonic)
	}
}

func TestCreateDIDCustomPathRejectsReservedFirstSegment(t *testing.T) {
	svc, ctx := newService(t)
	caller := didops.Caller{DID: "did:example:alice", Role: acl.RoleOwner}
	path := "api/nested"

	_, err := svc.CreateDID(ctx, caller, &path)
	if apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestCreateDIDWellKnownRequiresAdmin(t *testing.T) {
	svc, ctx := newService(t)
	caller := didops.Caller{DID: "did:example:alice", Role: acl.RoleOwner}
	path := ".well-known"

	_, err := svc.CreateDID(ctx, caller, &path)
	if apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("expected Forbidden, got %v", err)
	}

	admin := didops.Caller{DID: "did:example:admin", Role: acl.RoleAdmin}
	res, err := svc.CreateDID(ctx, admin, &path)
	if err != nil {
		t.Fatalf("CreateDID as admin: %v", err)
	}
	if res.Mnemonic != ".well-known" {
		t.Fatalf("mnemonic = %q, want .well-known", res.Mnemonic)
	}

	_, err = svc.CreateDID(ctx, admin, &path)
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("expected Conflict on second reservation, got %v", err)
	}
}

func TestCreateDIDEnforcesCountQuota(t *testing.T) {
	svc, ctx := newService(t)
	caller := didops.Caller{DID: "did:example:alice", Role: acl.RoleOwner}
	limit := 1
	if err := acl.Put(ctx, svc.ACL, acl.Entry{DID: caller.DID, Role: acl.RoleOwner, MaxDIDCount: &limit}); err != nil {
		t.Fatalf("Put ACL: %v", err)
	}

	if _, err := svc.CreateDID(ctx, caller, nil); err != nil {
		t.Fatalf("first CreateDID: %v", err)
	}
	_, err := svc.CreateDID(ctx, caller, nil)
	if apperr.KindOf(err) != apperr.QuotaExceeded {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}
}

func TestPublishDIDUpdatesSizeAndExtractsID(t *testing.T) {
	svc, ctx := newService(t)
	caller := didops.Caller{DID: "did:example:alice", Role: acl.RoleOwner}

	created, err := svc.CreateDID(ctx, caller, nil)
	if err != nil {
		t.Fatalf("CreateDID: %v", err)
	}

	res, err := svc.PublishDID(ctx, caller, created.Mnemonic, validJSONL)
	if err != nil {
		t.Fatalf("PublishDID: %v", err)
	}
	if res.VersionCount != 1 {
		t.Fatalf("VersionCount = %d, want 1", res.VersionCount)
	}
	if res.DidID == nil || *res.DidID != "did:webvh:scid:localhost%3A8085:apple-banana" {
		t.Fatalf("DidID = %v", res.DidID)
	}

	info, err := svc.GetDIDInfo(ctx, caller, created.Mnemonic)
	if err != nil {
		t.Fatalf("GetDIDInfo: %v", err)
	}
	if info.Record.ContentSize != int64(len(validJSONL)) {
		t.Fatalf("ContentSize = %d, want %d", info.Record.ContentSize, len(validJSONL))
	}
	if info.LogMetadata == nil || info.LogMetadata.Method == nil || *info.LogMetadata.Method != "did:webvh:1.0" {
		t.Fatalf("LogMetadata = %+v", info.LogMetadata)
	}
}

func TestPublishDIDRejectsNonOwner(t *testing.T) {
	svc, ctx := newService(t)
	owner := didops.Caller{DID: "did:example:alice", Role: acl.RoleOwner}
	other := didops.Caller{DID: "did:example:mallory", Role: acl.RoleOwner}

	created, err := svc.CreateDID(ctx, owner, nil)
	if err != nil {
		t.Fatalf("CreateDID: %v", err)
	}

	_, err = svc.PublishDID(ctx, other, created.Mnemonic, validJSONL)
	if apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestPublishDIDExcludesSelfFromSizeQuota(t *testing.T) {
	svc, ctx := newService(t)
	caller := didops.Caller{DID: "did:example:alice", Role: acl.RoleOwner}
	size := int64(len(validJSONL))
	if err := acl.Put(ctx, svc.ACL, acl.Entry{DID: caller.DID, Role: acl.RoleOwner, MaxTotalSize: &size}); err != nil {
		t.Fatalf("Put ACL: %v", err)
	}

	created, err := svc.CreateDID(ctx, caller, nil)
	if err != nil {
		t.Fatalf("CreateDID: %v", err)
	}
	if _, err := svc.PublishDID(ctx, caller, created.Mnemonic, validJSONL); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	// Republishing the same mnemonic at the same size must not double
	// count its own prior content against the quota.
	if _, err := svc.PublishDID(ctx, caller, created.Mnemonic, validJSONL); err != nil {
		t.Fatalf("republish within quota: %v", err)
	}

	second, err := svc.CreateDID(ctx, caller, nil)
	if err != nil {
		t.Fatalf("CreateDID second: %v", err)
	}
	_, err = svc.PublishDID(ctx, caller, second.Mnemonic, validJSONL)
	if apperr.KindOf(err) != apperr.QuotaExceeded {
		t.Fatalf("expected QuotaExceeded on second DID, got %v", err)
	}
}

func TestDeleteDIDRemovesOwnerIndex(t *testing.T) {
	svc, ctx := newService(t)
	caller := didops.Caller{DID: "did:example:alice", Role: acl.RoleOwner}

	created, err := svc.CreateDID(ctx, caller, nil)
	if err != nil {
		t.Fatalf("CreateDID: %v", err)
	}
	if _, err := svc.DeleteDID(ctx, caller, created.Mnemonic); err != nil {
		t.Fatalf("DeleteDID: %v", err)
	}

	entries, err := svc.ListDIDs(ctx, caller, nil)
	if err != nil {
		t.Fatalf("ListDIDs: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries after delete, got %+v", entries)
	}

	_, err = svc.ResolveLog(ctx, created.Mnemonic)
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}

func TestResolveLogIncrementsStatsAndMissingIs404(t *testing.T) {
	svc, ctx := newService(t)
	caller := didops.Caller{DID: "did:example:alice", Role: acl.RoleOwner}

	created, err := svc.CreateDID(ctx, caller, nil)
	if err != nil {
		t.Fatalf("CreateDID: %v", err)
	}
	if _, err := svc.PublishDID(ctx, caller, created.Mnemonic, validJSONL); err != nil {
		t.Fatalf("PublishDID: %v", err)
	}

	if _, err := svc.ResolveLog(ctx, created.Mnemonic); err != nil {
		t.Fatalf("ResolveLog: %v", err)
	}

	info, err := svc.GetDIDInfo(ctx, caller, created.Mnemonic)
	if err != nil {
		t.Fatalf("GetDIDInfo: %v", err)
	}
	if info.Stats.TotalResolves != 1 {
		t.Fatalf("TotalResolves = %d, want 1", info.Stats.TotalResolves)
	}

	_, err = svc.ResolveLog(ctx, "no-such-mnemonic")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

// TestSetDisabledDoesNotHidePublicResolve matches did_public.rs's
// serve_did_log: the disabled flag only changes GetDIDInfo's
// management-API view of a DID, never public resolution.
func TestSetDisabledDoesNotHidePublicResolve(t *testing.T) {
	svc, ctx := newService(t)
	caller := didops.Caller{DID: "did:example:alice", Role: acl.RoleOwner}

	created, err := svc.CreateDID(ctx, caller, nil)
	if err != nil {
		t.Fatalf("CreateDID: %v", err)
	}
	if _, err := svc.PublishDID(ctx, caller, created.Mnemonic, validJSONL); err != nil {
		t.Fatalf("PublishDID: %v", err)
	}
	if err := svc.SetDisabled(ctx, caller, created.Mnemonic, true); err != nil {
		t.Fatalf("SetDisabled: %v", err)
	}

	content, err := svc.ResolveLog(ctx, created.Mnemonic)
	if err != nil {
		t.Fatalf("ResolveLog: %v", err)
	}
	if string(content) != validJSONL {
		t.Fatalf("ResolveLog content = %q", content)
	}

	info, err := svc.GetDIDInfo(ctx, caller, created.Mnemonic)
	if err != nil {
		t.Fatalf("GetDIDInfo: %v", err)
	}
	if !info.Record.Disabled {
		t.Fatal("expected management API to report the DID as disabled")
	}
}

func TestCleanupEmptyDIDsRemovesOnlyStaleUnpublishedSlots(t *testing.T) {
	svc, ctx := newService(t)
	caller := didops.Caller{DID: "did:example:alice", Role: acl.RoleOwner}

	empty, err := svc.CreateDID(ctx, caller, nil)
	if err != nil {
		t.Fatalf("CreateDID empty: %v", err)
	}
	published, err := svc.CreateDID(ctx, caller, nil)
	if err != nil {
		t.Fatalf("CreateDID published: %v", err)
	}
	if _, err := svc.PublishDID(ctx, caller, published.Mnemonic, validJSONL); err != nil {
		t.Fatalf("PublishDID: %v", err)
	}

	// Backdate the empty record past the TTL.
	rec, ok, err := store.Get[didops.DidRecord](ctx, svc.Dids, "did:"+empty.Mnemonic)
	if err != nil || !ok {
		t.Fatalf("Get empty record: ok=%v err=%v", ok, err)
	}
	rec.CreatedAt = time.Now().Add(-48 * time.Hour)
	if err := store.Insert(ctx, svc.Dids, "did:"+empty.Mnemonic, rec); err != nil {
		t.Fatalf("rewrite record: %v", err)
	}

	removed, err := svc.CleanupEmptyDIDs(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupEmptyDIDs: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	entries, err := svc.ListDIDs(ctx, caller, nil)
	if err != nil {
		t.Fatalf("ListDIDs: %v", err)
	}
	if len(entries) != 1 || entries[0].Mnemonic != published.Mnemonic {
		t.Fatalf("ListDIDs after cleanup = %+v, want only %q", entries, published.Mnemonic)
	}
}
