// Package didops implements C6: the DID lifecycle engine — slot
// reservation, publish, witness upload, info/list/delete,
// disable/enable, public resolution, and janitor cleanup. Grounded on
// original_source/webvh-server/src/did_ops.rs.
package didops

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/affinidi/webvh-server/internal/acl"
	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/config"
	"github.com/affinidi/webvh-server/internal/didlog"
	"github.com/affinidi/webvh-server/internal/mnemonic"
	"github.com/affinidi/webvh-server/internal/stats"
	"github.com/affinidi/webvh-server/internal/store"
)

// Caller is the {did, role} pair the HTTP/DIDComm layer has already
// authenticated, passed into every operation below.
type Caller struct {
	DID  string
	Role acl.Role
}

// DidRecord is keyed at did:{mnemonic}.
type DidRecord struct {
	Owner        string    `json:"owner"`
	Mnemonic     string    `json:"mnemonic"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	VersionCount uint64    `json:"versionCount"`
	DidID        *string   `json:"didId,omitempty"`
	ContentSize  int64     `json:"contentSize"`
	Disabled     bool      `json:"disabled,omitempty"`
}

// Service bundles the keyspaces and config DID operations need.
type Service struct {
	Store  store.Store
	Dids   store.Keyspace
	ACL    store.Keyspace
	Stats  store.Keyspace
	Config *config.Config
}

func didKey(mnemonic string) string            { return "did:" + mnemonic }
func contentLogKey(mnemonic string) string     { return "content:" + mnemonic + ":log" }
func contentWitnessKey(mnemonic string) string { return "content:" + mnemonic + ":witness" }
func ownerKey(did, mnemonic string) string     { return "owner:" + did + ":" + mnemonic }

func (s *Service) baseURL() string {
	if s.Config.BaseURL != "" {
		return s.Config.BaseURL
	}
	return "http://" + s.Config.ListenAddr()
}

func (s *Service) didURL(mnemonic string) string {
	return s.baseURL() + "/" + mnemonic + "/did.jsonl"
}

func (s *Service) witnessURL(mnemonic string) string {
	return s.baseURL() + "/" + mnemonic + "/did-witness.json"
}

// callerEntry resolves the ACL entry used for quota overrides, falling
// back to a synthetic entry carrying just the caller's role when none
// exists — absence of an ACL entry here is not Forbidden, since
// check_acl has already gated access to this operation upstream.
func (s *Service) callerEntry(ctx context.Context, caller Caller) (*acl.Entry, error) {
	e, err := acl.Lookup(ctx, s.ACL, caller.DID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		e = &acl.Entry{DID: caller.DID, Role: caller.Role}
	}
	return e, nil
}

func (s *Service) checkDIDCountLimit(ctx context.Context, caller Caller) error {
	entry, err := s.callerEntry(ctx, caller)
	if err != nil {
		return err
	}
	return acl.CheckDIDCountLimit(ctx, s.Dids, entry, s.Config.DefaultMaxDIDCount)
}

func (s *Service) checkSizeLimit(ctx context.Context, caller Caller, excludeMnemonic string, newSize int64) error {
	entry, err := s.callerEntry(ctx, caller)
	if err != nil {
		return err
	}
	return acl.CheckSizeLimit(ctx, s.Dids, entry, excludeMnemonic, newSize, s.Config.DefaultMaxTotalSize)
}

// getAuthorizedRecord loads mnemonic's record and verifies caller owns
// it (Admin overrides).
func (s *Service) getAuthorizedRecord(ctx context.Context, mnemonic string, caller Caller) (*DidRecord, error) {
	rec, ok, err := store.Get[DidRecord](ctx, s.Dids, didKey(mnemonic))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.NotFound, "DID not found: "+mnemonic)
	}
	if rec.Owner != caller.DID && caller.Role != acl.RoleAdmin {
		return nil, apperr.New(apperr.Forbidden, "not the owner of this DID")
	}
	return &rec, nil
}

// CreateDIDResult is returned by CreateDID.
type CreateDIDResult struct {
	Mnemonic string
	DidURL   string
}

// CreateDID reserves a new DID slot: a random two-word mnemonic, or a
// caller-supplied custom path (".well-known" requires Admin).
func (s *Service) CreateDID(ctx context.Context, caller Caller, path *string) (*CreateDIDResult, error) {
	if err := s.checkDIDCountLimit(ctx, caller); err != nil {
		return nil, err
	}

	var slot string
	switch {
	case path != nil && *path == ".well-known":
		if caller.Role != acl.RoleAdmin {
			return nil, apperr.New(apperr.Forbidden, "only admins can create the root DID")
		}
		available, err := mnemonic.IsPathAvailable(ctx, s.Dids, *path)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, apperr.New(apperr.Conflict, "root DID (.well-known) already exists")
		}
		slot = *path
	case path != nil:
		if err := mnemonic.ValidateCustomPath(*path); err != nil {
			return nil, err
		}
		available, err := mnemonic.IsPathAvailable(ctx, s.Dids, *path)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, apperr.New(apperr.Conflict, "path '"+*path+"' is already taken")
		}
		slot = *path
	default:
		m, err := mnemonic.GenerateUnique(ctx, s.Dids)
		if err != nil {
			return nil, err
		}
		slot = m
	}

	now := time.Now()
	rec := DidRecord{
		Owner:     caller.DID,
		Mnemonic:  slot,
		CreatedAt: now,
		UpdatedAt: now,
	}

	batch := s.Store.Batch()
	if err := insertInto(batch, store.KeyspaceDIDs, didKey(slot), rec); err != nil {
		return nil, err
	}
	batch.Insert(store.KeyspaceDIDs, ownerKey(caller.DID, slot), []byte(slot))
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}

	if err := stats.RecordDIDCreated(ctx, s.Stats); err != nil {
		return nil, err
	}

	return &CreateDIDResult{Mnemonic: slot, DidURL: s.didURL(slot)}, nil
}

// PublishDIDResult is returned by PublishDID.
type PublishDIDResult struct {
	DidID        *string
	DidURL       string
	VersionID    *string
	VersionCount uint64
}

// PublishDID uploads a did.jsonl log for an existing DID slot.
// Concurrent publishes to the same slot are not serialized: each reads
// the record on its own and the last batch to commit wins, so
// VersionCount and ContentSize reflect that last writer.
func (s *Service) PublishDID(ctx context.Context, caller Caller, slot, didLog string) (*PublishDIDResult, error) {
	if err := mnemonic.ValidateMnemonic(slot); err != nil {
		return nil, err
	}
	rec, err := s.getAuthorizedRecord(ctx, slot, caller)
	if err != nil {
		return nil, err
	}

	if err := didlog.Validate(didLog); err != nil {
		return nil, err
	}

	newSize := int64(len(didLog))
	if err := s.checkSizeLimit(ctx, caller, slot, newSize); err != nil {
		return nil, err
	}

	didID := didlog.ExtractDIDID(didLog)
	versionID := didlog.ExtractVersionID(didLog)

	rec.UpdatedAt = time.Now()
	rec.VersionCount++
	rec.ContentSize = newSize
	if didID != "" {
		rec.DidID = &didID
	}

	batch := s.Store.Batch()
	batch.Insert(store.KeyspaceDIDs, contentLogKey(slot), []byte(didLog))
	if err := insertInto(batch, store.KeyspaceDIDs, didKey(slot), *rec); err != nil {
		return nil, err
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}

	if err := stats.IncrementUpdates(ctx, s.Stats, slot); err != nil {
		return nil, err
	}

	result := &PublishDIDResult{DidURL: s.didURL(slot), VersionCount: rec.VersionCount}
	if didID != "" {
		result.DidID = &didID
	}
	if versionID != "" {
		result.VersionID = &versionID
	}
	return result, nil
}

// WitnessUploadResult is returned by UploadWitness.
type WitnessUploadResult struct {
	WitnessURL string
}

// UploadWitness stores a did-witness.json document for an existing slot.
func (s *Service) UploadWitness(ctx context.Context, caller Caller, slot, content string) (*WitnessUploadResult, error) {
	if err := mnemonic.ValidateMnemonic(slot); err != nil {
		return nil, err
	}
	if _, err := s.getAuthorizedRecord(ctx, slot, caller); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, apperr.New(apperr.Validation, "did-witness.json content cannot be empty")
	}
	if err := s.Dids.InsertRaw(ctx, contentWitnessKey(slot), []byte(content)); err != nil {
		return nil, err
	}
	return &WitnessUploadResult{WitnessURL: s.witnessURL(slot)}, nil
}

// DIDInfoResult is returned by GetDIDInfo.
type DIDInfoResult struct {
	Record      DidRecord
	LogMetadata *didlog.Metadata
	Stats       stats.DidStats
	DidURL      string
}

// GetDIDInfo returns a slot's record, parsed log metadata (if any
// log has been published), and its stats counters.
func (s *Service) GetDIDInfo(ctx context.Context, caller Caller, slot string) (*DIDInfoResult, error) {
	if err := mnemonic.ValidateMnemonic(slot); err != nil {
		return nil, err
	}
	rec, err := s.getAuthorizedRecord(ctx, slot, caller)
	if err != nil {
		return nil, err
	}

	var logMeta *didlog.Metadata
	raw, err := s.Dids.GetRaw(ctx, contentLogKey(slot))
	if err != nil {
		return nil, err
	}
	if raw != nil {
		meta := didlog.ExtractMetadata(string(raw))
		logMeta = &meta
	}

	didStats, err := stats.Get(ctx, s.Stats, slot)
	if err != nil {
		return nil, err
	}

	return &DIDInfoResult{Record: *rec, LogMetadata: logMeta, Stats: didStats, DidURL: s.didURL(slot)}, nil
}

// GetDIDLog returns the parsed log entries for a slot.
func (s *Service) GetDIDLog(ctx context.Context, caller Caller, slot string) ([]didlog.Entry, error) {
	if err := mnemonic.ValidateMnemonic(slot); err != nil {
		return nil, err
	}
	if _, err := s.getAuthorizedRecord(ctx, slot, caller); err != nil {
		return nil, err
	}
	raw, err := s.Dids.GetRaw(ctx, contentLogKey(slot))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, apperr.New(apperr.NotFound, "no log content for this DID")
	}
	return didlog.ParseEntries(string(raw)), nil
}

// DIDListEntry is one row of ListDIDs' result.
type DIDListEntry struct {
	Mnemonic      string  `json:"mnemonic"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	VersionCount  uint64  `json:"versionCount"`
	DidID         *string `json:"didId,omitempty"`
	TotalResolves uint64  `json:"totalResolves"`
}

// ListDIDs lists DIDs owned by caller, or by requestedOwner if caller
// is Admin.
func (s *Service) ListDIDs(ctx context.Context, caller Caller, requestedOwner *string) ([]DIDListEntry, error) {
	target := caller.DID
	if caller.Role == acl.RoleAdmin && requestedOwner != nil && *requestedOwner != "" {
		target = *requestedOwner
	}

	prefix := "owner:" + target + ":"
	kvs, err := s.Dids.PrefixIterRaw(ctx, prefix)
	if err != nil {
		return nil, err
	}

	entries := make([]DIDListEntry, 0, len(kvs))
	for _, kv := range kvs {
		slot := strings.TrimPrefix(kv.Key, prefix)
		rec, ok, err := store.Get[DidRecord](ctx, s.Dids, didKey(slot))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		didStats, err := stats.Get(ctx, s.Stats, slot)
		if err != nil {
			return nil, err
		}
		entries = append(entries, DIDListEntry{
			Mnemonic:      rec.Mnemonic,
			CreatedAt:     rec.CreatedAt,
			UpdatedAt:     rec.UpdatedAt,
			VersionCount:  rec.VersionCount,
			DidID:         rec.DidID,
			TotalResolves: didStats.TotalResolves,
		})
	}
	return entries, nil
}

// DeleteDIDResult is returned by DeleteDID.
type DeleteDIDResult struct {
	Mnemonic string
	DidID    *string
}

// DeleteDID removes a slot and every key associated with it.
func (s *Service) DeleteDID(ctx context.Context, caller Caller, slot string) (*DeleteDIDResult, error) {
	if err := mnemonic.ValidateMnemonic(slot); err != nil {
		return nil, err
	}
	rec, err := s.getAuthorizedRecord(ctx, slot, caller)
	if err != nil {
		return nil, err
	}

	batch := s.Store.Batch()
	batch.Remove(store.KeyspaceDIDs, didKey(slot))
	batch.Remove(store.KeyspaceDIDs, contentLogKey(slot))
	batch.Remove(store.KeyspaceDIDs, contentWitnessKey(slot))
	batch.Remove(store.KeyspaceDIDs, ownerKey(rec.Owner, slot))
	batch.Remove(store.KeyspaceStats, "stats:"+slot)
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}

	if err := stats.RecordDIDDeleted(ctx, s.Stats); err != nil {
		return nil, err
	}

	return &DeleteDIDResult{Mnemonic: slot, DidID: rec.DidID}, nil
}

// SetDisabled toggles a slot's disabled flag.
func (s *Service) SetDisabled(ctx context.Context, caller Caller, slot string, disabled bool) error {
	if err := mnemonic.ValidateMnemonic(slot); err != nil {
		return err
	}
	rec, err := s.getAuthorizedRecord(ctx, slot, caller)
	if err != nil {
		return err
	}
	rec.Disabled = disabled
	rec.UpdatedAt = time.Now()
	return store.Insert(ctx, s.Dids, didKey(slot), rec)
}

// ResolveLog serves a slot's did.jsonl content publicly. The disabled
// flag only affects the management API's view of a DID (GetDIDInfo);
// public resolution is keyed purely on content presence, matching
// did_public.rs's serve_did_log. A successful read best-effort
// increments resolve stats; failure there does not affect the response.
func (s *Service) ResolveLog(ctx context.Context, slot string) ([]byte, error) {
	raw, err := s.Dids.GetRaw(ctx, contentLogKey(slot))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, apperr.New(apperr.NotFound, "DID log not found: "+slot)
	}
	_ = stats.IncrementResolves(ctx, s.Stats, slot)
	return raw, nil
}

// ResolveWitness serves a slot's did-witness.json content publicly.
func (s *Service) ResolveWitness(ctx context.Context, slot string) ([]byte, error) {
	raw, err := s.Dids.GetRaw(ctx, contentWitnessKey(slot))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, apperr.New(apperr.NotFound, "witness not found: "+slot)
	}
	return raw, nil
}

// CleanupEmptyDIDs removes DID records with version_count == 0 older
// than ttl — reservations nobody ever published to.
func (s *Service) CleanupEmptyDIDs(ctx context.Context, ttl time.Duration) (int, error) {
	kvs, err := s.Dids.PrefixIterRaw(ctx, "did:")
	if err != nil {
		return 0, err
	}
	now := time.Now()
	removed := 0
	for _, kv := range kvs {
		rec, ok, err := store.Get[DidRecord](ctx, s.Dids, kv.Key)
		if err != nil || !ok {
			continue
		}
		if rec.VersionCount != 0 || now.Sub(rec.CreatedAt) <= ttl {
			continue
		}
		slot := rec.Mnemonic
		batch := s.Store.Batch()
		batch.Remove(store.KeyspaceDIDs, didKey(slot))
		batch.Remove(store.KeyspaceDIDs, contentLogKey(slot))
		batch.Remove(store.KeyspaceDIDs, contentWitnessKey(slot))
		batch.Remove(store.KeyspaceDIDs, ownerKey(rec.Owner, slot))
		batch.Remove(store.KeyspaceStats, "stats:"+slot)
		if err := batch.Commit(ctx); err != nil {
			return removed, err
		}
		removed++
		if err := stats.RecordDIDDeleted(ctx, s.Stats); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func insertInto(batch store.Batch, ks, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return apperr.Wrap(apperr.Serialization, "encoding value", err)
	}
	batch.Insert(ks, key, b)
	return nil
}
