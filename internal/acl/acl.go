// Package acl implements C4: DID-to-role mapping and per-account
// quota limits. check_acl is the single chokepoint every authenticated
// operation outside public resolution must pass through.
package acl

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/store"
)

// Role is a caller's authorization level.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

// Entry is one ACL record, keyed by acl:{did}.
type Entry struct {
	DID          string    `json:"did"`
	Role         Role      `json:"role"`
	Label        string    `json:"label,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	MaxTotalSize *int64    `json:"max_total_size,omitempty"`
	MaxDIDCount  *int      `json:"max_did_count,omitempty"`
}

func entryKey(did string) string { return "acl:" + did }

// Put writes or overwrites the ACL entry for did.
func Put(ctx context.Context, ks store.Keyspace, e Entry) error {
	return store.Insert(ctx, ks, entryKey(e.DID), e)
}

// Delete removes the ACL entry for did.
func Delete(ctx context.Context, ks store.Keyspace, did string) error {
	return ks.Remove(ctx, entryKey(did))
}

// List returns every ACL entry. Used by the admin ACL listing route;
// the ACL keyspace is expected to be small relative to DID records.
func List(ctx context.Context, ks store.Keyspace) ([]Entry, error) {
	kvs, err := ks.PrefixIterRaw(ctx, "acl:")
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(kvs))
	for _, kv := range kvs {
		var e Entry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			continue // skip corrupt entries rather than fail the whole list
		}
		out = append(out, e)
	}
	return out, nil
}

// CheckACL is the chokepoint: absence of an ACL entry for did is
// Forbidden, never NotFound — per spec.md §4.2, every authenticated
// action except public resolution requires an existing entry.
func CheckACL(ctx context.Context, ks store.Keyspace, did string) (*Entry, error) {
	e, ok, err := store.Get[Entry](ctx, ks, entryKey(did))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.Forbidden, "no ACL entry for caller")
	}
	return &e, nil
}

// Lookup returns the ACL entry for did, or nil if none exists — unlike
// CheckACL, absence is not an error. Used by quota checks, which fall
// back to config defaults when the caller has no entry-specific
// override.
func Lookup(ctx context.Context, ks store.Keyspace, did string) (*Entry, error) {
	e, ok, err := store.Get[Entry](ctx, ks, entryKey(did))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// EffectiveMaxDIDCount resolves the tie-break rule: a per-entry
// override — including an explicit zero — wins over the global
// default; only a nil override falls through to defaultVal.
func EffectiveMaxDIDCount(e *Entry, defaultVal int) int {
	if e.MaxDIDCount != nil {
		return *e.MaxDIDCount
	}
	return defaultVal
}

// EffectiveMaxTotalSize resolves the same tie-break rule for size.
func EffectiveMaxTotalSize(e *Entry, defaultVal int64) int64 {
	if e.MaxTotalSize != nil {
		return *e.MaxTotalSize
	}
	return defaultVal
}

// ownedSizeRecord is the minimal projection of a DID record this
// package needs from the dids keyspace; it intentionally does not
// import internal/didops, since C4 sits below C6 in the dependency
// order spec.md §2 defines.
type ownedSizeRecord struct {
	ContentSize int64 `json:"contentSize"`
}

// CheckDIDCountLimit counts did keys in caller's owner-index prefix and
// rejects when the count has already reached the effective limit.
// Admin is exempt from all quota checks.
func CheckDIDCountLimit(ctx context.Context, dids store.Keyspace, caller *Entry, defaultMaxCount int) error {
	if caller.Role == RoleAdmin {
		return nil
	}
	kvs, err := dids.PrefixIterRaw(ctx, "owner:"+caller.DID+":")
	if err != nil {
		return err
	}
	limit := EffectiveMaxDIDCount(caller, defaultMaxCount)
	if len(kvs) >= limit {
		return apperr.New(apperr.QuotaExceeded, "DID count limit reached")
	}
	return nil
}

// CheckSizeLimit sums the content_size of every DID owned by caller,
// excluding excludeMnemonic (so an in-place publish is not double
// counted against its own prior size), adds newSize, and rejects if
// the total exceeds the effective limit. Admin is exempt.
func CheckSizeLimit(ctx context.Context, dids store.Keyspace, caller *Entry, excludeMnemonic string, newSize int64, defaultMaxTotalSize int64) error {
	if caller.Role == RoleAdmin {
		return nil
	}
	kvs, err := dids.PrefixIterRaw(ctx, "owner:"+caller.DID+":")
	if err != nil {
		return err
	}

	var total int64
	for _, kv := range kvs {
		mnemonic := strings.TrimPrefix(kv.Key, "owner:"+caller.DID+":")
		if mnemonic == excludeMnemonic {
			continue
		}
		rec, ok, err := store.Get[ownedSizeRecord](ctx, dids, "did:"+mnemonic)
		if err != nil {
			return err
		}
		if ok {
			total += rec.ContentSize
		}
	}

	limit := EffectiveMaxTotalSize(caller, defaultMaxTotalSize)
	if total+newSize > limit {
		return apperr.New(apperr.QuotaExceeded, "total content size limit exceeded")
	}
	return nil
}
