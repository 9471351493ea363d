// Package routes wires the C6 DID lifecycle, C4 ACL, and C7 statistics
// services onto HTTP, grounded on original_source/webvh-server/src/
// routes/{did_manage,did_public,auth,acl,stats}.rs for request/response
// shapes and original_source/webvh-server/src/routes/mod.rs for the
// route table, reconciled against spec.md §6 where the two disagree
// (spec.md's route table is authoritative — see DESIGN.md).
package routes

import (
	"log/slog"

	"github.com/affinidi/webvh-server/internal/config"
	"github.com/affinidi/webvh-server/internal/didcomm"
	"github.com/affinidi/webvh-server/internal/didops"
	"github.com/affinidi/webvh-server/internal/passkey"
	"github.com/affinidi/webvh-server/internal/session"
	"github.com/affinidi/webvh-server/internal/store"
)

// Deps bundles every dependency the route handlers call into. Codec
// and Ceremony may be nil when messaging/passkey login is not
// configured for this deployment; handlers that need them report
// Authentication in that case, mirroring the original's
// `state.did_resolver.as_ref().ok_or_else(...)` pattern.
type Deps struct {
	DID      *didops.Service
	Sessions *session.Manager
	Passkeys *passkey.Store
	Ceremony passkey.Ceremony
	Codec    didcomm.Codec

	SessionsKS store.Keyspace
	ACLKS      store.Keyspace
	DIDsKS     store.Keyspace
	StatsKS    store.Keyspace

	Config *config.Config
	Logger *slog.Logger
}
