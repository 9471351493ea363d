package didcomm

import (
	"context"
	"strings"
	"time"

	"github.com/affinidi/webvh-server/internal/acl"
	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/didops"
	"github.com/affinidi/webvh-server/internal/session"
	"github.com/affinidi/webvh-server/internal/store"
)

// stripFragment drops a DID's key-fragment suffix, mirroring
// routes.stripFragment for the mediator surface, which cannot import
// the routes package without creating an import cycle.
func stripFragment(did string) string {
	if i := strings.IndexByte(did, '#'); i >= 0 {
		return did[:i]
	}
	return did
}

// problemReport builds a did/problem-report envelope addressed back to
// env's sender, carrying err's DIDComm error code and message, mirroring
// messaging.rs's dispatch_webvh_message catching did_ops errors and
// converting them to a problem-report response instead of dropping the
// message.
func problemReport(env *Envelope, err error) *Envelope {
	kind := apperr.KindOf(err)
	pr := ProblemReport(stripFragment(env.From), apperr.DIDCommCode(kind), err.Error())
	pr.ID = env.ID
	return pr
}

func reply(env *Envelope, msgType string, body map[string]any) *Envelope {
	return &Envelope{
		ID:   env.ID,
		Type: msgType,
		To:   []string{stripFragment(env.From)},
		Body: body,
	}
}

func bodyString(env *Envelope, field string) string {
	v, _ := env.Body[field].(string)
	return v
}

// NewDIDOpsRegistry builds the dispatch table the messaging worker
// runs inbound mediator traffic through, grounded on
// original_source/webvh-server/src/messaging.rs's dispatch_message and
// dispatch_did_op. Each did/* handler authorizes the sender against
// aclKS exactly as routes.callerFromContext's HTTP counterpart does,
// then calls the same didops.Service methods the HTTP surface calls.
func NewDIDOpsRegistry(serverDID string, did *didops.Service, sessions *session.Manager, aclKS, sessionsKS store.Keyspace) *Registry {
	reg := NewRegistry()

	reg.Register(TypeTrustPing, func(_ context.Context, env *Envelope) (*Envelope, error) {
		return reply(env, TypeTrustPing, nil), nil
	})

	reg.Register(TypeDiscoverFeatures, func(_ context.Context, env *Envelope) (*Envelope, error) {
		return reply(env, TypeDiscoverFeaturesDisclose, map[string]any{
			"protocols": []string{
				"https://didcomm.org/trust-ping/2.0",
				"https://didcomm.org/discover-features/2.0",
				"https://affinidi.com/webvh/1.0",
			},
		}), nil
	})

	reg.Register(TypeAuthenticate, func(ctx context.Context, env *Envelope) (*Envelope, error) {
		senderDID := stripFragment(env.From)
		entry, err := acl.CheckACL(ctx, aclKS, senderDID)
		if err != nil {
			return problemReport(env, err), nil
		}
		tokens, err := sessions.CreateAuthenticatedSession(ctx, sessionsKS, senderDID, entry.Role)
		if err != nil {
			return problemReport(env, err), nil
		}
		return reply(env, TypeAuthenticateResponse, map[string]any{
			"session_id":         tokens.SessionID,
			"access_token":       tokens.AccessToken,
			"access_expires_at":  tokens.AccessExpiresAt.Format(time.RFC3339),
			"refresh_token":      tokens.RefreshToken,
			"refresh_expires_at": tokens.RefreshExpiresAt.Format(time.RFC3339),
		}), nil
	})

	reg.Register(TypeDIDRequest, func(ctx context.Context, env *Envelope) (*Envelope, error) {
		caller, err := authorizedCaller(ctx, aclKS, env)
		if err != nil {
			return problemReport(env, err), nil
		}
		var path *string
		if p := bodyString(env, "path"); p != "" {
			path = &p
		}
		result, err := did.CreateDID(ctx, caller, path)
		if err != nil {
			return problemReport(env, err), nil
		}
		return reply(env, TypeDIDOffer, map[string]any{
			"mnemonic":   result.Mnemonic,
			"did_url":    result.DidURL,
			"server_did": serverDID,
		}), nil
	})

	reg.Register(TypeDIDPublish, func(ctx context.Context, env *Envelope) (*Envelope, error) {
		caller, err := authorizedCaller(ctx, aclKS, env)
		if err != nil {
			return problemReport(env, err), nil
		}
		mnemonic := bodyString(env, "mnemonic")
		didLog := bodyString(env, "did_log")
		if mnemonic == "" || didLog == "" {
			return problemReport(env, apperr.New(apperr.Validation, "missing mnemonic or did_log")), nil
		}
		result, err := did.PublishDID(ctx, caller, mnemonic, didLog)
		if err != nil {
			return problemReport(env, err), nil
		}
		return reply(env, TypeDIDConfirm, map[string]any{
			"did_id":        result.DidID,
			"did_url":       result.DidURL,
			"version_id":    result.VersionID,
			"version_count": result.VersionCount,
		}), nil
	})

	reg.Register(TypeDIDWitnessPublish, func(ctx context.Context, env *Envelope) (*Envelope, error) {
		caller, err := authorizedCaller(ctx, aclKS, env)
		if err != nil {
			return problemReport(env, err), nil
		}
		mnemonic := bodyString(env, "mnemonic")
		witness := bodyString(env, "witness")
		if mnemonic == "" || witness == "" {
			return problemReport(env, apperr.New(apperr.Validation, "missing mnemonic or witness")), nil
		}
		result, err := did.UploadWitness(ctx, caller, mnemonic, witness)
		if err != nil {
			return problemReport(env, err), nil
		}
		return reply(env, TypeDIDWitnessConfirm, map[string]any{
			"mnemonic":    mnemonic,
			"witness_url": result.WitnessURL,
		}), nil
	})

	reg.Register(TypeDIDInfoRequest, func(ctx context.Context, env *Envelope) (*Envelope, error) {
		caller, err := authorizedCaller(ctx, aclKS, env)
		if err != nil {
			return problemReport(env, err), nil
		}
		mnemonic := bodyString(env, "mnemonic")
		if mnemonic == "" {
			return problemReport(env, apperr.New(apperr.Validation, "missing mnemonic")), nil
		}
		info, err := did.GetDIDInfo(ctx, caller, mnemonic)
		if err != nil {
			return problemReport(env, err), nil
		}
		return reply(env, TypeDIDInfo, map[string]any{
			"mnemonic":      info.Record.Mnemonic,
			"did_id":        info.Record.DidID,
			"did_url":       info.DidURL,
			"owner":         info.Record.Owner,
			"created_at":    info.Record.CreatedAt.Format(time.RFC3339),
			"updated_at":    info.Record.UpdatedAt.Format(time.RFC3339),
			"version_count": info.Record.VersionCount,
			"content_size":  info.Record.ContentSize,
			"disabled":      info.Record.Disabled,
			"stats": map[string]any{
				"total_resolves": info.Stats.TotalResolves,
				"total_updates":  info.Stats.TotalUpdates,
			},
			"log_metadata": info.LogMetadata,
		}), nil
	})

	reg.Register(TypeDIDListRequest, func(ctx context.Context, env *Envelope) (*Envelope, error) {
		caller, err := authorizedCaller(ctx, aclKS, env)
		if err != nil {
			return problemReport(env, err), nil
		}
		var owner *string
		if o := bodyString(env, "owner"); o != "" {
			owner = &o
		}
		entries, err := did.ListDIDs(ctx, caller, owner)
		if err != nil {
			return problemReport(env, err), nil
		}
		dids := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			dids = append(dids, map[string]any{
				"mnemonic":       e.Mnemonic,
				"did_id":         e.DidID,
				"created_at":     e.CreatedAt.Format(time.RFC3339),
				"updated_at":     e.UpdatedAt.Format(time.RFC3339),
				"version_count":  e.VersionCount,
				"total_resolves": e.TotalResolves,
			})
		}
		return reply(env, TypeDIDList, map[string]any{"dids": dids}), nil
	})

	reg.Register(TypeDIDDelete, func(ctx context.Context, env *Envelope) (*Envelope, error) {
		caller, err := authorizedCaller(ctx, aclKS, env)
		if err != nil {
			return problemReport(env, err), nil
		}
		mnemonic := bodyString(env, "mnemonic")
		if mnemonic == "" {
			return problemReport(env, apperr.New(apperr.Validation, "missing mnemonic")), nil
		}
		result, err := did.DeleteDID(ctx, caller, mnemonic)
		if err != nil {
			return problemReport(env, err), nil
		}
		return reply(env, TypeDIDDeleteConfirm, map[string]any{
			"mnemonic": result.Mnemonic,
			"did_id":   result.DidID,
		}), nil
	})

	return reg
}

// authorizedCaller resolves the sender's ACL role, the same chokepoint
// routes.callerFromContext relies on via requireBearer for the HTTP
// surface's did/* operations.
func authorizedCaller(ctx context.Context, aclKS store.Keyspace, env *Envelope) (didops.Caller, error) {
	senderDID := stripFragment(env.From)
	if senderDID == "" {
		return didops.Caller{}, apperr.New(apperr.Authentication, "message has no 'from' DID")
	}
	entry, err := acl.CheckACL(ctx, aclKS, senderDID)
	if err != nil {
		return didops.Caller{}, err
	}
	return didops.Caller{DID: senderDID, Role: entry.Role}, nil
}
