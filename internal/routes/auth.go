// Handlers for the /api/auth surface: challenge issuance, DIDComm proof
// verification, and refresh, grounded on
// original_source/webvh-server/src/routes/auth.rs.
package routes

import (
	"io"
	"net/http"
	"strings"

	"github.com/affinidi/webvh-server/internal/acl"
	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/didcomm"
	"github.com/affinidi/webvh-server/internal/httpserver"
)

const maxPackedMessageBytes = 1 << 20

// stripFragment drops a DID's key-fragment suffix (did:...#key-1) so it
// can be matched against ACL and session records, which are keyed by
// the bare DID.
func stripFragment(did string) string {
	if i := strings.IndexByte(did, '#'); i >= 0 {
		return did[:i]
	}
	return did
}

type challengeRequest struct {
	DID string `json:"did"`
}

func (r challengeRequest) Validate() []httpserver.ValidationError {
	if strings.TrimSpace(r.DID) == "" {
		return []httpserver.ValidationError{{Field: "did", Message: "did is required"}}
	}
	return nil
}

type challengeResponse struct {
	SessionID string        `json:"sessionId"`
	Data      challengeData `json:"data"`
}

type challengeData struct {
	Challenge string `json:"challenge"`
}

// handleChallenge issues a fresh session challenge for an existing ACL
// principal. Per auth.rs, a DID without an ACL entry never reaches the
// challenge stage.
func (d *Deps) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if _, err := acl.CheckACL(r.Context(), d.ACLKS, req.DID); err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}

	sess, err := d.Sessions.IssueChallenge(r.Context(), d.SessionsKS, req.DID)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, challengeResponse{
		SessionID: sess.SessionID,
		Data:      challengeData{Challenge: sess.Challenge},
	})
}

type tokenData struct {
	AccessToken      string `json:"accessToken"`
	AccessExpiresAt  int64  `json:"accessExpiresAt"`
	RefreshToken     string `json:"refreshToken,omitempty"`
	RefreshExpiresAt int64  `json:"refreshExpiresAt,omitempty"`
}

type tokenResponse struct {
	SessionID string    `json:"sessionId"`
	Data      tokenData `json:"data"`
}

func readPackedMessage(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPackedMessageBytes))
	if err != nil {
		return "", apperr.Wrap(apperr.Io, "reading request body", err)
	}
	if len(body) == 0 {
		return "", apperr.New(apperr.Validation, "request body is empty")
	}
	return string(body), nil
}

// handleAuthenticate unpacks a packed `authenticate` DIDComm message
// carrying the session_id/challenge proof and, on success, returns a
// fresh access/refresh token pair.
func (d *Deps) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if d.Codec == nil {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Authentication, "didcomm messaging is not configured"))
		return
	}

	packed, err := readPackedMessage(r)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}

	env, err := d.Codec.Unpack(r.Context(), packed)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, apperr.Wrap(apperr.Authentication, "unpacking message", err))
		return
	}
	if env.Type != didcomm.TypeAuthenticate {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Authentication, "unexpected message type: "+env.Type))
		return
	}

	sessionID, _ := env.Body["session_id"].(string)
	challenge, _ := env.Body["challenge"].(string)
	if sessionID == "" || challenge == "" || env.From == "" {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Authentication, "message is missing session_id, challenge, or sender"))
		return
	}

	senderDID := stripFragment(env.From)
	entry, err := acl.CheckACL(r.Context(), d.ACLKS, senderDID)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}

	tokens, err := d.Sessions.VerifyProof(r.Context(), d.SessionsKS, d.ACLKS, sessionID, challenge, env.From, entry.Role)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, tokenResponse{
		SessionID: tokens.SessionID,
		Data: tokenData{
			AccessToken:      tokens.AccessToken,
			AccessExpiresAt:  tokens.AccessExpiresAt.Unix(),
			RefreshToken:     tokens.RefreshToken,
			RefreshExpiresAt: tokens.RefreshExpiresAt.Unix(),
		},
	})
}

// handleRefresh unpacks a packed `authenticate/refresh` DIDComm message
// carrying a refresh_token and mints a fresh access token, re-checking
// the bound DID's ACL role before issuing it.
func (d *Deps) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if d.Codec == nil {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Authentication, "didcomm messaging is not configured"))
		return
	}

	packed, err := readPackedMessage(r)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}

	env, err := d.Codec.Unpack(r.Context(), packed)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, apperr.Wrap(apperr.Authentication, "unpacking message", err))
		return
	}
	if env.Type != didcomm.TypeAuthenticateRefresh {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Authentication, "unexpected message type: "+env.Type))
		return
	}

	refreshToken, _ := env.Body["refresh_token"].(string)
	if refreshToken == "" {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Authentication, "message is missing refresh_token"))
		return
	}

	did, err := d.Sessions.DIDForRefreshToken(r.Context(), d.SessionsKS, refreshToken)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	entry, err := acl.CheckACL(r.Context(), d.ACLKS, did)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}

	tokens, err := d.Sessions.Refresh(r.Context(), d.SessionsKS, refreshToken, entry.Role)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, tokenResponse{
		SessionID: tokens.SessionID,
		Data: tokenData{
			AccessToken:     tokens.AccessToken,
			AccessExpiresAt: tokens.AccessExpiresAt.Unix(),
		},
	})
}
