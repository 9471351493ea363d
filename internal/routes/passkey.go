// Handlers for /api/auth/passkey/{enroll,login}/{start,finish},
// grounded on original_source/webvh-server/src/routes/passkey.rs. The
// WebAuthn ceremony itself is out of scope (spec.md §1 Non-goals); these
// handlers only shuttle opaque option/response blobs through
// Deps.Ceremony and turn a completed ceremony into a session the same
// way the DIDComm auth flow does.
package routes

import (
	"encoding/json"
	"net/http"

	"github.com/affinidi/webvh-server/internal/acl"
	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/httpserver"
)

func (d *Deps) requireCeremony(w http.ResponseWriter) bool {
	if d.Ceremony == nil {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Authentication, "passkey auth not configured"))
		return false
	}
	return true
}

// issueSessionFor mints tokens for a DID that just completed a passkey
// ceremony, re-checking its current ACL role first.
func (d *Deps) issueSessionFor(w http.ResponseWriter, r *http.Request, did string) {
	entry, err := acl.CheckACL(r.Context(), d.ACLKS, did)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	tokens, err := d.Sessions.CreateAuthenticatedSession(r.Context(), d.SessionsKS, did, entry.Role)
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

type enrollStartRequest struct {
	Token string `json:"token"`
}

func (req enrollStartRequest) Validate() []httpserver.ValidationError {
	if req.Token == "" {
		return []httpserver.ValidationError{{Field: "token", Message: "token is required"}}
	}
	return nil
}

type ceremonyStartResponse struct {
	ID      string          `json:"registrationId"`
	Options json.RawMessage `json:"options"`
}

// handlePasskeyEnrollStart handles POST /api/auth/passkey/enroll/start.
func (d *Deps) handlePasskeyEnrollStart(w http.ResponseWriter, r *http.Request) {
	if !d.requireCeremony(w) {
		return
	}
	var req enrollStartRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ceremonyID, options, err := d.Ceremony.BeginRegistration(r.Context(), req.Token)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, ceremonyStartResponse{ID: ceremonyID, Options: options})
}

type enrollFinishRequest struct {
	RegistrationID string          `json:"registrationId"`
	Credential     json.RawMessage `json:"credential"`
}

func (req enrollFinishRequest) Validate() []httpserver.ValidationError {
	var errs []httpserver.ValidationError
	if req.RegistrationID == "" {
		errs = append(errs, httpserver.ValidationError{Field: "registrationId", Message: "registrationId is required"})
	}
	if len(req.Credential) == 0 {
		errs = append(errs, httpserver.ValidationError{Field: "credential", Message: "credential is required"})
	}
	return errs
}

// handlePasskeyEnrollFinish handles POST /api/auth/passkey/enroll/finish.
func (d *Deps) handlePasskeyEnrollFinish(w http.ResponseWriter, r *http.Request) {
	if !d.requireCeremony(w) {
		return
	}
	var req enrollFinishRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	user, err := d.Ceremony.FinishRegistration(r.Context(), req.RegistrationID, req.Credential)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	d.issueSessionFor(w, r, user.DID)
}

type loginStartResponse struct {
	AuthID  string          `json:"authId"`
	Options json.RawMessage `json:"options"`
}

// handlePasskeyLoginStart handles POST /api/auth/passkey/login/start.
func (d *Deps) handlePasskeyLoginStart(w http.ResponseWriter, r *http.Request) {
	if !d.requireCeremony(w) {
		return
	}
	ceremonyID, options, err := d.Ceremony.BeginLogin(r.Context())
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, loginStartResponse{AuthID: ceremonyID, Options: options})
}

type loginFinishRequest struct {
	AuthID     string          `json:"authId"`
	Credential json.RawMessage `json:"credential"`
}

func (req loginFinishRequest) Validate() []httpserver.ValidationError {
	var errs []httpserver.ValidationError
	if req.AuthID == "" {
		errs = append(errs, httpserver.ValidationError{Field: "authId", Message: "authId is required"})
	}
	if len(req.Credential) == 0 {
		errs = append(errs, httpserver.ValidationError{Field: "credential", Message: "credential is required"})
	}
	return errs
}

// handlePasskeyLoginFinish handles POST /api/auth/passkey/login/finish.
func (d *Deps) handlePasskeyLoginFinish(w http.ResponseWriter, r *http.Request) {
	if !d.requireCeremony(w) {
		return
	}
	var req loginFinishRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	user, err := d.Ceremony.FinishLogin(r.Context(), req.AuthID, req.Credential)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	d.issueSessionFor(w, r, user.DID)
}
