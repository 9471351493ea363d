// Handlers for /api/acl, grounded on
// original_source/webvh-server/src/routes/acl.rs. PUT /api/acl/{did}
// (label/quota edits) is absent from spec.md's route table but present
// in the original; it is carried here as a supplemented feature per
// DESIGN.md.
package routes

import (
	"net/http"
	"strings"

	"github.com/affinidi/webvh-server/internal/acl"
	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/httpserver"
)

type aclEntryResponse struct {
	DID          string  `json:"did"`
	Role         string  `json:"role"`
	Label        *string `json:"label,omitempty"`
	CreatedAt    string  `json:"createdAt"`
	MaxTotalSize *int64  `json:"maxTotalSize,omitempty"`
	MaxDIDCount  *int    `json:"maxDidCount,omitempty"`
}

func toACLEntryResponse(e acl.Entry) aclEntryResponse {
	resp := aclEntryResponse{
		DID:          e.DID,
		Role:         string(e.Role),
		CreatedAt:    e.CreatedAt.Format(timeFormat),
		MaxTotalSize: e.MaxTotalSize,
		MaxDIDCount:  e.MaxDIDCount,
	}
	if e.Label != "" {
		resp.Label = &e.Label
	}
	return resp
}

type aclListResponse struct {
	Entries []aclEntryResponse `json:"entries"`
}

// handleListACL handles GET /api/acl.
func (d *Deps) handleListACL(w http.ResponseWriter, r *http.Request) {
	entries, err := acl.List(r.Context(), d.ACLKS)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	resp := aclListResponse{Entries: make([]aclEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toACLEntryResponse(e))
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

type createACLRequest struct {
	DID          string  `json:"did"`
	Role         string  `json:"role"`
	Label        *string `json:"label,omitempty"`
	MaxTotalSize *int64  `json:"maxTotalSize,omitempty"`
	MaxDIDCount  *int    `json:"maxDidCount,omitempty"`
}

func (req createACLRequest) Validate() []httpserver.ValidationError {
	var errs []httpserver.ValidationError
	if strings.TrimSpace(req.DID) == "" {
		errs = append(errs, httpserver.ValidationError{Field: "did", Message: "did is required"})
	}
	switch acl.Role(req.Role) {
	case acl.RoleAdmin, acl.RoleOwner:
	default:
		errs = append(errs, httpserver.ValidationError{Field: "role", Message: "role must be admin or owner"})
	}
	return errs
}

// handleCreateACL handles POST /api/acl.
func (d *Deps) handleCreateACL(w http.ResponseWriter, r *http.Request) {
	var req createACLRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if existing, err := acl.Lookup(r.Context(), d.ACLKS, req.DID); err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	} else if existing != nil {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Conflict, "ACL entry already exists for DID: "+req.DID))
		return
	}

	entry := acl.Entry{
		DID:          req.DID,
		Role:         acl.Role(req.Role),
		CreatedAt:    timeNow(),
		MaxTotalSize: req.MaxTotalSize,
		MaxDIDCount:  req.MaxDIDCount,
	}
	if req.Label != nil {
		entry.Label = *req.Label
	}

	if err := acl.Put(r.Context(), d.ACLKS, entry); err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, toACLEntryResponse(entry))
}

type updateACLRequest struct {
	Label        *string `json:"label,omitempty"`
	MaxTotalSize *int64  `json:"maxTotalSize,omitempty"`
	MaxDIDCount  *int    `json:"maxDidCount,omitempty"`
}

func (req updateACLRequest) Validate() []httpserver.ValidationError { return nil }

// handleUpdateACL handles PUT /api/acl/{did}.
func (d *Deps) handleUpdateACL(w http.ResponseWriter, r *http.Request) {
	did := wildcardPath(r)
	var req updateACLRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	entry, err := acl.Lookup(r.Context(), d.ACLKS, did)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	if entry == nil {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.NotFound, "ACL entry not found for DID: "+did))
		return
	}

	if req.Label != nil {
		entry.Label = *req.Label
	}
	if req.MaxTotalSize != nil {
		entry.MaxTotalSize = req.MaxTotalSize
	}
	if req.MaxDIDCount != nil {
		entry.MaxDIDCount = req.MaxDIDCount
	}

	if err := acl.Put(r.Context(), d.ACLKS, *entry); err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, toACLEntryResponse(*entry))
}

// handleDeleteACL handles DELETE /api/acl/{did}.
func (d *Deps) handleDeleteACL(w http.ResponseWriter, r *http.Request) {
	did := wildcardPath(r)

	if callerFromContext(r.Context()).DID == did {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Conflict, "cannot delete your own ACL entry"))
		return
	}

	entry, err := acl.Lookup(r.Context(), d.ACLKS, did)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	if entry == nil {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.NotFound, "ACL entry not found for DID: "+did))
		return
	}

	if err := acl.Delete(r.Context(), d.ACLKS, did); err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
