// Handlers for /api/dids and /api/witness, grounded on
// original_source/webvh-server/src/routes/did_manage.rs. spec.md §6
// allows a mnemonic's trailing path segment to contain further `/`
// separators (nested custom paths), so these routes are mounted on chi
// wildcards and the mnemonic/suffix split happens here rather than via
// a named path parameter.
package routes

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/didops"
	"github.com/affinidi/webvh-server/internal/httpserver"
	"github.com/affinidi/webvh-server/internal/mnemonic"
	"github.com/go-chi/chi/v5"
)

const maxDIDLogBytes = 10 << 20

// splitMnemonicSuffix strips a known trailing action segment
// (/log, /disable, /enable) off a wildcard-captured path, returning the
// bare mnemonic and the action name ("" for none).
func splitMnemonicSuffix(path string) (mnemonic, action string) {
	for _, suffix := range []string{"/log", "/disable", "/enable"} {
		if strings.HasSuffix(path, suffix) {
			return strings.TrimSuffix(path, suffix), strings.TrimPrefix(suffix, "/")
		}
	}
	return path, ""
}

func wildcardPath(r *http.Request) string {
	return strings.Trim(chi.URLParam(r, "*"), "/")
}

type didListEntryResponse = didops.DIDListEntry

// handleListDIDs handles GET /api/dids, optionally filtered by
// ?owner= for admin callers.
func (d *Deps) handleListDIDs(w http.ResponseWriter, r *http.Request) {
	var owner *string
	if v := r.URL.Query().Get("owner"); v != "" {
		owner = &v
	}
	entries, err := d.DID.ListDIDs(r.Context(), callerFromContext(r.Context()), owner)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, entries)
}

type createDIDRequest struct {
	Path *string `json:"path,omitempty"`
}

func (req createDIDRequest) Validate() []httpserver.ValidationError {
	return nil
}

type createDIDResponse struct {
	Mnemonic string `json:"mnemonic"`
	DidURL   string `json:"didUrl"`
}

// handleCreateDID handles POST /api/dids.
func (d *Deps) handleCreateDID(w http.ResponseWriter, r *http.Request) {
	var req createDIDRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	result, err := d.DID.CreateDID(r.Context(), callerFromContext(r.Context()), req.Path)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, createDIDResponse{Mnemonic: result.Mnemonic, DidURL: result.DidURL})
}

type checkNameRequest struct {
	Path string `json:"path"`
}

func (req checkNameRequest) Validate() []httpserver.ValidationError {
	if strings.TrimSpace(req.Path) == "" {
		return []httpserver.ValidationError{{Field: "path", Message: "path is required"}}
	}
	return nil
}

type checkNameResponse struct {
	Available bool   `json:"available"`
	Path      string `json:"path"`
}

// handleCheckName handles POST /api/dids/check.
func (d *Deps) handleCheckName(w http.ResponseWriter, r *http.Request) {
	var req checkNameRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	available, err := d.mnemonicAvailable(r.Context(), req.Path)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, checkNameResponse{Available: available, Path: req.Path})
}

type didInfoResponse struct {
	Mnemonic     string               `json:"mnemonic"`
	Owner        string               `json:"owner"`
	CreatedAt    string               `json:"createdAt"`
	UpdatedAt    string               `json:"updatedAt"`
	VersionCount uint64               `json:"versionCount"`
	DidID        *string              `json:"didId,omitempty"`
	Disabled     bool                 `json:"disabled"`
	DidURL       string               `json:"didUrl"`
	LogMetadata  any                  `json:"logMetadata,omitempty"`
	Stats        didInfoStatsResponse `json:"stats"`
}

type didInfoStatsResponse struct {
	TotalResolves uint64 `json:"totalResolves"`
	TotalUpdates  uint64 `json:"totalUpdates"`
}

// handleDIDRouter dispatches GET/PUT/DELETE under the /api/dids/*
// wildcard to the record, log, disable, and enable operations.
func (d *Deps) handleDIDRouter(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	mnemonic, action := splitMnemonicSuffix(path)
	if mnemonic == "" {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Validation, "mnemonic is required"))
		return
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		d.handleGetDID(w, r, mnemonic)
	case r.Method == http.MethodGet && action == "log":
		d.handleGetDIDLog(w, r, mnemonic)
	case r.Method == http.MethodPut && action == "":
		d.handlePublishDID(w, r, mnemonic)
	case r.Method == http.MethodPut && (action == "disable" || action == "enable"):
		d.handleSetDisabled(w, r, mnemonic, action == "disable")
	case r.Method == http.MethodDelete && action == "":
		d.handleDeleteDID(w, r, mnemonic)
	default:
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.NotFound, "no such DID route"))
	}
}

func (d *Deps) handleGetDID(w http.ResponseWriter, r *http.Request, mnemonic string) {
	info, err := d.DID.GetDIDInfo(r.Context(), callerFromContext(r.Context()), mnemonic)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	resp := didInfoResponse{
		Mnemonic:     info.Record.Mnemonic,
		Owner:        info.Record.Owner,
		CreatedAt:    info.Record.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    info.Record.UpdatedAt.Format(time.RFC3339),
		VersionCount: info.Record.VersionCount,
		DidID:        info.Record.DidID,
		Disabled:     info.Record.Disabled,
		DidURL:       info.DidURL,
		Stats: didInfoStatsResponse{
			TotalResolves: info.Stats.TotalResolves,
			TotalUpdates:  info.Stats.TotalUpdates,
		},
	}
	if info.LogMetadata != nil {
		resp.LogMetadata = info.LogMetadata
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (d *Deps) handleGetDIDLog(w http.ResponseWriter, r *http.Request, mnemonic string) {
	entries, err := d.DID.GetDIDLog(r.Context(), callerFromContext(r.Context()), mnemonic)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, entries)
}

func readRawBody(r *http.Request, max int64) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, max))
	if err != nil {
		return "", apperr.Wrap(apperr.Io, "reading request body", err)
	}
	return string(body), nil
}

func (d *Deps) handlePublishDID(w http.ResponseWriter, r *http.Request, mnemonic string) {
	content, err := readRawBody(r, maxDIDLogBytes)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	if _, err := d.DID.PublishDID(r.Context(), callerFromContext(r.Context()), mnemonic, content); err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Deps) handleSetDisabled(w http.ResponseWriter, r *http.Request, mnemonic string, disabled bool) {
	if err := d.DID.SetDisabled(r.Context(), callerFromContext(r.Context()), mnemonic, disabled); err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Deps) handleDeleteDID(w http.ResponseWriter, r *http.Request, mnemonic string) {
	if _, err := d.DID.DeleteDID(r.Context(), callerFromContext(r.Context()), mnemonic); err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadWitness handles PUT /api/witness/*.
func (d *Deps) handleUploadWitness(w http.ResponseWriter, r *http.Request) {
	mnemonic := wildcardPath(r)
	if mnemonic == "" {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Validation, "mnemonic is required"))
		return
	}
	content, err := readRawBody(r, maxDIDLogBytes)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	if _, err := d.DID.UploadWitness(r.Context(), callerFromContext(r.Context()), mnemonic, content); err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mnemonicAvailable reports whether slot is free for a new DID
// reservation.
func (d *Deps) mnemonicAvailable(ctx context.Context, slot string) (bool, error) {
	return mnemonic.IsPathAvailable(ctx, d.DID.Dids, slot)
}
