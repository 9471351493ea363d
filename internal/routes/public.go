// Handler for the unauthenticated public resolution surface, grounded
// on original_source/webvh-server/src/routes/did_public.rs. Mounted on
// a root wildcard since a mnemonic may itself contain `/` separators;
// chi tries static routes (/api/*, /healthz, ...) before falling back
// to this catch-all, so it never shadows them.
package routes

import (
	"net/http"
	"strings"

	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/httpserver"
)

func writeRaw(w http.ResponseWriter, contentType string, content []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// handlePublicResolve handles GET /{mnemonic}/did.jsonl,
// GET /{mnemonic}/did-witness.json, and their .well-known equivalents
// (".well-known" is just another mnemonic slot to ResolveLog/Witness).
func (d *Deps) handlePublicResolve(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)

	switch {
	case strings.HasSuffix(path, "/did.jsonl"):
		slot := strings.TrimSuffix(path, "/did.jsonl")
		content, err := d.DID.ResolveLog(r.Context(), slot)
		if err != nil {
			httpserver.RespondAppError(w, d.Logger, err)
			return
		}
		writeRaw(w, "application/jsonl+json", content)
	case strings.HasSuffix(path, "/did-witness.json"):
		slot := strings.TrimSuffix(path, "/did-witness.json")
		content, err := d.DID.ResolveWitness(r.Context(), slot)
		if err != nil {
			httpserver.RespondAppError(w, d.Logger, err)
			return
		}
		writeRaw(w, "application/json", content)
	default:
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.NotFound, "no such resource"))
	}
}
