// Handlers for /api/stats, grounded on
// original_source/webvh-server/src/routes/stats.rs.
package routes

import (
	"net/http"

	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/httpserver"
	"github.com/affinidi/webvh-server/internal/mnemonic"
	"github.com/affinidi/webvh-server/internal/stats"
)

// handleServerStats handles GET /api/stats.
func (d *Deps) handleServerStats(w http.ResponseWriter, r *http.Request) {
	srv, err := stats.GetServer(r.Context(), d.StatsKS)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, srv)
}

// handleDIDStats handles GET /api/stats/{mnemonic}.
func (d *Deps) handleDIDStats(w http.ResponseWriter, r *http.Request) {
	slot := wildcardPath(r)
	if err := mnemonic.ValidateMnemonic(slot); err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	exists, err := d.DID.Dids.ContainsKey(r.Context(), "did:"+slot)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	if !exists {
		httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.NotFound, "DID not found: "+slot))
		return
	}
	s, err := stats.Get(r.Context(), d.StatsKS, slot)
	if err != nil {
		httpserver.RespondAppError(w, d.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, s)
}
