// Mount wires every route handler onto a chi router, grounded on the
// route table in spec.md §6 (reconciled against
// original_source/webvh-server/src/routes/mod.rs's actual mounted
// routes, which has drifted from its own handler set — see DESIGN.md).
package routes

import (
	"github.com/go-chi/chi/v5"
)

// Mount attaches the full HTTP surface to r: public resolution at the
// root, the unauthenticated auth/passkey endpoints under /api/auth,
// bearer-authenticated DID/stats endpoints under /api, and
// admin-bearer ACL management under /api/acl.
func Mount(r chi.Router, d *Deps) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/challenge", d.handleChallenge)
		r.Post("/", d.handleAuthenticate)
		r.Post("/refresh", d.handleRefresh)
		r.Post("/passkey/enroll/start", d.handlePasskeyEnrollStart)
		r.Post("/passkey/enroll/finish", d.handlePasskeyEnrollFinish)
		r.Post("/passkey/login/start", d.handlePasskeyLoginStart)
		r.Post("/passkey/login/finish", d.handlePasskeyLoginFinish)
	})

	r.Route("/api/dids", func(r chi.Router) {
		r.Use(d.requireBearer)
		r.Get("/", d.handleListDIDs)
		r.Post("/", d.handleCreateDID)
		r.Post("/check", d.handleCheckName)
		r.Get("/*", d.handleDIDRouter)
		r.Put("/*", d.handleDIDRouter)
		r.Delete("/*", d.handleDIDRouter)
	})

	r.Route("/api/witness", func(r chi.Router) {
		r.Use(d.requireBearer)
		r.Put("/*", d.handleUploadWitness)
	})

	r.Route("/api/stats", func(r chi.Router) {
		r.Use(d.requireBearer)
		r.Get("/", d.handleServerStats)
		r.Get("/*", d.handleDIDStats)
	})

	r.Route("/api/acl", func(r chi.Router) {
		r.Use(d.requireBearer, d.requireAdmin)
		r.Get("/", d.handleListACL)
		r.Post("/", d.handleCreateACL)
		r.Put("/*", d.handleUpdateACL)
		r.Delete("/*", d.handleDeleteACL)
	})

	r.Get("/*", d.handlePublicResolve)
}
