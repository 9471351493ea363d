package routes

import (
	"context"
	"net/http"
	"strings"

	"github.com/affinidi/webvh-server/internal/acl"
	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/didops"
	"github.com/affinidi/webvh-server/internal/httpserver"
	"github.com/affinidi/webvh-server/internal/session"
)

type principalKey struct{}

func principalFromContext(ctx context.Context) *session.Principal {
	p, _ := ctx.Value(principalKey{}).(*session.Principal)
	return p
}

func callerFromContext(ctx context.Context) didops.Caller {
	p := principalFromContext(ctx)
	if p == nil {
		return didops.Caller{}
	}
	return didops.Caller{DID: p.DID, Role: p.Role}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") || strings.HasPrefix(h, "bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return ""
}

// requireBearer validates the Authorization header against the session
// store and stores the resolved Principal in the request context.
// Per spec.md §4.3's extractor semantics, a token whose session has
// since been removed or is not Authenticated is rejected even if the
// JWT signature still validates.
func (d *Deps) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Unauthorized, "missing bearer token"))
			return
		}
		principal, err := d.Sessions.Authorize(r.Context(), d.SessionsKS, token)
		if err != nil {
			httpserver.RespondAppError(w, d.Logger, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects non-admin principals; must run after requireBearer.
func (d *Deps) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFromContext(r.Context())
		if p == nil || p.Role != acl.RoleAdmin {
			httpserver.RespondAppError(w, d.Logger, apperr.New(apperr.Forbidden, "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
