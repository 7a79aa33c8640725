package middleware

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/rbac"
)

// TargetFunc extracts the target facts of a request, such as the owner or
// team of the record being accessed. The caller's own facts come from the
// verified token.
type TargetFunc func(*http.Request) rbac.Context

// RequirePermission lets the request through only when the authenticated
// caller holds perm on resource. It must run after Authenticate. target may
// be nil for permissions without conditions on the target.
func RequirePermission(engine *goGuard.Engine, perm rbac.Permission, resource rbac.Resource, target TargetFunc, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				fail(w, r, o, goGuard.ErrEngineNotReady)
				return
			}

			auth, ok := AuthResultFromContext(r.Context())
			if !ok {
				fail(w, r, o, goGuard.ErrTokenInvalid)
				return
			}

			var actx rbac.Context
			if target != nil {
				actx = target(r)
			}
			if err := engine.Permit(r.Context(), auth, perm, resource, actx); err != nil {
				fail(w, r, o, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
