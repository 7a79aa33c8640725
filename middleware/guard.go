package middleware

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/csrf"
	"github.com/MrEthical07/goGuard/ratelimit"
)

// RateLimit checks every request against the engine's rules before the
// wrapped handler runs. Put it ahead of Authenticate so rejected and
// unauthenticated traffic is counted before any token work; per-user rules
// then apply through UserRateLimit. When Authenticate did run earlier, the
// caller identity is used and every scope is checked here.
func RateLimit(engine *goGuard.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				fail(w, r, o, goGuard.ErrEngineNotReady)
				return
			}
			r = withClient(r, o)

			req := ratelimit.Request{
				IP:     goGuard.ClientIPFromContext(r.Context()),
				Path:   r.URL.Path,
				Method: r.Method,
			}
			if auth, ok := AuthResultFromContext(r.Context()); ok {
				req.UserID = auth.UserID
			}
			if _, err := engine.CheckRateLimit(r.Context(), req); err != nil {
				fail(w, r, o, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserRateLimit applies only the per-user rules to the caller stored by
// Authenticate. It pairs with an outer RateLimit, which has already charged
// the IP, endpoint and global rules for this request.
func UserRateLimit(engine *goGuard.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				fail(w, r, o, goGuard.ErrEngineNotReady)
				return
			}
			auth, ok := AuthResultFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			r = withClient(r, o)

			req := ratelimit.Request{
				IP:     goGuard.ClientIPFromContext(r.Context()),
				UserID: auth.UserID,
				Path:   r.URL.Path,
				Method: r.Method,
				Scopes: []ratelimit.Scope{ratelimit.ScopeUser},
			}
			if _, err := engine.CheckRateLimit(r.Context(), req); err != nil {
				fail(w, r, o, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate requires a valid bearer access token and stores the verified
// caller in the request context.
func Authenticate(engine *goGuard.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				fail(w, r, o, goGuard.ErrEngineNotReady)
				return
			}
			r = withClient(r, o)

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				fail(w, r, o, goGuard.ErrTokenInvalid)
				return
			}

			res, err := engine.Verify(r.Context(), token)
			if err != nil {
				fail(w, r, o, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withAuthResult(r.Context(), res)))
		})
	}
}

// CSRF validates the synchronizer token on POST, PUT, PATCH and DELETE. It
// must run after Authenticate, which supplies the session the token is
// bound to.
func CSRF(engine *goGuard.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				fail(w, r, o, goGuard.ErrEngineNotReady)
				return
			}
			if !csrf.StateChanging(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			r = withClient(r, o)

			auth, ok := AuthResultFromContext(r.Context())
			if !ok {
				fail(w, r, o, &goGuard.CSRFError{Reason: string(csrf.SessionMismatch)})
				return
			}

			header := r.Header.Get(o.csrfHeader)
			token := header
			if token == "" && o.csrfFormField != "" {
				token = r.PostFormValue(o.csrfFormField)
			}

			err := engine.ValidateCSRFToken(r.Context(), csrf.Request{
				Method:      r.Method,
				SessionID:   auth.SessionID,
				Token:       token,
				HeaderToken: header,
				Origin:      r.Header.Get("Origin"),
				Referer:     r.Header.Get("Referer"),
			})
			if err != nil {
				fail(w, r, o, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientInfo records the client IP, user agent and Accept-Language in the
// request context without enforcing anything. Use it in front of handlers
// that call the engine directly, such as login.
func ClientInfo(opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, withClient(r, o))
		})
	}
}
