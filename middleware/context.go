package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the caller stored by Authenticate.
func AuthResultFromContext(ctx context.Context) (*goGuard.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*goGuard.AuthResult)
	return res, ok && res != nil
}

func withAuthResult(ctx context.Context, res *goGuard.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// withClient attaches client metadata once; later middleware keep it.
func withClient(r *http.Request, o options) *http.Request {
	ctx := r.Context()
	if goGuard.ClientIPFromContext(ctx) != "" {
		return r
	}
	ctx = goGuard.WithClientIP(ctx, ClientIP(r, o.trustForwardedFor))
	ctx = goGuard.WithUserAgent(ctx, r.UserAgent())
	ctx = goGuard.WithAcceptLanguage(ctx, r.Header.Get("Accept-Language"))
	return r.WithContext(ctx)
}

// ClientIP returns the request's source address without port. With
// trustForwardedFor it prefers the first X-Forwarded-For entry.
func ClientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
