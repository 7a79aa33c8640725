package middleware

import (
	"go.uber.org/zap"
)

const (
	defaultCSRFHeader    = "X-CSRF-Token"
	defaultCSRFFormField = "csrf_token"
)

type options struct {
	trustForwardedFor bool
	csrfHeader        string
	csrfFormField     string
	logger            *zap.Logger
}

// Option configures a middleware.
type Option func(*options)

// WithTrustForwardedFor takes the client IP from the first X-Forwarded-For
// entry. Enable it only behind a proxy that overwrites the header.
func WithTrustForwardedFor() Option {
	return func(o *options) { o.trustForwardedFor = true }
}

// WithCSRFHeader sets the header carrying the CSRF token.
func WithCSRFHeader(name string) Option {
	return func(o *options) { o.csrfHeader = name }
}

// WithCSRFFormField sets the form field read when the header is absent.
func WithCSRFFormField(name string) Option {
	return func(o *options) { o.csrfFormField = name }
}

// WithLogger logs backend failures behind 5xx responses.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{
		csrfHeader:    defaultCSRFHeader,
		csrfFormField: defaultCSRFFormField,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
