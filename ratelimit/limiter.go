// Package ratelimit bounds request volume per scope and escalates repeat
// offenders. Four algorithms are available (token bucket, sliding window,
// fixed window, leaky bucket); an [Engine] applies an ordered set of scoped
// rules and tracks per-IP threat records.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrUnknownAlgorithm is returned by New for unsupported algorithm names.
	ErrUnknownAlgorithm = errors.New("unknown rate limit algorithm")
	// ErrInvalidLimit is returned for non-positive request counts or windows.
	ErrInvalidLimit = errors.New("invalid rate limit")
	// ErrRedisUnavailable wraps Redis failures of distributed limiters.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Limiter decides whether a request keyed by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
	AllowN(ctx context.Context, key string, n int) (*Result, error)
	GetLimit() Limit
	Reset(ctx context.Context, key string) error
}

// Sweeper is implemented by limiters holding in-process state.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Limit is a rate: Requests per Window. Burst and BurstWindow optionally cap
// how many requests a token bucket may spend inside a shorter sub-window.
type Limit struct {
	Requests    int           `mapstructure:"requests" yaml:"requests"`
	Window      time.Duration `mapstructure:"window" yaml:"window"`
	Burst       int           `mapstructure:"burst" yaml:"burst"`
	BurstWindow time.Duration `mapstructure:"burst_window" yaml:"burst_window"`
}

// Validate checks that the limit is usable.
func (l Limit) Validate() error {
	if l.Requests <= 0 || l.Window <= 0 {
		return fmt.Errorf("%w: requests and window must be positive", ErrInvalidLimit)
	}
	if l.Burst < 0 || l.BurstWindow < 0 {
		return fmt.Errorf("%w: burst must not be negative", ErrInvalidLimit)
	}
	if (l.Burst > 0) != (l.BurstWindow > 0) {
		return fmt.Errorf("%w: burst and burst_window must be set together", ErrInvalidLimit)
	}
	if l.BurstWindow > l.Window {
		return fmt.Errorf("%w: burst_window must not exceed window", ErrInvalidLimit)
	}
	return nil
}

// Result is the outcome of one limiter check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// Algorithm names a limiting algorithm.
type Algorithm string

const (
	AlgorithmTokenBucket   Algorithm = "token_bucket"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmFixedWindow   Algorithm = "fixed_window"
	AlgorithmLeakyBucket   Algorithm = "leaky_bucket"
)

// Options carries the shared dependencies of limiters built by New.
type Options struct {
	Now    func() time.Time
	Logger *zap.Logger
	// Redis, when set, makes fixed-window limiters distributed. The other
	// algorithms keep per-process state.
	Redis       redis.UniversalClient
	RedisPrefix string
}

func (o Options) clock() func() time.Time {
	if o.Now == nil {
		return time.Now
	}
	return o.Now
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// New builds a limiter for alg.
func New(alg Algorithm, limit Limit, opts Options) (Limiter, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	switch alg {
	case AlgorithmTokenBucket:
		return NewTokenBucket(limit, opts.clock()), nil
	case AlgorithmSlidingWindow:
		return NewSlidingWindow(limit, opts.clock()), nil
	case AlgorithmFixedWindow:
		if opts.Redis != nil {
			return NewRedisFixedWindow(opts.Redis, opts.RedisPrefix, limit, opts.clock(), opts.logger()), nil
		}
		return NewFixedWindow(limit, opts.clock()), nil
	case AlgorithmLeakyBucket:
		return NewLeakyBucket(limit, opts.clock()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}
