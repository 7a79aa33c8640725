package goGuard

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/blacklist"
	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/csrf"
	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/sweep"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/ratelimit"
	"github.com/MrEthical07/goGuard/rbac"
	"github.com/MrEthical07/goGuard/session"
)

// Engine is the security gateway. It is built once by a Builder and is safe
// for concurrent use; its configuration never changes after Build.
type Engine struct {
	config      Config
	logger      *zap.Logger
	now         func() time.Time
	credentials credential.Store
	passwords   *password.Pool
	tokens      *jwt.Manager
	blacklist   blacklist.Blacklist
	sessions    *session.Manager
	limiter     *ratelimit.Engine
	policy      *rbac.Policy
	approvals   rbac.Approvals
	csrf        *csrf.Guard
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	validate    *validator.Validate
	flows       flows.Deps
	janitor     *sweep.Janitor
	distributed bool
	closed      atomic.Bool
}

// Close stops the audit dispatcher after draining queued events. Methods
// called after Close return ErrEngineNotReady.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Policy returns the compiled RBAC policy.
func (e *Engine) Policy() *rbac.Policy {
	return e.policy
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// RunSweeper removes expired sessions, blacklist entries, idle rate limit
// buckets and CSRF tokens on the configured intervals until ctx ends.
func (e *Engine) RunSweeper(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.janitor.Run(ctx)
}

// SweepNow runs every sweep task once and returns how many entries each
// removed, keyed by task name.
func (e *Engine) SweepNow(ctx context.Context) map[string]int {
	if e.ready() != nil {
		return map[string]int{}
	}
	return e.janitor.RunOnce(ctx)
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, kv ...any) {
	e.logger.Sugar().Warnw(msg, kv...)
}
