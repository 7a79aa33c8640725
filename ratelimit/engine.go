package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Rules are evaluated in order. Nil means DefaultRules.
	Rules         []Rule
	BlockDuration time.Duration
	ChallengeTTL  time.Duration
	// ThreatTTL is how long an idle threat record is kept.
	ThreatTTL time.Duration

	Now         func() time.Time
	Redis       redis.UniversalClient
	RedisPrefix string
	Logger      *zap.Logger
}

// Decision is the outcome of an Engine check.
type Decision struct {
	Allowed bool
	// RetryAfter is positive whenever Allowed is false.
	RetryAfter  time.Duration
	Rule        string
	Limit       int
	Remaining   int
	ThreatLevel ThreatLevel
	Mitigation  Mitigation
	ChallengeID string
}

type compiledSub struct {
	sub     SubRule
	limiter Limiter
}

type compiledRule struct {
	rule    Rule
	limiter Limiter
	subs    []compiledSub
}

// selectLimiter returns the limiter for req: the highest priority matching
// sub-rule, else the rule itself.
func (c *compiledRule) selectLimiter(req Request) (string, Limiter) {
	for i := range c.subs {
		if c.subs[i].sub.matches(req) {
			return c.rule.Name + "/" + c.subs[i].sub.Name, c.subs[i].limiter
		}
	}
	return c.rule.Name, c.limiter
}

// Engine applies scoped rules and escalates repeat offenders.
type Engine struct {
	rules     []compiledRule
	threats   *ThreatTracker
	observed  buckets[fixedWindowState]
	maxWindow time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewEngine validates the rules and builds one limiter per rule and
// sub-rule.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := Options{Now: now, Logger: logger, Redis: cfg.Redis, RedisPrefix: cfg.RedisPrefix}

	e := &Engine{
		threats: NewThreatTracker(cfg.BlockDuration, cfg.ChallengeTTL, cfg.ThreatTTL),
		now:     now,
		logger:  logger,
	}
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate rule %q", ErrInvalidLimit, r.Name)
		}
		seen[r.Name] = struct{}{}

		lim, err := New(r.Algorithm, r.Limit, opts)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		c := compiledRule{rule: r, limiter: lim}
		e.maxWindow = max(e.maxWindow, r.Limit.Window)
		for _, s := range r.sortedSubRules() {
			alg := s.Algorithm
			if alg == "" {
				alg = r.Algorithm
			}
			subLim, err := New(alg, s.Limit, opts)
			if err != nil {
				return nil, fmt.Errorf("rule %q sub-rule %q: %w", r.Name, s.Name, err)
			}
			c.subs = append(c.subs, compiledSub{sub: s, limiter: subLim})
			e.maxWindow = max(e.maxWindow, s.Limit.Window)
		}
		e.rules = append(e.rules, c)
	}
	return e, nil
}

// Check runs req through every applicable rule. A blocked IP or one with a
// pending challenge is rejected before any rule is consulted. The first rule
// that rejects ends evaluation; its threat level is derived from how many
// requests the bucket observed in the current window against its limit.
func (e *Engine) Check(ctx context.Context, req Request) (Decision, error) {
	now := e.now()

	if req.IP != "" {
		if rec := e.threats.Get(req.IP); rec != nil {
			if rec.Blocked(now) {
				return Decision{
					RetryAfter:  atLeastMillisecond(rec.BlockedUntil.Sub(now)),
					ThreatLevel: rec.Level,
					Mitigation:  MitigationBlock,
				}, nil
			}
			if rec.ChallengePending(now) {
				return Decision{
					RetryAfter:  atLeastMillisecond(rec.Challenge.ExpiresAt.Sub(now)),
					ThreatLevel: rec.Level,
					Mitigation:  MitigationChallenge,
					ChallengeID: rec.Challenge.ID,
				}, nil
			}
		}
	}

	decision := Decision{Allowed: true, Remaining: -1}
	for i := range e.rules {
		c := &e.rules[i]
		if !req.inScope(c.rule.Scope) {
			continue
		}
		scopeKey, ok := c.rule.scopeKey(req)
		if !ok {
			continue
		}
		name, lim := c.selectLimiter(req)
		bucketKey := name + "|" + scopeKey
		limit := lim.GetLimit()
		observed := e.observe(bucketKey, limit.Window, now)

		res, err := lim.Allow(ctx, bucketKey)
		if err != nil {
			return Decision{}, err
		}
		if res.Allowed {
			if decision.Remaining < 0 || res.Remaining < decision.Remaining {
				decision.Rule = name
				decision.Limit = res.Limit
				decision.Remaining = res.Remaining
			}
			continue
		}

		rejected := Decision{
			RetryAfter:  atLeastMillisecond(res.RetryAfter),
			Rule:        name,
			Limit:       res.Limit,
			Remaining:   res.Remaining,
			ThreatLevel: ClassifyThreat(observed, limit.Requests),
			Mitigation:  MitigationLog,
		}
		if req.IP != "" {
			rec, mitigation := e.threats.Record(req.IP, rejected.ThreatLevel, now)
			rejected.Mitigation = mitigation
			switch mitigation {
			case MitigationBlock:
				rejected.RetryAfter = atLeastMillisecond(rec.BlockedUntil.Sub(now))
			case MitigationChallenge:
				rejected.ChallengeID = rec.Challenge.ID
			}
		}
		e.logger.Info("rate limit exceeded",
			zap.String("rule", name),
			zap.String("ip", req.IP),
			zap.String("user_id", req.UserID),
			zap.String("path", req.Path),
			zap.Int("observed", observed),
			zap.Int("limit", limit.Requests),
			zap.String("threat_level", rejected.ThreatLevel.String()),
			zap.String("mitigation", string(rejected.Mitigation)),
		)
		return rejected, nil
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	return decision, nil
}

// observe counts every request, admitted or not, in the bucket's current
// fixed window.
func (e *Engine) observe(key string, window time.Duration, now time.Time) int {
	start := windowStart(now, window)
	count := 0
	e.observed.with(key, now, func(s *fixedWindowState) {
		if !s.windowStart.Equal(start) {
			s.windowStart = start
			s.count = 0
		}
		s.count++
		count = s.count
	})
	return count
}

// SolveChallenge clears a pending challenge for ip.
func (e *Engine) SolveChallenge(ip, challengeID string) error {
	if err := e.threats.SolveChallenge(ip, challengeID, e.now()); err != nil {
		return err
	}
	e.logger.Info("challenge solved", zap.String("ip", ip))
	return nil
}

// Unblock lifts any block or challenge on ip.
func (e *Engine) Unblock(ip string) bool {
	return e.threats.Unblock(ip)
}

// Threat returns a copy of the threat record for ip, or nil.
func (e *Engine) Threat(ip string) *ThreatRecord {
	return e.threats.Get(ip)
}

// Reset clears the buckets of every rule for req.
func (e *Engine) Reset(ctx context.Context, req Request) error {
	for i := range e.rules {
		c := &e.rules[i]
		scopeKey, ok := c.rule.scopeKey(req)
		if !ok {
			continue
		}
		name, lim := c.selectLimiter(req)
		if err := lim.Reset(ctx, name+"|"+scopeKey); err != nil {
			return err
		}
		e.observed.remove(name + "|" + scopeKey)
	}
	return nil
}

// SweepStats counts entries removed by one Sweep.
type SweepStats struct {
	Buckets  int
	Observed int
	Threats  int
}

// Sweep removes idle buckets, expired mitigations and stale threat records.
func (e *Engine) Sweep(now time.Time) SweepStats {
	var stats SweepStats
	for i := range e.rules {
		c := &e.rules[i]
		if sw, ok := c.limiter.(Sweeper); ok {
			stats.Buckets += sw.Sweep(now)
		}
		for _, s := range c.subs {
			if sw, ok := s.limiter.(Sweeper); ok {
				stats.Buckets += sw.Sweep(now)
			}
		}
	}
	stats.Observed = e.observed.sweep(now.Add(-e.maxWindow))
	stats.Threats = e.threats.Sweep(now)
	return stats
}

func atLeastMillisecond(d time.Duration) time.Duration {
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}
