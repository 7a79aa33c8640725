package goGuard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/ratelimit"
	"github.com/MrEthical07/goGuard/rbac"
)

func tightIPConfig() Config {
	cfg := testConfig()
	cfg.RateLimit.Rules = []ratelimit.Rule{{
		Name:      "ip",
		Scope:     ratelimit.ScopeIP,
		Algorithm: ratelimit.AlgorithmFixedWindow,
		Limit:     ratelimit.Limit{Requests: 2, Window: time.Minute},
	}}
	cfg.RateLimit.BlockDuration = time.Hour
	return cfg
}

func TestCheckRateLimitEscalatesToChallenge(t *testing.T) {
	env := newTestEnv(t, tightIPConfig())
	ctx := ipContext("10.1.1.1")
	req := ratelimit.Request{Path: "/x", Method: "GET"}

	for i := 0; i < 2; i++ {
		d, err := env.engine.CheckRateLimit(ctx, req)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: allowed=%v err=%v", i+1, d.Allowed, err)
		}
	}

	_, err := env.engine.CheckRateLimit(ctx, req)
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("third request: expected *RateLimitedError, got %v", err)
	}
	if !errors.Is(err, ErrRateLimited) || errors.Is(err, ErrChallengeRequired) {
		t.Fatalf("third request should be a plain rate limit, got %v", err)
	}
	if rl.RetryAfter <= 0 {
		t.Fatalf("expected positive RetryAfter, got %v", rl.RetryAfter)
	}

	_, err = env.engine.CheckRateLimit(ctx, req)
	if !errors.Is(err, ErrChallengeRequired) {
		t.Fatalf("fourth request: expected challenge, got %v", err)
	}
	if !errors.As(err, &rl) || rl.ChallengeID == "" {
		t.Fatalf("expected challenge id, got %+v", rl)
	}

	if err := env.engine.SolveChallenge(ctx, "wrong"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("wrong id: expected ErrChallengeInvalid, got %v", err)
	}
	if err := env.engine.SolveChallenge(ipContext("10.9.9.9"), rl.ChallengeID); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("other ip: expected ErrChallengeInvalid, got %v", err)
	}
	if err := env.engine.SolveChallenge(ctx, rl.ChallengeID); err != nil {
		t.Fatalf("SolveChallenge: %v", err)
	}
	if err := env.engine.SolveChallenge(ctx, rl.ChallengeID); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("second solve: expected ErrChallengeInvalid, got %v", err)
	}

	m := env.engine.MetricsSnapshot().Counters
	if m[MetricChallengeIssued] != 1 || m[MetricChallengeSolved] != 1 {
		t.Fatalf("challenge metrics: issued=%d solved=%d", m[MetricChallengeIssued], m[MetricChallengeSolved])
	}
	if m[MetricRateLimitHit] != 2 {
		t.Fatalf("expected 2 rate limit hits, got %d", m[MetricRateLimitHit])
	}
}

func TestCheckRateLimitOtherIPUnaffected(t *testing.T) {
	env := newTestEnv(t, tightIPConfig())
	req := ratelimit.Request{Path: "/x", Method: "GET"}

	for i := 0; i < 4; i++ {
		_, _ = env.engine.CheckRateLimit(ipContext("10.1.1.1"), req)
	}
	if _, err := env.engine.CheckRateLimit(ipContext("10.1.1.2"), req); err != nil {
		t.Fatalf("independent ip was limited: %v", err)
	}
}

func TestRateLimitingDisabled(t *testing.T) {
	cfg := tightIPConfig()
	cfg.RateLimit.Enabled = false
	env := newTestEnv(t, cfg)
	ctx := ipContext("10.1.1.1")

	for i := 0; i < 10; i++ {
		if _, err := env.engine.CheckRateLimit(ctx, ratelimit.Request{Path: "/x"}); err != nil {
			t.Fatalf("request %d limited with rate limiting off: %v", i+1, err)
		}
	}
	if err := env.engine.SolveChallenge(ctx, "anything"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid, got %v", err)
	}
}

func TestSweepNowRemovesExpiredState(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u1", "player@club.test", rbac.RolePlayer, "team-1")
	env.login(t, ipContext("10.2.2.2"), "player@club.test")

	removed := env.engine.SweepNow(context.Background())
	for _, name := range []string{"sessions", "csrf", "blacklist", "ratelimit"} {
		if _, ok := removed[name]; !ok {
			t.Fatalf("missing sweep task %q in %v", name, removed)
		}
	}
	if removed["sessions"] != 0 {
		t.Fatalf("live session swept: %v", removed)
	}

	env.clock.Advance(time.Hour)
	removed = env.engine.SweepNow(context.Background())
	if removed["sessions"] != 1 {
		t.Fatalf("expected idle session to be swept, got %v", removed)
	}

	sessions, err := env.engine.Sessions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions after sweep, got %d", len(sessions))
	}
}

func TestSweepNowOnClosedEngine(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.engine.Close()

	if got := env.engine.SweepNow(context.Background()); len(got) != 0 {
		t.Fatalf("closed engine swept: %v", got)
	}
}
