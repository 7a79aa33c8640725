package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, rules []Rule, clock *fakeClock) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{Rules: rules, Now: clock.Now})
	require.NoError(t, err)
	return e
}

func loginRequest(ip string) Request {
	return Request{IP: ip, Path: "/auth/login", Method: "POST"}
}

func TestEngineLoginSubRuleRejectsSixthAttempt(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, nil, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := e.Check(ctx, loginRequest("203.0.113.7"))
		require.NoError(t, err)
		require.True(t, d.Allowed, "attempt %d", i+1)
		clock.Advance(time.Minute)
	}

	d, err := e.Check(ctx, loginRequest("203.0.113.7"))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "ip/login", d.Rule)
	assert.Positive(t, d.RetryAfter)
	assert.Equal(t, ThreatLow, d.ThreatLevel)
	assert.Equal(t, MitigationLog, d.Mitigation)

	// Other paths from the same IP still use the general per-IP limit.
	d, err = e.Check(ctx, Request{IP: "203.0.113.7", Path: "/players", Method: "GET"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Another IP has its own login budget.
	d, err = e.Check(ctx, loginRequest("198.51.100.2"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestEngineEscalatesToChallengeThenBlock(t *testing.T) {
	clock := newFakeClock()
	rules := []Rule{{
		Name:      "ip",
		Scope:     ScopeIP,
		Algorithm: AlgorithmFixedWindow,
		Limit:     Limit{Requests: 2, Window: time.Minute},
	}}
	e := newTestEngine(t, rules, clock)
	ctx := context.Background()
	req := Request{IP: "10.1.1.1", Path: "/x", Method: "GET"}

	levels := []ThreatLevel{}
	var challengeID string
	for i := 0; i < 5; i++ {
		d, err := e.Check(ctx, req)
		require.NoError(t, err)
		if !d.Allowed {
			levels = append(levels, d.ThreatLevel)
			if d.Mitigation == MitigationChallenge {
				challengeID = d.ChallengeID
				break
			}
		}
	}
	// 3/2 = 1.5 is medium, 4/2 = 2 is high.
	assert.Equal(t, []ThreatLevel{ThreatMedium, ThreatHigh}, levels)
	require.NotEmpty(t, challengeID)

	d, err := e.Check(ctx, req)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, MitigationChallenge, d.Mitigation)
	assert.Equal(t, challengeID, d.ChallengeID)

	assert.ErrorIs(t, e.SolveChallenge("10.1.1.1", "wrong"), ErrChallengeMismatch)
	require.NoError(t, e.SolveChallenge("10.1.1.1", challengeID))
	assert.ErrorIs(t, e.SolveChallenge("10.1.1.1", challengeID), ErrNoChallenge)

	// Still over the limit: 5/2 is high again, 6/2 is critical.
	d, err = e.Check(ctx, req)
	require.NoError(t, err)
	require.Equal(t, MitigationChallenge, d.Mitigation)
	require.NoError(t, e.SolveChallenge("10.1.1.1", d.ChallengeID))

	d, err = e.Check(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ThreatCritical, d.ThreatLevel)
	assert.Equal(t, MitigationBlock, d.Mitigation)
	assert.Equal(t, time.Hour, d.RetryAfter)

	clock.Advance(2 * time.Minute)
	d, err = e.Check(ctx, req)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "blocked IP must be rejected in a fresh window")
	assert.Equal(t, MitigationBlock, d.Mitigation)

	assert.True(t, e.Unblock("10.1.1.1"))
	d, err = e.Check(ctx, req)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestEngineSkipsRulesWithoutScopeKey(t *testing.T) {
	clock := newFakeClock()
	rules := []Rule{{
		Name:      "user",
		Scope:     ScopeUser,
		Algorithm: AlgorithmFixedWindow,
		Limit:     Limit{Requests: 1, Window: time.Minute},
	}}
	e := newTestEngine(t, rules, clock)

	for i := 0; i < 3; i++ {
		d, err := e.Check(context.Background(), Request{IP: "1.2.3.4"})
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestEngineSweepExpiresMitigations(t *testing.T) {
	clock := newFakeClock()
	rules := []Rule{{
		Name:      "ip",
		Scope:     ScopeIP,
		Algorithm: AlgorithmFixedWindow,
		Limit:     Limit{Requests: 1, Window: time.Minute},
	}}
	e, err := NewEngine(EngineConfig{Rules: rules, Now: clock.Now, BlockDuration: 10 * time.Minute})
	require.NoError(t, err)
	ctx := context.Background()

	var last Decision
	for i := 0; i < 3; i++ {
		last, err = e.Check(ctx, Request{IP: "9.9.9.9"})
		require.NoError(t, err)
		if last.Mitigation == MitigationChallenge {
			require.NoError(t, e.SolveChallenge("9.9.9.9", last.ChallengeID))
		}
	}
	require.Equal(t, MitigationBlock, last.Mitigation)

	clock.Advance(11 * time.Minute)
	stats := e.Sweep(clock.Now())
	assert.Equal(t, 1, stats.Buckets)
	rec := e.Threat("9.9.9.9")
	require.NotNil(t, rec)
	assert.True(t, rec.BlockedUntil.IsZero())

	clock.Advance(25 * time.Hour)
	stats = e.Sweep(clock.Now())
	assert.Equal(t, 1, stats.Threats)
	assert.Nil(t, e.Threat("9.9.9.9"))
}

func TestSubRuleMatching(t *testing.T) {
	exact := SubRule{Path: "/auth/login", Methods: []string{"POST"}}
	assert.True(t, exact.matches(Request{Path: "/auth/login", Method: "post"}))
	assert.False(t, exact.matches(Request{Path: "/auth/login", Method: "GET"}))
	assert.False(t, exact.matches(Request{Path: "/auth/login/x", Method: "POST"}))

	prefix := SubRule{Path: "/api/*"}
	assert.True(t, prefix.matches(Request{Path: "/api/players", Method: "DELETE"}))
	assert.False(t, prefix.matches(Request{Path: "/auth", Method: "GET"}))
}

func TestClassifyThreat(t *testing.T) {
	cases := []struct {
		observed, allowed int
		want              ThreatLevel
	}{
		{6, 5, ThreatLow},
		{7, 5, ThreatLow},
		{8, 5, ThreatMedium},
		{10, 5, ThreatHigh},
		{14, 5, ThreatHigh},
		{15, 5, ThreatCritical},
		{0, 5, ThreatNone},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyThreat(c.observed, c.allowed), "%d/%d", c.observed, c.allowed)
	}
}

func TestNewEngineRejectsInvalidRules(t *testing.T) {
	_, err := NewEngine(EngineConfig{Rules: []Rule{{Name: "x", Scope: "planet", Algorithm: AlgorithmFixedWindow, Limit: Limit{Requests: 1, Window: time.Second}}}})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	dup := Rule{Name: "x", Scope: ScopeGlobal, Algorithm: AlgorithmFixedWindow, Limit: Limit{Requests: 1, Window: time.Second}}
	_, err = NewEngine(EngineConfig{Rules: []Rule{dup, dup}})
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestEngineScopesRestrictRules(t *testing.T) {
	clock := newFakeClock()
	rules := []Rule{
		{Name: "ip", Scope: ScopeIP, Algorithm: AlgorithmFixedWindow, Limit: Limit{Requests: 1, Window: time.Minute}},
		{Name: "user", Scope: ScopeUser, Algorithm: AlgorithmFixedWindow, Limit: Limit{Requests: 2, Window: time.Minute}},
	}
	e := newTestEngine(t, rules, clock)
	ctx := context.Background()

	d, err := e.Check(ctx, Request{IP: "203.0.113.7", Path: "/x"})
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// A user-only check does not charge or consult the exhausted IP bucket.
	userOnly := Request{IP: "203.0.113.7", UserID: "u1", Path: "/x", Scopes: []Scope{ScopeUser}}
	for i := 0; i < 2; i++ {
		d, err = e.Check(ctx, userOnly)
		require.NoError(t, err)
		require.True(t, d.Allowed, "user request %d", i+1)
		assert.Equal(t, "user", d.Rule)
	}
	d, err = e.Check(ctx, userOnly)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "user", d.Rule)

	d, err = e.Check(ctx, Request{IP: "203.0.113.7", Path: "/x"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "ip", d.Rule)
}
