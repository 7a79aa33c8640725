package goGuard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/rbac"
	"github.com/MrEthical07/goGuard/session"
)

func withRiskPolicy(p session.RiskPolicy) envOption {
	return func(b *Builder) { b.WithRiskPolicy(p) }
}

func deviceContext(ip, userAgent string) context.Context {
	ctx := WithClientIP(context.Background(), ip)
	ctx = WithUserAgent(ctx, userAgent)
	return WithAcceptLanguage(ctx, "en-GB")
}

func TestLogoutEndsSession(t *testing.T) {
	for _, backend := range []string{"memory", "redis"} {
		t.Run(backend, func(t *testing.T) {
			var opts []envOption
			if backend == "redis" {
				opts = append(opts, withRedis(t))
			}
			env := newTestEnv(t, testConfig(), opts...)
			env.seedUser(t, "u1", "alice@club.test", rbac.RoleCoach, "team-1")

			ctx := context.Background()
			login := env.login(t, ctx, "alice@club.test")

			if err := env.engine.Logout(ctx, login.Tokens.AccessToken); err != nil {
				t.Fatalf("Logout: %v", err)
			}
			if _, err := env.engine.Verify(ctx, login.Tokens.AccessToken); !errors.Is(err, ErrTokenInvalid) {
				t.Fatalf("expected ErrTokenInvalid after logout, got %v", err)
			}
			if _, err := env.engine.Refresh(ctx, login.Tokens.RefreshToken); !errors.Is(err, ErrTokenReplayed) {
				t.Fatalf("expected logged-out refresh token treated as replay, got %v", err)
			}
			sessions, err := env.engine.Sessions(ctx, "u1")
			if err != nil {
				t.Fatalf("Sessions: %v", err)
			}
			if len(sessions) != 0 {
				t.Fatalf("expected no sessions, got %d", len(sessions))
			}
		})
	}
}

func TestLogoutRejectsGarbageToken(t *testing.T) {
	env := newTestEnv(t, testConfig())

	if err := env.engine.Logout(context.Background(), "not.a.jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestLogoutSessionByID(t *testing.T) {
	env := newTestEnv(t, testConfig(), withRedis(t))
	env.seedUser(t, "u1", "alice@club.test", rbac.RoleCoach, "team-1")

	ctx := context.Background()
	phone := env.login(t, ctx, "alice@club.test")
	laptop := env.login(t, ctx, "alice@club.test")

	if err := env.engine.LogoutSession(ctx, phone.Session.SessionID); err != nil {
		t.Fatalf("LogoutSession: %v", err)
	}
	if _, err := env.engine.Verify(ctx, phone.Tokens.AccessToken); err == nil {
		t.Fatal("expected phone session access token rejected")
	}
	if _, err := env.engine.Verify(ctx, laptop.Tokens.AccessToken); err != nil {
		t.Fatalf("expected laptop session untouched, got %v", err)
	}
	if err := env.engine.LogoutSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRevokeAllSessions(t *testing.T) {
	env := newTestEnv(t, testConfig(), withRedis(t))
	env.seedUser(t, "u1", "alice@club.test", rbac.RoleCoach, "team-1")
	env.seedUser(t, "u2", "bob@club.test", rbac.RolePlayer, "team-1")

	ctx := context.Background()
	a1 := env.login(t, ctx, "alice@club.test")
	a2 := env.login(t, ctx, "alice@club.test")
	b1 := env.login(t, ctx, "bob@club.test")

	n, err := env.engine.RevokeAllSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAllSessions: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sessions revoked, got %d", n)
	}
	for _, res := range []*LoginResult{a1, a2} {
		if _, err := env.engine.Verify(ctx, res.Tokens.AccessToken); err == nil {
			t.Fatal("expected revoked session rejected")
		}
	}
	if _, err := env.engine.Verify(ctx, b1.Tokens.AccessToken); err != nil {
		t.Fatalf("expected other user untouched, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLogoutAll]; got != 1 {
		t.Fatalf("expected one logout-all, got %d", got)
	}
}

func TestInactivityTimeoutEndsSession(t *testing.T) {
	cfg := testConfig()
	cfg.Session.InactivityTimeout = 2 * time.Minute
	env := newTestEnv(t, cfg)
	env.seedUser(t, "u1", "alice@club.test", rbac.RoleCoach, "team-1")

	ctx := context.Background()
	login := env.login(t, ctx, "alice@club.test")

	env.clock.Advance(90 * time.Second)
	if _, err := env.engine.Verify(ctx, login.Tokens.AccessToken); err != nil {
		t.Fatalf("expected active session, got %v", err)
	}

	// The access above reset the idle timer.
	env.clock.Advance(90 * time.Second)
	if _, err := env.engine.Verify(ctx, login.Tokens.AccessToken); err != nil {
		t.Fatalf("expected session kept alive by use, got %v", err)
	}

	env.clock.Advance(2*time.Minute + time.Second)
	if _, err := env.engine.Refresh(ctx, login.Tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected idle session gone, got %v", err)
	}
}

func TestDeviceChangePolicyFlagsNewDevice(t *testing.T) {
	sink := &recordingSink{}
	env := newTestEnv(t, testConfig(), withRiskPolicy(session.DeviceChangePolicy{}), withAuditSink(sink))
	env.seedUser(t, "u1", "alice@club.test", rbac.RoleCoach, "team-1")

	first := env.login(t, deviceContext("10.0.0.1", "Firefox/140"), "alice@club.test")
	if len(first.Session.RiskFlags) != 0 {
		t.Fatalf("first session must not be flagged, got %v", first.Session.RiskFlags)
	}

	same := env.login(t, deviceContext("10.0.0.1", "Firefox/140"), "alice@club.test")
	if len(same.Session.RiskFlags) != 0 {
		t.Fatalf("known device must not be flagged, got %v", same.Session.RiskFlags)
	}

	other := env.login(t, deviceContext("192.0.2.44", "Safari/18"), "alice@club.test")
	flags := map[string]bool{}
	for _, f := range other.Session.RiskFlags {
		flags[f] = true
	}
	if !flags[session.RiskNewDevice] || !flags[session.RiskNewIP] {
		t.Fatalf("expected new_device and new_ip, got %v", other.Session.RiskFlags)
	}

	// Flags are informational: the flagged session works.
	if _, err := env.engine.Verify(context.Background(), other.Tokens.AccessToken); err != nil {
		t.Fatalf("flagged session rejected: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricSessionRiskFlagged]; got != 1 {
		t.Fatalf("expected one flagged session, got %d", got)
	}

	env.engine.Close()
	var flagged int
	for _, ev := range sink.snapshot() {
		if ev.EventType == auditEventSessionRiskFlagged {
			flagged++
			if ev.IP != "192.0.2.44" {
				t.Fatalf("expected audit IP of new device, got %q", ev.IP)
			}
		}
	}
	if flagged != 1 {
		t.Fatalf("expected one risk audit event, got %d", flagged)
	}
}

func TestSessionExpiresAtLifetime(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Lifetime = time.Hour
	cfg.Session.InactivityTimeout = 0
	env := newTestEnv(t, cfg)
	env.seedUser(t, "u1", "alice@club.test", rbac.RoleCoach, "team-1")

	ctx := context.Background()
	login := env.login(t, ctx, "alice@club.test")
	if want := env.clock.Now().Add(time.Hour); !login.Session.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, login.Session.ExpiresAt)
	}

	env.clock.Advance(time.Hour)
	if _, err := env.engine.Refresh(ctx, login.Tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound at lifetime end, got %v", err)
	}
}
