package goGuard

import (
	"context"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	authjwt "github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/rbac"
)

func TestVerifyReturnsIdentity(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u1", "coach@club.test", rbac.RoleCoach, "team-1")

	ctx := context.Background()
	login := env.login(t, ctx, "coach@club.test")

	auth, err := env.engine.Verify(ctx, login.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if auth.UserID != "u1" || auth.Role != rbac.RoleCoach || auth.TeamID != "team-1" {
		t.Fatalf("unexpected identity %+v", auth)
	}
	if auth.SessionID != login.Session.SessionID || auth.Session == nil {
		t.Fatalf("expected session %s attached, got %+v", login.Session.SessionID, auth.Session)
	}
	if !auth.ExpiresAt.Equal(env.clock.Now().Add(env.engine.Config().Token.AccessTTL)) {
		t.Fatalf("unexpected expiry %v", auth.ExpiresAt)
	}
}

func TestVerifyRejectsForgedToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u1", "coach@club.test", rbac.RoleCoach, "team-1")

	ctx := context.Background()
	login := env.login(t, ctx, "coach@club.test")
	real, err := env.engine.Verify(ctx, login.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	now := env.clock.Now()
	claims := authjwt.AccessClaims{
		UID:  "u1",
		Role: rbac.RoleAdmin,
		SID:  real.SessionID,
		RegisteredClaims: gjwt.RegisteredClaims{
			ID:        "forged",
			Subject:   "u1",
			Issuer:    "goguard",
			Audience:  gjwt.ClaimStrings{"goguard-api"},
			IssuedAt:  gjwt.NewNumericDate(now),
			NotBefore: gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("an-attacker-secret-0123456789abcdef"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := env.engine.Verify(ctx, forged); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected forged token rejected, got %v", err)
	}

	unsigned, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := env.engine.Verify(ctx, unsigned); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected alg=none token rejected, got %v", err)
	}
}

func TestVerifyRejectsRefreshToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u1", "coach@club.test", rbac.RoleCoach, "team-1")

	ctx := context.Background()
	login := env.login(t, ctx, "coach@club.test")

	if _, err := env.engine.Verify(ctx, login.Tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected refresh token rejected as access token, got %v", err)
	}
}

func TestVerifyExpiredAccessToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u1", "coach@club.test", rbac.RoleCoach, "team-1")

	ctx := context.Background()
	login := env.login(t, ctx, "coach@club.test")

	cfg := env.engine.Config()
	env.clock.Advance(cfg.Token.AccessTTL + cfg.Token.Leeway + time.Second)
	if _, err := env.engine.Verify(ctx, login.Tokens.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyAfterRefreshKeepsOldAccessUntilExpiry(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u1", "coach@club.test", rbac.RoleCoach, "team-1")

	ctx := context.Background()
	login := env.login(t, ctx, "coach@club.test")
	next, err := env.engine.Refresh(ctx, login.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := env.engine.Verify(ctx, login.Tokens.AccessToken); err != nil {
		t.Fatalf("expected old access token valid until expiry, got %v", err)
	}
	if _, err := env.engine.Verify(ctx, next.AccessToken); err != nil {
		t.Fatalf("expected new access token valid, got %v", err)
	}
}

func TestAuthorizeUsesTokenIdentity(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u1", "coach@club.test", rbac.RoleCoach, "team-1")

	ctx := context.Background()
	login := env.login(t, ctx, "coach@club.test")

	// A caller-supplied TeamID is ignored in favour of the token's team.
	spoofed := rbac.Context{TeamID: "team-2", TargetTeamID: "team-2"}
	_, err := env.engine.Authorize(ctx, login.Tokens.AccessToken, rbac.EditStatistics, rbac.ResourceStatistics, spoofed)
	var denied *PermissionDeniedError
	if !errors.As(err, &denied) || !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected *PermissionDeniedError, got %v", err)
	}
	if denied.Reason != string(rbac.ReasonConditionFailed) {
		t.Fatalf("expected condition_failed, got %q", denied.Reason)
	}

	own := rbac.Context{TargetTeamID: "team-1"}
	auth, err := env.engine.Authorize(ctx, login.Tokens.AccessToken, rbac.EditStatistics, rbac.ResourceStatistics, own)
	if err != nil {
		t.Fatalf("expected same-team access granted, got %v", err)
	}
	if auth.UserID != "u1" {
		t.Fatalf("unexpected identity %+v", auth)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricAuthorizeDenied] != 1 || snap.Counters[MetricAuthorizeGranted] != 1 {
		t.Fatalf("unexpected authorize counters %+v", snap.Counters)
	}
}

func TestAuthorizeFailsForInvalidToken(t *testing.T) {
	env := newTestEnv(t, testConfig())

	_, err := env.engine.Authorize(context.Background(), "garbage", rbac.ViewProfile, rbac.ResourceProfile, rbac.Context{})
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Fatal("token failures must not look like permission denials")
	}
}
