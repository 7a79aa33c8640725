package goGuard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MrEthical07/goGuard/rbac"
)

func TestSignUpAlwaysGetsFamilyRole(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	if err := env.engine.SignUp(ctx, SignUpRequest{UserID: "f1", Email: "fam@club.test", Password: testPassword}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	cred, err := env.creds.GetByID(ctx, "f1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if cred.Role != rbac.RoleFamily || cred.TeamID != "" {
		t.Fatalf("self sign-up got role %q team %q", cred.Role, cred.TeamID)
	}
}

func TestCreateUserRequiresManageUsers(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "a1", "admin@club.test", rbac.RoleAdmin, "")
	env.seedUser(t, "c1", "coach@club.test", rbac.RoleCoach, "team-1")
	ctx := context.Background()

	verify := func(email string) *AuthResult {
		t.Helper()
		res := env.login(t, ctx, email)
		auth, err := env.engine.Verify(ctx, res.Tokens.AccessToken)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		return auth
	}
	req := RegisterRequest{UserID: "new-admin", Email: "boss@club.test", Password: testPassword, Role: rbac.RoleAdmin}

	if err := env.engine.CreateUser(ctx, nil, req); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("anonymous CreateUser: expected ErrTokenInvalid, got %v", err)
	}
	if err := env.engine.CreateUser(ctx, verify("coach@club.test"), req); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("coach CreateUser: expected ErrPermissionDenied, got %v", err)
	}
	if _, err := env.creds.GetByID(ctx, "new-admin"); err == nil {
		t.Fatal("denied CreateUser stored a credential")
	}

	if err := env.engine.CreateUser(ctx, verify("admin@club.test"), req); err != nil {
		t.Fatalf("admin CreateUser: %v", err)
	}
}

func TestRegisterConcurrentSameUserID(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		id := fmt.Sprintf("u-%d", round)
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = env.engine.Register(ctx, RegisterRequest{
					UserID:   id,
					Email:    fmt.Sprintf("%s-%d@club.test", id, i),
					Password: testPassword,
					Role:     rbac.RolePlayer,
				})
			}(i)
		}
		wg.Wait()

		created := 0
		for _, err := range errs {
			switch {
			case err == nil:
				created++
			case !errors.Is(err, ErrAccountExists):
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		if created != 1 {
			t.Fatalf("round %d: %d registrations succeeded for one user id", round, created)
		}
	}
}

func TestCoachApprovalIsServerSide(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "c9", "coach9@club.test", rbac.RoleCoach, "team-9")
	env.seedUser(t, "c2", "coach2@club.test", rbac.RoleCoach, "team-2")
	env.seedUser(t, "f1", "fam@club.test", rbac.RoleFamily, "")
	ctx := context.Background()

	auth := func(email string) *AuthResult {
		t.Helper()
		res := env.login(t, ctx, email)
		a, err := env.engine.Verify(ctx, res.Tokens.AccessToken)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		return a
	}
	family, coach9, coach2 := auth("fam@club.test"), auth("coach9@club.test"), auth("coach2@club.test")
	team9 := rbac.Context{TargetTeamID: "team-9"}

	if err := env.engine.Permit(ctx, family, rbac.ViewStatistics, rbac.ResourceStatistics, team9); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected denial before approval, got %v", err)
	}

	if err := env.engine.ApproveAccess(ctx, coach2, "f1", "team-9"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("coach of another team approved: %v", err)
	}
	if err := env.engine.ApproveAccess(ctx, family, "f1", "team-9"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("family member approved themselves: %v", err)
	}
	if err := env.engine.ApproveAccess(ctx, coach9, "ghost", "team-9"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown user, got %v", err)
	}

	if err := env.engine.ApproveAccess(ctx, coach9, "f1", "team-9"); err != nil {
		t.Fatalf("ApproveAccess: %v", err)
	}
	if err := env.engine.Permit(ctx, family, rbac.ViewStatistics, rbac.ResourceStatistics, team9); err != nil {
		t.Fatalf("expected grant after approval, got %v", err)
	}
	other := rbac.Context{TargetTeamID: "team-2"}
	if err := env.engine.Permit(ctx, family, rbac.ViewStatistics, rbac.ResourceStatistics, other); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("approval leaked to another team: %v", err)
	}

	if err := env.engine.RevokeApproval(ctx, coach9, "f1", "team-9"); err != nil {
		t.Fatalf("RevokeApproval: %v", err)
	}
	if err := env.engine.Permit(ctx, family, rbac.ViewStatistics, rbac.ResourceStatistics, team9); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected denial after revoke, got %v", err)
	}
}

func TestCoachApprovalSharedThroughRedis(t *testing.T) {
	env := newTestEnv(t, testConfig(), withRedis(t))
	env.seedUser(t, "c9", "coach9@club.test", rbac.RoleCoach, "team-9")
	env.seedUser(t, "f1", "fam@club.test", rbac.RoleFamily, "")
	ctx := context.Background()

	coach := env.login(t, ctx, "coach9@club.test")
	coachAuth, err := env.engine.Verify(ctx, coach.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := env.engine.ApproveAccess(ctx, coachAuth, "f1", "team-9"); err != nil {
		t.Fatalf("ApproveAccess: %v", err)
	}

	ok, err := env.redis.SIsMember(ctx, "goguard:approvals:team-9", "f1").Result()
	if err != nil || !ok {
		t.Fatalf("approval not stored in redis: ok=%v err=%v", ok, err)
	}

	family := env.login(t, ctx, "fam@club.test")
	if _, err := env.engine.Authorize(ctx, family.Tokens.AccessToken, rbac.ViewStatistics, rbac.ResourceStatistics, rbac.Context{TargetTeamID: "team-9"}); err != nil {
		t.Fatalf("expected grant from shared approval, got %v", err)
	}
}
