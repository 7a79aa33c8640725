package rbac

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyDeletePlayers(t *testing.T) {
	p := DefaultPolicy()

	d := p.HasPermission(RolePlayer, DeletePlayers, ResourcePlayers, Context{UserID: "p1"})
	assert.False(t, d.Granted)
	assert.Equal(t, ReasonNoRule, d.Reason)

	d = p.HasPermission(RoleCoach, DeletePlayers, ResourcePlayers, Context{UserID: "c1"})
	assert.True(t, d.Granted)
	assert.Equal(t, ReasonGranted, d.Reason)
}

func TestFamilyNeedsCoachApproval(t *testing.T) {
	p := DefaultPolicy()

	d := p.HasPermission(RoleFamily, ViewPlayers, ResourcePlayers, Context{UserID: "f1"})
	assert.False(t, d.Granted)
	assert.Equal(t, ReasonConditionFailed, d.Reason)
	assert.Equal(t, ApprovedByCoach, d.FailedCondition)

	d = p.HasPermission(RoleFamily, ViewPlayers, ResourcePlayers, Context{UserID: "f1", ApprovedByCoach: true})
	assert.True(t, d.Granted)
}

func TestConditions(t *testing.T) {
	p := DefaultPolicy()

	t.Run("own data", func(t *testing.T) {
		assert.True(t, p.HasPermission(RolePlayer, EditProfile, ResourceProfile, Context{UserID: "u1", TargetUserID: "u1"}).Granted)
		assert.False(t, p.HasPermission(RolePlayer, EditProfile, ResourceProfile, Context{UserID: "u1", TargetUserID: "u2"}).Granted)
		assert.False(t, p.HasPermission(RolePlayer, EditProfile, ResourceProfile, Context{}).Granted, "empty ids must not match")
	})

	t.Run("same team", func(t *testing.T) {
		assert.True(t, p.HasPermission(RoleCoach, EditPlayers, ResourcePlayers, Context{TeamID: "t1", TargetTeamID: "t1"}).Granted)
		assert.False(t, p.HasPermission(RoleCoach, EditPlayers, ResourcePlayers, Context{TeamID: "t1", TargetTeamID: "t2"}).Granted)
	})

	t.Run("within hours", func(t *testing.T) {
		day := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		night := time.Date(2026, 5, 1, 23, 30, 0, 0, time.UTC)

		d := p.HasPermission(RoleFamily, ViewMatches, ResourceMatches, Context{ApprovedByCoach: true, Now: day})
		assert.True(t, d.Granted)

		d = p.HasPermission(RoleFamily, ViewMatches, ResourceMatches, Context{ApprovedByCoach: true, Now: night})
		assert.False(t, d.Granted)
		assert.Equal(t, WithinHours, d.FailedCondition)

		d = p.HasPermission(RoleFamily, ViewMatches, ResourceMatches, Context{ApprovedByCoach: true})
		assert.False(t, d.Granted, "missing clock must fail closed")
	})

	t.Run("short circuit on first failure", func(t *testing.T) {
		d := p.HasPermission(RoleFamily, ViewMatches, ResourceMatches, Context{})
		assert.Equal(t, ApprovedByCoach, d.FailedCondition)
	})
}

func TestUnknownRoleAndResource(t *testing.T) {
	p := DefaultPolicy()

	d := p.HasPermission("janitor", ViewPlayers, ResourcePlayers, Context{})
	assert.Equal(t, ReasonUnknownRole, d.Reason)

	d = p.HasPermission(RoleAdmin, ViewPlayers, ResourceReports, Context{})
	assert.False(t, d.Granted, "permission on another resource is not a grant")
	assert.Equal(t, ReasonNoRule, d.Reason)

	d = p.HasPermission(RoleAdmin, Permission("LAUNCH_ROCKETS"), ResourcePlayers, Context{})
	assert.Equal(t, ReasonNoRule, d.Reason)
}

func TestCanAccessResource(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.CanAccessResource(RoleCoach, ResourcePlayers, Context{}).Granted)
	assert.False(t, p.CanAccessResource(RolePlayer, ResourceUsers, Context{}).Granted)

	d := p.CanAccessResource(RolePlayer, ResourceStatistics, Context{UserID: "a", TargetUserID: "b"})
	assert.False(t, d.Granted)
	assert.Equal(t, ReasonConditionFailed, d.Reason)

	assert.True(t, p.CanAccessResource(RolePlayer, ResourceStatistics, Context{UserID: "a", TargetUserID: "a"}).Granted)
}

func TestNoInheritance(t *testing.T) {
	p, err := Compile(Document{Roles: map[string][]Rule{
		"admin":  {{Permission: ManageUsers, Resource: ResourceUsers}},
		"viewer": {{Permission: ViewProfile, Resource: ResourceProfile}},
	}})
	require.NoError(t, err)

	assert.False(t, p.HasPermission("viewer", ManageUsers, ResourceUsers, Context{}).Granted)
	assert.False(t, p.HasPermission("admin", ViewProfile, ResourceProfile, Context{}).Granted)
}

func TestCompileRejectsBadDocuments(t *testing.T) {
	cases := map[string]Document{
		"empty": {},
		"duplicate pair": {Roles: map[string][]Rule{"r": {
			{Permission: ViewPlayers, Resource: ResourcePlayers},
			{Permission: ViewPlayers, Resource: ResourcePlayers, Conditions: []Condition{SameTeam}},
		}}},
		"unknown condition": {Roles: map[string][]Rule{"r": {
			{Permission: ViewPlayers, Resource: ResourcePlayers, Conditions: []Condition{"full_moon"}},
		}}},
		"bad hours": {
			Roles:          map[string][]Rule{"r": {{Permission: ViewPlayers, Resource: ResourcePlayers}}},
			PermittedHours: Hours{Start: 3, End: 30},
		},
		"bad zone": {
			Roles:          map[string][]Rule{"r": {{Permission: ViewPlayers, Resource: ResourcePlayers}}},
			PermittedHours: Hours{Start: 3, End: 5, Location: "Mars/Olympus"},
		},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(doc)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestLoadPolicyYAML(t *testing.T) {
	src := `
permitted_hours:
  start: 22
  end: 6
roles:
  night_guard:
    - permission: VIEW_PLAYERS
      resource: players
      conditions: [within_hours, session_active]
`
	p, err := LoadPolicy(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"night_guard"}, p.Roles())
	assert.Equal(t, []string{"VIEW_PLAYERS"}, p.PermissionsFor("night_guard"))

	late := time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)
	assert.True(t, p.HasPermission("night_guard", ViewPlayers, ResourcePlayers, Context{Now: late, SessionActive: true}).Granted)
	assert.False(t, p.HasPermission("night_guard", ViewPlayers, ResourcePlayers, Context{Now: late}).Granted)

	_, err = LoadPolicy(strings.NewReader("roles: {}\nsurprise: true\n"))
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestPolicyConcurrentReads(t *testing.T) {
	p := DefaultPolicy()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p.HasPermission(RoleCoach, ManageTraining, ResourceTraining, Context{TeamID: "t", TargetTeamID: "t"})
				p.PermissionsFor(RoleFamily)
			}
		}()
	}
	wg.Wait()
}
