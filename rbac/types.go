package rbac

import "time"

// Permission names an action.
type Permission string

const (
	ViewPlayers     Permission = "VIEW_PLAYERS"
	CreatePlayers   Permission = "CREATE_PLAYERS"
	EditPlayers     Permission = "EDIT_PLAYERS"
	DeletePlayers   Permission = "DELETE_PLAYERS"
	ViewTraining    Permission = "VIEW_TRAINING"
	ManageTraining  Permission = "MANAGE_TRAINING"
	ViewMatches     Permission = "VIEW_MATCHES"
	ManageMatches   Permission = "MANAGE_MATCHES"
	ViewStatistics  Permission = "VIEW_STATISTICS"
	EditStatistics  Permission = "EDIT_STATISTICS"
	ViewReports     Permission = "VIEW_REPORTS"
	GenerateReports Permission = "GENERATE_REPORTS"
	ManageUsers     Permission = "MANAGE_USERS"
	ViewProfile     Permission = "VIEW_PROFILE"
	EditProfile     Permission = "EDIT_PROFILE"
	// ApproveAccess lets a coach clear a family member for a team's data.
	ApproveAccess   Permission = "APPROVE_ACCESS"
)

// Resource names what a permission applies to.
type Resource string

const (
	ResourcePlayers    Resource = "players"
	ResourceTraining   Resource = "training"
	ResourceMatches    Resource = "matches"
	ResourceStatistics Resource = "statistics"
	ResourceReports    Resource = "reports"
	ResourceUsers      Resource = "users"
	ResourceProfile    Resource = "profile"
)

// Condition is a contextual predicate a rule may require.
type Condition string

const (
	// OwnData holds when the caller targets their own records.
	OwnData Condition = "own_data"
	// SameTeam holds when caller and target belong to the same team.
	SameTeam Condition = "same_team"
	// ApprovedByCoach holds when a coach approved the access. The engine
	// derives it from its Approvals store.
	ApprovedByCoach Condition = "approved_by_coach"
	// SessionActive holds when the caller's session is active.
	SessionActive Condition = "session_active"
	// WithinHours holds when Context.Now falls inside the policy's permitted
	// hours.
	WithinHours Condition = "within_hours"
)

func (c Condition) known() bool {
	switch c {
	case OwnData, SameTeam, ApprovedByCoach, SessionActive, WithinHours:
		return true
	}
	return false
}

// Role names.
const (
	RoleAdmin  = "admin"
	RoleCoach  = "coach"
	RolePlayer = "player"
	RoleFamily = "family"
)

// Rule grants Permission on Resource when every condition holds.
type Rule struct {
	Permission Permission  `yaml:"permission"`
	Resource   Resource    `yaml:"resource"`
	Conditions []Condition `yaml:"conditions,omitempty"`
}

// Context carries the facts conditions are evaluated against. Missing facts
// make the dependent condition fail.
type Context struct {
	UserID          string
	TargetUserID    string
	TeamID          string
	TargetTeamID    string
	ApprovedByCoach bool
	SessionActive   bool
	Now             time.Time
}

// Reason explains a decision without exposing rule details.
type Reason string

const (
	ReasonGranted         Reason = "granted"
	ReasonNoRule          Reason = "no_rule"
	ReasonUnknownRole     Reason = "unknown_role"
	ReasonConditionFailed Reason = "condition_failed"
)

// Decision is the outcome of an evaluation. FailedCondition is set when
// Reason is ReasonConditionFailed.
type Decision struct {
	Granted         bool
	Reason          Reason
	FailedCondition Condition
}
