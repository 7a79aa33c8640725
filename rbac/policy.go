package rbac

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is returned when a policy document cannot be compiled.
var ErrInvalidPolicy = errors.New("invalid rbac policy")

// maxPermissions is the width of a role's permission mask.
const maxPermissions = 64

// Hours is a daily window [Start, End) in hours, evaluated in Location (an
// IANA zone name, UTC when empty). Start > End wraps past midnight.
type Hours struct {
	Start    int    `yaml:"start"`
	End      int    `yaml:"end"`
	Location string `yaml:"location,omitempty"`
}

// Document is the serialisable form of a policy.
type Document struct {
	Roles          map[string][]Rule `yaml:"roles"`
	PermittedHours Hours             `yaml:"permitted_hours"`
}

type rolePolicy struct {
	rules []Rule
	mask  uint64
}

// Policy is a compiled, immutable permission table. It is safe for
// concurrent use.
type Policy struct {
	roles map[string]*rolePolicy
	bits  map[Permission]uint
	hours Hours
	loc   *time.Location
}

// Compile validates doc and builds a Policy. A role may not list the same
// (permission, resource) pair twice and conditions must be known.
func Compile(doc Document) (*Policy, error) {
	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("%w: no roles", ErrInvalidPolicy)
	}

	loc := time.UTC
	if doc.PermittedHours.Location != "" {
		l, err := time.LoadLocation(doc.PermittedHours.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: permitted_hours location: %v", ErrInvalidPolicy, err)
		}
		loc = l
	}
	h := doc.PermittedHours
	if h.Start < 0 || h.Start > 24 || h.End < 0 || h.End > 24 {
		return nil, fmt.Errorf("%w: permitted_hours must be within 0..24", ErrInvalidPolicy)
	}

	p := &Policy{
		roles: make(map[string]*rolePolicy, len(doc.Roles)),
		bits:  make(map[Permission]uint),
		hours: h,
		loc:   loc,
	}

	for role, rules := range doc.Roles {
		if role == "" {
			return nil, fmt.Errorf("%w: empty role name", ErrInvalidPolicy)
		}
		rp := &rolePolicy{rules: make([]Rule, 0, len(rules))}
		seen := make(map[[2]string]struct{}, len(rules))

		for _, r := range rules {
			if r.Permission == "" || r.Resource == "" {
				return nil, fmt.Errorf("%w: role %q has a rule without permission or resource", ErrInvalidPolicy, role)
			}
			pair := [2]string{string(r.Permission), string(r.Resource)}
			if _, dup := seen[pair]; dup {
				return nil, fmt.Errorf("%w: role %q lists %s on %s twice", ErrInvalidPolicy, role, r.Permission, r.Resource)
			}
			seen[pair] = struct{}{}
			for _, c := range r.Conditions {
				if !c.known() {
					return nil, fmt.Errorf("%w: role %q uses unknown condition %q", ErrInvalidPolicy, role, c)
				}
			}

			bit, err := p.bit(r.Permission)
			if err != nil {
				return nil, err
			}
			rp.mask |= 1 << bit
			rp.rules = append(rp.rules, Rule{
				Permission: r.Permission,
				Resource:   r.Resource,
				Conditions: append([]Condition(nil), r.Conditions...),
			})
		}
		p.roles[role] = rp
	}
	return p, nil
}

func (p *Policy) bit(perm Permission) (uint, error) {
	if b, ok := p.bits[perm]; ok {
		return b, nil
	}
	if len(p.bits) >= maxPermissions {
		return 0, fmt.Errorf("%w: more than %d distinct permissions", ErrInvalidPolicy, maxPermissions)
	}
	b := uint(len(p.bits))
	p.bits[perm] = b
	return b, nil
}

// LoadPolicy reads a YAML policy document and compiles it. Unknown fields
// are rejected.
func LoadPolicy(r io.Reader) (*Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return Compile(doc)
}

// HasPermission reports whether role may perform perm on resource under
// ctx. The first rule matching (perm, resource) decides; its conditions are
// checked in order and the first failure denies.
func (p *Policy) HasPermission(role string, perm Permission, resource Resource, ctx Context) Decision {
	rp, ok := p.roles[role]
	if !ok {
		return Decision{Reason: ReasonUnknownRole}
	}
	bit, ok := p.bits[perm]
	if !ok || rp.mask&(1<<bit) == 0 {
		return Decision{Reason: ReasonNoRule}
	}

	for i := range rp.rules {
		r := &rp.rules[i]
		if r.Permission != perm || r.Resource != resource {
			continue
		}
		return p.evaluate(r, ctx)
	}
	return Decision{Reason: ReasonNoRule}
}

// Requires reports whether the rule deciding (perm, resource) for role
// carries condition c. Callers use it to skip fetching facts the decision
// cannot depend on.
func (p *Policy) Requires(role string, perm Permission, resource Resource, c Condition) bool {
	rp, ok := p.roles[role]
	if !ok {
		return false
	}
	for i := range rp.rules {
		r := &rp.rules[i]
		if r.Permission != perm || r.Resource != resource {
			continue
		}
		for _, rc := range r.Conditions {
			if rc == c {
				return true
			}
		}
		return false
	}
	return false
}

// CanAccessResource reports whether any of role's rules on resource grants
// under ctx. When none grants, the decision of the last rule tried is
// returned.
func (p *Policy) CanAccessResource(role string, resource Resource, ctx Context) Decision {
	rp, ok := p.roles[role]
	if !ok {
		return Decision{Reason: ReasonUnknownRole}
	}

	last := Decision{Reason: ReasonNoRule}
	for i := range rp.rules {
		r := &rp.rules[i]
		if r.Resource != resource {
			continue
		}
		d := p.evaluate(r, ctx)
		if d.Granted {
			return d
		}
		last = d
	}
	return last
}

func (p *Policy) evaluate(r *Rule, ctx Context) Decision {
	for _, c := range r.Conditions {
		if !p.holds(c, ctx) {
			return Decision{Reason: ReasonConditionFailed, FailedCondition: c}
		}
	}
	return Decision{Granted: true, Reason: ReasonGranted}
}

func (p *Policy) holds(c Condition, ctx Context) bool {
	switch c {
	case OwnData:
		return ctx.UserID != "" && ctx.UserID == ctx.TargetUserID
	case SameTeam:
		return ctx.TeamID != "" && ctx.TeamID == ctx.TargetTeamID
	case ApprovedByCoach:
		return ctx.ApprovedByCoach
	case SessionActive:
		return ctx.SessionActive
	case WithinHours:
		return p.withinHours(ctx.Now)
	}
	return false
}

func (p *Policy) withinHours(now time.Time) bool {
	if now.IsZero() || p.hours.Start == p.hours.End {
		return false
	}
	hour := now.In(p.loc).Hour()
	if p.hours.Start < p.hours.End {
		return hour >= p.hours.Start && hour < p.hours.End
	}
	return hour >= p.hours.Start || hour < p.hours.End
}

// PermissionsFor returns the distinct permissions role has any rule for,
// sorted. Conditional grants are included; the list is a snapshot for token
// claims, not an authorization decision.
func (p *Policy) PermissionsFor(role string) []string {
	rp, ok := p.roles[role]
	if !ok {
		return nil
	}
	set := make(map[Permission]struct{}, len(rp.rules))
	for _, r := range rp.rules {
		set[r.Permission] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for perm := range set {
		out = append(out, string(perm))
	}
	sort.Strings(out)
	return out
}

// HasRole reports whether role is defined.
func (p *Policy) HasRole(role string) bool {
	_, ok := p.roles[role]
	return ok
}

// Roles returns the defined role names, sorted.
func (p *Policy) Roles() []string {
	out := make([]string, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
