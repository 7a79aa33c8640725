package ratelimit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Scope selects which request attribute a rule keys its buckets on.
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeIP       Scope = "ip"
	ScopeUser     Scope = "user"
	ScopeEndpoint Scope = "endpoint"
)

// Request carries the attributes rules are keyed and matched on.
type Request struct {
	IP     string
	UserID string
	Path   string
	Method string
	// Scopes restricts the check to rules of these scopes. Empty means all.
	Scopes []Scope
}

func (r Request) inScope(s Scope) bool {
	if len(r.Scopes) == 0 {
		return true
	}
	for _, want := range r.Scopes {
		if want == s {
			return true
		}
	}
	return false
}

// SubRule overrides its parent rule's limit for matching requests. Path is
// matched exactly, or as a prefix when it ends in "*". An empty Methods list
// matches any method. The highest Priority match wins.
type SubRule struct {
	Name      string    `mapstructure:"name" yaml:"name"`
	Path      string    `mapstructure:"path" yaml:"path"`
	Methods   []string  `mapstructure:"methods" yaml:"methods"`
	Priority  int       `mapstructure:"priority" yaml:"priority"`
	Algorithm Algorithm `mapstructure:"algorithm" yaml:"algorithm"`
	Limit     Limit     `mapstructure:"limit" yaml:"limit"`
}

func (s SubRule) matches(req Request) bool {
	if prefix, ok := strings.CutSuffix(s.Path, "*"); ok {
		if !strings.HasPrefix(req.Path, prefix) {
			return false
		}
	} else if s.Path != req.Path {
		return false
	}
	if len(s.Methods) == 0 {
		return true
	}
	for _, m := range s.Methods {
		if strings.EqualFold(m, req.Method) {
			return true
		}
	}
	return false
}

// Rule is one scoped limit. Rules are evaluated in order and the first
// rejection wins.
type Rule struct {
	Name      string    `mapstructure:"name" yaml:"name"`
	Scope     Scope     `mapstructure:"scope" yaml:"scope"`
	Algorithm Algorithm `mapstructure:"algorithm" yaml:"algorithm"`
	Limit     Limit     `mapstructure:"limit" yaml:"limit"`
	SubRules  []SubRule `mapstructure:"sub_rules" yaml:"sub_rules"`
}

// Validate checks the rule and all of its sub-rules.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: rule name is required", ErrInvalidLimit)
	}
	switch r.Scope {
	case ScopeGlobal, ScopeIP, ScopeUser, ScopeEndpoint:
	default:
		return fmt.Errorf("%w: rule %q has unknown scope %q", ErrInvalidLimit, r.Name, r.Scope)
	}
	if err := r.Limit.Validate(); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	seen := make(map[string]struct{}, len(r.SubRules))
	for _, s := range r.SubRules {
		if s.Name == "" || s.Path == "" {
			return fmt.Errorf("%w: rule %q has a sub-rule without name or path", ErrInvalidLimit, r.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: rule %q has duplicate sub-rule %q", ErrInvalidLimit, r.Name, s.Name)
		}
		seen[s.Name] = struct{}{}
		if err := s.Limit.Validate(); err != nil {
			return fmt.Errorf("rule %q sub-rule %q: %w", r.Name, s.Name, err)
		}
	}
	return nil
}

// scopeKey returns the bucket key for req, or false when the request lacks
// the attribute the scope needs.
func (r Rule) scopeKey(req Request) (string, bool) {
	switch r.Scope {
	case ScopeGlobal:
		return "*", true
	case ScopeIP:
		return req.IP, req.IP != ""
	case ScopeUser:
		return req.UserID, req.UserID != ""
	case ScopeEndpoint:
		if req.Path == "" {
			return "", false
		}
		return strings.ToUpper(req.Method) + " " + req.Path, true
	}
	return "", false
}

// sortedSubRules returns sub-rules by descending priority, ties in
// declaration order.
func (r Rule) sortedSubRules() []SubRule {
	out := append([]SubRule(nil), r.SubRules...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// DefaultLoginLimit allows five login attempts per IP in fifteen minutes.
func DefaultLoginLimit() Limit {
	return Limit{Requests: 5, Window: 15 * time.Minute}
}

// DefaultRules returns the stock rule set: a global token bucket, a per-IP
// sliding window with stricter login and refresh sub-rules, and a per-user
// leaky bucket.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:      "global",
			Scope:     ScopeGlobal,
			Algorithm: AlgorithmTokenBucket,
			Limit:     Limit{Requests: 10000, Window: time.Minute, Burst: 1000, BurstWindow: time.Second},
		},
		{
			Name:      "ip",
			Scope:     ScopeIP,
			Algorithm: AlgorithmSlidingWindow,
			Limit:     Limit{Requests: 300, Window: time.Minute},
			SubRules: []SubRule{
				{
					Name:      "login",
					Path:      "/auth/login",
					Methods:   []string{"POST"},
					Priority:  100,
					Algorithm: AlgorithmFixedWindow,
					Limit:     DefaultLoginLimit(),
				},
				{
					Name:      "refresh",
					Path:      "/auth/refresh",
					Methods:   []string{"POST"},
					Priority:  90,
					Algorithm: AlgorithmFixedWindow,
					Limit:     Limit{Requests: 30, Window: time.Minute},
				},
			},
		},
		{
			Name:      "user",
			Scope:     ScopeUser,
			Algorithm: AlgorithmLeakyBucket,
			Limit:     Limit{Requests: 600, Window: time.Minute},
		},
	}
}
