package access

import (
	"path"
	"strings"

	"roleguard/cmd/internal/auth/rolehier"
)

// Decision is the outcome of an access check.
type Decision int

const (
	// DenyUnauthenticated means the caller must authenticate first.
	DenyUnauthenticated Decision = iota
	// DenyForbidden means the caller is authenticated but lacks a required role.
	DenyForbidden
	// Allow means the request may proceed.
	Allow
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	case DenyForbidden:
		return "deny_forbidden"
	default:
		return "unknown"
	}
}

// Result explains a decision.
type Result struct {
	Decision Decision
	// Rule is the index of the matching rule, or -1 when the default applied.
	Rule    int
	Pattern string
}

type compiledRule struct {
	matchers []matcher
	req      Requirement
}

// Engine evaluates rules in declared order.
type Engine struct {
	rules []compiledRule
	def   Requirement
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefault sets the requirement applied when no rule matches
// (Authenticated unless set).
func WithDefault(r Requirement) Option {
	return func(e *Engine) { e.def = r }
}

// New compiles rules. Any bad pattern or unsatisfiable requirement yields a
// ConfigError.
func New(rules []Rule, opts ...Option) (*Engine, error) {
	e := &Engine{def: Authenticated()}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if err := e.def.validate(); err != nil {
		return nil, ConfigError{Rule: -1, Err: err}
	}

	e.rules = make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if err := r.Requirement.validate(); err != nil {
			return nil, ConfigError{Rule: i, Err: err}
		}
		if len(r.Patterns) == 0 {
			return nil, ConfigError{Rule: i, Err: ErrBadPattern}
		}
		cr := compiledRule{req: r.Requirement}
		for _, p := range r.Patterns {
			m, err := compilePattern(p)
			if err != nil {
				return nil, ConfigError{Rule: i, Pattern: p, Err: err}
			}
			cr.matchers = append(cr.matchers, m)
		}
		e.rules = append(e.rules, cr)
	}
	return e, nil
}

// Decide returns the access decision for path.
// roles are the caller's effective roles (already expanded).
func (e *Engine) Decide(p string, authenticated bool, roles []string) Decision {
	return e.Evaluate(p, authenticated, roles).Decision
}

// Evaluate is Decide plus the rule that produced the decision.
func (e *Engine) Evaluate(p string, authenticated bool, roles []string) Result {
	p = cleanPath(p)

	for i, r := range e.rules {
		for _, m := range r.matchers {
			if m.match(p) {
				return Result{
					Decision: check(r.req, authenticated, roles),
					Rule:     i,
					Pattern:  m.raw,
				}
			}
		}
	}
	return Result{Decision: check(e.def, authenticated, roles), Rule: -1}
}

// Len returns the number of rules.
func (e *Engine) Len() int { return len(e.rules) }

func check(req Requirement, authenticated bool, roles []string) Decision {
	switch req.Kind {
	case KindPublic:
		return Allow
	case KindAuthenticated:
		if !authenticated {
			return DenyUnauthenticated
		}
		return Allow
	case KindAnyRole:
		if !authenticated {
			return DenyUnauthenticated
		}
		for _, have := range roles {
			have = rolehier.Canonical(have)
			for _, want := range req.Roles {
				if have == want {
					return Allow
				}
			}
		}
		return DenyForbidden
	default:
		return DenyUnauthenticated
	}
}

// cleanPath resolves dot segments and trailing slashes so neither
// "/x/../admin" nor "/admin/" can dodge an exact "/admin" rule.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
