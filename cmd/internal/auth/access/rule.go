package access

import (
	"fmt"
	"path"
	"strings"

	"roleguard/cmd/internal/auth/rolehier"
)

// Kind is the requirement kind of a rule.
type Kind int

const (
	// KindAuthenticated requires any authenticated session.
	KindAuthenticated Kind = iota
	// KindPublic allows everyone.
	KindPublic
	// KindAnyRole requires a session holding at least one of Roles.
	KindAnyRole
)

func (k Kind) String() string {
	switch k {
	case KindPublic:
		return "public"
	case KindAuthenticated:
		return "authenticated"
	case KindAnyRole:
		return "any_role"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Requirement is what a caller must satisfy for a rule to allow.
type Requirement struct {
	Kind  Kind
	Roles []string // canonical; used by KindAnyRole only
}

// Public allows unauthenticated callers.
func Public() Requirement { return Requirement{Kind: KindPublic} }

// Authenticated allows any authenticated caller.
func Authenticated() Requirement { return Requirement{Kind: KindAuthenticated} }

// AnyRole allows authenticated callers holding at least one of roles.
func AnyRole(roles ...string) Requirement {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if c := rolehier.Canonical(r); c != "" {
			out = append(out, c)
		}
	}
	return Requirement{Kind: KindAnyRole, Roles: out}
}

func (r Requirement) String() string {
	if r.Kind == KindAnyRole {
		return "any_role(" + strings.Join(r.Roles, ",") + ")"
	}
	return r.Kind.String()
}

func (r Requirement) validate() error {
	switch r.Kind {
	case KindPublic, KindAuthenticated:
		return nil
	case KindAnyRole:
		if len(r.Roles) == 0 {
			return ErrBadRequirement
		}
		return nil
	default:
		return ErrBadRequirement
	}
}

// Rule binds one or more path patterns to a requirement.
//
// Patterns:
//   - exact:   "/admin" matches only "/admin"
//   - subtree: "/my/**" matches "/my" and every path below "/my/"
//   - all:     "/**" matches every path
type Rule struct {
	Patterns    []string
	Requirement Requirement
}

type matcher struct {
	raw    string
	prefix string
	tree   bool
}

func compilePattern(p string) (matcher, error) {
	if p == "" || !strings.HasPrefix(p, "/") {
		return matcher{}, ErrBadPattern
	}
	if p == "/**" {
		return matcher{raw: p, prefix: "", tree: true}, nil
	}
	if strings.HasSuffix(p, "/**") {
		prefix := strings.TrimSuffix(p, "/**")
		if strings.Contains(prefix, "*") || prefix != path.Clean(prefix) {
			return matcher{}, ErrBadPattern
		}
		return matcher{raw: p, prefix: prefix, tree: true}, nil
	}
	if strings.Contains(p, "*") || p != path.Clean(p) {
		return matcher{}, ErrBadPattern
	}
	return matcher{raw: p, prefix: p}, nil
}

func (m matcher) match(path string) bool {
	if !m.tree {
		return path == m.prefix
	}
	if m.prefix == "" {
		return true
	}
	return path == m.prefix || strings.HasPrefix(path, m.prefix+"/")
}
