// Package policy loads the startup authorization policy: the ordered rule
// table, the role hierarchy and the users seeded into the in-memory store.
package policy

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"roleguard/cmd/identity"
	"roleguard/cmd/internal/auth/access"
	"roleguard/cmd/internal/auth/rolehier"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrBadPolicy reports a structurally invalid policy document.
var ErrBadPolicy = errors.New("bad policy")

// Error locates a policy problem by field path, e.g. "rules[2].access".
type Error struct {
	Field string
	Err   error
}

func (e Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("policy: %v", e.Err)
	}
	return fmt.Sprintf("policy: %s: %v", e.Field, e.Err)
}

func (e Error) Unwrap() error { return e.Err }

// File is the YAML document shape.
type File struct {
	Default   string     `yaml:"default"`
	Rules     []RuleSpec `yaml:"rules"`
	Hierarchy string     `yaml:"hierarchy"`
	Users     []UserSpec `yaml:"users"`
}

// RuleSpec is one entry of the rule table. Access is "public",
// "authenticated" or empty; a non-empty Roles list means any-of-roles.
type RuleSpec struct {
	Patterns []string `yaml:"patterns"`
	Access   string   `yaml:"access"`
	Roles    []string `yaml:"roles"`
}

// UserSpec seeds one account. Exactly one of Password and PasswordHash is set.
type UserSpec struct {
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	PasswordHash       string `yaml:"password_hash"`
	Role               string `yaml:"role"`
	Disabled           bool   `yaml:"disabled"`
	Locked             bool   `yaml:"locked"`
	Expired            bool   `yaml:"expired"`
	CredentialsExpired bool   `yaml:"credentials_expired"`
}

// Policy is a validated, compiled policy.
type Policy struct {
	Engine    *access.Engine
	Hierarchy *rolehier.Hierarchy
	Users     []UserSpec
}

// Hasher produces stored password digests for seeded users.
type Hasher interface {
	Hash(password string) (string, error)
}

// Default returns the built-in reference policy.
func Default() (*Policy, error) {
	return Parse(defaultYAML)
}

// Load reads the policy at path, or the built-in default when path is empty.
func Load(path string) (*Policy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path.
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and compiles a YAML policy. Unknown fields are rejected.
func Parse(data []byte) (*Policy, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, Error{Err: fmt.Errorf("%w: %v", ErrBadPolicy, err)}
	}
	return f.Compile()
}

// Compile validates f and builds the engine and hierarchy.
func (f File) Compile() (*Policy, error) {
	def, err := parseDefault(f.Default)
	if err != nil {
		return nil, Error{Field: "default", Err: err}
	}

	rules := make([]access.Rule, 0, len(f.Rules))
	for i, rs := range f.Rules {
		req, err := rs.requirement()
		if err != nil {
			return nil, Error{Field: fmt.Sprintf("rules[%d]", i), Err: err}
		}
		rules = append(rules, access.Rule{Patterns: rs.Patterns, Requirement: req})
	}

	engine, err := access.New(rules, access.WithDefault(def))
	if err != nil {
		return nil, Error{Field: "rules", Err: err}
	}

	pairs, err := rolehier.Parse(f.Hierarchy)
	if err != nil {
		return nil, Error{Field: "hierarchy", Err: err}
	}
	hier, err := rolehier.New(pairs)
	if err != nil {
		return nil, Error{Field: "hierarchy", Err: err}
	}

	seen := make(map[string]struct{}, len(f.Users))
	for i, u := range f.Users {
		field := fmt.Sprintf("users[%d]", i)
		name := identity.NormalizeUsername(u.Username)
		if err := identity.ValidateUsername(name); err != nil {
			return nil, Error{Field: field + ".username", Err: err}
		}
		if _, dup := seen[name]; dup {
			return nil, Error{Field: field + ".username", Err: fmt.Errorf("%w: duplicate user %q", ErrBadPolicy, name)}
		}
		seen[name] = struct{}{}

		if (u.Password == "") == (u.PasswordHash == "") {
			return nil, Error{Field: field, Err: fmt.Errorf("%w: exactly one of password and password_hash is required", ErrBadPolicy)}
		}
		if rolehier.Canonical(u.Role) == "" {
			return nil, Error{Field: field + ".role", Err: fmt.Errorf("%w: role is required", ErrBadPolicy)}
		}
	}

	return &Policy{Engine: engine, Hierarchy: hier, Users: f.Users}, nil
}

// Seed creates the policy's users that store does not hold yet, so it is
// safe to run against a persistent store on every start. Plaintext
// passwords are hashed with h; password_hash values are stored as given.
func (p *Policy) Seed(ctx context.Context, store identity.Store, h Hasher) error {
	for i, u := range p.Users {
		exists, err := store.ExistsByUsername(ctx, u.Username)
		if err != nil {
			return fmt.Errorf("policy: seed %q: %w", u.Username, err)
		}
		if exists {
			continue
		}

		digest := u.PasswordHash
		if digest == "" {
			if digest, err = h.Hash(u.Password); err != nil {
				return Error{Field: fmt.Sprintf("users[%d].password", i), Err: err}
			}
		}

		status := identity.AccountStatus{
			Enabled:            !u.Disabled,
			Expired:            u.Expired,
			Locked:             u.Locked,
			CredentialsExpired: u.CredentialsExpired,
		}
		if _, err := store.CreateUser(ctx, identity.CreateUserInput{
			Username:     u.Username,
			PasswordHash: digest,
			Role:         rolehier.Canonical(u.Role),
			Status:       &status,
		}); err != nil {
			return fmt.Errorf("policy: seed %q: %w", u.Username, err)
		}
	}
	return nil
}

// MemoryStore returns a fresh in-memory store holding the policy's users.
func (p *Policy) MemoryStore(ctx context.Context, h Hasher) (*identity.MemoryStore, error) {
	s := identity.NewMemoryStore()
	if err := p.Seed(ctx, s, h); err != nil {
		return nil, err
	}
	return s, nil
}

func parseDefault(s string) (access.Requirement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "authenticated":
		return access.Authenticated(), nil
	case "public", "permit_all", "permitall":
		return access.Public(), nil
	default:
		return access.Requirement{}, fmt.Errorf("%w: unknown default %q", ErrBadPolicy, s)
	}
}

func (rs RuleSpec) requirement() (access.Requirement, error) {
	a := strings.ToLower(strings.TrimSpace(rs.Access))
	switch {
	case len(rs.Roles) > 0 && (a == "" || a == "roles"):
		return access.AnyRole(rs.Roles...), nil
	case len(rs.Roles) > 0:
		return access.Requirement{}, fmt.Errorf("%w: roles cannot be combined with access %q", ErrBadPolicy, rs.Access)
	case a == "public" || a == "permit_all" || a == "permitall":
		return access.Public(), nil
	case a == "authenticated":
		return access.Authenticated(), nil
	case a == "":
		return access.Requirement{}, fmt.Errorf("%w: access or roles is required", ErrBadPolicy)
	default:
		return access.Requirement{}, fmt.Errorf("%w: unknown access %q", ErrBadPolicy, rs.Access)
	}
}
