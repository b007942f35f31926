package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"roleguard/cmd/identity"
	"roleguard/cmd/internal/auth/access"
	"roleguard/cmd/internal/auth/rolehier"
	"roleguard/cmd/internal/auth/session"
)

// Hasher hashes and verifies passwords. password.Config satisfies it.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) (bool, error)
}

// digestMatcher is implemented by hashers that can tell the cost profile of
// a stored digest and produce a digest with the same profile.
// password.Config satisfies it.
type digestMatcher interface {
	Profile(encodedHash string) string
	HashLike(encodedHash, password string) (string, error)
}

const (
	dummyPassword = "dummy-password-for-timing-only"

	// maxDummyProfiles bounds the cache of per-profile dummy digests.
	maxDummyProfiles = 8
)

// Core is the authentication core. It is safe for concurrent use.
type Core struct {
	store    identity.Store
	hasher   Hasher
	hier     *rolehier.Hierarchy
	engine   *access.Engine
	registry session.Registry

	log *slog.Logger
	obs Observer
	now func() time.Time

	// Miss paths verify against dummyHash. Unless it was fixed with
	// WithDummyHash it follows the profile of the last stored digest seen.
	dummyMu      sync.RWMutex
	dummyHash    string
	dummyProfile string
	dummyFixed   bool
	dummies      map[string]string
	samples      []string
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger (slog.Default when unset).
func WithLogger(l *slog.Logger) Option {
	return func(c *Core) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Core) {
		if o != nil {
			c.obs = o
		}
	}
}

// WithClock overrides the time source used for timing logs.
func WithClock(now func() time.Time) Option {
	return func(c *Core) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDummyHash fixes the digest verified on the miss paths. Use a digest
// produced with the same algorithm and cost as the stored credentials.
func WithDummyHash(digest string) Option {
	return func(c *Core) {
		c.dummyHash = digest
		c.dummyFixed = digest != ""
	}
}

// WithStoredDigest primes the miss-path dummy with the profile of a digest
// known to be in the store, before any login has looked one up.
func WithStoredDigest(digest string) Option {
	return func(c *Core) {
		if digest != "" {
			c.samples = append(c.samples, digest)
		}
	}
}

// New wires a Core. All collaborators are required.
func New(
	store identity.Store,
	hasher Hasher,
	hier *rolehier.Hierarchy,
	engine *access.Engine,
	registry session.Registry,
	opts ...Option,
) (*Core, error) {
	if store == nil || hasher == nil || engine == nil || registry == nil {
		return nil, errors.New("gate: missing collaborator")
	}

	c := &Core{
		store:    store,
		hasher:   hasher,
		hier:     hier,
		engine:   engine,
		registry: registry,
		log:      slog.Default(),
		obs:      nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	// Dummy hash for timing-resistant login checks.
	if c.dummyHash == "" {
		h, err := hasher.Hash(dummyPassword)
		if err != nil {
			return nil, fmt.Errorf("gate: dummy hash: %w", err)
		}
		c.dummyHash = h
	}
	c.dummies = make(map[string]string, maxDummyProfiles)
	if m, ok := hasher.(digestMatcher); ok && !c.dummyFixed {
		if p := m.Profile(c.dummyHash); p != "" {
			c.dummyProfile = p
			c.dummies[p] = c.dummyHash
		}
		for _, d := range c.samples {
			c.noteDigest(d)
		}
	}
	c.samples = nil

	return c, nil
}

// missDigest returns the digest the miss paths verify against.
func (c *Core) missDigest() string {
	c.dummyMu.RLock()
	defer c.dummyMu.RUnlock()
	return c.dummyHash
}

// noteDigest switches the miss-path dummy to the profile of a stored digest,
// so unknown users cost the same as wrong passwords for the credentials the
// store actually holds. Malformed digests are ignored.
func (c *Core) noteDigest(stored string) {
	m, ok := c.hasher.(digestMatcher)
	if !ok || c.dummyFixed {
		return
	}
	p := m.Profile(stored)
	if p == "" {
		return
	}

	c.dummyMu.RLock()
	current := c.dummyProfile
	d, known := c.dummies[p]
	c.dummyMu.RUnlock()
	if p == current {
		return
	}

	if !known {
		var err error
		if d, err = m.HashLike(stored, dummyPassword); err != nil {
			return
		}
	}

	c.dummyMu.Lock()
	if !known && len(c.dummies) < maxDummyProfiles {
		c.dummies[p] = d
	}
	c.dummyHash = d
	c.dummyProfile = p
	c.dummyMu.Unlock()
}

// Login verifies credentials and admits a session.
//
// The error return is non-nil only when ctx ends; every other failure is
// reported through LoginResult.Outcome. A cancelled ctx never leaves a
// session behind.
func (c *Core) Login(ctx context.Context, username, password string) (LoginResult, error) {
	start := c.now()

	if err := ctx.Err(); err != nil {
		return LoginResult{}, err
	}

	u, err := c.store.FindByUsername(ctx, username)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return LoginResult{}, ctxErr
		}
		if identity.IsNotFound(err) {
			// Timing resistance: perform a dummy verify when user is missing.
			_, _ = c.hasher.Verify(c.missDigest(), password)
			return c.reject(OutcomeInvalidCredentials, "not_found", username, start), nil
		}
		c.log.Error("auth.login.store.fail", "err", err)
		return c.reject(OutcomeServiceUnavailable, "store_unavailable", username, start), nil
	}

	c.noteDigest(u.PasswordHash)

	ok, err := c.hasher.Verify(u.PasswordHash, password)
	if err != nil {
		_, _ = c.hasher.Verify(c.missDigest(), password)
		c.log.Warn("auth.login.hash.invalid", "user_id", u.ID, "err", err)
		return c.reject(OutcomeInvalidCredentials, "bad_hash", username, start), nil
	}
	if !ok {
		return c.reject(OutcomeInvalidCredentials, "bad_password", username, start), nil
	}
	if !u.Status.Usable() {
		return c.reject(OutcomeInvalidCredentials, "account_unusable", username, start), nil
	}

	// Hashing is slow; do not commit a session for a caller that gave up.
	if err := ctx.Err(); err != nil {
		return LoginResult{}, err
	}

	role := rolehier.Canonical(u.Role)
	adm, err := c.registry.Admit(ctx, session.Principal{Username: u.Username, Role: role})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return LoginResult{}, ctxErr
		}
		c.log.Error("auth.login.admit.fail", "err", err)
		return c.reject(OutcomeServiceUnavailable, "registry_unavailable", username, start), nil
	}
	if !adm.Admitted {
		return c.reject(OutcomeSessionLimitExceeded, "session_limit", username, start), nil
	}

	if n := len(adm.Evicted); n > 0 {
		c.obs.Evicted(n)
		c.log.Info("auth.session.evicted", "username", u.Username, "count", n)
	}

	c.obs.LoginAttempt(OutcomeSuccess)
	c.log.Info("auth.login.success",
		"username", u.Username,
		"role", role,
		"session", shortHandle(adm.Session.Handle),
		"dur_ms", c.now().Sub(start).Milliseconds(),
	)

	return LoginResult{
		Outcome:   OutcomeSuccess,
		SessionID: adm.Session.ID,
		Username:  u.Username,
		Role:      role,
	}, nil
}

func (c *Core) reject(o Outcome, reason, username string, start time.Time) LoginResult {
	c.obs.LoginAttempt(o)
	c.log.Info("auth.login.failed",
		"outcome", o.String(),
		"reason", reason,
		"identifier", identity.NormalizeUsername(username),
		"dur_ms", c.now().Sub(start).Milliseconds(),
	)
	return LoginResult{Outcome: o}
}

// Authorize decides whether the session may access path.
//
// An empty, unknown or expired session id is treated as unauthenticated.
// Registry failures are returned as errors together with the decision an
// unauthenticated caller would get, so public paths can still be served.
func (c *Core) Authorize(ctx context.Context, sessionID, path string) (access.Decision, error) {
	p, found, err := c.Principal(ctx, sessionID)
	if err != nil {
		d := c.engine.Decide(path, false, nil)
		c.obs.Decision(d)
		return d, err
	}
	if !found {
		d := c.engine.Decide(path, false, nil)
		c.obs.Decision(d)
		return d, nil
	}

	res := c.engine.Evaluate(path, true, p.Roles)
	c.obs.Decision(res.Decision)
	if res.Decision != access.Allow {
		c.log.Debug("auth.authorize.deny",
			"username", p.Username,
			"path", path,
			"decision", res.Decision.String(),
			"rule", res.Rule,
		)
	}
	return res.Decision, nil
}

// Principal resolves a session id to its identity and expanded roles.
// found is false for empty, unknown or expired ids.
func (c *Core) Principal(ctx context.Context, sessionID string) (Principal, bool, error) {
	if sessionID == "" {
		return Principal{}, false, nil
	}

	s, err := c.registry.Resolve(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return Principal{}, false, nil
	}
	if err != nil {
		c.log.Error("auth.session.resolve.fail", "err", err)
		return Principal{}, false, err
	}

	return Principal{
		Username:  s.Username,
		Role:      s.Role,
		Roles:     c.hier.Expand(s.Role),
		Handle:    s.Handle,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}, true, nil
}

// Logout invalidates the session. Unknown ids are not an error.
func (c *Core) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := c.registry.Invalidate(ctx, sessionID); err != nil {
		c.log.Error("auth.logout.fail", "err", err)
		return err
	}
	c.log.Info("auth.logout")
	return nil
}

// Sessions lists the live sessions held by username.
func (c *Core) Sessions(ctx context.Context, username string) ([]session.Session, error) {
	return c.registry.Active(ctx, identity.NormalizeUsername(username))
}

// Register provisions a new account with role. It does not log the user in.
// An existing username yields an identity.ConflictError; password policy
// violations are returned unchanged from the hasher.
func (c *Core) Register(ctx context.Context, username, password, role string) (identity.User, error) {
	const op = "gate.Register"

	name := identity.NormalizeUsername(username)
	if err := identity.ValidateUsername(name); err != nil {
		return identity.User{}, err
	}

	exists, err := c.store.ExistsByUsername(ctx, name)
	if err != nil {
		return identity.User{}, err
	}
	if exists {
		return identity.User{}, identity.ConflictError{Op: op, Field: "username"}
	}

	digest, err := c.hasher.Hash(password)
	if err != nil {
		return identity.User{}, err
	}

	u, err := c.store.CreateUser(ctx, identity.CreateUserInput{
		Username:     name,
		PasswordHash: digest,
		Role:         rolehier.Canonical(role),
	})
	if err != nil {
		return identity.User{}, err
	}

	c.log.Info("auth.register.success", "username", u.Username, "role", u.Role, "user_id", u.ID)
	return u, nil
}

func shortHandle(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
