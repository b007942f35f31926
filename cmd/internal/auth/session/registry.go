package session

import (
	"context"
	"time"

	"roleguard/cmd/security/token"

	"github.com/google/uuid"
)

// Principal is the authenticated identity a session is admitted for.
type Principal struct {
	Username string
	Role     string
}

// Session is a live authenticated session.
type Session struct {
	// ID is the bearer id. It is set on admission and resolve only; listings
	// leave it empty.
	ID string
	// Handle is a non-secret digest of ID, safe for logs and listings.
	Handle    string
	Username  string
	Role      string
	CreatedAt time.Time
	// ExpiresAt is zero when sessions do not expire.
	ExpiresAt time.Time
}

// Expired reports whether s has a deadline at or before now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Admission is the outcome of Registry.Admit.
type Admission struct {
	// Admitted is false when the cap blocked the login.
	Admitted bool
	Session  Session
	// Evicted lists the handles of sessions removed to make room.
	Evicted []string
}

// Registry tracks live sessions.
//
// Contract:
//   - Admit is atomic per username.
//   - Resolve returns ErrSessionNotFound for unknown or expired ids.
//   - Invalidate is idempotent and never fails for an unknown id.
//   - Active lists live sessions for a username, oldest first.
type Registry interface {
	Admit(ctx context.Context, p Principal) (Admission, error)
	Resolve(ctx context.Context, id string) (Session, error)
	Invalidate(ctx context.Context, id string) error
	Active(ctx context.Context, username string) ([]Session, error)
}

// Option configures a registry.
type Option func(*options)

type options struct {
	now    func() time.Time
	hasher token.Hasher
	prefix string
	schema string
}

func defaultOptions() options {
	return options{
		now:    func() time.Time { return time.Now().UTC() },
		prefix: "roleguard",
		schema: "roleguard",
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHasher sets the digest used for session handles and storage keys.
func WithHasher(h token.Hasher) Option {
	return func(o *options) { o.hasher = h }
}

// WithKeyPrefix sets the Redis key prefix (default "roleguard").
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithSchema sets the Postgres schema (default "roleguard").
func WithSchema(schema string) Option {
	return func(o *options) {
		if schema != "" {
			o.schema = schema
		}
	}
}

func newSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func expiresAt(cfg Config, now time.Time) time.Time {
	if cfg.TTL <= 0 {
		return time.Time{}
	}
	return now.Add(cfg.TTL)
}
