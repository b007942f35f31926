package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// SQLStore implements Store over database/sql with the lib/pq driver.
// It serves deployments that already hand out a *sql.DB; the table layout
// matches PostgresStore.
type SQLStore struct {
	db    *sql.DB
	table string
}

// SQLOption configures an SQLStore.
type SQLOption func(*SQLStore) error

// WithTable overrides the users table name (default "users").
func WithTable(name string) SQLOption {
	return func(s *SQLStore) error {
		name = strings.TrimSpace(name)
		if !pgIdentIsValid(name) {
			return fmt.Errorf("identity: invalid table identifier")
		}
		s.table = name
		return nil
	}
}

// NewSQLStore constructs the store and ensures its table exists.
func NewSQLStore(ctx context.Context, db *sql.DB, opts ...SQLOption) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: database is required")
	}
	s := &SQLStore{db: db, table: "users"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	q := `
CREATE TABLE IF NOT EXISTS ` + pq.QuoteIdentifier(s.table) + ` (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	account_expired BOOLEAN NOT NULL DEFAULT FALSE,
	account_locked BOOLEAN NOT NULL DEFAULT FALSE,
	credentials_expired BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure %s schema: %w", s.table, err)
	}
	return nil
}

// FindByUsername implements Store.
func (s *SQLStore) FindByUsername(ctx context.Context, username string) (User, error) {
	const op = "identity.SQLStore.FindByUsername"

	norm, ok := lookupKey(username)
	if !ok {
		return User{}, userNotFound(op)
	}

	q := `SELECT id, username, password_hash, role, enabled, account_expired, account_locked, credentials_expired, created_at FROM ` +
		pq.QuoteIdentifier(s.table) + ` WHERE username = $1`

	var u User
	err := s.db.QueryRowContext(ctx, q, norm).Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Role,
		&u.Status.Enabled,
		&u.Status.Expired,
		&u.Status.Locked,
		&u.Status.CredentialsExpired,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return User{}, ctxErr
		}
		return User{}, unavailable(op, err)
	}
	return u, nil
}

// ExistsByUsername implements Store.
func (s *SQLStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	const op = "identity.SQLStore.ExistsByUsername"

	norm, ok := lookupKey(username)
	if !ok {
		return false, nil
	}

	q := `SELECT EXISTS (SELECT 1 FROM ` + pq.QuoteIdentifier(s.table) + ` WHERE username = $1)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, q, norm).Scan(&exists); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, unavailable(op, err)
	}
	return exists, nil
}

// CreateUser implements Store.
func (s *SQLStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.SQLStore.CreateUser"

	u, err := prepareUser(op, in)
	if err != nil {
		return User{}, err
	}

	q := `INSERT INTO ` + pq.QuoteIdentifier(s.table) + ` (id, username, password_hash, role, enabled, account_expired, account_locked, credentials_expired, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := s.db.ExecContext(ctx, q,
		u.ID,
		u.Username,
		u.PasswordHash,
		u.Role,
		u.Status.Enabled,
		u.Status.Expired,
		u.Status.Locked,
		u.Status.CredentialsExpired,
		u.CreatedAt,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return User{}, ConflictError{Op: op, Field: classifyConstraint(pqErr.Constraint)}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return User{}, ctxErr
		}
		return User{}, unavailable(op, err)
	}

	return u, nil
}
