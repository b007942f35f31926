package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL via pgx.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Usernames are stored normalized; the unique constraint enforces case-insensitivity.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the Postgres schema used when none is configured.
const DefaultSchema = "roleguard"

// WithSchema sets the Postgres schema used by the store (default "roleguard").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// UsersDDL returns the DDL for the users table inside schema.
func UsersDDL(schema string) string {
	users := pgIdent(schema, "users")
	return `
CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{schema}.Sanitize() + `;

CREATE TABLE IF NOT EXISTS ` + users + ` (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  enabled BOOLEAN NOT NULL DEFAULT TRUE,
  account_expired BOOLEAN NOT NULL DEFAULT FALSE,
  account_locked BOOLEAN NOT NULL DEFAULT FALSE,
  credentials_expired BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_users_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_users_username UNIQUE (username)
);`
}

// EnsureSchema creates the schema and users table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, UsersDDL(s.schema)); err != nil {
		return unavailable("identity.EnsureSchema", err)
	}
	return nil
}

// FindByUsername implements Store.
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (User, error) {
	const op = "identity.FindByUsername"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	norm, ok := lookupKey(username)
	if !ok {
		return User{}, userNotFound(op)
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, role,
		        enabled, account_expired, account_locked, credentials_expired,
		        created_at
		   FROM `+users+`
		  WHERE username = $1`,
		norm,
	).Scan(
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
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		return User{}, unavailable(op, err)
	}
	return u, nil
}

// ExistsByUsername implements Store.
func (s *PostgresStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	const op = "identity.ExistsByUsername"

	if err := ctx.Err(); err != nil {
		return false, err
	}

	norm, ok := lookupKey(username)
	if !ok {
		return false, nil
	}

	users := pgIdent(s.schema, "users")

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+users+` WHERE username = $1)`,
		norm,
	).Scan(&exists); err != nil {
		return false, unavailable(op, err)
	}
	return exists, nil
}

// CreateUser implements Store.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	u, err := prepareUser(op, in)
	if err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, username, password_hash, role,
		     enabled, account_expired, account_locked, credentials_expired,
		     created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID,
		u.Username,
		u.PasswordHash,
		u.Role,
		u.Status.Enabled,
		u.Status.Expired,
		u.Status.Locked,
		u.Status.CredentialsExpired,
		u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, unavailable(op, err)
	}

	return u, nil
}

// ---- helpers ----

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}
	return classifyConstraint(pgErr.ConstraintName), true
}

// classifyConstraint maps a constraint name to a logical field.
// Prefer stable schema constraint names. Fall back to substring matching.
func classifyConstraint(name string) string {
	c := strings.ToLower(strings.TrimSpace(name))

	switch {
	case c == "uq_users_username", strings.Contains(c, "username"):
		return "username"
	case c == "users_pkey":
		return "id"
	default:
		return "unique"
	}
}
