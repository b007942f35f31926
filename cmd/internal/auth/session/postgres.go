package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roleguard/cmd/security/token"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry stores sessions in PostgreSQL (<schema>.sessions).
//
// Admission runs in one transaction that first takes a transaction-scoped
// advisory lock on the username, so concurrent logins for the same user are
// serialized even when the user has no rows yet. Rows are keyed by the id
// digest; the raw id is never stored.
type PostgresRegistry struct {
	pool   *pgxpool.Pool
	cfg    Config
	now    func() time.Time
	hasher token.Hasher
	table  string
	schema string
}

// NewPostgresRegistry returns a registry over pool. The pool is owned by the caller.
func NewPostgresRegistry(pool *pgxpool.Pool, cfg Config, opts ...Option) (*PostgresRegistry, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	o := buildOptions(opts)
	return &PostgresRegistry{
		pool:   pool,
		cfg:    cfg,
		now:    o.now,
		hasher: o.hasher,
		table:  pgx.Identifier{o.schema, "sessions"}.Sanitize(),
		schema: o.schema,
	}, nil
}

// EnsureSchema creates the sessions table when missing.
func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{r.schema}.Sanitize()+`;

CREATE TABLE IF NOT EXISTS `+r.table+` (
  handle TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NULL,

  CONSTRAINT chk_sessions_handle_len CHECK (char_length(handle) = 64)
);

CREATE INDEX IF NOT EXISTS idx_sessions_username_created
  ON `+r.table+` (username, created_at);
`)
	if err != nil {
		return fmt.Errorf("session: ensure schema: %w", err)
	}
	return nil
}

// Admit implements Registry.
func (r *PostgresRegistry) Admit(ctx context.Context, p Principal) (Admission, error) {
	id, err := newSessionID()
	if err != nil {
		return Admission{}, fmt.Errorf("session: id: %w", err)
	}

	now := r.now().Truncate(time.Microsecond)
	exp := expiresAt(r.cfg, now)
	handle := r.hasher.Digest(id)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Admission{}, fmt.Errorf("session: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "session:"+p.Username); err != nil {
		return Admission{}, fmt.Errorf("session: lock: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM `+r.table+` WHERE username = $1 AND expires_at IS NOT NULL AND expires_at <= $2`,
		p.Username, now,
	); err != nil {
		return Admission{}, fmt.Errorf("session: prune: %w", err)
	}

	var evicted []string
	if !r.cfg.Unlimited() {
		handles, err := activeHandlesTx(ctx, tx, r.table, p.Username)
		if err != nil {
			return Admission{}, err
		}
		if len(handles) >= r.cfg.MaxSessions {
			if r.cfg.BlockNewOnExceed {
				return Admission{Admitted: false}, nil
			}
			evicted = handles[:len(handles)-r.cfg.MaxSessions+1]
			if _, err := tx.Exec(ctx,
				`DELETE FROM `+r.table+` WHERE handle = ANY($1)`,
				evicted,
			); err != nil {
				return Admission{}, fmt.Errorf("session: evict: %w", err)
			}
		}
	}

	var expArg any
	if !exp.IsZero() {
		expArg = exp
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO `+r.table+` (handle, username, role, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		handle, p.Username, p.Role, now, expArg,
	); err != nil {
		return Admission{}, fmt.Errorf("session: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Admission{}, fmt.Errorf("session: commit: %w", err)
	}

	return Admission{
		Admitted: true,
		Session: Session{
			ID:        id,
			Handle:    handle,
			Username:  p.Username,
			Role:      p.Role,
			CreatedAt: now,
			ExpiresAt: exp,
		},
		Evicted: evicted,
	}, nil
}

func activeHandlesTx(ctx context.Context, tx pgx.Tx, table, username string) ([]string, error) {
	rows, err := tx.Query(ctx,
		`SELECT handle FROM `+table+` WHERE username = $1 ORDER BY created_at, handle`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	handles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	return handles, nil
}

// Resolve implements Registry.
func (r *PostgresRegistry) Resolve(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrSessionNotFound
	}

	var (
		s   Session
		exp *time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT handle, username, role, created_at, expires_at FROM `+r.table+` WHERE handle = $1`,
		r.hasher.Digest(id),
	).Scan(&s.Handle, &s.Username, &s.Role, &s.CreatedAt, &exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: resolve: %w", err)
	}
	if exp != nil {
		s.ExpiresAt = *exp
	}
	if s.Expired(r.now()) {
		_ = r.Invalidate(ctx, id)
		return Session{}, ErrSessionNotFound
	}
	s.ID = id
	return s, nil
}

// Invalidate implements Registry.
func (r *PostgresRegistry) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM `+r.table+` WHERE handle = $1`,
		r.hasher.Digest(id),
	); err != nil {
		return fmt.Errorf("session: invalidate: %w", err)
	}
	return nil
}

// Active implements Registry.
func (r *PostgresRegistry) Active(ctx context.Context, username string) ([]Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT handle, username, role, created_at, expires_at
		   FROM `+r.table+`
		  WHERE username = $1 AND (expires_at IS NULL OR expires_at > $2)
		  ORDER BY created_at, handle`,
		username, r.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("session: active: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s   Session
			exp *time.Time
		)
		if err := rows.Scan(&s.Handle, &s.Username, &s.Role, &s.CreatedAt, &exp); err != nil {
			return nil, fmt.Errorf("session: active: %w", err)
		}
		if exp != nil {
			s.ExpiresAt = *exp
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: active: %w", err)
	}
	return out, nil
}
