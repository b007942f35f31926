// Package app wires the roleguard server runtime: config, logging, backing
// stores, the authentication core and HTTP routes.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"roleguard/cmd/identity"
	authapi "roleguard/cmd/internal/auth/api"
	"roleguard/cmd/internal/auth/gate"
	"roleguard/cmd/internal/auth/session"
	"roleguard/cmd/internal/policy"
	"roleguard/cmd/security/password"
	"roleguard/cmd/security/token"
)

// App is the roleguard runtime. It owns every backing connection it opens.
type App struct {
	cfg Config
	log Logger

	pool  *pgxpool.Pool
	sqlDB *sql.DB
	rdb   *redis.Client

	metrics *Metrics
	core    *gate.Core
	auth    *authapi.Handler
	handler http.Handler
}

// New constructs a fully wired App. Configuration problems (bad policy,
// bad env, unreachable backends) are returned before anything is served.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	handles, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}
	hasher, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("app: password config: %w", err)
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("app: session config: %w", err)
	}
	apiCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pol, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	if err := a.openBackends(ctx); err != nil {
		return nil, err
	}

	store, err := a.newCredentialStore(ctx, pol, hasher)
	if err != nil {
		return nil, err
	}
	registry, err := a.newRegistry(ctx, sessCfg, handles)
	if err != nil {
		return nil, err
	}

	opts := []gate.Option{gate.WithLogger(log)}
	for _, u := range pol.Users {
		// Pre-hashed policy users reveal the profile of the stored credentials.
		if u.PasswordHash != "" {
			opts = append(opts, gate.WithStoredDigest(u.PasswordHash))
		}
	}
	if cfg.MetricsEnabled {
		a.metrics = NewMetrics()
		opts = append(opts, gate.WithObserver(a.metrics))
	}
	a.core, err = gate.New(store, hasher, pol.Hierarchy, pol.Engine, registry, opts...)
	if err != nil {
		return nil, err
	}

	a.auth, err = authapi.NewHandler(log, a.core, apiCfg)
	if err != nil {
		return nil, err
	}
	a.handler = a.routes()

	log.Info("app.ready",
		"credential_store", cfg.CredentialStore,
		"session_store", cfg.SessionStore,
		"max_sessions", sessCfg.MaxSessions,
		"block_new", sessCfg.BlockNewOnExceed,
		"rules", pol.Engine.Len(),
		"hierarchy_roles", pol.Hierarchy.Roles(),
		"password_algorithm", string(hasher.Algorithm),
		"hmac_handles", handles.Keyed(),
	)
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Core returns the authentication core.
func (a *App) Core() *gate.Core { return a.core }

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts
// down gracefully and releases backing connections.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start", "addr", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

// Close releases backing connections. It is safe to call more than once.
func (a *App) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.rdb = nil
	}
	if a.sqlDB != nil {
		if err := a.sqlDB.Close(); err != nil {
			a.log.Error("sql.close.fail", "err", err)
		}
		a.sqlDB = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func (a *App) openBackends(ctx context.Context) error {
	cfg := a.cfg
	var err error

	if cfg.CredentialStore == BackendPostgres || cfg.SessionStore == BackendPostgres || cfg.ReadinessRequireDB {
		if a.pool, err = NewDBPool(ctx, cfg); err != nil {
			return fmt.Errorf("app: postgres: %w", err)
		}
		a.log.Info("db.enabled.postgres")
	}
	if cfg.CredentialStore == BackendSQL {
		if a.sqlDB, err = OpenSQLDB(ctx, cfg); err != nil {
			return err
		}
		a.log.Info("db.enabled.sql")
	}
	if cfg.SessionStore == BackendRedis {
		if a.rdb, err = NewRedisClient(ctx, cfg); err != nil {
			return err
		}
		a.log.Info("redis.enabled", "addr", cfg.RedisAddr)
	}
	return nil
}

func (a *App) newCredentialStore(ctx context.Context, pol *policy.Policy, hasher password.Config) (identity.Store, error) {
	switch a.cfg.CredentialStore {
	case BackendPostgres:
		s, err := identity.NewPostgresStore(a.pool, identity.WithSchema(a.cfg.DBSchema))
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return a.maybeSeed(ctx, s, pol, hasher)

	case BackendSQL:
		s, err := identity.NewSQLStore(ctx, a.sqlDB)
		if err != nil {
			return nil, err
		}
		return a.maybeSeed(ctx, s, pol, hasher)

	default:
		s, err := pol.MemoryStore(ctx, hasher)
		if err != nil {
			return nil, err
		}
		a.log.Info("identity.memory.seeded", "users", len(s.Usernames()))
		return s, nil
	}
}

func (a *App) maybeSeed(ctx context.Context, s identity.Store, pol *policy.Policy, hasher password.Config) (identity.Store, error) {
	if !a.cfg.SeedUsers {
		return s, nil
	}
	if err := pol.Seed(ctx, s, hasher); err != nil {
		return nil, err
	}
	a.log.Info("identity.seeded", "users", len(pol.Users))
	return s, nil
}

func (a *App) newRegistry(ctx context.Context, cfg session.Config, handles token.Hasher) (session.Registry, error) {
	switch a.cfg.SessionStore {
	case BackendRedis:
		return session.NewRedisRegistry(a.rdb, cfg,
			session.WithHasher(handles),
			session.WithKeyPrefix(a.cfg.RedisKeyPrefix),
		)

	case BackendPostgres:
		r, err := session.NewPostgresRegistry(a.pool, cfg,
			session.WithHasher(handles),
			session.WithSchema(a.cfg.DBSchema),
		)
		if err != nil {
			return nil, err
		}
		if err := r.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return r, nil

	default:
		return session.NewMemoryRegistry(cfg, session.WithHasher(handles)), nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
