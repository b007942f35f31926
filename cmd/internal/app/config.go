package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every runtime environment variable.
const EnvPrefix = "ROLEGUARD"

// Backend kinds for the credential store and the session registry.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQL      = "sql"
	BackendRedis    = "redis"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	Env       string `envconfig:"ENV" default:"development"`
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:"0.0.0.0:8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	ReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout       time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	RequestTimeout    time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout   time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxHeaderBytes    int           `envconfig:"HTTP_MAX_HEADER_BYTES" default:"1048576"`

	// PolicyFile is a YAML policy; empty selects the built-in reference policy.
	PolicyFile string `envconfig:"POLICY_FILE"`

	// CredentialStore is memory, postgres or sql.
	CredentialStore string `envconfig:"CREDENTIAL_STORE" default:"memory"`
	// SessionStore is memory, redis or postgres.
	SessionStore string `envconfig:"SESSION_STORE" default:"memory"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBSchema    string `envconfig:"DB_SCHEMA" default:"roleguard"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"0"`
	// SeedUsers creates the policy's users in a database-backed store when
	// they do not exist yet.
	SeedUsers bool `envconfig:"SEED_USERS" default:"false"`

	RedisAddr      string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"roleguard"`

	// If true, /readyz returns 503 unless a database is configured and reachable.
	ReadinessRequireDB bool `envconfig:"READINESS_REQUIRE_DB" default:"false"`

	// If true, ROLEGUARD_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and
	// session handles are keyed digests.
	RequireTokenHMAC bool `envconfig:"REQUIRE_TOKEN_HMAC" default:"false"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`
}

// LoadConfig loads Config from ROLEGUARD_* environment variables and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("app: config: %w", err)
	}
	cfg.CredentialStore = strings.ToLower(strings.TrimSpace(cfg.CredentialStore))
	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks backend selections and their prerequisites.
func (c Config) Validate() error {
	switch c.CredentialStore {
	case BackendMemory, BackendPostgres, BackendSQL:
	default:
		return fmt.Errorf("app: config: unknown credential store %q", c.CredentialStore)
	}
	switch c.SessionStore {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("app: config: unknown session store %q", c.SessionStore)
	}
	if c.needsDatabase() && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("app: config: %s_DATABASE_URL is required for the selected stores", EnvPrefix)
	}
	if c.SessionStore == BackendRedis && strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("app: config: %s_REDIS_ADDR is required for the redis session store", EnvPrefix)
	}
	if c.DBMinConns > c.DBMaxConns && c.DBMaxConns > 0 {
		return fmt.Errorf("app: config: DB_MIN_CONNS exceeds DB_MAX_CONNS")
	}
	return nil
}

// IsProduction reports whether the runtime runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

func (c Config) needsDatabase() bool {
	return c.CredentialStore == BackendPostgres ||
		c.CredentialStore == BackendSQL ||
		c.SessionStore == BackendPostgres ||
		c.ReadinessRequireDB
}
