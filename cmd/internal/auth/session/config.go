package session

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config defines the admission policy shared by every Registry.
type Config struct {
	// MaxSessions caps concurrent sessions per username. Zero or negative
	// means unlimited.
	MaxSessions int

	// BlockNewOnExceed rejects a login at the cap. When false, the oldest
	// sessions are evicted to make room.
	BlockNewOnExceed bool

	// TTL bounds a session's lifetime. Zero means sessions live until
	// invalidated or evicted.
	TTL time.Duration
}

// DefaultConfig returns one session per user, blocking new logins at the cap.
func DefaultConfig() Config {
	return Config{
		MaxSessions:      1,
		BlockNewOnExceed: true,
		TTL:              0,
	}
}

// Unlimited reports whether no cap applies.
func (c Config) Unlimited() bool { return c.MaxSessions <= 0 }

// EnvPrefix prefixes the session environment variables.
const EnvPrefix = "ROLEGUARD_SESSION"

type envConfig struct {
	MaxConcurrent int           `envconfig:"MAX_CONCURRENT" default:"1"`
	BlockNew      bool          `envconfig:"BLOCK_NEW" default:"true"`
	TTL           time.Duration `envconfig:"TTL" default:"0s"`
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - ROLEGUARD_SESSION_MAX_CONCURRENT (integer 0..1024, 0 = unlimited)
//   - ROLEGUARD_SESSION_BLOCK_NEW (true/false)
//   - ROLEGUARD_SESSION_TTL (Go duration, 0 = no expiry, otherwise >= 1s)
//
// Malformed or out-of-range values return an error wrapping ErrConfig.
func LoadConfigFromEnv() (Config, error) {
	var env envConfig
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if env.MaxConcurrent < 0 || env.MaxConcurrent > 1024 {
		return Config{}, fmt.Errorf("%w: %s_MAX_CONCURRENT out of range", ErrConfig, EnvPrefix)
	}
	if env.TTL < 0 || (env.TTL > 0 && env.TTL < time.Second) {
		return Config{}, fmt.Errorf("%w: %s_TTL must be 0 or at least 1s", ErrConfig, EnvPrefix)
	}

	return Config{
		MaxSessions:      env.MaxConcurrent,
		BlockNewOnExceed: env.BlockNew,
		TTL:              env.TTL,
	}, nil
}
