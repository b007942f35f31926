package authapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes the auth API environment variables.
const EnvPrefix = "ROLEGUARD_AUTH"

// ErrConfig is returned for malformed or out-of-range configuration.
var ErrConfig = errors.New("authapi: invalid config")

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// LoginRateMax attempts per LoginRateWindow per client IP, shared by
	// /loginProc and /joinProc.
	LoginRateMax    int
	LoginRateWindow time.Duration
}

// DefaultConfig returns the defaults used by LoadConfigFromEnv.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:    1 << 20, // 1 MiB
		CookieName:      "roleguard_session",
		CookiePath:      "/",
		CookieSecure:    true,
		CookieSameSite:  http.SameSiteLaxMode,
		LoginRateMax:    20,
		LoginRateWindow: time.Minute,
	}
}

// envConfig mirrors Config with the ROLEGUARD_AUTH_* variable names.
type envConfig struct {
	TrustProxy      bool          `envconfig:"TRUST_PROXY" default:"false"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	CookieName      string        `envconfig:"COOKIE_NAME" default:"roleguard_session"`
	CookiePath      string        `envconfig:"COOKIE_PATH" default:"/"`
	CookieDomain    string        `envconfig:"COOKIE_DOMAIN"`
	CookieSecure    bool          `envconfig:"COOKIE_SECURE" default:"true"`
	CookieSameSite  sameSite      `envconfig:"COOKIE_SAMESITE" default:"lax"`
	LoginRateMax    int           `envconfig:"LOGIN_RATE_MAX" default:"20"`
	LoginRateWindow time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"1m"`
}

// LoadConfigFromEnv loads auth config from ROLEGUARD_AUTH_* variables.
// Malformed or out-of-range values are an error wrapping ErrConfig.
func LoadConfigFromEnv() (Config, error) {
	var env envConfig
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	cfg := Config{
		TrustProxy:      env.TrustProxy,
		MaxBodyBytes:    env.MaxBodyBytes,
		CookieName:      strings.TrimSpace(env.CookieName),
		CookiePath:      strings.TrimSpace(env.CookiePath),
		CookieDomain:    strings.TrimSpace(env.CookieDomain),
		CookieSecure:    env.CookieSecure,
		CookieSameSite:  http.SameSite(env.CookieSameSite),
		LoginRateMax:    env.LoginRateMax,
		LoginRateWindow: env.LoginRateWindow,
	}

	// Browsers drop SameSite=None cookies without Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the handler cannot run with.
func (c Config) Validate() error {
	switch {
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: %s_MAX_BODY_BYTES must be positive", ErrConfig, EnvPrefix)
	case c.CookieName == "":
		return fmt.Errorf("%w: %s_COOKIE_NAME is empty", ErrConfig, EnvPrefix)
	case c.LoginRateMax <= 0:
		return fmt.Errorf("%w: %s_LOGIN_RATE_MAX must be positive", ErrConfig, EnvPrefix)
	case c.LoginRateWindow <= 0:
		return fmt.Errorf("%w: %s_LOGIN_RATE_WINDOW must be positive", ErrConfig, EnvPrefix)
	}
	return nil
}

// sameSite decodes strict, lax, none or default.
type sameSite http.SameSite

// Decode implements envconfig.Decoder.
func (s *sameSite) Decode(value string) error {
	v, err := parseSameSite(value)
	if err != nil {
		return err
	}
	*s = sameSite(v)
	return nil
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode, nil
	case "lax", "":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	case "default":
		return http.SameSiteDefaultMode, nil
	default:
		return 0, fmt.Errorf("unknown SameSite mode %q", s)
	}
}
