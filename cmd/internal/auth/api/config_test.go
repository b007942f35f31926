package authapi

import (
	"errors"
	"net/http"
	"os"
	"testing"
	"time"
)

var authEnvKeys = []string{
	"ROLEGUARD_AUTH_TRUST_PROXY",
	"ROLEGUARD_AUTH_MAX_BODY_BYTES",
	"ROLEGUARD_AUTH_COOKIE_NAME",
	"ROLEGUARD_AUTH_COOKIE_PATH",
	"ROLEGUARD_AUTH_COOKIE_DOMAIN",
	"ROLEGUARD_AUTH_COOKIE_SECURE",
	"ROLEGUARD_AUTH_COOKIE_SAMESITE",
	"ROLEGUARD_AUTH_LOGIN_RATE_MAX",
	"ROLEGUARD_AUTH_LOGIN_RATE_WINDOW",
}

// clearAuthEnv unsets every auth variable for the test and restores them afterwards.
func clearAuthEnv(t *testing.T) {
	t.Helper()
	for _, k := range authEnvKeys {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unsetenv %s: %v", k, err)
		}
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	clearAuthEnv(t)

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def := DefaultConfig(); cfg != def {
		t.Fatalf("expected defaults %+v, got %+v", def, cfg)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	clearAuthEnv(t)
	t.Setenv("ROLEGUARD_AUTH_TRUST_PROXY", "true")
	t.Setenv("ROLEGUARD_AUTH_COOKIE_NAME", "sid")
	t.Setenv("ROLEGUARD_AUTH_COOKIE_SAMESITE", "Strict")
	t.Setenv("ROLEGUARD_AUTH_LOGIN_RATE_MAX", "3")
	t.Setenv("ROLEGUARD_AUTH_LOGIN_RATE_WINDOW", "10s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.TrustProxy || cfg.CookieName != "sid" || cfg.CookieSameSite != http.SameSiteStrictMode {
		t.Fatalf("override failed: %+v", cfg)
	}
	if cfg.LoginRateMax != 3 || cfg.LoginRateWindow != 10*time.Second {
		t.Fatalf("rate override failed: %d/%v", cfg.LoginRateMax, cfg.LoginRateWindow)
	}
}

func TestLoadConfigFromEnv_MalformedValuesFail(t *testing.T) {
	cases := map[string][2]string{
		"bool typo":        {"ROLEGUARD_AUTH_COOKIE_SECURE", "ture"},
		"int typo":         {"ROLEGUARD_AUTH_LOGIN_RATE_MAX", "5O"},
		"samesite typo":    {"ROLEGUARD_AUTH_COOKIE_SAMESITE", "stirct"},
		"negative body":    {"ROLEGUARD_AUTH_MAX_BODY_BYTES", "-5"},
		"zero rate":        {"ROLEGUARD_AUTH_LOGIN_RATE_MAX", "0"},
		"bad window":       {"ROLEGUARD_AUTH_LOGIN_RATE_WINDOW", "soon"},
		"zero window":      {"ROLEGUARD_AUTH_LOGIN_RATE_WINDOW", "0s"},
		"blank cookie":     {"ROLEGUARD_AUTH_COOKIE_NAME", "   "},
		"trust proxy typo": {"ROLEGUARD_AUTH_TRUST_PROXY", "yes please"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearAuthEnv(t)
			t.Setenv(kv[0], kv[1])

			if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("%s=%q: expected ErrConfig, got %v", kv[0], kv[1], err)
			}
		})
	}
}

func TestLoadConfigFromEnv_CookieGuardrails(t *testing.T) {
	clearAuthEnv(t)
	t.Setenv("ROLEGUARD_AUTH_COOKIE_SAMESITE", "none")
	t.Setenv("ROLEGUARD_AUTH_COOKIE_SECURE", "false")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CookieSameSite != http.SameSiteNoneMode {
		t.Fatalf("expected SameSite=None, got %v", cfg.CookieSameSite)
	}
	if !cfg.CookieSecure {
		t.Fatalf("SameSite=None requires Secure=true")
	}
}

func TestParseSameSite(t *testing.T) {
	tests := []struct {
		in      string
		want    http.SameSite
		wantErr bool
	}{
		{in: "strict", want: http.SameSiteStrictMode},
		{in: "LAX", want: http.SameSiteLaxMode},
		{in: "none", want: http.SameSiteNoneMode},
		{in: "default", want: http.SameSiteDefaultMode},
		{in: "unknown", wantErr: true},
	}

	for _, tc := range tests {
		got, err := parseSameSite(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("parseSameSite(%q)=%v,%v want %v (err=%v)", tc.in, got, err, tc.want, tc.wantErr)
		}
	}
}
