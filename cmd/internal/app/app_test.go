package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestApp_LoginAuthorizeLogout_MemoryBackends(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := do(t, a, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, a, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, a, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = do(t, a, http.MethodGet, "/admin", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	user2 := login(t, a, "user2", "user2-changeme", http.StatusOK)
	require.Equal(t, http.StatusForbidden, do(t, a, http.MethodGet, "/admin", user2, "").Code)

	rr = do(t, a, http.MethodGet, "/my/page", user2, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "/my/page", body["path"])

	user1 := login(t, a, "user1", "user1-changeme", http.StatusOK)
	require.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/admin", user1, "").Code)
	require.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/my/settings", user1, "").Code)

	// Default policy admits a single session per user and blocks the next.
	login(t, a, "user1", "user1-changeme", http.StatusConflict)

	require.Equal(t, http.StatusNoContent, do(t, a, http.MethodPost, "/logout", user1, "").Code)
	require.Equal(t, http.StatusUnauthorized, do(t, a, http.MethodGet, "/admin", user1, "").Code)
	user1 = login(t, a, "user1", "user1-changeme", http.StatusOK)

	login(t, a, "nobody", "user1-changeme", http.StatusUnauthorized)

	require.Equal(t, http.StatusUnauthorized, do(t, a, http.MethodGet, "/metrics", "", "").Code)
	rr = do(t, a, http.MethodGet, "/metrics", user1, "")
	require.Equal(t, http.StatusOK, rr.Code)
	metrics := rr.Body.String()
	require.Contains(t, metrics, `roleguard_login_attempts_total{outcome="success"} 3`)
	require.Contains(t, metrics, `roleguard_login_attempts_total{outcome="session_limit_exceeded"} 1`)
	require.Contains(t, metrics, `roleguard_login_attempts_total{outcome="invalid_credentials"} 1`)
	require.Contains(t, metrics, `roleguard_authz_decisions_total{decision="deny_forbidden"}`)
	require.Contains(t, metrics, `roleguard_http_requests_total{code="200",route="/loginProc"}`)
}

func TestApp_JoinThenLogin(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := do(t, a, http.MethodPost, "/joinProc", "", `{"username":"Carol","password":"carol-long-password"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	sid := login(t, a, "carol", "carol-long-password", http.StatusOK)
	require.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/my/home", sid, "").Code)
	require.Equal(t, http.StatusForbidden, do(t, a, http.MethodGet, "/admin", sid, "").Code)
}

func TestApp_RedisSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.SessionStore = BackendRedis
	cfg.RedisAddr = mr.Addr()
	cfg.RedisKeyPrefix = "rg-test"

	a := newTestApp(t, cfg)

	sid := login(t, a, "user1", "user1-changeme", http.StatusOK)
	require.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/admin", sid, "").Code)
	require.NotEmpty(t, mr.Keys())
	for _, k := range mr.Keys() {
		require.True(t, strings.HasPrefix(k, "rg-test:"), "unexpected key %q", k)
		require.NotContains(t, k, sid)
	}

	login(t, a, "user1", "user1-changeme", http.StatusConflict)

	require.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/readyz", "", "").Code)

	mr.Close()
	require.Equal(t, http.StatusServiceUnavailable, do(t, a, http.MethodGet, "/readyz", "", "").Code)
	require.Equal(t, http.StatusServiceUnavailable, do(t, a, http.MethodGet, "/admin", sid, "").Code)
	// Public paths stay reachable while the registry is down.
	require.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/login", "", "").Code)
}

func TestApp_PolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := `
default: public
rules:
  - patterns: ["/ops/**"]
    roles: [OPS]
hierarchy: |
  ROLE_OPS > ROLE_USER
users:
  - username: oncall
    password: "oncall-long-password"
    role: OPS
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg := testConfig()
	cfg.PolicyFile = path
	a := newTestApp(t, cfg)

	require.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/anything", "", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(t, a, http.MethodGet, "/ops/deploy", "", "").Code)

	sid := login(t, a, "oncall", "oncall-long-password", http.StatusOK)
	require.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/ops", sid, "").Code)

	login(t, a, "user1", "user1-changeme", http.StatusUnauthorized)
}

func TestApp_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	a := newTestApp(t, cfg)

	require.Equal(t, http.StatusUnauthorized, do(t, a, http.MethodGet, "/metrics", "", "").Code)

	sid := login(t, a, "user2", "user2-changeme", http.StatusOK)
	rr := do(t, a, http.MethodGet, "/metrics", sid, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotContains(t, rr.Body.String(), "roleguard_login_attempts_total")
}

func TestNew_RejectsBadConfiguration(t *testing.T) {
	setTestEnv(t)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing policy file", mutate: func(c *Config) { c.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml") }},
		{name: "unknown store", mutate: func(c *Config) { c.CredentialStore = "ldap" }},
		{name: "hmac required", mutate: func(c *Config) { c.RequireTokenHMAC = true }},
	}

	for _, tc := range cases {
		cfg := testConfig()
		tc.mutate(&cfg)
		a, err := New(context.Background(), cfg, discardLogger())
		require.Error(t, err, tc.name)
		require.Nil(t, a, tc.name)
	}
}

func TestNew_RejectsMalformedEnv(t *testing.T) {
	cases := map[string][2]string{
		"cookie secure typo": {"ROLEGUARD_AUTH_COOKIE_SECURE", "ture"},
		"rate max typo":      {"ROLEGUARD_AUTH_LOGIN_RATE_MAX", "5O"},
		"samesite typo":      {"ROLEGUARD_AUTH_COOKIE_SAMESITE", "stirct"},
		"session max typo":   {"ROLEGUARD_SESSION_MAX_CONCURRENT", "one"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			setTestEnv(t)
			t.Setenv(kv[0], kv[1])

			a, err := New(context.Background(), testConfig(), discardLogger())
			require.Error(t, err)
			require.Nil(t, a)
		})
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	a := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

// ---- helpers ----

func testConfig() Config {
	return Config{
		Env:             "test",
		HTTPAddr:        "127.0.0.1:0",
		LogLevel:        "error",
		LogFormat:       "json",
		RequestTimeout:  5 * time.Second,
		CredentialStore: BackendMemory,
		SessionStore:    BackendMemory,
		DBSchema:        "roleguard",
		RedisKeyPrefix:  "roleguard",
		MetricsEnabled:  true,
	}
}

// setTestEnv pins the env-driven settings read during New.
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ROLEGUARD_PASSWORD_ALGORITHM", "bcrypt")
	t.Setenv("ROLEGUARD_BCRYPT_COST", "4")
	t.Setenv("ROLEGUARD_TOKEN_HMAC_KEY", "")
	unsetEnv(t,
		"ROLEGUARD_SESSION_MAX_CONCURRENT", "ROLEGUARD_SESSION_BLOCK_NEW", "ROLEGUARD_SESSION_TTL",
		"ROLEGUARD_AUTH_COOKIE_SECURE", "ROLEGUARD_AUTH_COOKIE_SAMESITE", "ROLEGUARD_AUTH_LOGIN_RATE_MAX",
		"ROLEGUARD_AUTH_LOGIN_RATE_WINDOW", "ROLEGUARD_AUTH_MAX_BODY_BYTES", "ROLEGUARD_AUTH_TRUST_PROXY",
	)
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	setTestEnv(t)

	a, err := New(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, a *App, method, path, sessionID, jsonBody string) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if jsonBody != "" {
		body = strings.NewReader(jsonBody)
	}
	req := httptest.NewRequest(method, path, body)
	if jsonBody != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set("Authorization", "Bearer "+sessionID)
	}
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	return rr
}

func login(t *testing.T, a *App, username, password string, wantStatus int) string {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(t, err)

	rr := do(t, a, http.MethodPost, "/loginProc", "", string(payload))
	require.Equal(t, wantStatus, rr.Code, rr.Body.String())
	if wantStatus != http.StatusOK {
		return ""
	}

	var res struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.NotEmpty(t, res.SessionID)
	return res.SessionID
}
