package authapi

import (
	"net"
	"net/http"
	"strings"

	"roleguard/cmd/identity"
	"roleguard/cmd/internal/auth/gate"
)

// Audit events carry the request origin the core does not see.
// They never include passwords or raw session ids.

func (h *Handler) auditLogin(r *http.Request, username string, outcome gate.Outcome) {
	h.log.Info("auth.audit.login",
		"identifier", identity.NormalizeUsername(username),
		"outcome", outcome.String(),
		"ip", ipString(clientIP(r, h.cfg.TrustProxy)),
		"ua", trimUA(r.UserAgent()),
	)
}

func (h *Handler) auditJoin(r *http.Request, username, result string) {
	h.log.Info("auth.audit.join",
		"identifier", identity.NormalizeUsername(username),
		"result", result,
		"ip", ipString(clientIP(r, h.cfg.TrustProxy)),
	)
}

func (h *Handler) auditRateLimited(r *http.Request) {
	h.log.Warn("auth.audit.rate_limited",
		"path", r.URL.Path,
		"ip", ipString(clientIP(r, h.cfg.TrustProxy)),
	)
}

func (h *Handler) auditDenied(r *http.Request, status int) {
	h.log.Debug("auth.audit.denied",
		"path", r.URL.Path,
		"status", status,
		"ip", ipString(clientIP(r, h.cfg.TrustProxy)),
	)
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func trimUA(ua string) string {
	ua = strings.TrimSpace(ua)
	if len(ua) > 256 {
		return ua[:256]
	}
	return ua
}
