package authapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"roleguard/cmd/internal/auth/gate"
	"roleguard/cmd/internal/auth/session"
)

func toMeResponse(p gate.Principal, active []session.Session) meResponse {
	out := meResponse{
		Username:  p.Username,
		Role:      p.Role,
		Roles:     p.Roles,
		CreatedAt: p.CreatedAt,
		ExpiresAt: timeOrNil(p.ExpiresAt),
		Sessions:  make([]sessionResponse, 0, len(active)),
	}
	for _, s := range active {
		out.Sessions = append(out.Sessions, sessionResponse{
			Handle:    shortHandle(s.Handle),
			CreatedAt: s.CreatedAt,
			ExpiresAt: timeOrNil(s.ExpiresAt),
		})
	}
	return out
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// shortHandle trims a session digest for display and logs.
func shortHandle(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
