package authapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// loginLimiter throttles credential endpoints per client IP.
func (h *Handler) loginLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(h.cfg.LoginRateMax, h.cfg.LoginRateWindow,
		httprate.WithKeyFuncs(h.rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			h.auditRateLimited(r)
			writeRateLimited(w, h.cfg.LoginRateWindow)
		}),
	)
}

func (h *Handler) rateLimitKey(r *http.Request) (string, error) {
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		return "ip:" + ip.String(), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
