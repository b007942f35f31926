package authapi

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"roleguard/cmd/identity"
	"roleguard/cmd/internal/auth/access"
	"roleguard/cmd/internal/auth/gate"
	"roleguard/cmd/security/password"
)

// joinRole is the role granted to self-registered accounts.
const joinRole = "USER"

// Handler wires HTTP auth endpoints to the authentication core.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	core     *gate.Core
	validate *validator.Validate
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, core *gate.Core, cfg Config) (*Handler, error) {
	if core == nil {
		return nil, errors.New("auth: nil core")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if strings.TrimSpace(cfg.CookieName) == "" {
		cfg.CookieName = DefaultConfig().CookieName
	}
	return &Handler{
		log:      log,
		cfg:      cfg,
		core:     core,
		validate: validator.New(),
	}, nil
}

// MountRoutes registers the auth endpoints. /loginProc, /joinProc and
// /logout sit in front of the guard; /me is guarded.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := h.loginLimiter()

	r.With(limiter).Post("/loginProc", h.handleLogin)
	r.With(limiter).Post("/joinProc", h.handleJoin)
	r.Post("/logout", h.handleLogout)
	r.Get("/logout", h.handleLogout)

	r.Group(func(gr chi.Router) {
		gr.Use(h.Guard)
		gr.Get("/me", h.handleMe)
	})
}

// Guard enforces the access rules for every request it wraps.
// Unauthenticated callers get 401, callers lacking a role get 403, and a
// failing session registry yields 503 unless the path is public.
func (h *Handler) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.core.Authorize(r.Context(), h.sessionIDFromRequest(r), r.URL.Path)
		if err != nil && d != access.Allow {
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", "please retry later")
			return
		}

		switch d {
		case access.Allow:
			next.ServeHTTP(w, r)
		case access.DenyForbidden:
			h.auditDenied(r, http.StatusForbidden)
			writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
		default:
			h.auditDenied(r, http.StatusUnauthorized)
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		}
	})
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readCredentials(w, r)
	if !ok {
		return
	}

	res, err := h.core.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.log.Debug("auth.login.cancelled", "err", err)
		writeError(w, http.StatusServiceUnavailable, "request_cancelled", "request cancelled")
		return
	}
	h.auditLogin(r, req.Username, res.Outcome)

	switch res.Outcome {
	case gate.OutcomeSuccess:
		h.setSessionCookie(w, res.SessionID)
		writeJSON(w, http.StatusOK, loginResponse{
			SessionID: res.SessionID,
			Username:  res.Username,
			Role:      res.Role,
		})
	case gate.OutcomeSessionLimitExceeded:
		writeError(w, http.StatusConflict, "session_limit_exceeded", "maximum concurrent sessions reached")
	case gate.OutcomeServiceUnavailable:
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "please retry later")
	default:
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	}
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readCredentials(w, r)
	if !ok {
		return
	}

	u, err := h.core.Register(r.Context(), req.Username, req.Password, joinRole)
	if err != nil {
		switch {
		case identity.IsConflict(err):
			h.auditJoin(r, req.Username, "conflict")
			writeError(w, http.StatusConflict, "username_taken", "username already exists")
		case errors.Is(err, password.ErrPasswordTooShort),
			errors.Is(err, password.ErrPasswordTooLong),
			errors.Is(err, password.ErrWeakPassword):
			h.auditJoin(r, req.Username, "weak_password")
			writeError(w, http.StatusBadRequest, "weak_password", err.Error())
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_username", "invalid username")
		default:
			h.log.Error("auth.join.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", "please retry later")
		}
		return
	}

	h.auditJoin(r, u.Username, "created")
	writeJSON(w, http.StatusCreated, joinResponse{ID: u.ID, Username: u.Username, Role: u.Role})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sid := h.sessionIDFromRequest(r)
	if err := h.core.Logout(r.Context(), sid); err != nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "please retry later")
		return
	}
	h.expireSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, found, err := h.core.Principal(ctx, h.sessionIDFromRequest(r))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "please retry later")
		return
	}
	if !found {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	active, err := h.core.Sessions(ctx, p.Username)
	if err != nil {
		h.log.Warn("auth.me.sessions.fail", "err", err)
		active = nil
	}
	writeJSON(w, http.StatusOK, toMeResponse(p, active))
}

// readCredentials decodes and validates a JSON or urlencoded form body.
// It writes the 400 response itself when ok is false.
func (h *Handler) readCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_form", "invalid request body")
			return req, false
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	} else if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return req, false
	}

	if err := h.validate.Struct(req); err != nil {
		var fields []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field())+":"+fe.Tag())
			}
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid fields: "+strings.Join(fields, ", "))
		return req, false
	}
	return req, true
}
