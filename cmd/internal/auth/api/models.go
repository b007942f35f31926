package authapi

import "time"

// credentialsRequest is the body of /loginProc and /joinProc, as JSON or
// as an urlencoded form.
type credentialsRequest struct {
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
}

type loginResponse struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

type joinResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type sessionResponse struct {
	Handle    string     `json:"handle"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type meResponse struct {
	Username  string            `json:"username"`
	Role      string            `json:"role"`
	Roles     []string          `json:"roles"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Sessions  []sessionResponse `json:"sessions"`
}
