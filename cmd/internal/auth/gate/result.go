package gate

import (
	"fmt"
	"time"
)

// Outcome classifies a login attempt.
type Outcome int

const (
	// OutcomeInvalidCredentials covers unknown user, wrong password and
	// unusable account alike.
	OutcomeInvalidCredentials Outcome = iota
	// OutcomeSuccess means a session was admitted.
	OutcomeSuccess
	// OutcomeSessionLimitExceeded means the user is at the concurrent-session cap.
	OutcomeSessionLimitExceeded
	// OutcomeServiceUnavailable means a backing store failed.
	OutcomeServiceUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidCredentials:
		return "invalid_credentials"
	case OutcomeSessionLimitExceeded:
		return "session_limit_exceeded"
	case OutcomeServiceUnavailable:
		return "service_unavailable"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// LoginResult is the typed result of Login. Only OutcomeSuccess carries
// session data.
type LoginResult struct {
	Outcome   Outcome
	SessionID string
	Username  string
	Role      string
}

// OK reports whether the login succeeded.
func (r LoginResult) OK() bool { return r.Outcome == OutcomeSuccess }

// Principal is the identity behind a live session.
type Principal struct {
	Username string
	Role     string
	// Roles is the expanded role set, sorted.
	Roles     []string
	Handle    string
	CreatedAt time.Time
	ExpiresAt time.Time
}
