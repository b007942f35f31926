package identity

import (
	"context"
	"strings"
	"time"
)

// AccountStatus carries the account flags consulted at login.
// The zero value is NOT usable; use ActiveStatus for a normal account.
type AccountStatus struct {
	Enabled            bool
	Expired            bool
	Locked             bool
	CredentialsExpired bool
}

// ActiveStatus is the status of an account that may log in.
func ActiveStatus() AccountStatus {
	return AccountStatus{Enabled: true}
}

// Usable reports whether the account may authenticate.
func (s AccountStatus) Usable() bool {
	return s.Enabled && !s.Expired && !s.Locked && !s.CredentialsExpired
}

// User is a credential record. It is immutable once stored.
type User struct {
	ID           string
	Username     string // normalized
	PasswordHash string // opaque encoded digest; never log
	Role         string
	Status       AccountStatus
	CreatedAt    time.Time
}

// CreateUserInput describes a provisioning request.
// PasswordHash must already be an encoded digest.
type CreateUserInput struct {
	Username     string
	PasswordHash string
	Role         string
	// Status defaults to ActiveStatus when nil.
	Status *AccountStatus
	Now    time.Time
}

// Store is the credential persistence boundary.
//
// Contract:
//   - FindByUsername returns a NotFoundError when no user matches.
//   - Lookups normalize the username; callers may pass raw input.
//   - Infrastructure failures surface as OpError{Kind: ErrUnavailable}.
//   - CreateUser returns ConflictError{Field: "username"} on duplicates.
type Store interface {
	FindByUsername(ctx context.Context, username string) (User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
}

// prepareUser validates in and builds the record to persist.
func prepareUser(op string, in CreateUserInput) (User, error) {
	username := NormalizeUsername(in.Username)
	if msg := usernameProblem(username); msg != "" {
		return User{}, invalid(op, msg)
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, invalid(op, "password hash is required")
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		return User{}, invalid(op, "role is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	status := ActiveStatus()
	if in.Status != nil {
		status = *in.Status
	}

	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	return User{
		ID:           id,
		Username:     username,
		PasswordHash: in.PasswordHash,
		Role:         role,
		Status:       status,
		CreatedAt:    now,
	}, nil
}
