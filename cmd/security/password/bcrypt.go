package password

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt only reads the first 72 bytes of its input.
const bcryptMaxBytes = 72

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") ||
		strings.HasPrefix(s, "$2b$") ||
		strings.HasPrefix(s, "$2y$")
}

func (c Config) hashBcrypt(password string) (string, error) {
	if len(password) > bcryptMaxBytes {
		return "", ErrPasswordTooLong
	}
	cost := c.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

func (c Config) verifyBcrypt(encodedHash, password string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, ErrInvalidHash
	}

	if cost > c.bcryptCostLimit() {
		return false, ErrInvalidHash
	}

	// Hash refuses inputs over the limit, so a longer password never matches.
	// The prefix is still compared to keep the cost equal to a mismatch.
	tooLong := len(password) > bcryptMaxBytes
	if tooLong {
		password = password[:bcryptMaxBytes]
	}

	err = bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return !tooLong, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrInvalidHash
	}
}

// bcryptCostLimit is the highest cost accepted on verify. Each step doubles
// the work; the margin over the configured cost is 4x.
func (c Config) bcryptCostLimit() int {
	limit := c.BcryptCost
	if limit == 0 {
		limit = bcrypt.DefaultCost
	}
	return limit + 2
}
