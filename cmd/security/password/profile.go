package password

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Profile identifies the scheme and cost of an encoded hash, for example
// "bcrypt:10" or "argon2id:m=65536,t=3,p=2,k=32". Two digests with the same
// profile cost the same to verify. Malformed hashes have no profile ("").
func (c Config) Profile(encodedHash string) string {
	switch {
	case strings.HasPrefix(encodedHash, argon2Prefix):
		p, _, _, err := decode(encodedHash)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("argon2id:m=%d,t=%d,p=%d,k=%d", p.MemoryKiB, p.Iterations, p.Parallelism, p.KeyLength)
	case isBcryptHash(encodedHash):
		cost, err := bcrypt.Cost([]byte(encodedHash))
		if err != nil {
			return ""
		}
		return fmt.Sprintf("bcrypt:%d", cost)
	default:
		return ""
	}
}

// HashLike hashes password with the scheme and cost of encodedHash, so that
// verifying against the result costs the same as verifying against
// encodedHash. The password policy is not applied. Hashes outside the
// verification bounds are rejected with ErrInvalidHash.
func (c Config) HashLike(encodedHash, password string) (string, error) {
	switch {
	case strings.HasPrefix(encodedHash, argon2Prefix):
		p, salt, key, err := decode(encodedHash)
		if err != nil {
			return "", err
		}
		if !withinReasonableBounds(p, c.Params) {
			return "", ErrInvalidHash
		}

		fresh := make([]byte, len(salt))
		if _, err := rand.Read(fresh); err != nil {
			return "", fmt.Errorf("salt: %w", err)
		}
		out := argon2.IDKey([]byte(password), fresh, p.Iterations, p.MemoryKiB, p.Parallelism, uint32(len(key))) // #nosec G115 -- bounded by withinReasonableBounds.

		b64 := base64.RawStdEncoding
		return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
			argon2Version, p.MemoryKiB, p.Iterations, p.Parallelism,
			b64.EncodeToString(fresh), b64.EncodeToString(out),
		), nil

	case isBcryptHash(encodedHash):
		cost, err := bcrypt.Cost([]byte(encodedHash))
		if err != nil {
			return "", ErrInvalidHash
		}
		if cost > c.bcryptCostLimit() {
			return "", ErrInvalidHash
		}
		if len(password) > bcryptMaxBytes {
			password = password[:bcryptMaxBytes]
		}
		b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(b), nil

	default:
		return "", ErrInvalidHash
	}
}
