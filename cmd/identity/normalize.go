package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxUsernameLength bounds usernames in runes after normalization.
const MaxUsernameLength = 64

// NormalizeUsername performs case-insensitive canonicalization:
// trim, NFKC, lower-case. "Ｕser1" and "user1" normalize to the same key.
func NormalizeUsername(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}

// ValidateUsername checks an already normalized username.
func ValidateUsername(u string) error {
	if msg := usernameProblem(u); msg != "" {
		return invalid("identity.ValidateUsername", msg)
	}
	return nil
}

func usernameProblem(u string) string {
	if u == "" {
		return "username is required"
	}
	if utf8.RuneCountInString(u) > MaxUsernameLength {
		return "username too long"
	}
	for _, r := range u {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "username contains whitespace or control characters"
		}
		if r == utf8.RuneError {
			return "username is not valid UTF-8"
		}
	}
	return ""
}

// lookupKey normalizes username for a store query. ok is false when no
// stored user could carry the key, so the caller can skip the round trip.
func lookupKey(username string) (key string, ok bool) {
	key = NormalizeUsername(username)
	if usernameProblem(key) != "" {
		return "", false
	}
	return key, true
}
