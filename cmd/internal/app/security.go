package app

import (
	"errors"
	"fmt"

	"roleguard/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy and returns
// the session handle hasher the registries must use.
//
// With RequireTokenHMAC a missing or short key is fatal; there is no
// fallback to unkeyed digests.
func ValidateSecurityConfig(cfg Config) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireTokenHMAC)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return token.Hasher{}, fmt.Errorf("security policy: %s_REQUIRE_TOKEN_HMAC=true but %s is missing", EnvPrefix, token.HMACEnvKey)
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return token.Hasher{}, fmt.Errorf("security policy: %s_REQUIRE_TOKEN_HMAC=true but %s is too short (min %d bytes)", EnvPrefix, token.HMACEnvKey, token.MinHMACKeyBytes)
		default:
			return token.Hasher{}, err
		}
	}

	if cfg.RequireTokenHMAC && !h.Keyed() {
		return token.Hasher{}, errors.New("security policy: token hasher is not in HMAC mode")
	}
	return h, nil
}
