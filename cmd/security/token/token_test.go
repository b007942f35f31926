package token

import (
	"strings"
	"testing"
)

func TestHashSHA256Hex_Known(t *testing.T) {
	got := HashSHA256Hex("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestHasher_ZeroValueIsSHA256(t *testing.T) {
	var h Hasher
	if h.Keyed() {
		t.Fatalf("zero hasher must not be keyed")
	}
	if h.Digest("sid") != HashSHA256Hex("sid") {
		t.Fatalf("zero hasher must match SHA-256")
	}
}

func TestHasher_KeyedDiffersFromPlain(t *testing.T) {
	h := NewHasher([]byte(strings.Repeat("k", 32)))
	if !h.Keyed() {
		t.Fatalf("expected keyed hasher")
	}

	d := h.Digest("sid")
	if len(d) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(d))
	}
	if d == HashSHA256Hex("sid") {
		t.Fatalf("keyed digest must differ from plain SHA-256")
	}
	if d != h.Digest("sid") {
		t.Fatalf("digest must be stable")
	}
	if d == h.Digest("other") {
		t.Fatalf("different ids must not collide")
	}
}

func TestHasherFromEnv(t *testing.T) {
	t.Run("missing optional", func(t *testing.T) {
		t.Setenv(HMACEnvKey, "")
		h, err := HasherFromEnv(false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.Keyed() {
			t.Fatalf("expected plain hasher")
		}
	})

	t.Run("missing required", func(t *testing.T) {
		t.Setenv(HMACEnvKey, "  ")
		if _, err := HasherFromEnv(true); err != ErrHMACKeyMissing {
			t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
		}
	})

	t.Run("short required", func(t *testing.T) {
		t.Setenv(HMACEnvKey, "short")
		if _, err := HasherFromEnv(true); err != ErrHMACKeyTooShort {
			t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
		}
	})

	t.Run("ok required", func(t *testing.T) {
		key := strings.Repeat("x", MinHMACKeyBytes)
		t.Setenv(HMACEnvKey, key)
		h, err := HasherFromEnv(true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.Digest("sid") != HashHMACSHA256Hex("sid", []byte(key)) {
			t.Fatalf("unexpected digest")
		}
	})
}
