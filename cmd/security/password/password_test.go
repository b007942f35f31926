package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// fastConfig keeps Argon2id cheap enough for unit tests.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

func TestHashAndVerify_OK(t *testing.T) {
	cfg := fastConfig()

	h, err := cfg.Hash("this is a strong password 123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %s", h)
	}

	ok, err := cfg.Verify(h, "this is a strong password 123!")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
}

func TestHash_SaltedPerCall(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmArgon2id, AlgorithmBcrypt} {
		cfg := fastConfig()
		cfg.Algorithm = alg

		a, err := cfg.Hash("same password twice")
		if err != nil {
			t.Fatalf("%s: Hash error: %v", alg, err)
		}
		b, err := cfg.Hash("same password twice")
		if err != nil {
			t.Fatalf("%s: Hash error: %v", alg, err)
		}
		if a == b {
			t.Fatalf("%s: expected different digests for repeated hashing", alg)
		}

		for _, h := range []string{a, b} {
			ok, err := cfg.Verify(h, "same password twice")
			if err != nil || !ok {
				t.Fatalf("%s: Verify failed: ok=%v err=%v", alg, ok, err)
			}
		}
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	cfg := fastConfig()

	h, err := cfg.Hash("this is a strong password 123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := cfg.Verify(h, "wrong password")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestVerify_BcryptFromReferenceEncoder(t *testing.T) {
	cfg := fastConfig()

	// Legacy short passwords are still verifiable; policy only applies to Hash.
	raw, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	ok, err := cfg.Verify(string(raw), "1234")
	if err != nil || !ok {
		t.Fatalf("expected bcrypt match: ok=%v err=%v", ok, err)
	}

	ok, err = cfg.Verify(string(raw), "4321")
	if err != nil || ok {
		t.Fatalf("expected bcrypt mismatch: ok=%v err=%v", ok, err)
	}
}

func TestVerify_BcryptCostTooHigh(t *testing.T) {
	cfg := fastConfig()

	raw, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost+3)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, err := cfg.Verify(string(raw), "pw"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestVerify_Argon2CostTooHigh(t *testing.T) {
	strong := fastConfig()
	strong.Params.Iterations = 5

	h, err := strong.Hash("this is a strong password 123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if _, err := fastConfig().Verify(h, "this is a strong password 123!"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestHash_BcryptRejectsOver72Bytes(t *testing.T) {
	cfg := fastConfig()
	cfg.Algorithm = AlgorithmBcrypt

	if _, err := cfg.Hash(strings.Repeat("x", 73)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestValidate_MinMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinLength = 12
	cfg.Policy.MaxLength = 16

	if err := cfg.Validate("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}

	if err := cfg.Validate("this password is definitely too long"); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	if err := cfg.Validate("goodpassw0rd!"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := fastConfig()

	cases := []string{
		"not-a-hash",
		"",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$2a$xx$broken",
	}
	for _, h := range cases {
		ok, err := cfg.Verify(h, "whatever")
		if err != ErrInvalidHash {
			t.Fatalf("Verify(%q): expected ErrInvalidHash, got %v", h, err)
		}
		if ok {
			t.Fatalf("Verify(%q): expected false", h)
		}
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.RejectVeryWeak = true
	cfg.Policy.MinLength = 4

	for _, pw := range []string{"password", "11111111", "1234", "aaaaaaaa"} {
		if err := cfg.Validate(pw); err != ErrWeakPassword {
			t.Fatalf("Validate(%q): expected ErrWeakPassword, got %v", pw, err)
		}
	}
	if err := cfg.Validate("a-very-ok-pass"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func BenchmarkVerify_DefaultConfig(b *testing.B) {
	cfg := DefaultConfig()
	pw := "this is a strong password 123!"
	h, err := cfg.Hash(pw)
	if err != nil {
		b.Fatalf("Hash error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := cfg.Verify(h, pw)
		if err != nil || !ok {
			b.Fatalf("Verify failed: ok=%v err=%v", ok, err)
		}
	}
}
