package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeUsername(t *testing.T) {
	cases := map[string]string{
		"  Alice ":    "alice",
		"USER1":       "user1",
		"\uFF35ser1":  "user1", // fullwidth U
		"\uFB01le":    "file",  // ligature folds under NFKC
		"already-low": "already-low",
	}
	for in, want := range cases {
		if got := NormalizeUsername(in); got != want {
			t.Fatalf("NormalizeUsername(%q)=%q want %q", in, got, want)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	bad := []string{"", "has space", "tab\tname", "nul\x00", "bad\ufffd", strings.Repeat("a", MaxUsernameLength+1)}
	for _, u := range bad {
		if err := ValidateUsername(u); !IsInvalidInput(err) {
			t.Fatalf("ValidateUsername(%q): expected invalid input, got %v", u, err)
		}
	}
	if err := ValidateUsername("user_1.ok"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestAccountStatus_Usable(t *testing.T) {
	cases := []struct {
		st   AccountStatus
		want bool
	}{
		{ActiveStatus(), true},
		{AccountStatus{}, false},
		{AccountStatus{Enabled: true, Expired: true}, false},
		{AccountStatus{Enabled: true, Locked: true}, false},
		{AccountStatus{Enabled: true, CredentialsExpired: true}, false},
	}
	for _, tc := range cases {
		if got := tc.st.Usable(); got != tc.want {
			t.Fatalf("%+v.Usable()=%v want %v", tc.st, got, tc.want)
		}
	}
}

func TestOpError_UnwrapBoth(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := unavailable("identity.Test", cause)

	if !IsUnavailable(err) {
		t.Fatalf("expected ErrUnavailable kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if !strings.Contains(err.Error(), "identity.Test: unavailable") {
		t.Fatalf("unexpected message: %s", err)
	}
}

func TestClassifyConstraint(t *testing.T) {
	cases := map[string]string{
		"uq_users_username":  "username",
		"users_username_key": "username",
		"users_pkey":         "id",
		"something_else":     "unique",
	}
	for in, want := range cases {
		if got := classifyConstraint(in); got != want {
			t.Fatalf("classifyConstraint(%q)=%q want %q", in, got, want)
		}
	}
}

func TestLookupKey(t *testing.T) {
	if k, ok := lookupKey(" User1 "); !ok || k != "user1" {
		t.Fatalf("lookupKey(User1) = %q, %v", k, ok)
	}
	for _, in := range []string{"", "   ", "a\x00b", "a\xffb", "tab\there", strings.Repeat("x", MaxUsernameLength+1)} {
		if k, ok := lookupKey(in); ok || k != "" {
			t.Fatalf("lookupKey(%q) = %q, %v; want rejected", in, k, ok)
		}
	}
}

// A nil pool panics on any query, so these calls must return before reaching it.
func TestPostgresStore_UnstorableUsernameSkipsQuery(t *testing.T) {
	s := &PostgresStore{schema: DefaultSchema}
	ctx := context.Background()

	for _, in := range []string{"user\x001", "user\xff"} {
		if _, err := s.FindByUsername(ctx, in); !IsNotFound(err) {
			t.Fatalf("FindByUsername(%q): expected not found, got %v", in, err)
		}
		ok, err := s.ExistsByUsername(ctx, in)
		if err != nil || ok {
			t.Fatalf("ExistsByUsername(%q): got ok=%v err=%v", in, ok, err)
		}
	}
}
