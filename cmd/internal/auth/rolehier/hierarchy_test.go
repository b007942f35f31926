package rolehier

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
)

const referenceHierarchy = `
ROLE_C > ROLE_B
ROLE_B > ROLE_A
`

func TestExpand_ReferenceChain(t *testing.T) {
	h := MustParse(referenceHierarchy)

	cases := map[string][]string{
		"C":      {"A", "B", "C"},
		"ROLE_B": {"A", "B"},
		"a":      {"A"},
		"ADMIN":  {"ADMIN"}, // unknown role
	}
	for role, want := range cases {
		if got := h.Expand(role); !slices.Equal(got, want) {
			t.Fatalf("Expand(%q)=%v want %v", role, got, want)
		}
	}
}

func TestExpand_Monotone(t *testing.T) {
	h := MustParse(referenceHierarchy)

	a, b, c := h.Expand("A"), h.Expand("B"), h.Expand("C")
	for _, r := range a {
		if !slices.Contains(b, r) {
			t.Fatalf("expand(A) not subset of expand(B): %v vs %v", a, b)
		}
	}
	for _, r := range b {
		if !slices.Contains(c, r) {
			t.Fatalf("expand(B) not subset of expand(C): %v vs %v", b, c)
		}
	}
}

func TestExpand_Reflexive(t *testing.T) {
	h := MustParse(referenceHierarchy)
	for _, r := range []string{"A", "B", "C", "GUEST"} {
		if !slices.Contains(h.Expand(r), r) {
			t.Fatalf("Expand(%q) does not contain itself", r)
		}
	}
}

func TestExpand_EmptyRole(t *testing.T) {
	h := MustParse(referenceHierarchy)
	if got := h.Expand("  "); len(got) != 0 {
		t.Fatalf("expected empty expansion, got %v", got)
	}
}

func TestExpand_ReturnsCopy(t *testing.T) {
	h := MustParse(referenceHierarchy)

	got := h.Expand("C")
	got[0] = "MUTATED"
	if h.Expand("C")[0] != "A" {
		t.Fatalf("Expand leaked internal state")
	}
}

func TestExpand_Diamond(t *testing.T) {
	h, err := New([]Pair{
		{Junior: "READ", Senior: "EDIT"},
		{Junior: "READ", Senior: "REVIEW"},
		{Junior: "EDIT", Senior: "ADMIN"},
		{Junior: "REVIEW", Senior: "ADMIN"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []string{"ADMIN", "EDIT", "READ", "REVIEW"}
	if got := h.Expand("ADMIN"); !slices.Equal(got, want) {
		t.Fatalf("Expand(ADMIN)=%v want %v", got, want)
	}
	if h.Implies("EDIT", "REVIEW") {
		t.Fatalf("siblings must not imply each other")
	}
}

func TestImplies(t *testing.T) {
	h := MustParse(referenceHierarchy)

	cases := []struct {
		role, other string
		want        bool
	}{
		{"C", "A", true},
		{"ROLE_C", "role_b", true},
		{"A", "C", false},
		{"X", "X", true},
		{"X", "", false},
	}
	for _, tc := range cases {
		if got := h.Implies(tc.role, tc.other); got != tc.want {
			t.Fatalf("Implies(%q,%q)=%v want %v", tc.role, tc.other, got, tc.want)
		}
	}
}

func TestNew_Cycle(t *testing.T) {
	cases := map[string][]Pair{
		"self":  {{Junior: "A", Senior: "A"}},
		"two":   {{Junior: "A", Senior: "B"}, {Junior: "B", Senior: "A"}},
		"three": {{Junior: "A", Senior: "B"}, {Junior: "B", Senior: "C"}, {Junior: "C", Senior: "A"}},
	}
	for name, pairs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(pairs)
			if !errors.Is(err, ErrCycle) {
				t.Fatalf("expected ErrCycle, got %v", err)
			}
			var ce ConfigError
			if !errors.As(err, &ce) || len(ce.Roles) < 2 || ce.Roles[0] != ce.Roles[len(ce.Roles)-1] {
				t.Fatalf("expected closed cycle path, got %+v", ce)
			}
		})
	}
}

func TestNew_EmptyRole(t *testing.T) {
	if _, err := New([]Pair{{Junior: "", Senior: "A"}}); !errors.Is(err, ErrBadRelation) {
		t.Fatalf("expected ErrBadRelation, got %v", err)
	}
}

func TestParse(t *testing.T) {
	pairs, err := Parse("# comment\nROLE_C > ROLE_B > ROLE_A\n\n  X>Y  ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Pair{
		{Senior: "ROLE_C", Junior: "ROLE_B"},
		{Senior: "ROLE_B", Junior: "ROLE_A"},
		{Senior: "X", Junior: "Y"},
	}
	if !slices.Equal(pairs, want) {
		t.Fatalf("Parse=%v want %v", pairs, want)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"ROLE_A", "A >", "> B", "A > > B"} {
		_, err := Parse("\n" + in)
		if !errors.Is(err, ErrBadRelation) {
			t.Fatalf("Parse(%q): expected ErrBadRelation, got %v", in, err)
		}
		var ce ConfigError
		if !errors.As(err, &ce) || ce.Line != 2 {
			t.Fatalf("Parse(%q): expected line 2, got %+v", in, ce)
		}
		if !strings.Contains(err.Error(), "line 2") {
			t.Fatalf("message should carry line: %s", err)
		}
	}
}

func TestCanonical(t *testing.T) {
	cases := map[string]string{
		"ROLE_ADMIN": "ADMIN",
		" admin ":    "ADMIN",
		"role_user":  "USER",
		"":           "",
	}
	for in, want := range cases {
		if got := Canonical(in); got != want {
			t.Fatalf("Canonical(%q)=%q want %q", in, got, want)
		}
	}
}

func TestHierarchy_ConcurrentReaders(t *testing.T) {
	h := MustParse(referenceHierarchy)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if len(h.Expand("C")) != 3 {
					t.Errorf("unexpected expansion")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNilHierarchy(t *testing.T) {
	var h *Hierarchy
	if got := h.Expand("USER"); !slices.Equal(got, []string{"USER"}) {
		t.Fatalf("nil Expand=%v", got)
	}
	if h.Implies("ADMIN", "USER") {
		t.Fatalf("nil hierarchy must not imply")
	}
	if got := h.Roles(); got != nil {
		t.Fatalf("nil Roles=%v", got)
	}
}

func TestRoles(t *testing.T) {
	h := MustParse(referenceHierarchy)
	if got, want := h.Roles(), []string{"A", "B", "C"}; !slices.Equal(got, want) {
		t.Fatalf("Roles()=%v want %v", got, want)
	}
}
