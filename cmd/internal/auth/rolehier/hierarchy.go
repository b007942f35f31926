package rolehier

import (
	"slices"
	"sort"
	"strings"
)

// Pair declares that Senior is granted everything Junior is.
type Pair struct {
	Junior string
	Senior string
}

// Hierarchy is an immutable, precomputed role closure.
type Hierarchy struct {
	closure map[string][]string
}

// Canonical returns the canonical form of a role label:
// trimmed, upper-cased, with a leading "ROLE_" removed.
func Canonical(role string) string {
	r := strings.ToUpper(strings.TrimSpace(role))
	return strings.TrimPrefix(r, "ROLE_")
}

// New builds a Hierarchy from pairs. Roles are canonicalized.
// A cycle (including a self-pair) yields a ConfigError wrapping ErrCycle.
func New(pairs []Pair) (*Hierarchy, error) {
	juniors := make(map[string][]string)
	for _, p := range pairs {
		j, s := Canonical(p.Junior), Canonical(p.Senior)
		if j == "" || s == "" {
			return nil, ConfigError{Roles: []string{p.Senior, p.Junior}, Err: ErrBadRelation}
		}
		if !slices.Contains(juniors[s], j) {
			juniors[s] = append(juniors[s], j)
		}
		if _, ok := juniors[j]; !ok {
			juniors[j] = nil
		}
	}

	if cycle := findCycle(juniors); cycle != nil {
		return nil, ConfigError{Roles: cycle, Err: ErrCycle}
	}

	h := &Hierarchy{closure: make(map[string][]string, len(juniors))}
	for role := range juniors {
		seen := map[string]struct{}{role: {}}
		stack := []string{role}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, j := range juniors[cur] {
				if _, ok := seen[j]; ok {
					continue
				}
				seen[j] = struct{}{}
				stack = append(stack, j)
			}
		}
		set := make([]string, 0, len(seen))
		for r := range seen {
			set = append(set, r)
		}
		sort.Strings(set)
		h.closure[role] = set
	}
	return h, nil
}

// findCycle returns the roles on a cycle, senior first, or nil.
func findCycle(juniors map[string][]string) []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(juniors))
	var path []string
	var cycle []string

	var visit func(string) bool
	visit = func(r string) bool {
		color[r] = grey
		path = append(path, r)
		for _, j := range juniors[r] {
			switch color[j] {
			case grey:
				i := slices.Index(path, j)
				cycle = append(append([]string{}, path[i:]...), j)
				return true
			case white:
				if visit(j) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[r] = black
		return false
	}

	// Deterministic start order for stable error messages.
	roles := make([]string, 0, len(juniors))
	for r := range juniors {
		roles = append(roles, r)
	}
	sort.Strings(roles)

	for _, r := range roles {
		if color[r] == white && visit(r) {
			return cycle
		}
	}
	return nil
}

// Expand returns the role itself plus every role it is senior to, sorted.
// Unknown roles expand to themselves. An empty role expands to nothing.
// The returned slice is owned by the caller.
func (h *Hierarchy) Expand(role string) []string {
	r := Canonical(role)
	if r == "" {
		return nil
	}
	if h != nil {
		if set, ok := h.closure[r]; ok {
			return slices.Clone(set)
		}
	}
	return []string{r}
}

// Implies reports whether holding role grants other.
func (h *Hierarchy) Implies(role, other string) bool {
	o := Canonical(other)
	if o == "" {
		return false
	}
	r := Canonical(role)
	if r == o {
		return true
	}
	if h == nil {
		return false
	}
	_, found := slices.BinarySearch(h.closure[r], o)
	return found
}

// Roles returns every role named in the hierarchy, sorted.
func (h *Hierarchy) Roles() []string {
	if h == nil {
		return nil
	}
	out := make([]string, 0, len(h.closure))
	for r := range h.closure {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
