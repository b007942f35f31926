package rolehier

import "strings"

// Parse reads relations in the form "ROLE_C > ROLE_B", one per line.
// Chains ("C > B > A") expand to consecutive pairs. Blank lines and lines
// starting with '#' are ignored.
func Parse(text string) ([]Pair, error) {
	var pairs []Pair
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ">")
		if len(parts) < 2 {
			return nil, ConfigError{Line: i + 1, Roles: []string{line}, Err: ErrBadRelation}
		}
		for k := range parts {
			parts[k] = strings.TrimSpace(parts[k])
			if parts[k] == "" {
				return nil, ConfigError{Line: i + 1, Roles: []string{line}, Err: ErrBadRelation}
			}
		}
		for k := 0; k+1 < len(parts); k++ {
			pairs = append(pairs, Pair{Senior: parts[k], Junior: parts[k+1]})
		}
	}
	return pairs, nil
}

// MustParse is Parse followed by New; it panics on error.
// Intended for tests and package-level fixtures.
func MustParse(text string) *Hierarchy {
	pairs, err := Parse(text)
	if err != nil {
		panic(err)
	}
	h, err := New(pairs)
	if err != nil {
		panic(err)
	}
	return h
}
