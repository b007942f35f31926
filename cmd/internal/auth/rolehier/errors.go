package rolehier

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycle reports a role that is (transitively) senior to itself.
	ErrCycle = errors.New("role hierarchy cycle")
	// ErrBadRelation reports an unparsable or incomplete relation.
	ErrBadRelation = errors.New("malformed role relation")
)

// ConfigError is a startup configuration error in the hierarchy.
type ConfigError struct {
	// Line is 1-based when the error came from Parse, 0 otherwise.
	Line  int
	Roles []string
	Err   error
}

func (e ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("rolehier: ")
	b.WriteString(e.Err.Error())
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d)", e.Line)
	}
	if len(e.Roles) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Roles, " > "))
	}
	return b.String()
}

func (e ConfigError) Unwrap() error { return e.Err }
