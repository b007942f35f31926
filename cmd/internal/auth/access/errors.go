package access

import (
	"errors"
	"fmt"
)

var (
	// ErrBadPattern reports an unsupported path pattern.
	ErrBadPattern = errors.New("bad path pattern")
	// ErrBadRequirement reports a requirement that can never be met.
	ErrBadRequirement = errors.New("bad requirement")
)

// ConfigError is a startup configuration error in the rule table.
type ConfigError struct {
	Rule    int // 0-based index in the rule list; -1 for the default
	Pattern string
	Err     error
}

func (e ConfigError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("access: rule %d: %v: %q", e.Rule, e.Err, e.Pattern)
	}
	return fmt.Sprintf("access: rule %d: %v", e.Rule, e.Err)
}

func (e ConfigError) Unwrap() error { return e.Err }
