package gate

import "roleguard/cmd/internal/auth/access"

// Observer receives counters from the core. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	LoginAttempt(o Outcome)
	Decision(d access.Decision)
	Evicted(n int)
}

type nopObserver struct{}

func (nopObserver) LoginAttempt(Outcome) {}
func (nopObserver) Decision(access.Decision) {}
func (nopObserver) Evicted(int) {}
