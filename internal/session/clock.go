// ABOUTME: Clock abstraction so registry sweeps are testable without wall-clock waits.
// ABOUTME: Production code uses the real clock; tests inject a fake.

package session

import "time"

// Clock supplies the current time to the registry. Injected so idle
// reclamation can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// realClock is the production Clock backed by time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns a Clock backed by the system clock.
func RealClock() Clock { return realClock{} }
