package locks

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvariantViolation marks a bug in the calling engine: a checkpoint
	// moving backwards, a release without a matching acquire, an
	// over-release, or locks still open at shutdown. Callers must not retry;
	// the triggering operation has to fail.
	ErrInvariantViolation = errors.New("locks: invariant violation")

	// ErrLeakedLocks is returned by leak assertions when locks are still open.
	ErrLeakedLocks = errors.New("locks: unreleased locks")
)

// Violationf builds an error wrapping ErrInvariantViolation.
func Violationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// LeakError lists every lock that was still open when a leak check ran.
// It matches both ErrLeakedLocks and ErrInvariantViolation.
type LeakError struct {
	Markers []Marker
}

func (e *LeakError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "locks: %d lock(s) not released", len(e.Markers))
	for _, m := range e.Markers {
		b.WriteString("\n  ")
		b.WriteString(m.String())
	}
	return b.String()
}

func (e *LeakError) Unwrap() []error {
	return []error{ErrLeakedLocks, ErrInvariantViolation}
}
