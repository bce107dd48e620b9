package locks

import (
	"sync"
)

// GateState is the state of a Gate.
type GateState int

const (
	// Unlocked means no retention lock is held.
	Unlocked GateState = iota
	// Locked means at least one retention lock is held.
	Locked
)

func (s GateState) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Gate is a held-count lock. While any holder exists, consumers must keep
// their last computed retention floor as is.
type Gate struct {
	mu    sync.Mutex
	held  int
	leaks *leakTracker
}

// NewGate creates an unlocked gate.
func NewGate(opts ...Option) *Gate {
	o := buildOptions(opts)
	return &Gate{leaks: newLeakTracker(o.trackLeaks)}
}

// Acquire increments the held count until the returned handle is closed.
func (g *Gate) Acquire() Releasable {
	g.mu.Lock()
	g.held++
	g.mu.Unlock()

	id := g.leaks.add("retention lock", 1)
	return ReleaseFunc(func() error {
		g.leaks.remove(id)
		return g.release()
	})
}

func (g *Gate) release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held <= 0 {
		return Violationf("retention lock released more often than acquired")
	}
	g.held--
	return nil
}

// IsHeld reports whether at least one retention lock is held.
func (g *Gate) IsHeld() bool {
	return g.State() == Locked
}

// State returns Locked while the held count is positive.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held > 0 {
		return Locked
	}
	return Unlocked
}

// HeldCount returns the number of open retention locks.
func (g *Gate) HeldCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// IfUnlocked runs fn only while the gate is unlocked and reports whether it
// ran. The gate stays unlocked for the duration of fn, so a floor computed
// inside fn cannot race with a concurrent Acquire.
func (g *Gate) IfUnlocked(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held > 0 {
		return false
	}
	fn()
	return true
}

// AssertNoOpenRefs returns a LeakError when leak tracking is enabled and
// retention locks are still held.
func (g *Gate) AssertNoOpenRefs() error {
	return g.leaks.check()
}
