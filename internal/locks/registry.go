package locks

import (
	"fmt"
	"math"
	"sync"
)

// Registry counts how many outstanding locks pin each WAL generation.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	refs  map[int64]int64
	leaks *leakTracker
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	o := buildOptions(opts)
	return &Registry{
		refs:  make(map[int64]int64),
		leaks: newLeakTracker(o.trackLeaks),
	}
}

// Acquire pins generation gen until the returned handle is closed.
func (r *Registry) Acquire(gen int64) Releasable {
	r.mu.Lock()
	r.refs[gen]++
	r.mu.Unlock()

	var id string
	if r.leaks != nil {
		id = r.leaks.add(fmt.Sprintf("translog generation %d", gen), 1)
	}
	return ReleaseFunc(func() error {
		r.leaks.remove(id)
		return r.release(gen)
	})
}

// release drops one reference to gen on behalf of a closing handle. A
// generation that holds no reference is an invariant violation and leaves the
// registry unchanged.
func (r *Registry) release(gen int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, ok := r.refs[gen]
	if !ok || count <= 0 {
		return Violationf("translog gen [%d] wasn't acquired", gen)
	}
	if count == 1 {
		delete(r.refs, gen)
		return nil
	}
	r.refs[gen] = count - 1
	return nil
}

// PendingCount returns the number of distinct generations with at least one
// open lock.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refs)
}

// RefCount returns the number of open locks on gen.
func (r *Registry) RefCount(gen int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[gen]
}

// MinLocked returns the smallest locked generation. ok is false when nothing
// is locked, in which case minGen is math.MaxInt64.
func (r *Registry) MinLocked() (minGen int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	minGen = math.MaxInt64
	for gen := range r.refs {
		minGen = min(minGen, gen)
		ok = true
	}
	return minGen, ok
}

// AssertNoOpenRefs returns a LeakError naming every lock acquired through
// Acquire and not yet closed. It always returns nil when leak tracking is
// disabled.
func (r *Registry) AssertNoOpenRefs() error {
	return r.leaks.check()
}

// TracksLeaks reports whether leak tracking is enabled.
func (r *Registry) TracksLeaks() bool {
	return r.leaks != nil
}
