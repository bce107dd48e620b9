// Package locks implements the scoped locks the retention policies hand out:
// per-generation reference counts for WAL snapshots and a held-count gate that
// freezes the soft-deletes retention floor.
//
// Every acquire returns a Releasable. Closing it releases the lock exactly
// once; further Close calls are no-ops that return nil.
//
// # Leak tracking
//
// With WithLeakTracking(true) a registry records a Marker for every open lock
// (a random id plus the acquiring call stack). AssertNoOpenRefs reports all of
// them in a single LeakError. Tracking is meant for tests and debug builds;
// when disabled it costs nothing.
package locks

import (
	"sync/atomic"
)

// Releasable is a handle returned by an acquire operation.
type Releasable interface {
	// Close releases the lock. Only the first call has an effect.
	Close() error
}

// ReleaseFunc adapts fn into a Releasable that runs fn at most once.
func ReleaseFunc(fn func() error) Releasable {
	return &releaseOnce{fn: fn}
}

type releaseOnce struct {
	closed atomic.Bool
	fn     func() error
}

func (r *releaseOnce) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.fn()
}

// Nop is a Releasable that does nothing.
var Nop Releasable = nopReleasable{}

type nopReleasable struct{}

func (nopReleasable) Close() error { return nil }

// Option configures a Registry or a Gate.
type Option func(*options)

type options struct {
	trackLeaks bool
}

// WithLeakTracking enables per-lock markers checked at shutdown.
func WithLeakTracking(enabled bool) Option {
	return func(o *options) {
		o.trackLeaks = enabled
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
