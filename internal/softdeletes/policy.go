// Package softdeletes tracks how far back soft-deleted documents must be kept
// so replicas and followers can still replay operations from them.
//
// The retained floor is
//
//	min(1 + safeCommitCheckpoint,
//	    1 + globalCheckpoint - retentionOperations,
//	    min(lease.RetainingSeqNo))
//
// and only ever moves forward. While a retention lock is held the floor stays
// exactly where it was when the lock was taken.
package softdeletes

import (
	"sync"

	"github.com/dray-io/retention/internal/locks"
	"github.com/dray-io/retention/internal/seqno"
)

// SeqNoField is the document field the retention query ranges over.
const SeqNoField = "_seq_no"

// GlobalCheckpointSupplier returns the current global checkpoint.
type GlobalCheckpointSupplier func() int64

// LeasesSupplier returns the current retention leases.
type LeasesSupplier func() seqno.RetentionLeases

// Config configures a Policy.
type Config struct {
	// GlobalCheckpoint supplies the global checkpoint. Required.
	GlobalCheckpoint GlobalCheckpointSupplier

	// Leases supplies retention leases. nil means no leases.
	Leases LeasesSupplier

	// MinRetainedSeqNo is the initial floor, usually read back from the last
	// commit. A new shard starts at seqno.NoOpsPerformed.
	MinRetainedSeqNo int64

	// RetentionOperations keeps this many operations below the global checkpoint.
	RetentionOperations int64

	// TrackLeaks records open retention locks for a shutdown check.
	TrackLeaks bool
}

// Policy computes the minimum sequence number of soft-deleted documents that
// must be retained. It is safe for concurrent use.
type Policy struct {
	globalCheckpoint GlobalCheckpointSupplier
	leases           LeasesSupplier
	gate             *locks.Gate

	mu                      sync.Mutex
	retentionOperations     int64
	localCheckpointOfCommit int64
	minRetainedSeqNo        int64
}

// NewPolicy creates a soft-deletes policy.
func NewPolicy(cfg Config) *Policy {
	leases := cfg.Leases
	if leases == nil {
		leases = func() seqno.RetentionLeases { return seqno.EmptyRetentionLeases }
	}
	return &Policy{
		globalCheckpoint:        cfg.GlobalCheckpoint,
		leases:                  leases,
		gate:                    locks.NewGate(locks.WithLeakTracking(cfg.TrackLeaks)),
		retentionOperations:     cfg.RetentionOperations,
		localCheckpointOfCommit: seqno.NoOpsPerformed,
		minRetainedSeqNo:        cfg.MinRetainedSeqNo,
	}
}

// SetRetentionOperations updates the number of operations kept below the
// global checkpoint.
func (p *Policy) SetRetentionOperations(ops int64) {
	p.mu.Lock()
	p.retentionOperations = ops
	p.mu.Unlock()
}

// RetentionOperations returns the current setting.
func (p *Policy) RetentionOperations() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retentionOperations
}

// SetLocalCheckpointOfSafeCommit records the local checkpoint of the newest
// safe commit. Moving it backwards is an invariant violation.
func (p *Policy) SetLocalCheckpointOfSafeCommit(checkpoint int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if checkpoint < p.localCheckpointOfCommit {
		return locks.Violationf("local checkpoint of the safe commit can't go backwards: current [%d] new [%d]",
			p.localCheckpointOfCommit, checkpoint)
	}
	p.localCheckpointOfCommit = checkpoint
	return nil
}

// LocalCheckpointOfSafeCommit returns the last recorded safe-commit checkpoint.
func (p *Policy) LocalCheckpointOfSafeCommit() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.localCheckpointOfCommit
}

// AcquireRetentionLock freezes the retained floor until the handle is closed.
// Soft-deleted documents needed by a snapshot or recovery stay on disk while
// the lock is held.
func (p *Policy) AcquireRetentionLock() locks.Releasable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gate.Acquire()
}

// RetentionLockHeld reports whether a retention lock is held.
func (p *Policy) RetentionLockHeld() bool {
	return p.gate.IsHeld()
}

// RetentionLockCount returns the number of open retention locks.
func (p *Policy) RetentionLockCount() int {
	return p.gate.HeldCount()
}

// MinRetainedSeqNo returns the minimum sequence number that must be kept.
// Unless a retention lock is held, it first ratchets the floor up to the
// current checkpoints and leases.
func (p *Policy) MinRetainedSeqNo() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gate.IfUnlocked(func() {
		p.minRetainedSeqNo = max(p.minRetainedSeqNo, p.candidate())
	})
	return p.minRetainedSeqNo
}

// candidate computes the floor implied by the current inputs. Called with
// p.mu held.
func (p *Policy) candidate() int64 {
	byCommit := seqno.AddSaturating(p.localCheckpointOfCommit, 1)
	byGlobal := seqno.AddSaturating(seqno.SubSaturating(p.globalCheckpoint(), p.retentionOperations), 1)

	floor := min(byCommit, byGlobal)
	if byLeases, ok := p.leases().MinRetainingSeqNo(); ok {
		floor = min(floor, byLeases)
	}
	return floor
}

// RetentionQuery returns the range of sequence numbers to keep. Like
// MinRetainedSeqNo it may advance the floor.
func (p *Policy) RetentionQuery() seqno.RangeQuery {
	return seqno.RangeQuery{
		Field: SeqNoField,
		Min:   p.MinRetainedSeqNo(),
		Max:   seqno.MaxSeqNo,
	}
}

// RetentionLeases returns the current leases, for callers that persist them
// alongside a commit.
func (p *Policy) RetentionLeases() seqno.RetentionLeases {
	return p.leases()
}

// AssertNoOpenRetentionLocks reports retention locks still open when leak
// tracking is enabled.
func (p *Policy) AssertNoOpenRetentionLocks() error {
	return p.gate.AssertNoOpenRefs()
}
