package translog

import (
	"sync"
	"time"

	"github.com/dray-io/retention/internal/locks"
	"github.com/dray-io/retention/internal/seqno"
)

// Config holds the admin retention knobs.
type Config struct {
	// RetentionSizeBytes keeps at least this many bytes of translog. -1 disables.
	RetentionSizeBytes int64

	// RetentionAgeMillis keeps every generation modified within this window. -1 disables.
	RetentionAgeMillis int64

	// RetentionTotalFiles keeps at least this many files, writer included.
	RetentionTotalFiles int

	// TrackLeaks records every open generation lock for the shutdown check.
	TrackLeaks bool
}

// DefaultConfig returns the retention defaults of a fresh shard.
func DefaultConfig() Config {
	return Config{
		RetentionSizeBytes:  512 * 1024 * 1024, // 512MB
		RetentionAgeMillis:  12 * 60 * 60 * 1000,
		RetentionTotalFiles: 100,
	}
}

// Option configures a DeletionPolicy.
type Option func(*DeletionPolicy)

// WithClock overrides the clock used by the age bound.
func WithClock(now func() time.Time) Option {
	return func(p *DeletionPolicy) {
		p.now = now
	}
}

// DeletionPolicy computes the oldest translog generation that must be kept.
// It is safe for concurrent use.
type DeletionPolicy struct {
	refs *locks.Registry
	now  func() time.Time

	mu                      sync.Mutex
	retentionSizeBytes      int64
	retentionAgeMillis      int64
	retentionTotalFiles     int
	localCheckpointOfCommit int64
	closed                  bool
}

// NewDeletionPolicy creates a policy with the given knobs.
func NewDeletionPolicy(cfg Config, opts ...Option) *DeletionPolicy {
	p := &DeletionPolicy{
		refs:                    locks.NewRegistry(locks.WithLeakTracking(cfg.TrackLeaks)),
		now:                     time.Now,
		retentionSizeBytes:      cfg.RetentionSizeBytes,
		retentionAgeMillis:      cfg.RetentionAgeMillis,
		retentionTotalFiles:     cfg.RetentionTotalFiles,
		localCheckpointOfCommit: seqno.NoOpsPerformed,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AcquireTranslogGen pins gen and every newer generation until the returned
// handle is closed.
func (p *DeletionPolicy) AcquireTranslogGen(gen int64) locks.Releasable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs.Acquire(gen)
}

// PendingTranslogRefCount returns how many distinct generations are pinned.
func (p *DeletionPolicy) PendingTranslogRefCount() int {
	return p.refs.PendingCount()
}

// TranslogRefCount returns the number of open locks on gen.
func (p *DeletionPolicy) TranslogRefCount(gen int64) int64 {
	return p.refs.RefCount(gen)
}

// SetLocalCheckpointOfSafeCommit records the local checkpoint of the newest
// safe commit. Moving it backwards is an invariant violation.
func (p *DeletionPolicy) SetLocalCheckpointOfSafeCommit(checkpoint int64) error {
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
func (p *DeletionPolicy) LocalCheckpointOfSafeCommit() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.localCheckpointOfCommit
}

// SetRetentionSizeInBytes updates the size bound. -1 disables it.
func (p *DeletionPolicy) SetRetentionSizeInBytes(bytes int64) {
	p.mu.Lock()
	p.retentionSizeBytes = bytes
	p.mu.Unlock()
}

// SetRetentionAgeInMillis updates the age bound. -1 disables it.
func (p *DeletionPolicy) SetRetentionAgeInMillis(ageMillis int64) {
	p.mu.Lock()
	p.retentionAgeMillis = ageMillis
	p.mu.Unlock()
}

// SetRetentionTotalFiles updates the number of files kept, writer included.
func (p *DeletionPolicy) SetRetentionTotalFiles(totalFiles int) {
	p.mu.Lock()
	p.retentionTotalFiles = totalFiles
	p.mu.Unlock()
}

// Config returns the current knobs.
func (p *DeletionPolicy) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Config{
		RetentionSizeBytes:  p.retentionSizeBytes,
		RetentionAgeMillis:  p.retentionAgeMillis,
		RetentionTotalFiles: p.retentionTotalFiles,
		TrackLeaks:          p.refs.TracksLeaks(),
	}
}

// MinTranslogGenRequired returns the oldest generation still required.
// readers are ordered oldest first. Generations below the result may be
// deleted.
func (p *DeletionPolicy) MinTranslogGenRequired(readers []Segment, writer Segment) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	configured := min(
		MinGenBySize(readers, writer, p.retentionSizeBytes),
		MinGenByAge(readers, writer, p.retentionAgeMillis, p.now().UnixMilli()),
		MinGenByTotalFiles(readers, writer, p.retentionTotalFiles),
	)
	return min(configured, p.minGenRequiredByLocks())
}

func (p *DeletionPolicy) minGenRequiredByLocks() int64 {
	gen, ok := p.refs.MinLocked()
	if !ok {
		return Unconstrained
	}
	return gen
}

// AssertNoOpenTranslogRefs reports generation locks that are still open.
// It returns nil when leak tracking is disabled.
func (p *DeletionPolicy) AssertNoOpenTranslogRefs() error {
	return p.refs.AssertNoOpenRefs()
}

// Close runs the leak check once. Later calls return nil.
func (p *DeletionPolicy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.AssertNoOpenTranslogRefs()
}
