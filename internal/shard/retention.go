// Package shard bundles the translog deletion policy and the soft-deletes
// retention policy of one shard behind the calls an engine makes: pinning
// history for a snapshot, advancing the safe commit, planning what may be
// purged, and applying dynamic settings.
package shard

import (
	"errors"
	"sync"
	"time"

	"github.com/dray-io/retention/internal/config"
	"github.com/dray-io/retention/internal/locks"
	"github.com/dray-io/retention/internal/logging"
	"github.com/dray-io/retention/internal/metrics"
	"github.com/dray-io/retention/internal/seqno"
	"github.com/dray-io/retention/internal/softdeletes"
	"github.com/dray-io/retention/internal/translog"
)

// ErrClosed is returned by operations on a closed Retention.
var ErrClosed = errors.New("shard: retention closed")

// Plan is the purge boundary computed for one pass.
type Plan struct {
	// MinTranslogGen is the oldest translog generation to keep.
	MinTranslogGen int64 `json:"minTranslogGen"`
	// MinRetainedSeqNo is the lowest sequence number of soft-deleted
	// documents to keep.
	MinRetainedSeqNo int64 `json:"minRetainedSeqNo"`
	// RetentionQuery selects the documents to keep.
	RetentionQuery seqno.RangeQuery `json:"retentionQuery"`
	// PendingTranslogLocks and RetentionLocks describe what pinned history
	// when the plan was made.
	PendingTranslogLocks int `json:"pendingTranslogLocks"`
	RetentionLocks       int `json:"retentionLocks"`
}

// Stats is a point-in-time view of a shard's retention state.
type Stats struct {
	ShardID                     string `json:"shardId"`
	PendingTranslogLocks        int    `json:"pendingTranslogLocks"`
	RetentionLockHeld           bool   `json:"retentionLockHeld"`
	LocalCheckpointOfSafeCommit int64  `json:"localCheckpointOfSafeCommit"`
	LastPlan                    *Plan  `json:"lastPlan,omitempty"`
	Closed                      bool   `json:"closed"`
}

// Option configures a Retention.
type Option func(*Retention)

// WithMetrics records floors, lock counts and violations in m.
func WithMetrics(m *metrics.RetentionMetrics) Option {
	return func(r *Retention) {
		r.metrics = m
	}
}

// WithLogger sets the base logger. Shard and component tags are added.
func WithLogger(l *logging.Logger) Option {
	return func(r *Retention) {
		r.logger = l
	}
}

// WithClock overrides the clock used by the translog age bound.
func WithClock(now func() time.Time) Option {
	return func(r *Retention) {
		r.now = now
	}
}

// WithMinRetainedSeqNo seeds the soft-deletes floor, usually from the value
// stored in the last commit.
func WithMinRetainedSeqNo(n int64) Option {
	return func(r *Retention) {
		r.initialMinRetained = n
	}
}

// Retention is the retention state of one shard. It is safe for concurrent
// use.
type Retention struct {
	id          string
	translog    *translog.DeletionPolicy
	softDeletes *softdeletes.Policy
	metrics     *metrics.RetentionMetrics
	logger      *logging.Logger

	now                func() time.Time
	initialMinRetained int64

	// mu serializes lock hand-out, commits, settings changes, metric updates
	// and close. It is never held while a policy computes a floor.
	mu       sync.Mutex
	closed   bool
	lastPlan *Plan
}

// New creates the retention state of a shard from cfg. globalCheckpoint is
// required; leases may be nil.
func New(cfg config.Retention, globalCheckpoint softdeletes.GlobalCheckpointSupplier, leases softdeletes.LeasesSupplier, opts ...Option) (*Retention, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if globalCheckpoint == nil {
		return nil, errors.New("shard: global checkpoint supplier is required")
	}

	r := &Retention{
		id:                 cfg.ShardID,
		now:                time.Now,
		initialMinRetained: seqno.NoOpsPerformed,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.Global()
	}
	r.logger = r.logger.WithShard(r.id).WithComponent("retention")

	r.translog = translog.NewDeletionPolicy(translog.Config{
		RetentionSizeBytes:  cfg.Translog.RetentionSizeBytes,
		RetentionAgeMillis:  cfg.Translog.RetentionAgeMillis,
		RetentionTotalFiles: cfg.Translog.RetentionTotalFiles,
		TrackLeaks:          cfg.Debug.TrackLockLeaks,
	}, translog.WithClock(r.now))
	r.softDeletes = softdeletes.NewPolicy(softdeletes.Config{
		GlobalCheckpoint:    globalCheckpoint,
		Leases:              leases,
		MinRetainedSeqNo:    r.initialMinRetained,
		RetentionOperations: cfg.SoftDeletes.RetentionOperations,
		TrackLeaks:          cfg.Debug.TrackLockLeaks,
	})

	r.logger.Infof("retention policies created", map[string]any{
		"retentionSizeBytes":  cfg.Translog.RetentionSizeBytes,
		"retentionAgeMillis":  cfg.Translog.RetentionAgeMillis,
		"retentionTotalFiles": cfg.Translog.RetentionTotalFiles,
		"retentionOperations": cfg.SoftDeletes.RetentionOperations,
		"trackLockLeaks":      cfg.Debug.TrackLockLeaks,
	})
	return r, nil
}

// ID returns the shard id.
func (r *Retention) ID() string { return r.id }

// Translog returns the shard's translog deletion policy.
func (r *Retention) Translog() *translog.DeletionPolicy { return r.translog }

// SoftDeletes returns the shard's soft-deletes policy.
func (r *Retention) SoftDeletes() *softdeletes.Policy { return r.softDeletes }

// AcquireSnapshot pins translog generation gen and freezes the soft-deletes
// floor, as a recovery or snapshot needs both. Closing the handle releases
// both; errors from either release are joined.
// A Close that starts after AcquireSnapshot returns sees both locks in its
// leak check.
func (r *Retention) AcquireSnapshot(gen int64) (locks.Releasable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	genLock := r.translog.AcquireTranslogGen(gen)
	retentionLock := r.softDeletes.AcquireRetentionLock()
	r.recordLocksLocked()

	return locks.ReleaseFunc(func() error {
		err := errors.Join(genLock.Close(), retentionLock.Close())
		r.mu.Lock()
		r.recordLocksLocked()
		r.mu.Unlock()
		if err != nil {
			return r.violation("release", err, map[string]any{"generation": gen})
		}
		return nil
	}), nil
}

// OnCommit advances the safe-commit checkpoint of both policies. A value
// below the current checkpoint is rejected and neither policy changes.
func (r *Retention) OnCommit(localCheckpointOfSafeCommit int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	current := max(r.translog.LocalCheckpointOfSafeCommit(), r.softDeletes.LocalCheckpointOfSafeCommit())
	if localCheckpointOfSafeCommit < current {
		err := locks.Violationf("local checkpoint of the safe commit can't go backwards: current [%d] new [%d]",
			current, localCheckpointOfSafeCommit)
		return r.violation("commit", err, nil)
	}

	if err := r.translog.SetLocalCheckpointOfSafeCommit(localCheckpointOfSafeCommit); err != nil {
		return r.violation("commit", err, nil)
	}
	if err := r.softDeletes.SetLocalCheckpointOfSafeCommit(localCheckpointOfSafeCommit); err != nil {
		return r.violation("commit", err, nil)
	}
	return nil
}

// Plan computes both purge boundaries. readers are ordered oldest first.
// After Close the plan is still computed but neither recorded in metrics nor
// kept for Stats.
func (r *Retention) Plan(readers []translog.Segment, writer translog.Segment) Plan {
	query := r.softDeletes.RetentionQuery()
	plan := Plan{
		MinTranslogGen:       r.translog.MinTranslogGenRequired(readers, writer),
		MinRetainedSeqNo:     query.Min,
		RetentionQuery:       query,
		PendingTranslogLocks: r.translog.PendingTranslogRefCount(),
		RetentionLocks:       r.softDeletes.RetentionLockCount(),
	}

	r.mu.Lock()
	closed := r.closed
	if !closed {
		r.lastPlan = &plan
		if r.metrics != nil {
			r.metrics.RecordPlan(r.id, plan.MinTranslogGen, plan.MinRetainedSeqNo)
			r.metrics.RecordLocks(r.id, plan.PendingTranslogLocks, plan.RetentionLocks > 0)
		}
	}
	r.mu.Unlock()

	if closed {
		return plan
	}
	if r.logger.Enabled(logging.LevelDebug) {
		r.logger.Debugf("retention plan", map[string]any{
			"readers":              len(readers),
			"writerGeneration":     writer.Generation(),
			"minTranslogGen":       plan.MinTranslogGen,
			"minRetainedSeqNo":     plan.MinRetainedSeqNo,
			"pendingTranslogLocks": plan.PendingTranslogLocks,
			"retentionLocks":       plan.RetentionLocks,
		})
	}
	return plan
}

// ApplySettings applies the dynamic retention knobs of cfg. The shard id and
// leak tracking are fixed at creation and ignored here.
func (r *Retention) ApplySettings(cfg config.Retention) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	r.translog.SetRetentionSizeInBytes(cfg.Translog.RetentionSizeBytes)
	r.translog.SetRetentionAgeInMillis(cfg.Translog.RetentionAgeMillis)
	r.translog.SetRetentionTotalFiles(cfg.Translog.RetentionTotalFiles)
	r.softDeletes.SetRetentionOperations(cfg.SoftDeletes.RetentionOperations)

	r.logger.Infof("retention settings updated", map[string]any{
		"retentionSizeBytes":  cfg.Translog.RetentionSizeBytes,
		"retentionAgeMillis":  cfg.Translog.RetentionAgeMillis,
		"retentionTotalFiles": cfg.Translog.RetentionTotalFiles,
		"retentionOperations": cfg.SoftDeletes.RetentionOperations,
	})
	return nil
}

// Stats returns the current retention state.
func (r *Retention) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		ShardID:                     r.id,
		PendingTranslogLocks:        r.translog.PendingTranslogRefCount(),
		RetentionLockHeld:           r.softDeletes.RetentionLockHeld(),
		LocalCheckpointOfSafeCommit: r.translog.LocalCheckpointOfSafeCommit(),
		Closed:                      r.closed,
	}
	if r.lastPlan != nil {
		p := *r.lastPlan
		s.LastPlan = &p
	}
	return s
}

// Close verifies that no generation or retention lock is still open. Only the
// first call checks; later calls return nil.
func (r *Retention) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := errors.Join(r.translog.Close(), r.softDeletes.AssertNoOpenRetentionLocks())
	if r.metrics != nil {
		r.metrics.Forget(r.id)
	}
	if err != nil {
		var leaked []string
		var le *locks.LeakError
		for _, e := range unwrapJoined(err) {
			if errors.As(e, &le) {
				for _, m := range le.Markers {
					leaked = append(leaked, m.Target)
				}
			}
		}
		return r.violation("close", err, map[string]any{"leaked": leaked})
	}
	r.logger.Info("retention closed")
	return nil
}

// recordLocksLocked refreshes the lock gauges. Called with r.mu held; a
// closed shard records nothing.
func (r *Retention) recordLocksLocked() {
	if r.metrics == nil || r.closed {
		return
	}
	r.metrics.RecordLocks(r.id, r.translog.PendingTranslogRefCount(), r.softDeletes.RetentionLockHeld())
}

// violation counts and logs an invariant violation, then returns err
// unchanged.
func (r *Retention) violation(operation string, err error, fields map[string]any) error {
	if !errors.Is(err, locks.ErrInvariantViolation) {
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordInvariantViolation(r.id, operation)
	}
	logFields := map[string]any{
		"operation": operation,
		"error":     err.Error(),
	}
	for k, v := range fields {
		logFields[k] = v
	}
	r.logger.Errorf("retention invariant violated", logFields)
	return err
}

func unwrapJoined(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
