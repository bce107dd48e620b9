package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dray-io/retention/internal/config"
	"github.com/dray-io/retention/internal/locks"
	"github.com/dray-io/retention/internal/seqno"
	"github.com/dray-io/retention/internal/shard"
	"github.com/dray-io/retention/internal/translog"
	"gopkg.in/yaml.v3"
)

// Scenario describes a shard's translog and replication state as an engine
// would report it.
type Scenario struct {
	// NowMillis pins the clock for the age bound. Zero uses wall time.
	NowMillis int64 `yaml:"nowMillis"`

	Writer  translog.SegmentInfo   `yaml:"writer"`
	Readers []translog.SegmentInfo `yaml:"readers"`

	GlobalCheckpoint     int64 `yaml:"globalCheckpoint"`
	SafeCommitCheckpoint int64 `yaml:"safeCommitCheckpoint"`

	// MinRetainedSeqNo seeds the soft-deletes floor on the first load.
	MinRetainedSeqNo *int64 `yaml:"minRetainedSeqNo"`

	Leases ScenarioLeases `yaml:"leases"`

	// HeldGenerations lists open generation locks; repeat a generation to
	// hold it more than once.
	HeldGenerations []int64 `yaml:"heldGenerations"`

	// HeldRetentionLocks is the number of open retention locks.
	HeldRetentionLocks int `yaml:"heldRetentionLocks"`
}

type ScenarioLeases struct {
	PrimaryTerm int64                  `yaml:"primaryTerm"`
	Version     int64                  `yaml:"version"`
	Leases      []seqno.RetentionLease `yaml:"leases"`
}

// LoadScenario reads and checks the scenario file at path.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes a scenario. Unknown keys are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	sc := &Scenario{
		GlobalCheckpoint:     seqno.NoOpsPerformed,
		SafeCommitCheckpoint: seqno.NoOpsPerformed,
		Leases:               ScenarioLeases{PrimaryTerm: 1},
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(sc); err != nil {
		return nil, err
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *Scenario) validate() error {
	prev := int64(-1)
	for _, r := range sc.Readers {
		if r.Gen <= prev {
			return fmt.Errorf("readers must be ordered oldest first with unique generations, got %d after %d", r.Gen, prev)
		}
		prev = r.Gen
	}
	if sc.Writer.Gen <= prev {
		return fmt.Errorf("writer generation %d must be newer than every reader", sc.Writer.Gen)
	}
	for _, l := range sc.Leases.Leases {
		if _, err := seqno.NewRetentionLease(l.ID, l.RetainingSeqNo, l.Timestamp, l.Source); err != nil {
			return err
		}
	}
	if sc.HeldRetentionLocks < 0 {
		return fmt.Errorf("heldRetentionLocks must be >= 0, got %d", sc.HeldRetentionLocks)
	}
	return nil
}

func (sc *Scenario) retentionLeases() seqno.RetentionLeases {
	return seqno.NewRetentionLeases(sc.Leases.PrimaryTerm, sc.Leases.Version, sc.Leases.Leases)
}

// driver feeds successive scenarios into one shard.Retention the way an
// engine would: checkpoints and leases are read through suppliers, and the
// held locks of the previous scenario are released before the next is applied.
type driver struct {
	retention *shard.Retention
	gcp       atomic.Int64
	leases    atomic.Pointer[seqno.RetentionLeases]
	nowMillis atomic.Int64
	held      []locks.Releasable
}

func newDriver(cfg config.Retention, first *Scenario, opts ...shard.Option) (*driver, error) {
	d := &driver{}
	d.gcp.Store(first.GlobalCheckpoint)
	leases := first.retentionLeases()
	d.leases.Store(&leases)
	d.nowMillis.Store(first.NowMillis)

	opts = append(opts, shard.WithClock(d.now))
	if first.MinRetainedSeqNo != nil {
		opts = append(opts, shard.WithMinRetainedSeqNo(*first.MinRetainedSeqNo))
	}
	r, err := shard.New(cfg, d.gcp.Load, func() seqno.RetentionLeases { return *d.leases.Load() }, opts...)
	if err != nil {
		return nil, err
	}
	d.retention = r
	return d, nil
}

func (d *driver) now() time.Time {
	if ms := d.nowMillis.Load(); ms != 0 {
		return time.UnixMilli(ms)
	}
	return time.Now()
}

// apply installs sc and plans the shard.
func (d *driver) apply(sc *Scenario) (shard.Plan, error) {
	d.gcp.Store(sc.GlobalCheckpoint)
	leases := sc.retentionLeases()
	d.leases.Store(&leases)
	d.nowMillis.Store(sc.NowMillis)

	if err := d.retention.OnCommit(sc.SafeCommitCheckpoint); err != nil {
		return shard.Plan{}, err
	}
	if err := d.releaseHeld(); err != nil {
		return shard.Plan{}, err
	}
	for _, gen := range sc.HeldGenerations {
		d.held = append(d.held, d.retention.Translog().AcquireTranslogGen(gen))
	}
	for i := 0; i < sc.HeldRetentionLocks; i++ {
		d.held = append(d.held, d.retention.SoftDeletes().AcquireRetentionLock())
	}

	readers := translog.Segments(sc.Readers)
	return d.retention.Plan(readers, sc.Writer), nil
}

func (d *driver) releaseHeld() error {
	var errs []error
	for _, l := range d.held {
		errs = append(errs, l.Close())
	}
	d.held = d.held[:0]
	return errors.Join(errs...)
}

func (d *driver) close() error {
	return errors.Join(d.releaseHeld(), d.retention.Close())
}
