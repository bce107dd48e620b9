package shard

import (
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/dray-io/retention/internal/locks"
	"github.com/dray-io/retention/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRetention_ConcurrentSnapshotsAndCommits(t *testing.T) {
	f := newFixture(t, testConfig())
	readers, writer := segments(20)

	var checkpoint atomic.Int64
	var g errgroup.Group

	// committer
	g.Go(func() error {
		for i := int64(0); i < 500; i++ {
			next := checkpoint.Add(1)
			f.gcp.Store(next)
			if err := f.r.OnCommit(next); err != nil {
				return err
			}
		}
		return nil
	})

	// snapshot holders
	for w := 0; w < 4; w++ {
		seed := int64(w)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				snap, err := f.r.AcquireSnapshot(int64(1 + rng.Intn(20)))
				if err != nil {
					return err
				}
				f.r.Plan(readers, writer)
				if err := snap.Close(); err != nil {
					return err
				}
			}
			return nil
		})
	}

	// planner checks the soft-deletes floor never moves back
	g.Go(func() error {
		last := int64(-1)
		for i := 0; i < 1000; i++ {
			plan := f.r.Plan(readers, writer)
			if plan.MinRetainedSeqNo < last {
				t.Errorf("floor regressed from %d to %d", last, plan.MinRetainedSeqNo)
			}
			last = plan.MinRetainedSeqNo
		}
		return nil
	})

	require.NoError(t, g.Wait())

	final := f.r.Plan(readers, writer)
	assert.Equal(t, int64(21), final.MinTranslogGen)
	assert.Equal(t, checkpoint.Load()+1, final.MinRetainedSeqNo)
	assert.Equal(t, 0, final.PendingTranslogLocks)
	require.NoError(t, f.r.Close())
}

func TestRetention_SnapshotRacingCloseIsNeverLost(t *testing.T) {
	for i := 0; i < 200; i++ {
		r, err := New(testConfig(), func() int64 { return 0 }, nil, WithLogger(logging.Discard()))
		require.NoError(t, err)

		start := make(chan struct{})
		var acquireErr, closeErr error
		var g errgroup.Group
		g.Go(func() error {
			<-start
			_, acquireErr = r.AcquireSnapshot(1)
			return nil
		})
		g.Go(func() error {
			<-start
			closeErr = r.Close()
			return nil
		})
		close(start)
		require.NoError(t, g.Wait())

		// Either the snapshot lost the race and was refused, or it won and
		// Close reported its locks.
		if acquireErr != nil {
			require.ErrorIs(t, acquireErr, ErrClosed, "iteration %d", i)
			require.NoError(t, closeErr, "iteration %d", i)
		} else {
			require.ErrorIs(t, closeErr, locks.ErrLeakedLocks, "iteration %d", i)
		}
	}
}
