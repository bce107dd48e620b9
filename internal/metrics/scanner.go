package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/dray-io/retention/internal/logging"
)

// Refresher recomputes retention state and records it. shard.Retention.Plan
// behind a scenario reader is the usual implementation.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) error

// Refresh calls f.
func (f RefreshFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Scanner periodically refreshes retention metrics.
type Scanner struct {
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	logger    *logging.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewScanner creates a scanner that calls refresher every interval.
func NewScanner(refresher Refresher, interval time.Duration, logger *logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.Global()
	}
	return &Scanner{
		refresher: refresher,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger.WithComponent("scanner"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins periodic refreshing.
func (s *Scanner) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop halts periodic refreshing and waits for an in-flight refresh.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scanner) loop() {
	defer s.wg.Done()

	// Run immediately on start
	s.ScanOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.ScanOnce()
		}
	}
}

// ScanOnce performs a single refresh. The refresh context carries the
// scanner's logger (see logging.FromCtx). Failures are logged, not returned,
// so one bad scenario read does not stop the loop.
func (s *Scanner) ScanOnce() {
	ctx, cancel := context.WithTimeout(logging.WithLoggerCtx(context.Background(), s.logger), s.timeout)
	defer cancel()

	if err := s.refresher.Refresh(ctx); err != nil {
		s.logger.Warnf("retention refresh failed", map[string]any{
			"error": err.Error(),
		})
	}
}
