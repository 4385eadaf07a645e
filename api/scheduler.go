/*
scheduler.go - Periodic ledger verification

PURPOSE:
  Runs the ledger verification scan on an interval and logs what it finds,
  so drift between accounts, journals and request flags surfaces without
  anyone calling GET /api/admin/verify.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Each discrepancy is logged at Warn; a clean scan at Debug
  - Keeps the last report for RunNow callers and tests

CONFIGURATION:
  - ledger.verify_interval: how often to scan (0 disables)

USAGE:
  scheduler := NewVerifyScheduler(engine, interval, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Verify endpoint (manual scan)
  - generic/verify.go: the scan itself
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/approval-ledger/generic"
)

// Verifier runs one ledger scan. *generic.Engine implements it.
type Verifier interface {
	Verify(ctx context.Context) (generic.VerifyReport, error)
}

// VerifyScheduler scans the ledger periodically.
type VerifyScheduler struct {
	verifier      Verifier
	logger        *zap.Logger
	CheckInterval time.Duration

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	last    generic.VerifyReport
	lastRun time.Time
}

// NewVerifyScheduler creates a new scheduler. A zero interval disables it.
func NewVerifyScheduler(v Verifier, interval time.Duration, logger *zap.Logger) *VerifyScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerifyScheduler{
		verifier:      v,
		logger:        logger.Named("verify"),
		CheckInterval: interval,
	}
}

// Start begins the scheduler.
func (vs *VerifyScheduler) Start() {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.CheckInterval <= 0 {
		vs.logger.Info("scheduler disabled")
		return
	}
	if vs.ticker != nil {
		return
	}

	vs.ticker = time.NewTicker(vs.CheckInterval)
	vs.stop = make(chan struct{})
	vs.wg.Add(1)
	go vs.run(vs.ticker.C, vs.stop)

	vs.logger.Info("scheduler started", zap.Duration("interval", vs.CheckInterval))
}

// Stop stops the scheduler and waits for a running scan to finish.
func (vs *VerifyScheduler) Stop() {
	vs.mu.Lock()
	if vs.ticker == nil {
		vs.mu.Unlock()
		return
	}
	vs.ticker.Stop()
	close(vs.stop)
	vs.ticker = nil
	vs.mu.Unlock()

	vs.wg.Wait()
	vs.logger.Info("scheduler stopped")
}

func (vs *VerifyScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer vs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	vs.check(ctx)

	for {
		select {
		case <-tick:
			vs.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (vs *VerifyScheduler) check(ctx context.Context) {
	report, err := vs.verifier.Verify(ctx)
	if err != nil {
		if ctx.Err() == nil {
			vs.logger.Error("ledger verification failed", zap.Error(err))
		}
		return
	}

	vs.mu.Lock()
	vs.last = report
	vs.lastRun = time.Now()
	vs.mu.Unlock()

	if report.OK() {
		vs.logger.Debug("ledger verified",
			zap.Int("accounts", report.AccountsChecked),
			zap.Int("requests", report.RequestsChecked))
		return
	}
	for _, d := range report.Discrepancies {
		vs.logger.Warn("ledger discrepancy",
			zap.String("kind", string(d.Kind)),
			zap.String("account", d.Key.String()),
			zap.String("request_id", string(d.RequestID)),
			zap.String("detail", d.Detail))
	}
}

// RunNow triggers an immediate scan (for testing/admin).
func (vs *VerifyScheduler) RunNow(ctx context.Context) generic.VerifyReport {
	vs.check(ctx)
	return vs.LastReport()
}

// LastReport returns the most recent successful scan.
func (vs *VerifyScheduler) LastReport() generic.VerifyReport {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.last
}

// GetNextRunTime returns when the next scheduled check will occur.
func (vs *VerifyScheduler) GetNextRunTime() time.Time {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.lastRun.IsZero() {
		return time.Now().Add(vs.CheckInterval)
	}
	return vs.lastRun.Add(vs.CheckInterval)
}
