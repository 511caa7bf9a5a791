package snapshot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultInterval = 15 * time.Minute

// Scheduler runs subscription and wallet captures on a fixed interval. Runs
// never overlap: a tick that arrives during a run is dropped.
type Scheduler struct {
	job      *Job
	interval time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func NewScheduler(job *Job, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		job:      job,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start captures once immediately, then on every tick until Stop or ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.doneChan)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
	zap.L().Info("Snapshot scheduler started", zap.Duration("interval", s.interval))
}

// Stop waits for an in-flight run to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.doneChan
	zap.L().Info("Snapshot scheduler stopped")
}

// RunOnce captures subscriptions then wallets
func (s *Scheduler) RunOnce(ctx context.Context) (subs, wallets JobResult) {
	var err error
	if subs, err = s.job.CaptureSubscriptions(ctx); err != nil {
		zap.L().Error("Subscription snapshot run aborted", zap.Error(err), zap.Stringer("partial", subs))
	}
	if wallets, err = s.job.CaptureWallets(ctx); err != nil {
		zap.L().Error("Wallet snapshot run aborted", zap.Error(err), zap.Stringer("partial", wallets))
	}
	return subs, wallets
}
