// Package scheduler runs the periodic due-payment sweep: every tick it finds
// ACTIVE pledges whose next payment date has arrived and asks the command
// service to mark each one due.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fundraising/pledge-service/internal/usecase"
	"github.com/fundraising/pledge-service/pkg/logger"
)

type Scheduler struct {
	pledges usecase.PledgeUseCase
	logger  logger.Interface

	sweepInterval time.Duration
	sweepTimeout  time.Duration
	batchLimit    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func New(
	pledges usecase.PledgeUseCase,
	l logger.Interface,
	sweepInterval time.Duration,
	sweepTimeout time.Duration,
	batchLimit int,
) *Scheduler {
	return &Scheduler{
		pledges:       pledges,
		logger:        l,
		sweepInterval: sweepInterval,
		sweepTimeout:  sweepTimeout,
		batchLimit:    batchLimit,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("Scheduler - Start - worker already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				sweepCtx, sweepCancel := context.WithTimeout(s.ctx, s.sweepTimeout)
				s.Sweep(sweepCtx)
				sweepCancel()
			}
		}
	}()

	return nil
}

// Sweep is one pass over the due pledges. A failure on one pledge is logged
// and the pass continues; a crash mid-pass loses nothing, the unswept
// pledges are still due on the next tick.
func (s *Scheduler) Sweep(ctx context.Context) {
	pledges, err := s.pledges.ListDue(ctx, time.Now().UTC(), s.batchLimit)
	if err != nil {
		s.logger.Error(err, "Scheduler - Sweep - s.pledges.ListDue")

		return
	}
	if len(pledges) == 0 {
		return
	}

	var marked int
	for _, pledge := range pledges {
		if err := s.pledges.MarkPaymentDue(ctx, pledge.ID); err != nil {
			s.logger.Error(err, "Scheduler - Sweep - s.pledges.MarkPaymentDue")

			continue
		}
		marked++
	}

	s.logger.Info("due-payment sweep marked %d of %d pledges", marked, len(pledges))
}

func (s *Scheduler) Shutdown(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
