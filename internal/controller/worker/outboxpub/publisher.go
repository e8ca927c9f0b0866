// Package outboxpub drains the pledge outbox into the external event channel.
// Delivery is at-least-once: a record is only marked PUBLISHED after the
// broker acknowledged it, and a crash between send and mark means redelivery
// on the next tick.
package outboxpub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fundraising/pledge-service/internal/infrastructure"
	"github.com/fundraising/pledge-service/internal/usecase"
	"github.com/fundraising/pledge-service/pkg/logger"
)

type Publisher struct {
	pledges usecase.PledgeUseCase
	sender  infrastructure.EventsSender
	logger  logger.Interface

	pollInterval        time.Duration
	markFailedInterval  time.Duration
	processBatchTimeout time.Duration
	batchSize           int
	maxAttempts         int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func New(
	pledges usecase.PledgeUseCase,
	sender infrastructure.EventsSender,
	l logger.Interface,
	pollInterval time.Duration,
	markFailedInterval time.Duration,
	processBatchTimeout time.Duration,
	batchSize int,
	maxAttempts int,
) *Publisher {
	return &Publisher{
		pledges:             pledges,
		sender:              sender,
		logger:              l,
		pollInterval:        pollInterval,
		markFailedInterval:  markFailedInterval,
		processBatchTimeout: processBatchTimeout,
		batchSize:           batchSize,
		maxAttempts:         maxAttempts,
	}
}

func (p *Publisher) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("Publisher - Start - worker already started")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	// 1. delivery worker
	p.worker(p.pollInterval, func() {
		batchCtx, batchCancel := context.WithTimeout(p.ctx, p.processBatchTimeout)
		p.ProcessBatch(batchCtx)
		batchCancel()
	})

	// 2. recovery worker
	p.worker(p.markFailedInterval, func() {
		p.Recover(p.ctx)
	})

	return nil
}

// Recover is one maintenance tick. Records stuck in PUBLISHING longer than a
// batch could possibly run go back to PENDING with attempts+1, so a crash
// between the claim and the broker ack (or a failed published-mark after a
// successful send) means redelivery, never a lost event. Records that
// exhausted their attempts are then parked FAILED so one poison event cannot
// stall the head of the stream forever.
func (p *Publisher) Recover(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.processBatchTimeout)

	err := p.pledges.ResetStalePublishing(ctx, cutoff)
	if err != nil {
		p.logger.Error(err, "Publisher - Recover - p.pledges.ResetStalePublishing")
	}

	err = p.pledges.MarkExhaustedFailed(ctx, p.maxAttempts)
	if err != nil {
		p.logger.Error(err, "Publisher - Recover - p.pledges.MarkExhaustedFailed")
	}
}

// ProcessBatch performs one delivery tick: fetch the oldest pending records,
// mark them PUBLISHING, hand them to the sender and record the outcome.
func (p *Publisher) ProcessBatch(ctx context.Context) {
	records, err := p.pledges.PendingEvents(ctx, p.batchSize, p.maxAttempts)
	if err != nil {
		p.logger.Error(err, "Publisher - ProcessBatch - p.pledges.PendingEvents")

		return
	}
	if len(records) == 0 {
		return
	}

	err = p.pledges.MarkPublishingBatch(ctx, records)
	if err != nil {
		p.logger.Error(err, "Publisher - ProcessBatch - p.pledges.MarkPublishingBatch")

		return
	}

	err = p.sender.SendEvents(ctx, records)
	if err != nil {
		p.logger.Error(err, "Publisher - ProcessBatch - p.sender.SendEvents")

		// Return the batch to PENDING with one more attempt on the clock;
		// the next tick retries it.
		incErr := p.pledges.IncrementAttemptsBatch(ctx, records)
		if incErr != nil {
			p.logger.Error(incErr, "Publisher - ProcessBatch - p.pledges.IncrementAttemptsBatch")
		}
		return
	}

	err = p.pledges.MarkPublishedBatch(ctx, records)
	if err != nil {
		p.logger.Error(err, "Publisher - ProcessBatch - p.pledges.MarkPublishedBatch")

		return
	}
}

func (p *Publisher) worker(interval time.Duration, task func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				task()
			}
		}
	}()
}

func (p *Publisher) Shutdown(ctx context.Context) error {
	if !p.started.Load() {
		return nil
	}

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		if err := p.sender.Close(); err != nil {
			p.logger.Error(err, "Publisher - Shutdown - p.sender.Close")
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
