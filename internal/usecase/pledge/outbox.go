package pledge

import (
	"context"
	"fmt"
	"time"

	"github.com/fundraising/pledge-service/internal/entity"
	"github.com/google/uuid"
)

// Outbox drain operations, consumed by the publisher worker.

func (uc *PledgeUseCase) PendingEvents(ctx context.Context, limit, maxAttempts int) ([]*entity.OutboxRecord, error) {
	records, err := uc.outboxRepo.ListPending(ctx, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("PledgeUseCase - PendingEvents - uc.outboxRepo.ListPending: %w", err)
	}

	return records, nil
}

func (uc *PledgeUseCase) MarkPublishingBatch(ctx context.Context, records []*entity.OutboxRecord) error {
	err := uc.outboxRepo.MarkPublishingBatch(ctx, recordIDs(records))
	if err != nil {
		return fmt.Errorf("PledgeUseCase - MarkPublishingBatch - uc.outboxRepo.MarkPublishingBatch: %w", err)
	}

	return nil
}

func (uc *PledgeUseCase) MarkPublishedBatch(ctx context.Context, records []*entity.OutboxRecord) error {
	err := uc.outboxRepo.MarkPublishedBatch(ctx, recordIDs(records))
	if err != nil {
		return fmt.Errorf("PledgeUseCase - MarkPublishedBatch - uc.outboxRepo.MarkPublishedBatch: %w", err)
	}

	return nil
}

func (uc *PledgeUseCase) IncrementAttemptsBatch(ctx context.Context, records []*entity.OutboxRecord) error {
	err := uc.outboxRepo.IncrementAttemptsBatch(ctx, recordIDs(records))
	if err != nil {
		return fmt.Errorf("PledgeUseCase - IncrementAttemptsBatch - uc.outboxRepo.IncrementAttemptsBatch: %w", err)
	}

	return nil
}

func (uc *PledgeUseCase) MarkExhaustedFailed(ctx context.Context, maxAttempts int) error {
	count, err := uc.outboxRepo.MarkExhaustedFailed(ctx, maxAttempts)
	if err != nil {
		return fmt.Errorf("PledgeUseCase - MarkExhaustedFailed - uc.outboxRepo.MarkExhaustedFailed: %w", err)
	}

	if count > 0 {
		uc.logger.Warn("dead-lettered %d outbox records after %d delivery attempts", count, maxAttempts)
	}

	return nil
}

func (uc *PledgeUseCase) ResetStalePublishing(ctx context.Context, olderThan time.Time) error {
	count, err := uc.outboxRepo.ResetStalePublishing(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("PledgeUseCase - ResetStalePublishing - uc.outboxRepo.ResetStalePublishing: %w", err)
	}

	if count > 0 {
		uc.logger.Warn("returned %d stale publishing outbox records to pending", count)
	}

	return nil
}

// EventsByPledge is the audit read over the outbox: every event the pledge
// ever produced, oldest first, including published and dead-lettered ones.
func (uc *PledgeUseCase) EventsByPledge(ctx context.Context, id uuid.UUID) ([]*entity.OutboxRecord, error) {
	records, err := uc.outboxRepo.ListByAggregate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("PledgeUseCase - EventsByPledge - uc.outboxRepo.ListByAggregate: %w", err)
	}

	return records, nil
}

func recordIDs(records []*entity.OutboxRecord) uuid.UUIDs {
	var ids uuid.UUIDs

	for _, record := range records {
		ids = append(ids, record.ID)
	}

	return ids
}
