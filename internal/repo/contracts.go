package repo

import (
	"context"
	"time"

	"github.com/fundraising/pledge-service/internal/entity"
	"github.com/google/uuid"
)

type (
	PledgeRepo interface {
		Create(ctx context.Context, pledge *entity.Pledge) error
		GetByID(ctx context.Context, id uuid.UUID) (*entity.Pledge, error)
		ListByUser(ctx context.Context, userID string) ([]*entity.Pledge, error)
		// ListDue returns ACTIVE pledges with next_payment_date <= now.
		ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Pledge, error)
		// UpdateVersioned writes the pledge conditionally on the version it
		// was read at and bumps the version; errs.ErrVersionConflict when the
		// row moved underneath.
		UpdateVersioned(ctx context.Context, pledge *entity.Pledge) error
	}

	OutboxRepo interface {
		Create(ctx context.Context, record *entity.OutboxRecord) error
		// ListPending returns unpublished records with attempts < maxAttempts,
		// oldest first.
		ListPending(ctx context.Context, limit, maxAttempts int) ([]*entity.OutboxRecord, error)
		MarkPublishingBatch(ctx context.Context, ids uuid.UUIDs) error
		MarkPublishedBatch(ctx context.Context, ids uuid.UUIDs) error
		IncrementAttemptsBatch(ctx context.Context, ids uuid.UUIDs) error
		// MarkExhaustedFailed parks pending records whose attempts reached
		// maxAttempts in the FAILED dead-letter state.
		MarkExhaustedFailed(ctx context.Context, maxAttempts int) (int64, error)
		// ResetStalePublishing returns PUBLISHING records not touched since
		// olderThan to PENDING with attempts+1. A record stuck in PUBLISHING
		// means a crash or error between the claim and the broker ack; without
		// the reset it would never be retried or dead-lettered.
		ResetStalePublishing(ctx context.Context, olderThan time.Time) (int64, error)
		ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]*entity.OutboxRecord, error)
	}

	WebhookReceiptRepo interface {
		// Create inserts the receipt exactly once; a second insert for the
		// same event id returns errs.ErrDuplicateReceipt.
		Create(ctx context.Context, receipt *entity.WebhookReceipt) error
		Exists(ctx context.Context, eventID string) (bool, error)
	}

	Transactor interface {
		WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error
	}
)
