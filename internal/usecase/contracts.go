package usecase

import (
	"context"
	"time"

	"github.com/fundraising/pledge-service/internal/dto"
	"github.com/fundraising/pledge-service/internal/entity"
	"github.com/google/uuid"
)

type (
	// PledgeUseCase is the single mutation surface for pledge state. Every
	// producer (REST API, webhook gate, due-payment scheduler) funnels
	// through it, so the pledge-write-plus-outbox-append rule is enforced in
	// exactly one place.
	PledgeUseCase interface {
		CreateRecurring(ctx context.Context, cmd dto.CreatePledge) (*entity.Pledge, error)
		GetByID(ctx context.Context, id uuid.UUID) (*entity.Pledge, error)
		HistoryByUser(ctx context.Context, userID string) ([]*entity.Pledge, error)
		Cancel(ctx context.Context, id uuid.UUID) error
		ApplyPaymentResult(ctx context.Context, id uuid.UUID, success bool) error
		MarkPaymentDue(ctx context.Context, id uuid.UUID) error
		ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Pledge, error)
		EventsByPledge(ctx context.Context, id uuid.UUID) ([]*entity.OutboxRecord, error)

		// Outbox drain operations consumed by the publisher worker.
		PendingEvents(ctx context.Context, limit, maxAttempts int) ([]*entity.OutboxRecord, error)
		MarkPublishingBatch(ctx context.Context, records []*entity.OutboxRecord) error
		MarkPublishedBatch(ctx context.Context, records []*entity.OutboxRecord) error
		IncrementAttemptsBatch(ctx context.Context, records []*entity.OutboxRecord) error
		MarkExhaustedFailed(ctx context.Context, maxAttempts int) error
		ResetStalePublishing(ctx context.Context, olderThan time.Time) error
	}

	// WebhookUseCase deduplicates inbound payment-result callbacks before
	// they may mutate pledge state.
	WebhookUseCase interface {
		ProcessPaymentResult(ctx context.Context, callback dto.PaymentWebhook) error
	}
)
