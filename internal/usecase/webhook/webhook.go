// Package webhook implements the idempotency gate in front of the pledge
// command service: inbound payment-result callbacks mutate pledge state at
// most once per external event id, no matter how often the processor
// redelivers them.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fundraising/pledge-service/internal/dto"
	"github.com/fundraising/pledge-service/internal/entity"
	"github.com/fundraising/pledge-service/internal/repo"
	"github.com/fundraising/pledge-service/internal/usecase"
	"github.com/fundraising/pledge-service/pkg/logger"
	"github.com/fundraising/pledge-service/pkg/types/errs"
	"github.com/google/uuid"
)

const _statusSuccess = "SUCCESS"

type WebhookUseCase struct {
	pledges     usecase.PledgeUseCase
	receiptRepo repo.WebhookReceiptRepo
	transactor  repo.Transactor

	logger logger.Interface
}

func New(
	pledges usecase.PledgeUseCase,
	receiptRepo repo.WebhookReceiptRepo,
	transactor repo.Transactor,
	l logger.Interface,
) *WebhookUseCase {
	return &WebhookUseCase{
		pledges:     pledges,
		receiptRepo: receiptRepo,
		transactor:  transactor,
		logger:      l,
	}
}

func (uc *WebhookUseCase) ProcessPaymentResult(ctx context.Context, callback dto.PaymentWebhook) error {
	if callback.PledgeID == "" || callback.Status == "" || callback.EventID == "" {
		return fmt.Errorf("WebhookUseCase - ProcessPaymentResult - pledgeId, status and eventId are required: %w", errs.ErrValidation)
	}

	pledgeID, err := uuid.Parse(callback.PledgeID)
	if err != nil {
		return fmt.Errorf("WebhookUseCase - ProcessPaymentResult - invalid pledge id: %w", errs.ErrValidation)
	}

	exists, err := uc.receiptRepo.Exists(ctx, callback.EventID)
	if err != nil {
		return fmt.Errorf("WebhookUseCase - ProcessPaymentResult - uc.receiptRepo.Exists: %w", err)
	}
	if exists {
		// Redelivery by the external system; a recognized condition, not an
		// error.
		uc.logger.Debug("duplicate webhook delivery for event %s ignored", callback.EventID)

		return nil
	}

	success := callback.Status == _statusSuccess

	// Pledge mutation, its outbox appends and the receipt commit as one unit,
	// so a crash cannot apply the payment result without remembering the
	// event id (or the other way around).
	err = uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := uc.pledges.ApplyPaymentResult(ctx, pledgeID, success); err != nil {
			return fmt.Errorf("uc.pledges.ApplyPaymentResult: %w", err)
		}

		receipt := &entity.WebhookReceipt{
			EventID:     callback.EventID,
			PledgeID:    pledgeID,
			Status:      callback.Status,
			ProcessedAt: time.Now().UTC(),
		}

		return uc.receiptRepo.Create(ctx, receipt)
	})
	if err != nil {
		// A concurrent delivery of the same event won the receipt insert;
		// this transaction rolled back without effect.
		if errors.Is(err, errs.ErrDuplicateReceipt) {
			uc.logger.Debug("concurrent duplicate webhook delivery for event %s ignored", callback.EventID)

			return nil
		}

		return fmt.Errorf("WebhookUseCase - ProcessPaymentResult - uc.transactor.WithinTransaction: %w", err)
	}

	return nil
}
