package pledge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fundraising/pledge-service/internal/dto"
	"github.com/fundraising/pledge-service/internal/entity"
	"github.com/fundraising/pledge-service/internal/repo"
	"github.com/fundraising/pledge-service/pkg/logger"
	"github.com/fundraising/pledge-service/pkg/types/errs"
	"github.com/google/uuid"
)

// Suspension threshold: the Nth consecutive failure escalates an ACTIVE
// pledge to SUSPENDED.
const _failureThreshold = 3

var _currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

type PledgeUseCase struct {
	pledgeRepo repo.PledgeRepo
	outboxRepo repo.OutboxRepo
	transactor repo.Transactor

	updateRetries int

	logger logger.Interface
}

func New(
	pledgeRepo repo.PledgeRepo,
	outboxRepo repo.OutboxRepo,
	transactor repo.Transactor,
	updateRetries int,
	l logger.Interface,
) *PledgeUseCase {
	if updateRetries < 1 {
		updateRetries = 1
	}

	return &PledgeUseCase{
		pledgeRepo:    pledgeRepo,
		outboxRepo:    outboxRepo,
		transactor:    transactor,
		updateRetries: updateRetries,
		logger:        l,
	}
}

func (uc *PledgeUseCase) CreateRecurring(ctx context.Context, cmd dto.CreatePledge) (*entity.Pledge, error) {
	if err := validateCreate(cmd); err != nil {
		return nil, fmt.Errorf("PledgeUseCase - CreateRecurring: %w", err)
	}

	now := time.Now().UTC()
	startDate := cmd.StartDate.UTC()
	interval := entity.Interval(cmd.Interval)

	pledge := &entity.Pledge{
		ID:              uuid.New(),
		UserID:          cmd.UserID,
		CampaignID:      cmd.CampaignID,
		Amount:          cmd.Amount,
		Currency:        cmd.Currency,
		Interval:        interval,
		StartDate:       startDate,
		NextPaymentDate: interval.Advance(startDate),
		Status:          entity.PledgeActive,
		FailureCount:    0,
		PaymentMethod:   cmd.PaymentMethod,
		Metadata:        cmd.Metadata,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Pledge insert and PLEDGE_CREATED append commit together or not at all.
	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := uc.pledgeRepo.Create(ctx, pledge); err != nil {
			return fmt.Errorf("uc.pledgeRepo.Create: %w", err)
		}

		record, err := createdRecord(pledge)
		if err != nil {
			return fmt.Errorf("createdRecord: %w", err)
		}
		if err := uc.outboxRepo.Create(ctx, record); err != nil {
			return fmt.Errorf("uc.outboxRepo.Create: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("PledgeUseCase - CreateRecurring - uc.transactor.WithinTransaction: %w", err)
	}

	return pledge, nil
}

func (uc *PledgeUseCase) GetByID(ctx context.Context, id uuid.UUID) (*entity.Pledge, error) {
	pledge, err := uc.pledgeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("PledgeUseCase - GetByID - uc.pledgeRepo.GetByID: %w", err)
	}

	return pledge, nil
}

func (uc *PledgeUseCase) HistoryByUser(ctx context.Context, userID string) ([]*entity.Pledge, error) {
	pledges, err := uc.pledgeRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("PledgeUseCase - HistoryByUser - uc.pledgeRepo.ListByUser: %w", err)
	}

	return pledges, nil
}

func (uc *PledgeUseCase) Cancel(ctx context.Context, id uuid.UUID) error {
	err := uc.withVersionRetry(ctx, "Cancel", func(ctx context.Context) error {
		pledge, err := uc.pledgeRepo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("uc.pledgeRepo.GetByID: %w", err)
		}

		// CANCELLED and COMPLETED are terminal; a second cancel is an error,
		// not a no-op.
		if pledge.Status.Terminal() {
			return fmt.Errorf("pledge %s is %s: %w", pledge.ID, pledge.Status, errs.ErrPledgeState)
		}

		pledge.Status = entity.PledgeCancelled
		pledge.UpdatedAt = time.Now().UTC()

		record, err := cancelledRecord(pledge)
		if err != nil {
			return fmt.Errorf("cancelledRecord: %w", err)
		}

		return uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			if err := uc.pledgeRepo.UpdateVersioned(ctx, pledge); err != nil {
				return fmt.Errorf("uc.pledgeRepo.UpdateVersioned: %w", err)
			}
			if err := uc.outboxRepo.Create(ctx, record); err != nil {
				return fmt.Errorf("uc.outboxRepo.Create: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("PledgeUseCase - Cancel: %w", err)
	}

	return nil
}

func (uc *PledgeUseCase) ApplyPaymentResult(ctx context.Context, id uuid.UUID, success bool) error {
	err := uc.withVersionRetry(ctx, "ApplyPaymentResult", func(ctx context.Context) error {
		pledge, err := uc.pledgeRepo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("uc.pledgeRepo.GetByID: %w", err)
		}

		if pledge.Status.Terminal() {
			return fmt.Errorf("pledge %s is %s: %w", pledge.ID, pledge.Status, errs.ErrPledgeState)
		}

		var records []*entity.OutboxRecord

		if success {
			// The due date advances from its prior value, never from "now",
			// so a late confirmation does not shift the cadence.
			pledge.NextPaymentDate = pledge.Interval.Advance(pledge.NextPaymentDate)
			pledge.FailureCount = 0
			if pledge.Status == entity.PledgeSuspended {
				pledge.Status = entity.PledgeActive
			}

			record, err := paymentSuccessRecord(pledge)
			if err != nil {
				return fmt.Errorf("paymentSuccessRecord: %w", err)
			}
			records = append(records, record)
		} else {
			pledge.FailureCount++

			record, err := paymentFailedRecord(pledge)
			if err != nil {
				return fmt.Errorf("paymentFailedRecord: %w", err)
			}
			records = append(records, record)

			// Escalate only on the ACTIVE -> SUSPENDED edge; further failures
			// while suspended do not re-trigger the notification.
			if pledge.FailureCount >= _failureThreshold && pledge.Status == entity.PledgeActive {
				pledge.Status = entity.PledgeSuspended

				notification, err := notificationRequiredRecord(pledge)
				if err != nil {
					return fmt.Errorf("notificationRequiredRecord: %w", err)
				}
				records = append(records, notification)
			}
		}

		pledge.UpdatedAt = time.Now().UTC()

		return uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			if err := uc.pledgeRepo.UpdateVersioned(ctx, pledge); err != nil {
				return fmt.Errorf("uc.pledgeRepo.UpdateVersioned: %w", err)
			}
			for _, record := range records {
				if err := uc.outboxRepo.Create(ctx, record); err != nil {
					return fmt.Errorf("uc.outboxRepo.Create: %w", err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("PledgeUseCase - ApplyPaymentResult: %w", err)
	}

	return nil
}

// MarkPaymentDue appends PLEDGE_PAYMENT_DUE without touching the pledge row;
// the due date itself only advances on a confirmed success. A pledge that is
// no longer ACTIVE is a silent no-op so a sweep racing a cancel cannot
// misreport a cancelled pledge.
func (uc *PledgeUseCase) MarkPaymentDue(ctx context.Context, id uuid.UUID) error {
	pledge, err := uc.pledgeRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("PledgeUseCase - MarkPaymentDue - uc.pledgeRepo.GetByID: %w", err)
	}

	if pledge.Status != entity.PledgeActive {
		uc.logger.Debug("skipping payment due for pledge %s in status %s", pledge.ID, pledge.Status)

		return nil
	}

	record, err := paymentDueRecord(pledge)
	if err != nil {
		return fmt.Errorf("PledgeUseCase - MarkPaymentDue - paymentDueRecord: %w", err)
	}

	if err := uc.outboxRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("PledgeUseCase - MarkPaymentDue - uc.outboxRepo.Create: %w", err)
	}

	return nil
}

func (uc *PledgeUseCase) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Pledge, error) {
	pledges, err := uc.pledgeRepo.ListDue(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("PledgeUseCase - ListDue - uc.pledgeRepo.ListDue: %w", err)
	}

	return pledges, nil
}

// withVersionRetry re-runs f when a conditional write lost the race against a
// concurrent command on the same pledge. f re-reads the pledge on every
// attempt, so retries apply the command to fresh state.
func (uc *PledgeUseCase) withVersionRetry(ctx context.Context, op string, f func(ctx context.Context) error) error {
	var err error

	for attempt := 0; attempt < uc.updateRetries; attempt++ {
		err = f(ctx)
		if err == nil || !errors.Is(err, errs.ErrVersionConflict) {
			return err
		}

		uc.logger.Debug("retrying %s after version conflict, attempt %d", op, attempt+1)
	}

	return err
}

func validateCreate(cmd dto.CreatePledge) error {
	if !cmd.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive: %w", errs.ErrValidation)
	}

	if !_currencyRe.MatchString(cmd.Currency) {
		return fmt.Errorf("currency must be a 3-letter ISO 4217 code: %w", errs.ErrValidation)
	}

	if !entity.Interval(cmd.Interval).Valid() {
		return fmt.Errorf("unrecognized interval %q: %w", cmd.Interval, errs.ErrValidation)
	}

	if cmd.StartDate.IsZero() {
		return fmt.Errorf("start date is required: %w", errs.ErrValidation)
	}

	if _, ok := cmd.PaymentMethod["reference"]; !ok {
		return fmt.Errorf("payment method reference is required: %w", errs.ErrValidation)
	}

	return nil
}
