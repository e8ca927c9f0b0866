package pledge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fundraising/pledge-service/internal/dto"
	"github.com/fundraising/pledge-service/internal/entity"
	"github.com/fundraising/pledge-service/pkg/logger"
	"github.com/fundraising/pledge-service/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- In-memory fakes ---

type fakePledgeRepo struct {
	pledges map[uuid.UUID]*entity.Pledge

	// failUpdates makes the next N UpdateVersioned calls report a version
	// conflict.
	failUpdates int
}

func newFakePledgeRepo() *fakePledgeRepo {
	return &fakePledgeRepo{pledges: make(map[uuid.UUID]*entity.Pledge)}
}

func (r *fakePledgeRepo) Create(_ context.Context, pledge *entity.Pledge) error {
	cp := *pledge
	r.pledges[pledge.ID] = &cp
	return nil
}

func (r *fakePledgeRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Pledge, error) {
	pledge, ok := r.pledges[id]
	if !ok {
		return nil, fmt.Errorf("fakePledgeRepo - GetByID: %w", errs.ErrRecordNotFound)
	}
	cp := *pledge
	return &cp, nil
}

func (r *fakePledgeRepo) ListByUser(_ context.Context, userID string) ([]*entity.Pledge, error) {
	var out []*entity.Pledge
	for _, pledge := range r.pledges {
		if pledge.UserID == userID {
			cp := *pledge
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePledgeRepo) ListDue(_ context.Context, now time.Time, _ int) ([]*entity.Pledge, error) {
	var out []*entity.Pledge
	for _, pledge := range r.pledges {
		if pledge.Status == entity.PledgeActive && !pledge.NextPaymentDate.After(now) {
			cp := *pledge
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePledgeRepo) UpdateVersioned(_ context.Context, pledge *entity.Pledge) error {
	if r.failUpdates > 0 {
		r.failUpdates--
		return fmt.Errorf("fakePledgeRepo - UpdateVersioned: %w", errs.ErrVersionConflict)
	}

	current, ok := r.pledges[pledge.ID]
	if !ok || current.Version != pledge.Version {
		return fmt.Errorf("fakePledgeRepo - UpdateVersioned: %w", errs.ErrVersionConflict)
	}

	cp := *pledge
	cp.Version++
	r.pledges[pledge.ID] = &cp
	pledge.Version++
	return nil
}

type fakeOutboxRepo struct {
	records []*entity.OutboxRecord
}

func (r *fakeOutboxRepo) Create(_ context.Context, record *entity.OutboxRecord) error {
	r.records = append(r.records, record)
	return nil
}

func (r *fakeOutboxRepo) ListPending(_ context.Context, limit, maxAttempts int) ([]*entity.OutboxRecord, error) {
	var out []*entity.OutboxRecord
	for _, record := range r.records {
		if record.Status == entity.OutboxPending && record.Attempts < maxAttempts && len(out) < limit {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) MarkPublishingBatch(_ context.Context, ids uuid.UUIDs) error {
	for _, record := range r.records {
		for _, id := range ids {
			if record.ID == id {
				record.Status = entity.OutboxPublishing
				record.UpdatedAt = time.Now().UTC()
			}
		}
	}
	return nil
}

func (r *fakeOutboxRepo) MarkPublishedBatch(_ context.Context, ids uuid.UUIDs) error {
	now := time.Now().UTC()
	for _, record := range r.records {
		for _, id := range ids {
			if record.ID == id && record.Status != entity.OutboxPublished {
				record.Status = entity.OutboxPublished
				record.UpdatedAt = now
				record.PublishedAt = &now
			}
		}
	}
	return nil
}

func (r *fakeOutboxRepo) IncrementAttemptsBatch(_ context.Context, ids uuid.UUIDs) error {
	for _, record := range r.records {
		for _, id := range ids {
			if record.ID == id {
				record.Attempts++
				record.Status = entity.OutboxPending
				record.UpdatedAt = time.Now().UTC()
			}
		}
	}
	return nil
}

func (r *fakeOutboxRepo) MarkExhaustedFailed(_ context.Context, maxAttempts int) (int64, error) {
	var count int64
	for _, record := range r.records {
		if record.Status == entity.OutboxPending && record.Attempts >= maxAttempts {
			record.Status = entity.OutboxFailed
			record.UpdatedAt = time.Now().UTC()
			count++
		}
	}
	return count, nil
}

func (r *fakeOutboxRepo) ResetStalePublishing(_ context.Context, olderThan time.Time) (int64, error) {
	var count int64
	for _, record := range r.records {
		if record.Status == entity.OutboxPublishing && record.UpdatedAt.Before(olderThan) {
			record.Status = entity.OutboxPending
			record.Attempts++
			record.UpdatedAt = time.Now().UTC()
			count++
		}
	}
	return count, nil
}

func (r *fakeOutboxRepo) ListByAggregate(_ context.Context, aggregateID uuid.UUID) ([]*entity.OutboxRecord, error) {
	var out []*entity.OutboxRecord
	for _, record := range r.records {
		if record.AggregateID == aggregateID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) byType(eventType entity.EventType) []*entity.OutboxRecord {
	var out []*entity.OutboxRecord
	for _, record := range r.records {
		if record.EventType == eventType {
			out = append(out, record)
		}
	}
	return out
}

type fakeTransactor struct{}

func (fakeTransactor) WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	return f(ctx)
}

func newTestUseCase() (*PledgeUseCase, *fakePledgeRepo, *fakeOutboxRepo) {
	pledgeRepo := newFakePledgeRepo()
	outboxRepo := &fakeOutboxRepo{}
	uc := New(pledgeRepo, outboxRepo, fakeTransactor{}, 3, logger.New("error"))
	return uc, pledgeRepo, outboxRepo
}

func validCreate() dto.CreatePledge {
	return dto.CreatePledge{
		UserID:        "user-1",
		CampaignID:    "campaign-1",
		Amount:        decimal.NewFromInt(100000),
		Currency:      "BDT",
		Interval:      "MONTHLY",
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PaymentMethod: map[string]any{"reference": "pm_123"},
	}
}

// --- Tests ---

func TestCreateRecurring(t *testing.T) {
	uc, _, outboxRepo := newTestUseCase()

	pledge, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	assert.Equal(t, entity.PledgeActive, pledge.Status)
	assert.Equal(t, 0, pledge.FailureCount)
	// 30-day fixed monthly advance: 2024-01-01 -> 2024-01-31.
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), pledge.NextPaymentDate)

	created := outboxRepo.byType(entity.EventPledgeCreated)
	require.Len(t, created, 1)
	assert.Equal(t, pledge.ID, created[0].AggregateID)
	assert.Equal(t, entity.OutboxPending, created[0].Status)
	assert.Len(t, outboxRepo.records, 1)
}

func TestCreateRecurringValidation(t *testing.T) {
	uc, _, outboxRepo := newTestUseCase()

	tests := []struct {
		name   string
		mutate func(*dto.CreatePledge)
	}{
		{"zero amount", func(cmd *dto.CreatePledge) { cmd.Amount = decimal.Zero }},
		{"negative amount", func(cmd *dto.CreatePledge) { cmd.Amount = decimal.NewFromInt(-5) }},
		{"lowercase currency", func(cmd *dto.CreatePledge) { cmd.Currency = "bdt" }},
		{"long currency", func(cmd *dto.CreatePledge) { cmd.Currency = "TAKA" }},
		{"unknown interval", func(cmd *dto.CreatePledge) { cmd.Interval = "FORTNIGHTLY" }},
		{"zero start date", func(cmd *dto.CreatePledge) { cmd.StartDate = time.Time{} }},
		{"missing payment method reference", func(cmd *dto.CreatePledge) { cmd.PaymentMethod = map[string]any{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := validCreate()
			tt.mutate(&cmd)

			_, err := uc.CreateRecurring(context.Background(), cmd)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}

	assert.Empty(t, outboxRepo.records, "no outbox record may exist for a rejected command")
}

func TestApplyPaymentResultSuccess(t *testing.T) {
	uc, pledgeRepo, outboxRepo := newTestUseCase()

	created, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	prior := created.NextPaymentDate

	require.NoError(t, uc.ApplyPaymentResult(context.Background(), created.ID, true))

	pledge, err := pledgeRepo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)

	// Advances from the prior due date, not from "now".
	assert.Equal(t, prior.Add(30*24*time.Hour), pledge.NextPaymentDate)
	assert.Equal(t, 0, pledge.FailureCount)
	assert.Equal(t, entity.PledgeActive, pledge.Status)
	assert.Len(t, outboxRepo.byType(entity.EventPledgePaymentSuccess), 1)
}

func TestApplyPaymentResultFailureEscalation(t *testing.T) {
	uc, pledgeRepo, outboxRepo := newTestUseCase()

	created, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, uc.ApplyPaymentResult(context.Background(), created.ID, false))
	}

	pledge, err := pledgeRepo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, entity.PledgeSuspended, pledge.Status)
	assert.Equal(t, 3, pledge.FailureCount)
	assert.Len(t, outboxRepo.byType(entity.EventPledgePaymentFailed), 3)
	assert.Len(t, outboxRepo.byType(entity.EventNotificationRequired), 1)

	// A fourth failure while suspended must not re-trigger the escalation.
	require.NoError(t, uc.ApplyPaymentResult(context.Background(), created.ID, false))

	pledge, err = pledgeRepo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, entity.PledgeSuspended, pledge.Status)
	assert.Equal(t, 4, pledge.FailureCount)
	assert.Len(t, outboxRepo.byType(entity.EventNotificationRequired), 1)
}

func TestApplyPaymentResultSuccessReactivatesSuspended(t *testing.T) {
	uc, pledgeRepo, _ := newTestUseCase()

	created, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, uc.ApplyPaymentResult(context.Background(), created.ID, false))
	}

	require.NoError(t, uc.ApplyPaymentResult(context.Background(), created.ID, true))

	pledge, err := pledgeRepo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, entity.PledgeActive, pledge.Status)
	assert.Equal(t, 0, pledge.FailureCount)
}

func TestApplyPaymentResultTerminalPledge(t *testing.T) {
	uc, _, _ := newTestUseCase()

	created, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)
	require.NoError(t, uc.Cancel(context.Background(), created.ID))

	err = uc.ApplyPaymentResult(context.Background(), created.ID, true)
	assert.ErrorIs(t, err, errs.ErrPledgeState)
}

func TestApplyPaymentResultUnknownPledge(t *testing.T) {
	uc, _, _ := newTestUseCase()

	err := uc.ApplyPaymentResult(context.Background(), uuid.New(), true)
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)
}

func TestCancel(t *testing.T) {
	uc, pledgeRepo, outboxRepo := newTestUseCase()

	created, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	require.NoError(t, uc.Cancel(context.Background(), created.ID))

	pledge, err := pledgeRepo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PledgeCancelled, pledge.Status)
	assert.Len(t, outboxRepo.byType(entity.EventPledgeCancelled), 1)

	// Cancel is terminal: a second cancel is an error, not a no-op.
	err = uc.Cancel(context.Background(), created.ID)
	assert.ErrorIs(t, err, errs.ErrPledgeState)
}

func TestCancelSuspendedPledge(t *testing.T) {
	uc, pledgeRepo, _ := newTestUseCase()

	created, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, uc.ApplyPaymentResult(context.Background(), created.ID, false))
	}

	require.NoError(t, uc.Cancel(context.Background(), created.ID))

	pledge, err := pledgeRepo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PledgeCancelled, pledge.Status)
}

func TestCancelUnknownPledge(t *testing.T) {
	uc, _, _ := newTestUseCase()

	err := uc.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)
}

func TestMarkPaymentDue(t *testing.T) {
	uc, _, outboxRepo := newTestUseCase()

	created, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	require.NoError(t, uc.MarkPaymentDue(context.Background(), created.ID))

	due := outboxRepo.byType(entity.EventPledgePaymentDue)
	require.Len(t, due, 1)
	assert.Equal(t, created.ID, due[0].AggregateID)
}

func TestMarkPaymentDueNonActiveIsNoop(t *testing.T) {
	uc, _, outboxRepo := newTestUseCase()

	created, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)
	require.NoError(t, uc.Cancel(context.Background(), created.ID))

	// A sweep racing a cancel must not resurrect the pledge.
	require.NoError(t, uc.MarkPaymentDue(context.Background(), created.ID))

	assert.Empty(t, outboxRepo.byType(entity.EventPledgePaymentDue))
}

func TestVersionConflictRetry(t *testing.T) {
	uc, pledgeRepo, _ := newTestUseCase()

	created, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	// First two conditional writes lose the race; the third succeeds.
	pledgeRepo.failUpdates = 2

	require.NoError(t, uc.ApplyPaymentResult(context.Background(), created.ID, false))

	pledge, err := pledgeRepo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pledge.FailureCount)
}

func TestStalePublishingRecovered(t *testing.T) {
	uc, _, outboxRepo := newTestUseCase()

	_, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	records, err := uc.PendingEvents(context.Background(), 10, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, uc.MarkPublishingBatch(context.Background(), records))

	// A crash after the claim leaves the record invisible to the delivery
	// loop and the dead-letter sweep.
	pending, err := uc.PendingEvents(context.Background(), 10, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	outboxRepo.records[0].UpdatedAt = time.Now().UTC().Add(-time.Hour)

	require.NoError(t, uc.ResetStalePublishing(context.Background(), time.Now().UTC().Add(-15*time.Second)))

	pending, err = uc.PendingEvents(context.Background(), 10, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entity.OutboxPending, pending[0].Status)
	assert.Equal(t, 1, pending[0].Attempts)
}

func TestResetStalePublishingSkipsFreshClaims(t *testing.T) {
	uc, _, _ := newTestUseCase()

	_, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	records, err := uc.PendingEvents(context.Background(), 10, 10)
	require.NoError(t, err)
	require.NoError(t, uc.MarkPublishingBatch(context.Background(), records))

	// A batch still in flight keeps its claim.
	require.NoError(t, uc.ResetStalePublishing(context.Background(), time.Now().UTC().Add(-15*time.Second)))

	pending, err := uc.PendingEvents(context.Background(), 10, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkPublishedBatchIdempotent(t *testing.T) {
	uc, _, outboxRepo := newTestUseCase()

	_, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	records, err := uc.PendingEvents(context.Background(), 10, 10)
	require.NoError(t, err)
	require.NoError(t, uc.MarkPublishingBatch(context.Background(), records))
	require.NoError(t, uc.MarkPublishedBatch(context.Background(), records))

	firstPublishedAt := outboxRepo.records[0].PublishedAt
	require.NotNil(t, firstPublishedAt)

	// A repeated mark touches nothing and is not an error.
	require.NoError(t, uc.MarkPublishedBatch(context.Background(), records))
	assert.Equal(t, firstPublishedAt, outboxRepo.records[0].PublishedAt)
}

func TestEventsByPledge(t *testing.T) {
	uc, _, _ := newTestUseCase()

	created, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)
	require.NoError(t, uc.ApplyPaymentResult(context.Background(), created.ID, false))

	other, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	events, err := uc.EventsByPledge(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = uc.EventsByPledge(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestVersionConflictRetriesExhausted(t *testing.T) {
	uc, pledgeRepo, _ := newTestUseCase()

	created, err := uc.CreateRecurring(context.Background(), validCreate())
	require.NoError(t, err)

	pledgeRepo.failUpdates = 10

	err = uc.ApplyPaymentResult(context.Background(), created.ID, false)
	assert.ErrorIs(t, err, errs.ErrVersionConflict)
}
