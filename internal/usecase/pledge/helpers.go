package pledge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fundraising/pledge-service/internal/entity"
	"github.com/google/uuid"
)

// Outbox payloads are self-contained snapshots: a consumer must never need to
// re-query the pledge store to act on one.

func createdRecord(pledge *entity.Pledge) (*entity.OutboxRecord, error) {
	payload := map[string]any{
		"eventType":  string(entity.EventPledgeCreated),
		"occurredAt": time.Now().UTC().Format(time.RFC3339),
		"pledge": map[string]any{
			"id":              pledge.ID,
			"userId":          pledge.UserID,
			"campaignId":      pledge.CampaignID,
			"amount":          pledge.Amount,
			"currency":        pledge.Currency,
			"interval":        string(pledge.Interval),
			"nextPaymentDate": pledge.NextPaymentDate.Format(time.RFC3339),
		},
	}

	return newRecord(pledge.ID, entity.EventPledgeCreated, payload)
}

func paymentDueRecord(pledge *entity.Pledge) (*entity.OutboxRecord, error) {
	payload := map[string]any{
		"eventType":        string(entity.EventPledgePaymentDue),
		"occurredAt":       time.Now().UTC().Format(time.RFC3339),
		"pledgeId":         pledge.ID,
		"userId":           pledge.UserID,
		"amount":           pledge.Amount,
		"currency":         pledge.Currency,
		"paymentMethodRef": pledge.PaymentMethodRef(),
	}

	return newRecord(pledge.ID, entity.EventPledgePaymentDue, payload)
}

func paymentSuccessRecord(pledge *entity.Pledge) (*entity.OutboxRecord, error) {
	payload := map[string]any{
		"eventType":       string(entity.EventPledgePaymentSuccess),
		"occurredAt":      time.Now().UTC().Format(time.RFC3339),
		"pledgeId":        pledge.ID,
		"userId":          pledge.UserID,
		"nextPaymentDate": pledge.NextPaymentDate.Format(time.RFC3339),
	}

	return newRecord(pledge.ID, entity.EventPledgePaymentSuccess, payload)
}

func paymentFailedRecord(pledge *entity.Pledge) (*entity.OutboxRecord, error) {
	payload := map[string]any{
		"eventType":    string(entity.EventPledgePaymentFailed),
		"occurredAt":   time.Now().UTC().Format(time.RFC3339),
		"pledgeId":     pledge.ID,
		"userId":       pledge.UserID,
		"failureCount": pledge.FailureCount,
	}

	return newRecord(pledge.ID, entity.EventPledgePaymentFailed, payload)
}

func cancelledRecord(pledge *entity.Pledge) (*entity.OutboxRecord, error) {
	payload := map[string]any{
		"eventType":  string(entity.EventPledgeCancelled),
		"occurredAt": time.Now().UTC().Format(time.RFC3339),
		"pledgeId":   pledge.ID,
		"userId":     pledge.UserID,
	}

	return newRecord(pledge.ID, entity.EventPledgeCancelled, payload)
}

func notificationRequiredRecord(pledge *entity.Pledge) (*entity.OutboxRecord, error) {
	payload := map[string]any{
		"eventType":  string(entity.EventNotificationRequired),
		"occurredAt": time.Now().UTC().Format(time.RFC3339),
		"pledgeId":   pledge.ID,
		"userId":     pledge.UserID,
		"reason":     "PLEDGE_SUSPENDED_AFTER_FAILURES",
	}

	return newRecord(pledge.ID, entity.EventNotificationRequired, payload)
}

func newRecord(aggregateID uuid.UUID, eventType entity.EventType, payload map[string]any) (*entity.OutboxRecord, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("newRecord - json.Marshal: %w", err)
	}

	now := time.Now().UTC()

	return &entity.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: entity.AggregatePledge,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       b,
		Status:        entity.OutboxPending,
		Attempts:      0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
