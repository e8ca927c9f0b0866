package entity

import (
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxPublishing OutboxStatus = "PUBLISHING"
	OutboxPublished  OutboxStatus = "PUBLISHED"
	OutboxFailed     OutboxStatus = "FAILED" // dead-lettered after max attempts
)

const AggregatePledge = "PLEDGE"

type EventType string

const (
	EventPledgeCreated        EventType = "PLEDGE_CREATED"
	EventPledgePaymentDue     EventType = "PLEDGE_PAYMENT_DUE"
	EventPledgePaymentSuccess EventType = "PLEDGE_PAYMENT_SUCCESS"
	EventPledgePaymentFailed  EventType = "PLEDGE_PAYMENT_FAILED"
	EventPledgeCancelled      EventType = "PLEDGE_CANCELLED"
	EventNotificationRequired EventType = "NOTIFICATION_REQUIRED"
)

// OutboxRecord is one domain event awaiting or having undergone delivery.
// Records are appended in the same transaction as the pledge mutation that
// produced them and are never deleted here; a PUBLISHED record stays as an
// audit log entry.
type OutboxRecord struct {
	ID            uuid.UUID    `json:"id"`
	AggregateType string       `json:"aggregate_type"`
	AggregateID   uuid.UUID    `json:"aggregate_id"`
	EventType     EventType    `json:"event_type"`
	Payload       []byte       `json:"payload"`
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	PublishedAt   *time.Time   `json:"published_at,omitempty"`
}
