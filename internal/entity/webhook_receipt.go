package entity

import (
	"time"

	"github.com/google/uuid"
)

// WebhookReceipt is the dedup ledger entry for one inbound payment-processor
// callback. EventID is externally supplied and unique; the mere existence of
// a receipt blocks reprocessing, its contents are kept for audit only.
type WebhookReceipt struct {
	EventID     string    `json:"event_id"`
	PledgeID    uuid.UUID `json:"pledge_id"`
	Status      string    `json:"status"`
	ProcessedAt time.Time `json:"processed_at"`
}
