package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreatePledge carries the validated create-recurring command input.
type CreatePledge struct {
	UserID        string
	CampaignID    string
	Amount        decimal.Decimal
	Currency      string
	Interval      string
	StartDate     time.Time
	PaymentMethod map[string]any
	Metadata      map[string]any
}

// PaymentWebhook is one inbound payment-processor callback.
type PaymentWebhook struct {
	PledgeID string
	Status   string
	EventID  string
}
