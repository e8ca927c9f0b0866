package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Interval string

const (
	IntervalDaily   Interval = "DAILY"
	IntervalWeekly  Interval = "WEEKLY"
	IntervalMonthly Interval = "MONTHLY"
	IntervalYearly  Interval = "YEARLY"
)

func (i Interval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly:
		return true
	}
	return false
}

// Advance returns t plus one billing interval. Fixed day counts, not
// calendar-aware: MONTHLY is always 30 days, YEARLY always 365.
func (i Interval) Advance(t time.Time) time.Time {
	switch i {
	case IntervalDaily:
		return t.Add(24 * time.Hour)
	case IntervalWeekly:
		return t.Add(7 * 24 * time.Hour)
	case IntervalMonthly:
		return t.Add(30 * 24 * time.Hour)
	case IntervalYearly:
		return t.Add(365 * 24 * time.Hour)
	}
	return t
}

type PledgeStatus string

const (
	PledgeActive    PledgeStatus = "ACTIVE"
	PledgeSuspended PledgeStatus = "SUSPENDED"
	PledgeCancelled PledgeStatus = "CANCELLED"
	PledgeCompleted PledgeStatus = "COMPLETED"
)

// Terminal reports whether no further command may mutate the pledge.
func (s PledgeStatus) Terminal() bool {
	return s == PledgeCancelled || s == PledgeCompleted
}

// Pledge is a recurring financial commitment by a user to a campaign.
// Version guards read-modify-write cycles: every conditional update matches
// on it and bumps it.
type Pledge struct {
	ID              uuid.UUID       `json:"id"`
	UserID          string          `json:"user_id"`
	CampaignID      string          `json:"campaign_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Interval        Interval        `json:"interval"`
	StartDate       time.Time       `json:"start_date"`
	NextPaymentDate time.Time       `json:"next_payment_date"`
	Status          PledgeStatus    `json:"status"`
	FailureCount    int             `json:"failure_count"`
	PaymentMethod   map[string]any  `json:"payment_method"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	Version         int64           `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PaymentMethodRef returns the opaque processor reference of the payment
// method, or "" when absent.
func (p *Pledge) PaymentMethodRef() string {
	if ref, ok := p.PaymentMethod["reference"].(string); ok {
		return ref
	}
	return ""
}
