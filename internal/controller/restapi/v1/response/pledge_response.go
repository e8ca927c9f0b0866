package response

import (
	"encoding/json"
	"time"

	"github.com/fundraising/pledge-service/internal/entity"
)

type Error struct {
	Error string `json:"error"`
}

type Pledge struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	CampaignID      string         `json:"campaign_id"`
	Amount          string         `json:"amount"`
	Currency        string         `json:"currency"`
	Interval        string         `json:"interval"`
	StartDate       string         `json:"start_date"`
	NextPaymentDate string         `json:"next_payment_date"`
	Status          string         `json:"status"`
	FailureCount    int            `json:"failure_count"`
	PaymentMethod   map[string]any `json:"payment_method"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

func NewPledge(pledge *entity.Pledge) Pledge {
	return Pledge{
		ID:              pledge.ID.String(),
		UserID:          pledge.UserID,
		CampaignID:      pledge.CampaignID,
		Amount:          pledge.Amount.String(),
		Currency:        pledge.Currency,
		Interval:        string(pledge.Interval),
		StartDate:       pledge.StartDate.Format(time.RFC3339),
		NextPaymentDate: pledge.NextPaymentDate.Format(time.RFC3339),
		Status:          string(pledge.Status),
		FailureCount:    pledge.FailureCount,
		PaymentMethod:   pledge.PaymentMethod,
		Metadata:        pledge.Metadata,
		CreatedAt:       pledge.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       pledge.UpdatedAt.Format(time.RFC3339),
	}
}

func NewPledgeList(pledges []*entity.Pledge) []Pledge {
	out := make([]Pledge, 0, len(pledges))
	for _, pledge := range pledges {
		out = append(out, NewPledge(pledge))
	}

	return out
}

type OutboxEvent struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	CreatedAt   string          `json:"created_at"`
	PublishedAt *string         `json:"published_at,omitempty"`
}

func NewOutboxEventList(records []*entity.OutboxRecord) []OutboxEvent {
	out := make([]OutboxEvent, 0, len(records))
	for _, record := range records {
		event := OutboxEvent{
			ID:        record.ID.String(),
			EventType: string(record.EventType),
			Payload:   json.RawMessage(record.Payload),
			Status:    string(record.Status),
			Attempts:  record.Attempts,
			CreatedAt: record.CreatedAt.Format(time.RFC3339),
		}
		if record.PublishedAt != nil {
			publishedAt := record.PublishedAt.Format(time.RFC3339)
			event.PublishedAt = &publishedAt
		}
		out = append(out, event)
	}

	return out
}
