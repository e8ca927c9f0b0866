package kafka

import (
	"context"
	"fmt"

	"github.com/fundraising/pledge-service/internal/entity"
	"github.com/fundraising/pledge-service/pkg/kafka/producer"
	"github.com/segmentio/kafka-go"
)

// Fixed event-type to topic table. Unrecognized event types fall back to the
// generic pledge-events topic.
const (
	_topicRecurringPayments = "recurring-payments"
	_topicPaymentRetries    = "payment-retries"
	_topicNotifications     = "notifications"
	_topicPledgeEvents      = "pledge-events"
)

type EventProducer struct {
	*producer.Producer
}

func NewEventProducer(producer *producer.Producer) *EventProducer {
	return &EventProducer{producer}
}

func (ep *EventProducer) SendEvents(ctx context.Context, records []*entity.OutboxRecord) error {
	var msgsToSend []kafka.Message

	for _, record := range records {
		msg := kafka.Message{
			Topic: topicFor(record.EventType),
			// Keyed by aggregate so one pledge's events stay ordered.
			Key:   []byte(record.AggregateID.String()),
			Value: record.Payload,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(record.ID.String())},
				{Key: "event_type", Value: []byte(record.EventType)},
			},
		}
		msgsToSend = append(msgsToSend, msg)
	}

	if len(msgsToSend) == 0 {
		return nil
	}

	err := ep.Writer.WriteMessages(ctx, msgsToSend...)
	if err != nil {
		return fmt.Errorf("EventProducer - SendEvents - ep.Writer.WriteMessages: %w", err)
	}

	return nil
}

func (ep *EventProducer) Close() error {
	err := ep.Producer.Close()
	if err != nil {
		return fmt.Errorf("EventProducer - Close: %w", err)
	}

	return nil
}

func topicFor(eventType entity.EventType) string {
	switch eventType {
	case entity.EventPledgePaymentDue:
		return _topicRecurringPayments
	case entity.EventPledgePaymentFailed:
		return _topicPaymentRetries
	case entity.EventNotificationRequired:
		return _topicNotifications
	default:
		return _topicPledgeEvents
	}
}
