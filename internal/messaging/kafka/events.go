package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

// Topics для Kafka
const (
	TopicConsentEvents      = "pix.consent.events"
	TopicPaymentEvents      = "pix.payment.events"
	TopicConsentConsumption = "pix.consent.consumption"
	TopicDeadLetterQueue    = "pix.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope — формат outbox-события в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение.
func NewEnvelope(event domain.OutboxMessage, publishedAt time.Time) Envelope {
	return Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		OccurredAt:    event.CreatedAt,
		PublishedAt:   publishedAt,
	}
}

// TopicFor выбирает topic по типу события.
func TopicFor(event domain.OutboxMessage) string {
	if event.EventType == domain.EventConsentConsumptionRequested {
		return TopicConsentConsumption
	}
	if event.AggregateType == domain.AggregateTypeConsent {
		return TopicConsentEvents
	}
	return TopicPaymentEvents
}

// ParseEnvelope разбирает outbox-событие из сообщения.
func ParseEnvelope(message *sarama.ConsumerMessage) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &envelope, nil
}

// ParseConsumptionRequest извлекает запрос на потребление согласия.
func ParseConsumptionRequest(envelope *Envelope) (domain.ConsentConsumptionRequested, error) {
	var req domain.ConsentConsumptionRequested
	if envelope.EventType != domain.EventConsentConsumptionRequested {
		return req, fmt.Errorf("unexpected event type %q", envelope.EventType)
	}
	if err := json.Unmarshal(envelope.Payload, &req); err != nil {
		return req, fmt.Errorf("failed to unmarshal consumption request: %w", err)
	}
	if req.ConsentID == "" {
		req.ConsentID = envelope.AggregateID
	}
	return req, nil
}
