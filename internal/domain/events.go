package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	AggregateTypeConsent = "consent"
	AggregateTypePayment = "payment"
)

const (
	EventConsentCreated              = "consent.created"
	EventConsentStatusChanged        = "consent.status_changed"
	EventConsentConsumptionRequested = "consent.consumption_requested"
	EventPaymentCreated              = "payment.created"
	EventPaymentStatusChanged        = "payment.status_changed"
)

// ConsentEvent — полезная нагрузка событий согласия.
type ConsentEvent struct {
	ConsentID      string    `json:"consent_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// PaymentEvent — полезная нагрузка событий платежа.
type PaymentEvent struct {
	PaymentID      string    `json:"payment_id"`
	ConsentID      string    `json:"consent_id"`
	EndToEndID     string    `json:"end_to_end_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Amount         string    `json:"amount"`
	Currency       string    `json:"currency"`
	Reason         string    `json:"reason,omitempty"`
	Reconciliation string    `json:"reconciliation,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ConsentConsumptionRequested — запрос на потребление согласия из платёжного контура.
type ConsentConsumptionRequested struct {
	ConsentID   string    `json:"consent_id"`
	PaymentIDs  []string  `json:"payment_ids"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewOutboxMessage сериализует payload и формирует сообщение outbox.
func NewOutboxMessage(aggregateType, aggregateID, eventType string, payload any, at time.Time) (OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     at,
	}, nil
}

// NewPaymentEvent собирает событие по текущему состоянию платежа.
func NewPaymentEvent(p PixPayment, previous PaymentStatus, at time.Time) PaymentEvent {
	evt := PaymentEvent{
		PaymentID:      p.ID,
		ConsentID:      p.ConsentID,
		EndToEndID:     p.EndToEndID,
		Status:         string(p.Status),
		PreviousStatus: string(previous),
		Amount:         p.Amount.String(),
		Currency:       p.Currency,
		OccurredAt:     at,
	}
	switch {
	case p.Rejection != nil:
		evt.Reason = p.Rejection.Code
	case p.Cancellation != nil:
		evt.Reason = string(p.Cancellation.Reason)
	}
	if p.Reconciliation != nil {
		evt.Reconciliation = p.Reconciliation.Reason
	}
	return evt
}

// NewConsentEvent собирает событие по текущему состоянию согласия.
func NewConsentEvent(c Consent, previous ConsentStatus, at time.Time) ConsentEvent {
	evt := ConsentEvent{
		ConsentID:      c.ID,
		Status:         string(c.Status),
		PreviousStatus: string(previous),
		ExpiresAt:      c.ExpiresAt,
		OccurredAt:     at,
	}
	if c.Rejection != nil {
		evt.Reason = string(c.Rejection.Code)
	}
	return evt
}
