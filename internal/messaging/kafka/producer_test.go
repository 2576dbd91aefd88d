package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var body map[string]any
		if err := json.Unmarshal(val, &body); err != nil {
			return err
		}
		if body["payment_id"] != "pay-123" {
			return fmt.Errorf("unexpected body %v", body)
		}
		return nil
	})

	err := producer.PublishEvent(TopicPaymentEvents, "pay-123", map[string]any{"payment_id": "pay-123"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, nil)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	if err := producer.PublishEvent(TopicPaymentEvents, "pay-123", nil); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, nil)

	if err := producer.PublishEvent(TopicPaymentEvents, "k", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTopicFor(t *testing.T) {
	cases := []struct {
		event domain.OutboxMessage
		want  string
	}{
		{domain.OutboxMessage{AggregateType: domain.AggregateTypeConsent, EventType: domain.EventConsentConsumptionRequested}, TopicConsentConsumption},
		{domain.OutboxMessage{AggregateType: domain.AggregateTypeConsent, EventType: domain.EventConsentStatusChanged}, TopicConsentEvents},
		{domain.OutboxMessage{AggregateType: domain.AggregateTypePayment, EventType: domain.EventPaymentCreated}, TopicPaymentEvents},
	}
	for _, tc := range cases {
		if got := TopicFor(tc.event); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.event.EventType, tc.want, got)
		}
	}
}

func TestNewEnvelope(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	published := created.Add(time.Second)
	envelope := NewEnvelope(domain.OutboxMessage{
		ID:            "evt-1",
		AggregateType: domain.AggregateTypePayment,
		AggregateID:   "pay-1",
		EventType:     domain.EventPaymentStatusChanged,
		Payload:       []byte(`{"status":"ACSC"}`),
		CreatedAt:     created,
	}, published)

	if envelope.ID != "evt-1" || envelope.AggregateID != "pay-1" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if !envelope.OccurredAt.Equal(created) || !envelope.PublishedAt.Equal(published) {
		t.Error("timestamps not set correctly")
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	payload, ok := decoded["payload"].(map[string]any)
	if !ok || payload["status"] != "ACSC" {
		t.Fatalf("payload must be embedded as json object, got %v", decoded["payload"])
	}
}
