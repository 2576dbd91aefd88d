package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

// ConsumptionRelay доставляет consent.consumption_requested сервису согласий.
// Ошибка возвращается только для временных сбоев, чтобы worker повторил доставку.
type ConsumptionRelay struct {
	consumer domain.ConsentConsumer
	logger   *log.Entry
}

// NewConsumptionRelay создаёт relay поверх ConsentConsumer.
func NewConsumptionRelay(consumer domain.ConsentConsumer, logger *log.Entry) *ConsumptionRelay {
	if logger == nil {
		logger = log.WithField("component", "consumption-relay")
	}
	return &ConsumptionRelay{consumer: consumer, logger: logger}
}

// Publish потребляет согласие из события.
func (r *ConsumptionRelay) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if event.EventType != domain.EventConsentConsumptionRequested {
		return nil
	}
	var req domain.ConsentConsumptionRequested
	if err := json.Unmarshal(event.Payload, &req); err != nil {
		r.logger.WithError(err).WithField("outbox_id", event.ID).Error("malformed consumption request dropped")
		return nil
	}
	return ApplyConsumption(ctx, r.consumer, req, r.logger)
}

// ApplyConsumption вызывает Consume и решает, нужен ли повтор. Согласие, которое
// уже нельзя потребить, фиксируется в логе для ручного разбора: платежи по нему
// уже проведены.
func ApplyConsumption(ctx context.Context, consumer domain.ConsentConsumer, req domain.ConsentConsumptionRequested, logger *log.Entry) error {
	logger = logger.WithFields(log.Fields{
		"consent_id":  req.ConsentID,
		"payment_ids": req.PaymentIDs,
	})
	err := consumer.Consume(ctx, req.ConsentID)
	switch {
	case err == nil:
		logger.Info("consent consumed")
		return nil
	case errors.Is(err, domain.ErrConsentNotFound), errors.Is(err, domain.ErrConsentInvalid):
		logger.WithError(err).Error("consent cannot be consumed for settled payments")
		return nil
	default:
		return fmt.Errorf("consume consent %s: %w", req.ConsentID, err)
	}
}

var _ domain.OutboxPublisher = (*ConsumptionRelay)(nil)

// ConsumerFunc позволяет использовать функцию как ConsentConsumer.
type ConsumerFunc func(ctx context.Context, consentID string) error

// Consume вызывает f.
func (f ConsumerFunc) Consume(ctx context.Context, consentID string) error {
	return f(ctx, consentID)
}
