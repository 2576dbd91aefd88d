package settlement

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/resilience"
)

const portName = "settlement"

// Metrics — учёт вызовов внешнего порта.
type Metrics interface {
	RecordExternalCall(port, result string, duration time.Duration)
}

// Resilient ограничивает отправку на расчёт по времени. Тайм-аут и сбой транспорта
// всегда временная ошибка и никогда не успех.
type Resilient struct {
	next    domain.SettlementGateway
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	metrics Metrics
	logger  *log.Entry
}

// NewResilient оборачивает gateway. breaker и metrics могут быть nil.
func NewResilient(next domain.SettlementGateway, timeout time.Duration, breaker *resilience.CircuitBreaker, metrics Metrics, logger *log.Entry) *Resilient {
	if logger == nil {
		logger = log.WithField("component", "settlement")
	}
	return &Resilient{next: next, timeout: timeout, breaker: breaker, metrics: metrics, logger: logger}
}

// Submit отправляет платёж на расчёт.
func (r *Resilient) Submit(ctx context.Context, payment domain.PixPayment) (domain.SettlementResult, error) {
	started := time.Now()
	var result domain.SettlementResult
	err := resilience.CallWithTimeout(ctx, r.timeout, r.breaker, nil, func(ctx context.Context) error {
		var callErr error
		result, callErr = r.next.Submit(ctx, payment)
		return callErr
	})
	if r.metrics != nil {
		outcome := resilience.Outcome(err)
		if err == nil {
			outcome = string(result.Outcome)
		}
		r.metrics.RecordExternalCall(portName, outcome, time.Since(started))
	}
	if err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"payment_id":    payment.ID,
			"end_to_end_id": payment.EndToEndID,
		}).Warn("settlement unavailable")
		return domain.SettlementResult{}, &domain.ExternalValidationError{
			Port:      domain.ExternalPortSettlement,
			Message:   "settlement unavailable",
			Transient: true,
			Err:       err,
		}
	}
	return result, nil
}

var _ domain.SettlementGateway = (*Resilient)(nil)
