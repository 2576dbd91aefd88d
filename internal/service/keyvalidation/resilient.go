package keyvalidation

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/resilience"
)

const portName = "key_validation"

// Metrics — учёт вызовов внешнего порта.
type Metrics interface {
	RecordExternalCall(port, result string, duration time.Duration)
}

// Resilient ограничивает вызов справочника по времени и размыкает цепь после серии сбоев.
// Сбой транспорта превращается во временную ExternalValidationError.
type Resilient struct {
	next    domain.KeyValidator
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	metrics Metrics
	logger  *log.Entry
}

// NewResilient оборачивает validator. breaker и metrics могут быть nil.
func NewResilient(next domain.KeyValidator, timeout time.Duration, breaker *resilience.CircuitBreaker, metrics Metrics, logger *log.Entry) *Resilient {
	if logger == nil {
		logger = log.WithField("component", "key-validation")
	}
	return &Resilient{next: next, timeout: timeout, breaker: breaker, metrics: metrics, logger: logger}
}

// ValidateKey проверяет ключ с учётом тайм-аута и breaker.
func (r *Resilient) ValidateKey(ctx context.Context, proxy string) (domain.KeyValidationResult, error) {
	started := time.Now()
	var result domain.KeyValidationResult
	err := resilience.CallWithTimeout(ctx, r.timeout, r.breaker, nil, func(ctx context.Context) error {
		var callErr error
		result, callErr = r.next.ValidateKey(ctx, proxy)
		return callErr
	})
	if r.metrics != nil {
		r.metrics.RecordExternalCall(portName, resilience.Outcome(err), time.Since(started))
	}
	if err != nil {
		r.logger.WithError(err).Warn("key validation unavailable")
		return domain.KeyValidationResult{}, &domain.ExternalValidationError{
			Port:      domain.ExternalPortKeyValidation,
			Message:   "key validation unavailable",
			Transient: true,
			Err:       err,
		}
	}
	return result, nil
}

var _ domain.KeyValidator = (*Resilient)(nil)
