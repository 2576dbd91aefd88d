package resilience

import (
	"context"
	"errors"
	"time"
)

// CallWithTimeout выполняет fn с ограничением по времени и, если задан breaker, через него.
// Тайм-аут возвращается как context.DeadlineExceeded.
func CallWithTimeout(
	ctx context.Context,
	timeout time.Duration,
	breaker *CircuitBreaker,
	countAsFailure func(error) bool,
	fn func(ctx context.Context) error,
) error {
	call := func() error {
		if timeout <= 0 {
			return fn(ctx)
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(callCtx)
	}
	if breaker == nil {
		return call()
	}
	return breaker.Execute(call, countAsFailure)
}

// Outcome классифицирует результат вызова внешнего порта для метрик.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
