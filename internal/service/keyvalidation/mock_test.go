package keyvalidation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/resilience"
)

type recordedCall struct {
	port   string
	result string
}

type stubMetrics struct {
	calls []recordedCall
}

func (s *stubMetrics) RecordExternalCall(port, result string, _ time.Duration) {
	s.calls = append(s.calls, recordedCall{port: port, result: result})
}

func TestMockValidator(t *testing.T) {
	ctx := context.Background()
	mock := NewMockValidator()

	res, err := mock.ValidateKey(ctx, "maria@example.com")
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, domain.AccountTypeCurrent, res.AccountType)

	mock.Invalid["blocked@example.com"] = "key not registered"
	res, err = mock.ValidateKey(ctx, "blocked@example.com")
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, "key not registered", res.Reason)

	mock.Keys["+5511999999999"] = domain.KeyValidationResult{Valid: true, HolderName: "Joao", ISPB: "87654321"}
	res, err = mock.ValidateKey(ctx, "+5511999999999")
	require.NoError(t, err)
	require.Equal(t, "Joao", res.HolderName)

	mock.SetErr(errors.New("dict down"))
	_, err = mock.ValidateKey(ctx, "maria@example.com")
	require.Error(t, err)
	require.Equal(t, 4, mock.Calls())
}

func TestResilient_WrapsTransportFailure(t *testing.T) {
	mock := NewMockValidator()
	mock.SetErr(errors.New("connection refused"))
	metrics := &stubMetrics{}
	validator := NewResilient(mock, time.Second, nil, metrics, nil)

	_, err := validator.ValidateKey(context.Background(), "maria@example.com")
	require.ErrorIs(t, err, domain.ErrExternalValidation)
	require.True(t, domain.IsTransient(err))

	var extErr *domain.ExternalValidationError
	require.ErrorAs(t, err, &extErr)
	require.Equal(t, domain.ExternalPortKeyValidation, extErr.Port)
	require.Equal(t, []recordedCall{{port: "key_validation", result: "error"}}, metrics.calls)
}

func TestResilient_TimeoutIsTransient(t *testing.T) {
	mock := NewMockValidator()
	mock.Delay = time.Second
	validator := NewResilient(mock, 10*time.Millisecond, nil, nil, nil)

	_, err := validator.ValidateKey(context.Background(), "maria@example.com")
	require.True(t, domain.IsTransient(err))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResilient_InvalidKeyIsNotAFailure(t *testing.T) {
	mock := NewMockValidator()
	mock.Invalid["x@example.com"] = "unknown key"
	breaker := resilience.NewCircuitBreaker("dict", 1, time.Minute, nil)
	validator := NewResilient(mock, time.Second, breaker, nil, nil)

	res, err := validator.ValidateKey(context.Background(), "x@example.com")
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, resilience.CircuitClosed, breaker.State())
}

func TestResilient_OpenCircuitSkipsCall(t *testing.T) {
	mock := NewMockValidator()
	mock.SetErr(errors.New("dict down"))
	breaker := resilience.NewCircuitBreaker("dict", 1, time.Minute, nil)
	validator := NewResilient(mock, time.Second, breaker, nil, nil)

	_, err := validator.ValidateKey(context.Background(), "a@example.com")
	require.Error(t, err)
	_, err = validator.ValidateKey(context.Background(), "a@example.com")
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	require.True(t, domain.IsTransient(err))
	require.Equal(t, 1, mock.Calls())
}
