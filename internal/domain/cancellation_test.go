package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

func TestCanBeCancelled(t *testing.T) {
	allowed := map[domain.PaymentStatus]bool{
		domain.PaymentStatusPending:   true,
		domain.PaymentStatusScheduled: true,
	}
	all := []domain.PaymentStatus{
		domain.PaymentStatusReceived, domain.PaymentStatusAccepted, domain.PaymentStatusAcceptedProcessing,
		domain.PaymentStatusRejected, domain.PaymentStatusSettled, domain.PaymentStatusPending,
		domain.PaymentStatusScheduled, domain.PaymentStatusCancelled,
	}
	for _, s := range all {
		if got := domain.CanBeCancelled(s); got != allowed[s] {
			t.Fatalf("CanBeCancelled(%s) = %v, want %v", s, got, allowed[s])
		}
	}
}

func TestCancellationReasonFor(t *testing.T) {
	reason, ok := domain.CancellationReasonFor(domain.PaymentStatusPending)
	require.True(t, ok)
	require.Equal(t, domain.CancellationReasonPending, reason)
	require.Equal(t, "cancelled while pending", reason.Description())

	reason, ok = domain.CancellationReasonFor(domain.PaymentStatusScheduled)
	require.True(t, ok)
	require.Equal(t, domain.CancellationReasonScheduled, reason)
	require.Equal(t, "cancelled while scheduled", reason.Description())

	_, ok = domain.CancellationReasonFor(domain.PaymentStatusSettled)
	require.False(t, ok)
}

func TestCancelPayment(t *testing.T) {
	now := time.Now().UTC()
	by := domain.Document{Identification: "11111111111", Rel: "CPF"}

	t.Run("scheduled payment is cancelled", func(t *testing.T) {
		p := makePayment(makeConsent(now), now)
		require.NoError(t, p.Transition(domain.PaymentStatusScheduled, now))

		require.NoError(t, domain.CancelPayment(&p, by, domain.CancellationChannelInitiator, now))
		require.Equal(t, domain.PaymentStatusCancelled, p.Status)
		require.Equal(t, domain.CancellationReasonScheduled, p.Cancellation.Reason)
		require.Equal(t, domain.CancellationChannelInitiator, p.Cancellation.Channel)
		require.Equal(t, by, p.Cancellation.CancelledBy)
	})

	t.Run("settled payment is left unchanged", func(t *testing.T) {
		p := makePayment(makeConsent(now), now)
		p.Status = domain.PaymentStatusSettled
		before := p

		err := domain.CancelPayment(&p, by, domain.CancellationChannelHolder, now)
		var notAllowed *domain.CancellationNotAllowedError
		require.True(t, errors.As(err, &notAllowed))
		require.Equal(t, p.ID, notAllowed.PaymentID)
		require.Equal(t, domain.PaymentStatusSettled, notAllowed.Status)
		require.ErrorIs(t, err, domain.ErrCancellationNotAllowed)
		require.Equal(t, before, p)
	})
}
