package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

func TestPaymentRepository_PostgresCreateBatchConsumesConsent(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	consents, payments := store.Consents(), store.Payments()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	consent := authorisedConsent(t, "consent-batch", now)
	require.NoError(t, consents.Create(ctx, consent))

	p0 := settledPayment(consent.ID, "pay-key", 0, now)
	p1 := settledPayment(consent.ID, "pay-key", 1, now)
	msg, err := domain.NewOutboxMessage(domain.AggregateTypePayment, p0.ID, domain.EventPaymentCreated, map[string]string{"id": p0.ID}, now)
	require.NoError(t, err)

	err = payments.CreateBatch(ctx, domain.PaymentBatch{
		Payments:        []domain.PixPayment{p1, p0},
		ConsumeConsents: []string{consent.ID},
		ConsumedAt:      now,
		Events:          []domain.OutboxMessage{msg},
		Timeline: []domain.TimelineEvent{
			domain.NewStatusTimelineEvent(domain.ResourceTypePayment, p0.ID, string(domain.PaymentStatusSettled), "", now),
		},
	})
	require.NoError(t, err)

	stored, err := consents.Get(ctx, consent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentStatusConsumed, stored.Status)
	require.Equal(t, int64(1), stored.Version)

	batch, err := payments.ListByIdempotencyKey(ctx, "pay-key")
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, p0.ID, batch[0].ID)
	require.Equal(t, p1.ID, batch[1].ID)
	require.Equal(t, "150.00", batch[0].Amount.String())

	pending, err := store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, domain.EventPaymentCreated, pending[0].EventType)

	history, err := store.Timeline().List(ctx, domain.ResourceTypePayment, p0.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestPaymentRepository_PostgresCreateBatchRollsBack(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	consents, payments := store.Consents(), store.Payments()
	ctx := context.Background()
	now := time.Now().UTC()

	consent := domain.NewConsent(domain.NewConsentID(), "awaiting", now, 0)
	consent.Payment.Amount = domain.MustParseAmount("150.00")
	consent.Payment.Currency = "BRL"
	require.NoError(t, consents.Create(ctx, consent))

	p := settledPayment(consent.ID, "rollback-key", 0, now)
	msg, err := domain.NewOutboxMessage(domain.AggregateTypePayment, p.ID, domain.EventPaymentCreated, map[string]string{"id": p.ID}, now)
	require.NoError(t, err)

	err = payments.CreateBatch(ctx, domain.PaymentBatch{
		Payments:        []domain.PixPayment{p},
		ConsumeConsents: []string{consent.ID},
		ConsumedAt:      now,
		Events:          []domain.OutboxMessage{msg},
	})
	require.True(t, errors.Is(err, domain.ErrConsentNotConsumable), "got %v", err)

	_, err = payments.Get(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
	stats, err := store.Outbox().Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	err = payments.CreateBatch(ctx, domain.PaymentBatch{
		Payments:        []domain.PixPayment{p},
		ConsumeConsents: []string{"urn:openfinance:missing"},
		ConsumedAt:      now,
	})
	require.ErrorIs(t, err, domain.ErrConsentNotFound)
}

func TestPaymentRepository_PostgresDuplicateBatch(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	payments := store.Payments()
	ctx := context.Background()
	now := time.Now().UTC()

	p := settledPayment("urn:openfinance:split", "dup-pay", 0, now)
	require.NoError(t, payments.CreateBatch(ctx, domain.PaymentBatch{Payments: []domain.PixPayment{p}}))

	again := settledPayment("urn:openfinance:split", "dup-pay", 0, now)
	err := payments.CreateBatch(ctx, domain.PaymentBatch{Payments: []domain.PixPayment{again}})
	require.ErrorIs(t, err, domain.ErrPaymentAlreadyExists)
}

func TestPaymentRepository_PostgresListByConsentAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	payments := store.Payments()
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	older := settledPayment("urn:openfinance:c1", "k1", 0, day.Add(-48*time.Hour))
	inside := settledPayment("urn:openfinance:c1", "k2", 0, day)
	other := settledPayment("urn:openfinance:c2", "k3", 0, day)
	for _, p := range []domain.PixPayment{older, inside, other} {
		require.NoError(t, payments.CreateBatch(ctx, domain.PaymentBatch{Payments: []domain.PixPayment{p}}))
	}

	all, err := payments.ListByConsent(ctx, "urn:openfinance:c1", domain.Period{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, older.ID, all[0].ID)

	period, err := domain.NewPeriod("2026-03-10", "2026-03-10")
	require.NoError(t, err)
	filtered, err := payments.ListByConsent(ctx, "urn:openfinance:c1", period)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, inside.ID, filtered[0].ID)

	got, err := payments.Get(ctx, inside.ID)
	require.NoError(t, err)
	got.Status = domain.PaymentStatusCancelled
	got.Cancellation = &domain.Cancellation{
		Reason:      domain.CancellationReasonScheduled,
		Channel:     domain.CancellationChannelInitiator,
		CancelledAt: day,
		CancelledBy: domain.Document{Identification: "12345678901", Rel: "CPF"},
	}
	require.NoError(t, payments.Save(ctx, got))
	require.ErrorIs(t, payments.Save(ctx, got), domain.ErrPaymentVersionConflict)

	saved, err := payments.Get(ctx, inside.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusCancelled, saved.Status)
	require.Equal(t, int64(1), saved.Version)
	require.NotNil(t, saved.Cancellation)
	require.Equal(t, domain.CancellationChannelInitiator, saved.Cancellation.Channel)

	missing := settledPayment("c", "k", 0, day)
	require.ErrorIs(t, payments.Save(ctx, missing), domain.ErrPaymentNotFound)
}

func TestPaymentRepository_PostgresConsentClaims(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	payments := store.Payments()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	consent := authorisedConsent(t, "consent-claim", now)
	require.NoError(t, store.Consents().Create(ctx, consent))

	require.NoError(t, payments.ClaimConsent(ctx, consent.ID, "key-a", now))
	require.NoError(t, payments.ClaimConsent(ctx, consent.ID, "key-a", now))
	require.ErrorIs(t, payments.ClaimConsent(ctx, consent.ID, "key-b", now), domain.ErrConsentAlreadyClaimed)

	require.NoError(t, payments.ReleaseConsentClaim(ctx, consent.ID, "key-b"))
	require.ErrorIs(t, payments.ClaimConsent(ctx, consent.ID, "key-b", now), domain.ErrConsentAlreadyClaimed)

	require.NoError(t, payments.ReleaseConsentClaim(ctx, consent.ID, "key-a"))
	require.NoError(t, payments.ClaimConsent(ctx, consent.ID, "key-b", now))

	require.NoError(t, payments.ClaimConsent(ctx, "urn:openfinance:REMOTE000000", "key-a", now))
	require.ErrorIs(t, payments.ClaimConsent(ctx, "urn:openfinance:REMOTE000000", "key-b", now), domain.ErrConsentAlreadyClaimed)
}

func TestPaymentRepository_PostgresConsumeChecksValidationTime(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	consent := authorisedConsent(t, "consent-late", now)
	require.NoError(t, store.Consents().Create(ctx, consent))

	validated := consent.ExpiresAt.Add(-time.Second)
	written := consent.ExpiresAt.Add(2 * time.Second)
	err := store.Payments().CreateBatch(ctx, domain.PaymentBatch{
		Payments:        []domain.PixPayment{settledPayment(consent.ID, "late-key", 0, validated)},
		ConsumeConsents: []string{consent.ID},
		ValidatedAt:     validated,
		ConsumedAt:      written,
	})
	require.NoError(t, err)

	stored, err := store.Consents().Get(ctx, consent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentStatusConsumed, stored.Status)
}
