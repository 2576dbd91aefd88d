package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/storage/memory"
)

func newConsent(now time.Time) domain.Consent {
	c := domain.NewConsent(domain.NewConsentID(), "consent-key", now, 0)
	c.Payment.Amount = domain.MustParseAmount("10.00")
	c.Payment.Currency = "BRL"
	return c
}

func newPayment(consentID, key string, idx int, created time.Time) domain.PixPayment {
	return domain.PixPayment{
		ID:              domain.NewPaymentID(),
		IdempotencyKey:  key,
		BatchIndex:      idx,
		ConsentID:       consentID,
		Status:          domain.PaymentStatusSettled,
		Amount:          domain.MustParseAmount("10.00"),
		Currency:        "BRL",
		CreatedAt:       created,
		StatusUpdatedAt: created,
	}
}

func TestPaymentRepository_CreateBatchConsumesConsent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	consents, payments := store.Consents(), store.Payments()
	now := time.Now().UTC()

	consent := newConsent(now)
	require.NoError(t, consent.Authorize(now))
	require.NoError(t, consents.Create(ctx, consent))

	p := newPayment(consent.ID, "pay-key", 0, now)
	msg, err := domain.NewOutboxMessage(domain.AggregateTypePayment, p.ID, domain.EventPaymentCreated, map[string]string{"id": p.ID}, now)
	require.NoError(t, err)

	err = payments.CreateBatch(ctx, domain.PaymentBatch{
		Payments:        []domain.PixPayment{p},
		ConsumeConsents: []string{consent.ID},
		ConsumedAt:      now,
		Events:          []domain.OutboxMessage{msg},
		Timeline:        []domain.TimelineEvent{domain.NewStatusTimelineEvent(domain.ResourceTypePayment, p.ID, "ACSC", "", now)},
	})
	require.NoError(t, err)

	stored, err := consents.Get(ctx, consent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentStatusConsumed, stored.Status)
	require.Equal(t, consent.Version+1, stored.Version)

	got, err := payments.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)

	require.Len(t, store.Outbox().AllPending(), 1)
	history, err := store.Timeline().List(ctx, domain.ResourceTypePayment, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestPaymentRepository_CreateBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()

	consent := newConsent(now)
	require.NoError(t, store.Consents().Create(ctx, consent))

	p := newPayment(consent.ID, "pay-key", 0, now)
	err := store.Payments().CreateBatch(ctx, domain.PaymentBatch{
		Payments:        []domain.PixPayment{p},
		ConsumeConsents: []string{consent.ID},
		ConsumedAt:      now,
		Events:          []domain.OutboxMessage{{AggregateType: "payment"}},
	})
	require.ErrorIs(t, err, domain.ErrConsentNotConsumable)

	_, err = store.Payments().Get(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
	require.Empty(t, store.Outbox().AllPending())

	stored, err := store.Consents().Get(ctx, consent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentStatusAwaitingAuthorisation, stored.Status)
}

func TestPaymentRepository_DuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPaymentRepository()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateBatch(ctx, domain.PaymentBatch{Payments: []domain.PixPayment{
		newPayment("c1", "pay-key", 1, now),
		newPayment("c1", "pay-key", 0, now),
	}}))

	err := repo.CreateBatch(ctx, domain.PaymentBatch{Payments: []domain.PixPayment{newPayment("c1", "pay-key", 0, now)}})
	require.True(t, errors.Is(err, domain.ErrPaymentAlreadyExists))

	batch, err := repo.ListByIdempotencyKey(ctx, "pay-key")
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, 0, batch[0].BatchIndex)
	require.Equal(t, 1, batch[1].BatchIndex)
}

func TestPaymentRepository_ListByConsentPeriod(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPaymentRepository()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateBatch(ctx, domain.PaymentBatch{Payments: []domain.PixPayment{
		newPayment("c1", "k1", 0, day.Add(-time.Hour)),
		newPayment("c1", "k2", 0, day.Add(23*time.Hour)),
		newPayment("c2", "k3", 0, day.Add(time.Hour)),
	}}))

	period, err := domain.NewPeriod("2026-03-10", "2026-03-10")
	require.NoError(t, err)

	list, err := repo.ListByConsent(ctx, "c1", period)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "k2", list[0].IdempotencyKey)

	all, err := repo.ListByConsent(ctx, "c1", domain.Period{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.True(t, all[0].CreatedAt.Before(all[1].CreatedAt))
}

func TestPaymentRepository_SaveVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPaymentRepository()
	p := newPayment("c1", "k1", 0, time.Now().UTC())
	p.Status = domain.PaymentStatusScheduled
	require.NoError(t, repo.CreateBatch(ctx, domain.PaymentBatch{Payments: []domain.PixPayment{p}}))

	stored, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	stale := stored

	stored.Status = domain.PaymentStatusCancelled
	require.NoError(t, repo.Save(ctx, stored))

	stale.Status = domain.PaymentStatusCancelled
	require.ErrorIs(t, repo.Save(ctx, stale), domain.ErrPaymentVersionConflict)
}

func TestPaymentRepository_ConsentClaims(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()

	consent := newConsent(now)
	require.NoError(t, consent.Authorize(now))
	require.NoError(t, store.Consents().Create(ctx, consent))

	payments := store.Payments()
	require.NoError(t, payments.ClaimConsent(ctx, consent.ID, "key-a", now))
	require.NoError(t, payments.ClaimConsent(ctx, consent.ID, "key-a", now))
	require.ErrorIs(t, payments.ClaimConsent(ctx, consent.ID, "key-b", now), domain.ErrConsentAlreadyClaimed)

	// Чужой ключ не снимает захват.
	require.NoError(t, payments.ReleaseConsentClaim(ctx, consent.ID, "key-b"))
	require.ErrorIs(t, payments.ClaimConsent(ctx, consent.ID, "key-b", now), domain.ErrConsentAlreadyClaimed)

	require.NoError(t, payments.ReleaseConsentClaim(ctx, consent.ID, "key-a"))
	require.NoError(t, payments.ClaimConsent(ctx, consent.ID, "key-b", now))

	// В раздельной топологии согласие хранится у владельца, а захват у платёжного экземпляра.
	require.NoError(t, payments.ClaimConsent(ctx, "urn:openfinance:remote", "key-a", now))
	require.ErrorIs(t, payments.ClaimConsent(ctx, "urn:openfinance:remote", "key-b", now), domain.ErrConsentAlreadyClaimed)
}

func TestPaymentRepository_CreateBatchChecksExpiryAtValidation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()

	consent := newConsent(now)
	require.NoError(t, consent.Authorize(now))
	require.NoError(t, store.Consents().Create(ctx, consent))

	validated := consent.ExpiresAt.Add(-time.Second)
	written := consent.ExpiresAt.Add(2 * time.Second)
	p := newPayment(consent.ID, "late-key", 0, validated)

	err := store.Payments().CreateBatch(ctx, domain.PaymentBatch{
		Payments:        []domain.PixPayment{p},
		ConsumeConsents: []string{consent.ID},
		ValidatedAt:     validated,
		ConsumedAt:      written,
	})
	require.NoError(t, err)

	stored, err := store.Consents().Get(ctx, consent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentStatusConsumed, stored.Status)
	require.True(t, stored.StatusUpdatedAt.Equal(written))
}
