package mongodb

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

func openMongoStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	uri := strings.TrimSpace(os.Getenv("PIX_MONGO_TEST_URI"))
	if uri == "" {
		t.Skip("PIX_MONGO_TEST_URI is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database := "pix_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	store, err := Open(ctx, uri, database)
	if err != nil {
		t.Skipf("mongodb is not available: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Database().Drop(ctx)
		_ = store.Close(ctx)
	})

	require.NoError(t, store.EnsureIndexes(ctx))
	// Повторный вызов не должен падать.
	require.NoError(t, store.EnsureIndexes(ctx))
	return store
}

// skipWithoutTransactions пропускает тест на standalone-сервере без replica set.
func skipWithoutTransactions(t *testing.T, err error) {
	t.Helper()

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 20 {
		t.Skipf("mongodb transactions are not supported: %v", err)
	}
	if err != nil && strings.Contains(err.Error(), "replica set") {
		t.Skipf("mongodb transactions are not supported: %v", err)
	}
}

func testConsent(t *testing.T, key string, now time.Time) domain.Consent {
	t.Helper()

	c := domain.NewConsent(domain.NewConsentID(), key, now, 0)
	c.Payment.Amount = domain.MustParseAmount("150.00")
	c.Payment.Currency = "BRL"
	require.NoError(t, c.Authorize(now))
	return c
}

func testPayment(consentID, key string, idx int, created time.Time) domain.PixPayment {
	return domain.PixPayment{
		ID:              domain.NewPaymentID(),
		IdempotencyKey:  key,
		BatchIndex:      idx,
		ConsentID:       consentID,
		Status:          domain.PaymentStatusSettled,
		Amount:          domain.MustParseAmount("150.00"),
		Currency:        "BRL",
		CreatedAt:       created,
		StatusUpdatedAt: created,
	}
}

func TestConsentRepository_Mongo(t *testing.T) {
	store := openMongoStoreForIntegrationTest(t)
	repo := store.Consents()
	ctx := context.Background()
	now := time.Now().UTC()

	consent := testConsent(t, "mongo-consent", now)
	require.NoError(t, repo.Create(ctx, consent))
	require.ErrorIs(t, repo.Create(ctx, testConsent(t, "mongo-consent", now)), domain.ErrConsentAlreadyExists)
	require.NoError(t, repo.Create(ctx, testConsent(t, "", now)))
	require.NoError(t, repo.Create(ctx, testConsent(t, "", now)))

	byKey, err := repo.GetByIdempotencyKey(ctx, "mongo-consent")
	require.NoError(t, err)
	require.Equal(t, consent.ID, byKey.ID)

	_, err = byKey.Reject(domain.ConsentRejection{Code: domain.ConsentRejectedByUser}, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, byKey))
	require.ErrorIs(t, repo.Save(ctx, byKey), domain.ErrConsentVersionConflict)

	saved, err := repo.Get(ctx, consent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentStatusRejected, saved.Status)
	require.Equal(t, int64(1), saved.Version)

	_, err = repo.Get(ctx, "urn:openfinance:missing")
	require.ErrorIs(t, err, domain.ErrConsentNotFound)
}

func TestPaymentRepository_MongoCreateBatch(t *testing.T) {
	store := openMongoStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	consent := testConsent(t, "batch-consent", now)
	require.NoError(t, store.Consents().Create(ctx, consent))

	p0 := testPayment(consent.ID, "batch-key", 0, now)
	p1 := testPayment(consent.ID, "batch-key", 1, now)
	msg, err := domain.NewOutboxMessage(domain.AggregateTypePayment, p0.ID, domain.EventPaymentCreated, map[string]string{"id": p0.ID}, now)
	require.NoError(t, err)

	err = store.Payments().CreateBatch(ctx, domain.PaymentBatch{
		Payments:        []domain.PixPayment{p1, p0},
		ConsumeConsents: []string{consent.ID},
		ConsumedAt:      now,
		Events:          []domain.OutboxMessage{msg},
		Timeline:        []domain.TimelineEvent{domain.NewStatusTimelineEvent(domain.ResourceTypePayment, p0.ID, "ACSC", "", now)},
	})
	skipWithoutTransactions(t, err)
	require.NoError(t, err)

	stored, err := store.Consents().Get(ctx, consent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentStatusConsumed, stored.Status)

	batch, err := store.Payments().ListByIdempotencyKey(ctx, "batch-key")
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, p0.ID, batch[0].ID)

	byConsent, err := store.Payments().ListByConsent(ctx, consent.ID, domain.Period{From: now, To: now.Add(time.Second)})
	require.NoError(t, err)
	require.Len(t, byConsent, 2)

	// Повторное потребление того же согласия откатывает всю запись.
	p2 := testPayment(consent.ID, "batch-key-2", 0, now)
	err = store.Payments().CreateBatch(ctx, domain.PaymentBatch{
		Payments:        []domain.PixPayment{p2},
		ConsumeConsents: []string{consent.ID},
		ConsumedAt:      now,
	})
	require.ErrorIs(t, err, domain.ErrConsentNotConsumable)
	_, err = store.Payments().Get(ctx, p2.ID)
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)

	got, err := store.Payments().Get(ctx, p0.ID)
	require.NoError(t, err)
	got.EndToEndID = "E12345678202605041030abcdefghijk"
	require.NoError(t, store.Payments().Save(ctx, got))
	require.ErrorIs(t, store.Payments().Save(ctx, got), domain.ErrPaymentVersionConflict)
}

func TestPaymentRepository_MongoConsentClaims(t *testing.T) {
	store := openMongoStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	consent := testConsent(t, "claim-consent", now)
	require.NoError(t, store.Consents().Create(ctx, consent))

	payments := store.Payments()
	require.NoError(t, payments.ClaimConsent(ctx, consent.ID, "key-a", now))
	require.NoError(t, payments.ClaimConsent(ctx, consent.ID, "key-a", now))
	require.ErrorIs(t, payments.ClaimConsent(ctx, consent.ID, "key-b", now), domain.ErrConsentAlreadyClaimed)

	require.NoError(t, payments.ReleaseConsentClaim(ctx, consent.ID, "key-b"))
	require.ErrorIs(t, payments.ClaimConsent(ctx, consent.ID, "key-b", now), domain.ErrConsentAlreadyClaimed)
	require.NoError(t, payments.ReleaseConsentClaim(ctx, consent.ID, "key-a"))
	require.NoError(t, payments.ClaimConsent(ctx, consent.ID, "key-b", now))

	require.NoError(t, payments.ClaimConsent(ctx, "urn:openfinance:remote", "key-a", now))
	require.ErrorIs(t, payments.ClaimConsent(ctx, "urn:openfinance:remote", "key-b", now), domain.ErrConsentAlreadyClaimed)
}

func TestIdempotencyRepository_Mongo(t *testing.T) {
	store := openMongoStoreForIntegrationTest(t)
	repo := store.Idempotency()
	ctx := context.Background()
	now := time.Now().UTC()

	lease := func(owner string, until time.Time) domain.IdempotencyLease {
		return domain.IdempotencyLease{Owner: owner, Until: until}
	}

	_, err := repo.Reserve(ctx, domain.IdempotencyScopePayment, "k", "h1", lease("a", now.Add(time.Minute)))
	require.NoError(t, err)
	existing, err := repo.Reserve(ctx, domain.IdempotencyScopePayment, "k", "h2", lease("b", now.Add(time.Minute)))
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, "h1", existing.RequestHash)
	require.Equal(t, "a", existing.LeaseOwner)

	_, err = repo.Takeover(ctx, domain.IdempotencyScopePayment, "k", now, lease("b", now.Add(time.Minute)))
	require.ErrorIs(t, err, domain.ErrIdempotencyLeaseLost)

	_, err = repo.Reserve(ctx, domain.IdempotencyScopePayment, "stale", "h", lease("a", now.Add(-time.Second)))
	require.NoError(t, err)
	_, err = repo.Takeover(ctx, domain.IdempotencyScopePayment, "stale", now, lease("b", now.Add(time.Minute)))
	require.NoError(t, err)

	require.ErrorIs(t, repo.Complete(ctx, domain.IdempotencyScopePayment, "k", "b", []string{"x"}, now.Add(time.Hour)), domain.ErrIdempotencyLeaseLost)
	require.NoError(t, repo.Complete(ctx, domain.IdempotencyScopePayment, "k", "a", []string{"p1"}, now.Add(time.Hour)))
	got, err := repo.Get(ctx, domain.IdempotencyScopePayment, "k")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, []string{"p1"}, got.ResourceIDs)

	// После перехвата освободить запись может только новый владелец.
	require.ErrorIs(t, repo.Release(ctx, domain.IdempotencyScopePayment, "stale", "a", now), domain.ErrIdempotencyLeaseLost)
	require.NoError(t, repo.Release(ctx, domain.IdempotencyScopePayment, "stale", "b", now))
	released, err := repo.Get(ctx, domain.IdempotencyScopePayment, "stale")
	require.NoError(t, err)
	require.Empty(t, released.LeaseOwner)

	for _, key := range []string{"old-1", "old-2"} {
		_, err := repo.Reserve(ctx, domain.IdempotencyScopeConsent, key, "h", lease("a", now.Add(-time.Hour)))
		require.NoError(t, err)
	}
	removed, err := repo.DeleteExpired(ctx, now, 1)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	// Оставшаяся старая запись и освобождённая "stale".
	removed, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	require.Equal(t, 2, removed)
}

func TestOutboxAndTimeline_Mongo(t *testing.T) {
	store := openMongoStoreForIntegrationTest(t)
	ctx := context.Background()
	outbox := store.Outbox()

	msg, err := outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeConsent,
		AggregateID:   "urn:openfinance:X",
		EventType:     domain.EventConsentConsumptionRequested,
		Payload:       []byte(`{"consent_id":"urn:openfinance:X"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)

	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	pending, err := outbox.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.JSONEq(t, `{"consent_id":"urn:openfinance:X"}`, string(pending[0].Payload))

	require.NoError(t, outbox.MarkSent(ctx, msg.ID))
	require.ErrorIs(t, outbox.MarkFailed(ctx, "missing"), domain.ErrOutboxPublish)
	stats, err = outbox.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	timeline := store.Timeline()
	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, timeline.Append(ctx, domain.NewStatusTimelineEvent(domain.ResourceTypeConsent, "c1", "AWAITING_AUTHORISATION", "", at)))
	require.NoError(t, timeline.Append(ctx, domain.NewStatusTimelineEvent(domain.ResourceTypeConsent, "c1", "AUTHORISED", "", at)))
	require.NoError(t, timeline.Append(ctx, domain.NewStatusTimelineEvent(domain.ResourceTypePayment, "c1", "RCVD", "", at)))

	events, err := timeline.List(ctx, domain.ResourceTypeConsent, "c1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "AWAITING_AUTHORISATION", events[0].Type)
	require.Equal(t, "AUTHORISED", events[1].Type)
}
