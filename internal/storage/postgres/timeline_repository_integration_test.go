package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)
	ctx := context.Background()

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	consentID := "urn:openfinance:TIMELINE0001"

	if err := repo.Append(ctx, domain.TimelineEvent{
		ResourceType: domain.ResourceTypeConsent,
		ResourceID:   consentID,
		Type:         string(domain.ConsentStatusAwaitingAuthorisation),
		Occurred:     createdAt,
	}); err != nil {
		t.Fatalf("append first event: %v", err)
	}

	// Нулевое время заполняется текущим.
	if err := repo.Append(ctx, domain.TimelineEvent{
		ResourceType: domain.ResourceTypeConsent,
		ResourceID:   consentID,
		Type:         string(domain.ConsentStatusAuthorised),
	}); err != nil {
		t.Fatalf("append event with zero occurred: %v", err)
	}

	// Тот же id у платежа не попадает в историю согласия.
	if err := repo.Append(ctx, domain.TimelineEvent{
		ResourceType: domain.ResourceTypePayment,
		ResourceID:   consentID,
		Type:         string(domain.PaymentStatusReceived),
		Occurred:     createdAt,
	}); err != nil {
		t.Fatalf("append payment event: %v", err)
	}

	events, err := repo.List(ctx, domain.ResourceTypeConsent, consentID)
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(events))
	}
	if events[0].Type != string(domain.ConsentStatusAwaitingAuthorisation) || events[1].Type != string(domain.ConsentStatusAuthorised) {
		t.Fatalf("events should be sorted by occurred asc: %+v", events)
	}
	if !events[0].Occurred.Equal(createdAt) {
		t.Fatalf("occurred mismatch: %s vs %s", events[0].Occurred, createdAt)
	}
}

func TestTimelineRepository_PostgresUnknownResource(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	events, err := repo.List(context.Background(), domain.ResourceTypePayment, "missing-payment")
	if err != nil {
		t.Fatalf("list for unknown resource should not fail: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}
