package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/storage/memory"
)

func TestConsentRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConsentRepository()
	consent := newConsent(time.Now().UTC())

	if err := repo.Create(ctx, consent); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, consent.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != consent.ID {
		t.Fatalf("expected id %s, got %s", consent.ID, stored.ID)
	}

	byKey, err := repo.GetByIdempotencyKey(ctx, consent.IdempotencyKey)
	if err != nil {
		t.Fatalf("get by key failed: %v", err)
	}
	if byKey.ID != consent.ID {
		t.Fatalf("expected id %s by key, got %s", consent.ID, byKey.ID)
	}

	if _, err := repo.Get(ctx, "urn:openfinance:missing"); !errors.Is(err, domain.ErrConsentNotFound) {
		t.Fatalf("expected ErrConsentNotFound, got %v", err)
	}
}

func TestConsentRepository_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConsentRepository()
	now := time.Now().UTC()

	if err := repo.Create(ctx, newConsent(now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, newConsent(now)); !errors.Is(err, domain.ErrConsentAlreadyExists) {
		t.Fatalf("expected ErrConsentAlreadyExists, got %v", err)
	}
}

func TestConsentRepository_SaveAndIsolation(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConsentRepository()
	now := time.Now().UTC()
	consent := newConsent(now)
	if err := repo.Create(ctx, consent); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, _ := repo.Get(ctx, consent.ID)
	if _, err := stored.Reject(domain.ConsentRejection{Code: domain.ConsentRejectedByUser}, now); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if err := repo.Save(ctx, stored); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	updated, _ := repo.Get(ctx, consent.ID)
	if updated.Version != 1 {
		t.Fatalf("expected version 1, got %d", updated.Version)
	}
	updated.Rejection.Code = "MUTATED"
	again, _ := repo.Get(ctx, consent.ID)
	if again.Rejection.Code != domain.ConsentRejectedByUser {
		t.Fatalf("stored consent must not share pointers with callers")
	}

	if err := repo.Save(ctx, stored); !errors.Is(err, domain.ErrConsentVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}
