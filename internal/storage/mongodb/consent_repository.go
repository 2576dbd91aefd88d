package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

type consentRepository struct {
	coll *mongo.Collection
}

func (r *consentRepository) Create(ctx context.Context, consent domain.Consent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc, err := newConsentDocument(consent, time.Now().UTC())
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConsentAlreadyExists
		}
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (r *consentRepository) Get(ctx context.Context, id string) (domain.Consent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return findConsent(ctx, r.coll, bson.M{"_id": id})
}

func (r *consentRepository) GetByIdempotencyKey(ctx context.Context, key string) (domain.Consent, error) {
	if key == "" {
		return domain.Consent{}, domain.ErrConsentNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return findConsent(ctx, r.coll, bson.M{"idempotency_key": key})
}

func (r *consentRepository) Save(ctx context.Context, consent domain.Consent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return saveConsent(ctx, r.coll, consent)
}

// saveConsent обновляет документ при совпадении версии (optimistic locking).
func saveConsent(ctx context.Context, coll *mongo.Collection, consent domain.Consent) error {
	expected := consent.Version
	consent.Version++
	body, err := encodeBody(consent)
	if err != nil {
		return fmt.Errorf("encode consent %s: %w", consent.ID, err)
	}

	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": consent.ID, "version": expected},
		bson.M{
			"$set": bson.M{
				"status":     string(consent.Status),
				"expires_at": consent.ExpiresAt,
				"body":       body,
				"updated_at": time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	count, err := coll.CountDocuments(ctx, bson.M{"_id": consent.ID})
	if err != nil {
		return fmt.Errorf("check consent existence: %w", err)
	}
	if count == 0 {
		return domain.ErrConsentNotFound
	}
	return domain.ErrConsentVersionConflict
}

func findConsent(ctx context.Context, coll *mongo.Collection, filter bson.M) (domain.Consent, error) {
	var doc consentDocument
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Consent{}, domain.ErrConsentNotFound
		}
		return domain.Consent{}, fmt.Errorf("get consent: %w", err)
	}
	return doc.toDomain()
}

var _ domain.ConsentRepository = (*consentRepository)(nil)
