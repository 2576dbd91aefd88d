package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

type paymentRepository struct {
	store *Store
	coll  *mongo.Collection
}

// CreateBatch выполняет запись в многодокументной транзакции; WithTransaction
// повторяет её при TransientTransactionError.
func (r *paymentRepository) CreateBatch(ctx context.Context, batch domain.PaymentBatch) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	session, err := r.store.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongodb session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, r.writeBatch(sc, batch)
	})
	return err
}

func (r *paymentRepository) writeBatch(ctx context.Context, batch domain.PaymentBatch) error {
	consents := r.store.db.Collection(collectionConsents)
	for _, id := range batch.ConsumeConsents {
		consent, err := findConsent(ctx, consents, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("consume %s: %w", id, err)
		}
		if err := consent.ConsumeValidated(batch.ValidatedAt, batch.ConsumedAt); err != nil {
			return err
		}
		if err := saveConsent(ctx, consents, consent); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if len(batch.Payments) > 0 {
		docs := make([]any, 0, len(batch.Payments))
		for _, p := range batch.Payments {
			doc, err := newPaymentDocument(p, now)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		if _, err := r.coll.InsertMany(ctx, docs); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: %v", domain.ErrPaymentAlreadyExists, err)
			}
			return fmt.Errorf("insert payments: %w", err)
		}
	}

	outbox := r.store.db.Collection(collectionOutbox)
	for _, msg := range batch.Events {
		if _, err := insertOutboxMessage(ctx, outbox, msg); err != nil {
			return err
		}
	}
	timeline := r.store.db.Collection(collectionTimeline)
	for _, evt := range batch.Timeline {
		if err := insertTimelineEvent(ctx, timeline, evt); err != nil {
			return err
		}
	}
	return nil
}

type claimDocument struct {
	ConsentID      string    `bson:"_id"`
	IdempotencyKey string    `bson:"idempotency_key"`
	ClaimedAt      time.Time `bson:"claimed_at"`
}

// ClaimConsent вставляет документ с _id согласия: дубликат ключа означает, что
// согласие уже захвачено, и остаётся сравнить владельца.
func (r *paymentRepository) ClaimConsent(ctx context.Context, consentID, key string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	claims := r.store.db.Collection(collectionClaims)
	_, err := claims.InsertOne(ctx, claimDocument{ConsentID: consentID, IdempotencyKey: key, ClaimedAt: at})
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("claim consent: %w", err)
	}

	var current claimDocument
	if err := claims.FindOne(ctx, bson.M{"_id": consentID}).Decode(&current); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return r.ClaimConsent(ctx, consentID, key, at)
		}
		return fmt.Errorf("get consent claim: %w", err)
	}
	if current.IdempotencyKey != key {
		return fmt.Errorf("%w: consent %s", domain.ErrConsentAlreadyClaimed, consentID)
	}
	return nil
}

func (r *paymentRepository) ReleaseConsentClaim(ctx context.Context, consentID, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.store.db.Collection(collectionClaims).DeleteOne(ctx, bson.M{
		"_id":             consentID,
		"idempotency_key": key,
	}); err != nil {
		return fmt.Errorf("release consent claim: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.PixPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc paymentDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.PixPayment{}, domain.ErrPaymentNotFound
		}
		return domain.PixPayment{}, fmt.Errorf("get payment: %w", err)
	}
	return doc.toDomain()
}

func (r *paymentRepository) ListByIdempotencyKey(ctx context.Context, key string) ([]domain.PixPayment, error) {
	if key == "" {
		return []domain.PixPayment{}, nil
	}
	return r.find(ctx,
		bson.M{"idempotency_key": key},
		options.Find().SetSort(bson.D{{Key: "batch_index", Value: 1}}),
	)
}

func (r *paymentRepository) ListByConsent(ctx context.Context, consentID string, period domain.Period) ([]domain.PixPayment, error) {
	filter := bson.M{"consent_id": consentID}
	created := bson.M{}
	if !period.From.IsZero() {
		created["$gte"] = period.From
	}
	if !period.To.IsZero() {
		created["$lt"] = period.To
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	return r.find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "batch_index", Value: 1}}),
	)
}

func (r *paymentRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.PixPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []paymentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}

	result := make([]domain.PixPayment, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (r *paymentRepository) Save(ctx context.Context, payment domain.PixPayment) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	expected := payment.Version
	payment.Version++
	body, err := encodeBody(payment)
	if err != nil {
		return fmt.Errorf("encode payment %s: %w", payment.ID, err)
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": payment.ID, "version": expected},
		bson.M{
			"$set": bson.M{
				"status":        string(payment.Status),
				"end_to_end_id": payment.EndToEndID,
				"body":          body,
				"updated_at":    time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": payment.ID})
	if err != nil {
		return fmt.Errorf("check payment existence: %w", err)
	}
	if count == 0 {
		return domain.ErrPaymentNotFound
	}
	return domain.ErrPaymentVersionConflict
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
