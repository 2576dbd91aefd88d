package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

type idempotencyDocument struct {
	ID          string    `bson:"_id"`
	Scope       string    `bson:"scope"`
	Key         string    `bson:"key"`
	RequestHash string    `bson:"request_hash"`
	Status      string    `bson:"status"`
	ResourceIDs []string  `bson:"resource_ids"`
	LeaseOwner  string    `bson:"lease_owner"`
	TTLAt       time.Time `bson:"ttl_at"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d idempotencyDocument) toDomain() domain.IdempotencyRecord {
	record := domain.IdempotencyRecord{
		Scope:       domain.IdempotencyScope(d.Scope),
		Key:         d.Key,
		RequestHash: d.RequestHash,
		Status:      domain.IdempotencyStatus(d.Status),
		LeaseOwner:  d.LeaseOwner,
		TTLAt:       d.TTLAt.UTC(),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if len(d.ResourceIDs) > 0 {
		record.ResourceIDs = append([]string(nil), d.ResourceIDs...)
	}
	return record
}

type idempotencyRepository struct {
	coll *mongo.Collection
}

// documentID — составной ключ: insert по _id и есть атомарный insert-if-absent.
func documentID(scope domain.IdempotencyScope, key string) string {
	return string(scope) + "|" + key
}

func (r *idempotencyRepository) Reserve(ctx context.Context, scope domain.IdempotencyScope, key, requestHash string, lease domain.IdempotencyLease) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)

	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if lease.Until.IsZero() {
		lease.Until = now.Add(30 * time.Second)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := idempotencyDocument{
		ID:          documentID(scope, key),
		Scope:       string(scope),
		Key:         key,
		RequestHash: requestHash,
		Status:      string(domain.IdempotencyStatusProcessing),
		ResourceIDs: []string{},
		LeaseOwner:  lease.Owner,
		TTLAt:       lease.Until,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, getErr := r.Get(ctx, scope, key)
			if getErr != nil {
				return domain.IdempotencyRecord{}, fmt.Errorf("%w: %v", domain.ErrIdempotencyKeyAlreadyExists, getErr)
			}
			return existing, domain.ErrIdempotencyKeyAlreadyExists
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *idempotencyRepository) Takeover(ctx context.Context, scope domain.IdempotencyScope, key string, now time.Time, lease domain.IdempotencyLease) (domain.IdempotencyRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc idempotencyDocument
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{
			"_id":    documentID(scope, key),
			"status": string(domain.IdempotencyStatusProcessing),
			"ttl_at": bson.M{"$lt": now},
		},
		bson.M{"$set": bson.M{"lease_owner": lease.Owner, "ttl_at": lease.Until, "updated_at": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toDomain(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.IdempotencyRecord{}, fmt.Errorf("takeover idempotency key: %w", err)
	}

	current, getErr := r.Get(ctx, scope, key)
	if getErr != nil {
		return domain.IdempotencyRecord{}, getErr
	}
	return current, domain.ErrIdempotencyLeaseLost
}

func (r *idempotencyRepository) Complete(ctx context.Context, scope domain.IdempotencyScope, key, owner string, resourceIDs []string, retainUntil time.Time) error {
	if resourceIDs == nil {
		resourceIDs = []string{}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		ownedBy(scope, key, owner),
		bson.M{"$set": bson.M{
			"status":       string(domain.IdempotencyStatusDone),
			"resource_ids": resourceIDs,
			"lease_owner":  "",
			"ttl_at":       retainUntil,
			"updated_at":   time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.ownershipError(ctx, scope, key)
	}
	return nil
}

// Release снимает аренду owner; запись остаётся, и повтор перехватывает её
// с исходным created_at.
func (r *idempotencyRepository) Release(ctx context.Context, scope domain.IdempotencyScope, key, owner string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		ownedBy(scope, key, owner),
		bson.M{"$set": bson.M{"lease_owner": "", "ttl_at": at, "updated_at": at}},
	)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	if res.MatchedCount == 0 {
		if err := r.ownershipError(ctx, scope, key); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			return err
		}
	}
	return nil
}

func ownedBy(scope domain.IdempotencyScope, key, owner string) bson.M {
	return bson.M{
		"_id":         documentID(scope, key),
		"status":      string(domain.IdempotencyStatusProcessing),
		"lease_owner": owner,
	}
}

func (r *idempotencyRepository) ownershipError(ctx context.Context, scope domain.IdempotencyScope, key string) error {
	if _, err := r.Get(ctx, scope, key); err != nil {
		return err
	}
	return domain.ErrIdempotencyLeaseLost
}

func (r *idempotencyRepository) Get(ctx context.Context, scope domain.IdempotencyScope, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc idempotencyDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": documentID(scope, key)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	record := doc.toDomain()
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", doc.Status, key)
	}
	return record, nil
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"ttl_at": bson.M{"$lte": before}}
	if limit > 0 {
		cursor, err := r.coll.Find(ctx, filter, options.Find().
			SetSort(bson.D{{Key: "ttl_at", Value: 1}}).
			SetLimit(int64(limit)).
			SetProjection(bson.M{"_id": 1}))
		if err != nil {
			return 0, fmt.Errorf("find expired idempotency records: %w", err)
		}
		var ids []struct {
			ID string `bson:"_id"`
		}
		if err := cursor.All(ctx, &ids); err != nil {
			return 0, fmt.Errorf("decode expired idempotency records: %w", err)
		}
		if len(ids) == 0 {
			return 0, nil
		}
		keys := make([]string, 0, len(ids))
		for _, id := range ids {
			keys = append(keys, id.ID)
		}
		filter = bson.M{"_id": bson.M{"$in": keys}, "ttl_at": bson.M{"$lte": before}}
	}

	res, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return int(res.DeletedCount), nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
