// Package mongodb хранит согласия, платежи, ключи идемпотентности, outbox и
// историю статусов в MongoDB. Атомарный CreateBatch требует replica set
// (многодокументные транзакции).
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

const (
	defaultConnTimeout = 5 * time.Second
	opTimeout          = 5 * time.Second

	collectionConsents    = "consents"
	collectionPayments    = "payments"
	collectionIdempotency = "idempotency_keys"
	collectionOutbox      = "outbox_messages"
	collectionTimeline    = "timeline_events"
	collectionClaims      = "consent_claims"
)

var errStoreNotInitialized = errors.New("mongodb store is not initialized")

// Store держит клиента и базу; репозитории используют общие коллекции.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open подключается к MongoDB и проверяет доступность primary.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		return nil, errors.New("mongodb database name is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(defaultConnTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Database возвращает базу для низкоуровневого доступа (тесты, миграции).
func (s *Store) Database() *mongo.Database { return s.db }

// Ping проверяет доступность primary.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errStoreNotInitialized
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

// Close отключает клиента.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// EnsureIndexes создаёт уникальные и поисковые индексы; повторный вызов безопасен.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	stringKey := func(field string) bson.M {
		return bson.M{field: bson.M{"$type": "string"}}
	}

	indexes := map[string][]mongo.IndexModel{
		collectionConsents: {
			{
				Keys: bson.D{{Key: "idempotency_key", Value: 1}},
				Options: options.Index().
					SetName("consents_idempotency_key_uidx").
					SetUnique(true).
					SetPartialFilterExpression(stringKey("idempotency_key")),
			},
		},
		collectionPayments: {
			{
				Keys: bson.D{{Key: "idempotency_key", Value: 1}, {Key: "batch_index", Value: 1}},
				Options: options.Index().
					SetName("payments_idempotency_batch_uidx").
					SetUnique(true).
					SetPartialFilterExpression(stringKey("idempotency_key")),
			},
			{
				Keys:    bson.D{{Key: "consent_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "batch_index", Value: 1}},
				Options: options.Index().SetName("payments_consent_created_idx"),
			},
		},
		collectionIdempotency: {
			{
				Keys:    bson.D{{Key: "ttl_at", Value: 1}},
				Options: options.Index().SetName("idempotency_keys_ttl_idx"),
			},
		},
		collectionOutbox: {
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
				Options: options.Index().SetName("outbox_messages_pending_idx"),
			},
		},
		collectionTimeline: {
			{
				Keys:    bson.D{{Key: "resource_type", Value: 1}, {Key: "resource_id", Value: 1}, {Key: "occurred", Value: 1}},
				Options: options.Index().SetName("timeline_events_resource_idx"),
			},
		},
		collectionClaims: {
			{
				Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetName("consent_claims_key_idx"),
			},
		},
	}

	for collection, models := range indexes {
		indexCtx, cancel := context.WithTimeout(ctx, opTimeout)
		names, err := s.db.Collection(collection).Indexes().CreateMany(indexCtx, models)
		cancel()
		if err != nil {
			return fmt.Errorf("create indexes for %s: %w", collection, err)
		}
		log.WithFields(log.Fields{"collection": collection, "indexes": names}).Debug("mongodb indexes ensured")
	}
	return nil
}

// Consents возвращает репозиторий согласий.
func (s *Store) Consents() domain.ConsentRepository {
	return &consentRepository{coll: s.db.Collection(collectionConsents)}
}

// Payments возвращает репозиторий платежей.
func (s *Store) Payments() domain.PaymentRepository {
	return &paymentRepository{store: s, coll: s.db.Collection(collectionPayments)}
}

// Outbox возвращает transactional outbox.
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepository{coll: s.db.Collection(collectionOutbox)}
}

// Timeline возвращает хранилище истории статусов.
func (s *Store) Timeline() domain.TimelineRepository {
	return &timelineRepository{coll: s.db.Collection(collectionTimeline)}
}

// Idempotency возвращает хранилище ключей идемпотентности.
func (s *Store) Idempotency() domain.IdempotencyRepository {
	return &idempotencyRepository{coll: s.db.Collection(collectionIdempotency)}
}

// optionalKey не пишет пустой ключ, чтобы частичный уникальный индекс его не учитывал.
func optionalKey(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}
