package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

type timelineDocument struct {
	ID           primitive.ObjectID `bson:"_id"`
	ResourceType string             `bson:"resource_type"`
	ResourceID   string             `bson:"resource_id"`
	Type         string             `bson:"type"`
	Reason       string             `bson:"reason"`
	Occurred     time.Time          `bson:"occurred"`
}

type timelineRepository struct {
	coll *mongo.Collection
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return insertTimelineEvent(ctx, r.coll, event)
}

func insertTimelineEvent(ctx context.Context, coll *mongo.Collection, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	if _, err := coll.InsertOne(ctx, timelineDocument{
		ID:           primitive.NewObjectID(),
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		Type:         event.Type,
		Reason:       event.Reason,
		Occurred:     event.Occurred,
	}); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

// List возвращает события по времени; ObjectID упорядочивает события одной миллисекунды.
func (r *timelineRepository) List(ctx context.Context, resourceType, resourceID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.coll.Find(ctx,
		bson.M{"resource_type": resourceType, "resource_id": resourceID},
		options.Find().SetSort(bson.D{{Key: "occurred", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []timelineDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode timeline events: %w", err)
	}

	events := make([]domain.TimelineEvent, 0, len(docs))
	for _, doc := range docs {
		events = append(events, domain.TimelineEvent{
			ResourceType: doc.ResourceType,
			ResourceID:   doc.ResourceID,
			Type:         doc.Type,
			Reason:       doc.Reason,
			Occurred:     doc.Occurred.UTC(),
		})
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
