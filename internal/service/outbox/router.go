package outbox

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

// Router направляет событие в publisher по его типу; остальные события уходят в fallback.
type Router struct {
	routes   map[string]domain.OutboxPublisher
	fallback domain.OutboxPublisher
}

// NewRouter создаёт маршрутизатор. fallback может быть nil: тогда события без маршрута
// считаются доставленными.
func NewRouter(fallback domain.OutboxPublisher) *Router {
	return &Router{routes: make(map[string]domain.OutboxPublisher), fallback: fallback}
}

// Route добавляет маршрут для типа события.
func (r *Router) Route(eventType string, publisher domain.OutboxPublisher) *Router {
	r.routes[eventType] = publisher
	return r
}

// Publish передаёт событие по маршруту.
func (r *Router) Publish(ctx context.Context, event domain.OutboxMessage) error {
	publisher, ok := r.routes[event.EventType]
	if !ok {
		publisher = r.fallback
	}
	if publisher == nil {
		return nil
	}
	if err := publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("route %s: %w", event.EventType, err)
	}
	return nil
}

var _ domain.OutboxPublisher = (*Router)(nil)
