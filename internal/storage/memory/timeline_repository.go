package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

// timelineRepositoryInMemory хранит события в памяти (для разработки/тестов).
type timelineRepositoryInMemory struct {
	store *Store
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return NewStore().Timeline()
}

// Append добавляет событие в хранилище.
func (r *timelineRepositoryInMemory) Append(_ context.Context, event domain.TimelineEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.appendTimelineLocked(event)
	return nil
}

func (s *Store) appendTimelineLocked(event domain.TimelineEvent) {
	key := timelineKey(event.ResourceType, event.ResourceID)
	events := append(s.timeline[key], event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	s.timeline[key] = events
}

// List возвращает события ресурса в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(_ context.Context, resourceType, resourceID string) ([]domain.TimelineEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	events := r.store.timeline[timelineKey(resourceType, resourceID)]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

func timelineKey(resourceType, resourceID string) string {
	return resourceType + "/" + resourceID
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
