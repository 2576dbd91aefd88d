package memory

import (
	"context"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

// consentRepositoryInMemory — in-memory реализация ConsentRepository.
type consentRepositoryInMemory struct {
	store *Store
}

// NewConsentRepository возвращает репозиторий на отдельном хранилище (для тестов).
func NewConsentRepository() domain.ConsentRepository {
	return NewStore().Consents()
}

// Create сохраняет новое согласие, если id и idempotency-key ещё не заняты.
func (r *consentRepositoryInMemory) Create(_ context.Context, consent domain.Consent) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.consents[consent.ID]; exists {
		return domain.ErrConsentAlreadyExists
	}
	if consent.IdempotencyKey != "" {
		if _, exists := s.consentByKey[consent.IdempotencyKey]; exists {
			return domain.ErrConsentAlreadyExists
		}
		s.consentByKey[consent.IdempotencyKey] = consent.ID
	}
	s.consents[consent.ID] = cloneConsent(consent)
	return nil
}

// Get возвращает согласие или ErrConsentNotFound.
func (r *consentRepositoryInMemory) Get(_ context.Context, id string) (domain.Consent, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	consent, ok := s.consents[id]
	if !ok {
		return domain.Consent{}, domain.ErrConsentNotFound
	}
	return cloneConsent(consent), nil
}

// GetByIdempotencyKey ищет согласие по ключу создания.
func (r *consentRepositoryInMemory) GetByIdempotencyKey(ctx context.Context, key string) (domain.Consent, error) {
	r.store.mu.RLock()
	id, ok := r.store.consentByKey[key]
	r.store.mu.RUnlock()
	if !ok {
		return domain.Consent{}, domain.ErrConsentNotFound
	}
	return r.Get(ctx, id)
}

// Save перезаписывает согласие, проверяя версию (optimistic locking).
func (r *consentRepositoryInMemory) Save(_ context.Context, consent domain.Consent) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveConsentLocked(consent)
}

func (s *Store) saveConsentLocked(consent domain.Consent) error {
	current, ok := s.consents[consent.ID]
	if !ok {
		return domain.ErrConsentNotFound
	}
	if current.Version != consent.Version {
		return domain.ErrConsentVersionConflict
	}
	consent.Version++
	s.consents[consent.ID] = cloneConsent(consent)
	return nil
}

var _ domain.ConsentRepository = (*consentRepositoryInMemory)(nil)
