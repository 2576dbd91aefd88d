package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

// paymentRepositoryInMemory — in-memory реализация PaymentRepository.
type paymentRepositoryInMemory struct {
	store *Store
}

// NewPaymentRepository возвращает репозиторий на отдельном хранилище (для тестов).
func NewPaymentRepository() domain.PaymentRepository {
	return NewStore().Payments()
}

// CreateBatch проверяет все условия под общей блокировкой и только затем применяет изменения,
// поэтому при любой ошибке хранилище остаётся нетронутым.
func (r *paymentRepositoryInMemory) CreateBatch(_ context.Context, batch domain.PaymentBatch) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range batch.Payments {
		if _, exists := s.payments[p.ID]; exists {
			return fmt.Errorf("%w: id %s", domain.ErrPaymentAlreadyExists, p.ID)
		}
		if p.IdempotencyKey != "" && len(s.paymentsByKey[p.IdempotencyKey]) > 0 {
			return fmt.Errorf("%w: idempotency key %s", domain.ErrPaymentAlreadyExists, p.IdempotencyKey)
		}
	}

	consumed := make([]domain.Consent, 0, len(batch.ConsumeConsents))
	for _, id := range batch.ConsumeConsents {
		current, ok := s.consents[id]
		if !ok {
			return fmt.Errorf("consume %s: %w", id, domain.ErrConsentNotFound)
		}
		updated := cloneConsent(current)
		if err := updated.ConsumeValidated(batch.ValidatedAt, batch.ConsumedAt); err != nil {
			return err
		}
		updated.Version++
		consumed = append(consumed, updated)
	}

	for _, p := range batch.Payments {
		s.payments[p.ID] = clonePayment(p)
		if p.IdempotencyKey != "" {
			s.paymentsByKey[p.IdempotencyKey] = append(s.paymentsByKey[p.IdempotencyKey], p.ID)
		}
	}
	for _, c := range consumed {
		s.consents[c.ID] = c
	}
	for _, msg := range batch.Events {
		s.enqueueLocked(msg)
	}
	for _, evt := range batch.Timeline {
		s.appendTimelineLocked(evt)
	}
	return nil
}

// Get возвращает платёж или ErrPaymentNotFound.
func (r *paymentRepositoryInMemory) Get(_ context.Context, id string) (domain.PixPayment, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return domain.PixPayment{}, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

// ListByIdempotencyKey возвращает платежи пакета в исходном порядке.
func (r *paymentRepositoryInMemory) ListByIdempotencyKey(_ context.Context, key string) ([]domain.PixPayment, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.paymentsByKey[key]
	result := make([]domain.PixPayment, 0, len(ids))
	for _, id := range ids {
		result = append(result, clonePayment(s.payments[id]))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BatchIndex < result[j].BatchIndex })
	return result, nil
}

// ListByConsent возвращает платежи согласия за период, старые первыми.
func (r *paymentRepositoryInMemory) ListByConsent(_ context.Context, consentID string, period domain.Period) ([]domain.PixPayment, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PixPayment, 0)
	for _, p := range s.payments {
		if p.ConsentID != consentID || !period.Contains(p.CreatedAt) {
			continue
		}
		result = append(result, clonePayment(p))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].BatchIndex < result[j].BatchIndex
	})
	return result, nil
}

// Save перезаписывает платёж, проверяя версию (optimistic locking).
func (r *paymentRepositoryInMemory) Save(_ context.Context, payment domain.PixPayment) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.payments[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if current.Version != payment.Version {
		return domain.ErrPaymentVersionConflict
	}
	payment.Version++
	s.payments[payment.ID] = clonePayment(payment)
	return nil
}

// ClaimConsent закрепляет согласие за ключом пакета. Согласие может жить в
// другом экземпляре, поэтому его наличие здесь не проверяется.
func (r *paymentRepositoryInMemory) ClaimConsent(_ context.Context, consentID, key string, _ time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, claimed := s.claims[consentID]; claimed && owner != key {
		return fmt.Errorf("%w: consent %s", domain.ErrConsentAlreadyClaimed, consentID)
	}
	s.claims[consentID] = key
	return nil
}

func (r *paymentRepositoryInMemory) ReleaseConsentClaim(_ context.Context, consentID, key string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claims[consentID] == key {
		delete(s.claims, consentID)
	}
	return nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
