package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

// Store — общее in-memory состояние всех репозиториев.
// Одна блокировка на всё хранилище делает PaymentRepository.CreateBatch атомарным.
type Store struct {
	mu sync.RWMutex

	consents      map[string]domain.Consent
	consentByKey  map[string]string
	payments      map[string]domain.PixPayment
	paymentsByKey map[string][]string
	claims        map[string]string
	outbox        map[string]*outboxRecord
	timeline      map[string][]domain.TimelineEvent
	idempotency   map[string]domain.IdempotencyRecord
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		consents:      make(map[string]domain.Consent),
		consentByKey:  make(map[string]string),
		payments:      make(map[string]domain.PixPayment),
		paymentsByKey: make(map[string][]string),
		claims:        make(map[string]string),
		outbox:        make(map[string]*outboxRecord),
		timeline:      make(map[string][]domain.TimelineEvent),
		idempotency:   make(map[string]domain.IdempotencyRecord),
	}
}

// Consents возвращает репозиторий согласий поверх хранилища.
func (s *Store) Consents() domain.ConsentRepository { return &consentRepositoryInMemory{store: s} }

// Payments возвращает репозиторий платежей поверх хранилища.
func (s *Store) Payments() domain.PaymentRepository { return &paymentRepositoryInMemory{store: s} }

// Outbox возвращает outbox поверх хранилища.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{store: s} }

// Timeline возвращает хранилище событий жизненного цикла.
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepositoryInMemory{store: s} }

// Idempotency возвращает хранилище ключей идемпотентности.
func (s *Store) Idempotency() domain.IdempotencyRepository {
	return &idempotencyRepositoryInMemory{store: s}
}

func cloneConsent(src domain.Consent) domain.Consent {
	dst := src
	if src.BusinessEntity != nil {
		v := *src.BusinessEntity
		dst.BusinessEntity = &v
	}
	if src.DebtorAccount != nil {
		v := *src.DebtorAccount
		dst.DebtorAccount = &v
	}
	if src.Rejection != nil {
		v := *src.Rejection
		dst.Rejection = &v
	}
	return dst
}

func clonePayment(src domain.PixPayment) domain.PixPayment {
	dst := src
	if src.DebtorAccount != nil {
		v := *src.DebtorAccount
		dst.DebtorAccount = &v
	}
	if src.Rejection != nil {
		v := *src.Rejection
		dst.Rejection = &v
	}
	if src.Cancellation != nil {
		v := *src.Cancellation
		dst.Cancellation = &v
	}
	if src.Reconciliation != nil {
		v := *src.Reconciliation
		dst.Reconciliation = &v
	}
	return dst
}
