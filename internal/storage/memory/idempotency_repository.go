package memory

import (
	"context"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

type idempotencyRepositoryInMemory struct {
	store *Store
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return NewStore().Idempotency()
}

func (r *idempotencyRepositoryInMemory) Reserve(_ context.Context, scope domain.IdempotencyScope, key, requestHash string, lease domain.IdempotencyLease) (domain.IdempotencyRecord, error) {
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

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.idempotency[idempotencyKey(scope, key)]; ok {
		return cloneIdempotencyRecord(existing), domain.ErrIdempotencyKeyAlreadyExists
	}

	record := domain.IdempotencyRecord{
		Scope:       scope,
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		LeaseOwner:  lease.Owner,
		TTLAt:       lease.Until,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.idempotency[idempotencyKey(scope, key)] = record
	return cloneIdempotencyRecord(record), nil
}

func (r *idempotencyRepositoryInMemory) Takeover(_ context.Context, scope domain.IdempotencyScope, key string, now time.Time, lease domain.IdempotencyLease) (domain.IdempotencyRecord, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.idempotency[idempotencyKey(scope, key)]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if !record.LeaseExpired(now) {
		return cloneIdempotencyRecord(record), domain.ErrIdempotencyLeaseLost
	}
	record.LeaseOwner = lease.Owner
	record.TTLAt = lease.Until
	record.UpdatedAt = now
	s.idempotency[idempotencyKey(scope, key)] = record
	return cloneIdempotencyRecord(record), nil
}

func (r *idempotencyRepositoryInMemory) Complete(_ context.Context, scope domain.IdempotencyScope, key, owner string, resourceIDs []string, retainUntil time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.idempotency[idempotencyKey(scope, key)]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	if record.Status != domain.IdempotencyStatusProcessing || record.LeaseOwner != owner {
		return domain.ErrIdempotencyLeaseLost
	}
	record.Status = domain.IdempotencyStatusDone
	record.ResourceIDs = append([]string(nil), resourceIDs...)
	record.LeaseOwner = ""
	record.TTLAt = retainUntil
	record.UpdatedAt = time.Now().UTC()
	s.idempotency[idempotencyKey(scope, key)] = record
	return nil
}

func (r *idempotencyRepositoryInMemory) Release(_ context.Context, scope domain.IdempotencyScope, key, owner string, at time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.idempotency[idempotencyKey(scope, key)]
	if !ok {
		return nil
	}
	if record.Status != domain.IdempotencyStatusProcessing || record.LeaseOwner != owner {
		return domain.ErrIdempotencyLeaseLost
	}
	record.LeaseOwner = ""
	record.TTLAt = at
	record.UpdatedAt = at
	s.idempotency[idempotencyKey(scope, key)] = record
	return nil
}

func (r *idempotencyRepositoryInMemory) Get(_ context.Context, scope domain.IdempotencyScope, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.idempotency[idempotencyKey(scope, key)]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return cloneIdempotencyRecord(record), nil
}

// DeleteExpired удаляет записи с истёкшим TTL; брошенные processing-записи тоже уходят,
// повтор запроса найдёт ресурсы через поиск по ключу.
func (r *idempotencyRepositoryInMemory) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, record := range s.idempotency {
		if record.TTLAt.After(before) {
			continue
		}

		delete(s.idempotency, key)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}

	return removed, nil
}

func idempotencyKey(scope domain.IdempotencyScope, key string) string {
	return string(scope) + "|" + key
}

func cloneIdempotencyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.ResourceIDs = append([]string(nil), src.ResourceIDs...)
	return dst
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
