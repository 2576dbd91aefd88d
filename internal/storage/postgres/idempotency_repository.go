package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return store.Idempotency()
}

// Reserve вставляет processing-запись через ON CONFLICT DO NOTHING; при занятом
// ключе возвращает существующую запись.
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

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (
			scope, key, request_hash, status, resource_ids, lease_owner, ttl_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,'[]'::jsonb,$5,$6,$7,$8)
		ON CONFLICT (scope, key) DO NOTHING
	`,
		string(scope),
		key,
		requestHash,
		string(domain.IdempotencyStatusProcessing),
		lease.Owner,
		lease.Until,
		now,
		now,
	)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("reserve idempotency key: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		existing, getErr := r.Get(ctx, scope, key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, fmt.Errorf("%w: %v", domain.ErrIdempotencyKeyAlreadyExists, getErr)
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	return domain.IdempotencyRecord{
		Scope:       scope,
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		LeaseOwner:  lease.Owner,
		TTLAt:       lease.Until,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Takeover передаёт аренду новому владельцу только если она истекла к моменту now.
func (r *idempotencyRepository) Takeover(ctx context.Context, scope domain.IdempotencyScope, key string, now time.Time, lease domain.IdempotencyLease) (domain.IdempotencyRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET lease_owner = $6,
		    ttl_at = $1,
		    updated_at = $2
		WHERE scope = $3 AND key = $4 AND status = $5 AND ttl_at < $2
	`,
		lease.Until,
		now,
		string(scope),
		key,
		string(domain.IdempotencyStatusProcessing),
		lease.Owner,
	)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("takeover idempotency key: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency rows affected: %w", err)
	}

	record, err := r.Get(ctx, scope, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if affected == 0 {
		return record, domain.ErrIdempotencyLeaseLost
	}
	return record, nil
}

// Complete фиксирует результат, если аренда всё ещё принадлежит owner.
func (r *idempotencyRepository) Complete(ctx context.Context, scope domain.IdempotencyScope, key, owner string, resourceIDs []string, retainUntil time.Time) error {
	if resourceIDs == nil {
		resourceIDs = []string{}
	}
	ids, err := json.Marshal(resourceIDs)
	if err != nil {
		return fmt.Errorf("encode resource ids: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status = $1,
		    resource_ids = $2,
		    lease_owner = '',
		    ttl_at = $3,
		    updated_at = $4
		WHERE scope = $5 AND key = $6 AND status = $7 AND lease_owner = $8
	`,
		string(domain.IdempotencyStatusDone),
		ids,
		retainUntil,
		time.Now().UTC(),
		string(scope),
		key,
		string(domain.IdempotencyStatusProcessing),
		owner,
	)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		return r.ownershipError(ctx, scope, key)
	}
	return nil
}

// Release снимает аренду owner, оставляя запись для перехвата повтором.
// Завершённые записи не трогает.
func (r *idempotencyRepository) Release(ctx context.Context, scope domain.IdempotencyScope, key, owner string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET lease_owner = '',
		    ttl_at = $1,
		    updated_at = $1
		WHERE scope = $2 AND key = $3 AND status = $4 AND lease_owner = $5
	`, at, string(scope), key, string(domain.IdempotencyStatusProcessing), owner)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		if err := r.ownershipError(ctx, scope, key); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			return err
		}
	}
	return nil
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

	var (
		record    domain.IdempotencyRecord
		scopeRaw  string
		statusRaw string
		idsRaw    []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT scope, key, request_hash, status, resource_ids, lease_owner, ttl_at, created_at, updated_at
		FROM idempotency_keys
		WHERE scope = $1 AND key = $2
	`, string(scope), key).Scan(
		&scopeRaw,
		&record.Key,
		&record.RequestHash,
		&statusRaw,
		&idsRaw,
		&record.LeaseOwner,
		&record.TTLAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	record.Scope = domain.IdempotencyScope(scopeRaw)
	record.Status = domain.IdempotencyStatus(statusRaw)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", statusRaw, key)
	}
	if len(idsRaw) > 0 {
		if err := json.Unmarshal(idsRaw, &record.ResourceIDs); err != nil {
			return domain.IdempotencyRecord{}, fmt.Errorf("decode resource ids for key %s: %w", key, err)
		}
	}
	if len(record.ResourceIDs) == 0 {
		record.ResourceIDs = nil
	}

	return record, nil
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)

	if limit > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM idempotency_keys
			WHERE (scope, key) IN (
				SELECT scope, key
				FROM idempotency_keys
				WHERE ttl_at <= $1
				ORDER BY ttl_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM idempotency_keys
			WHERE ttl_at <= $1
		`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency rows affected: %w", err)
	}

	return int(affected), nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
