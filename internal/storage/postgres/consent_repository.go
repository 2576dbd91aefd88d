package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

type consentRepository struct {
	db *sql.DB
}

// NewConsentRepository создаёт PostgreSQL-реализацию ConsentRepository.
func NewConsentRepository(store *Store) domain.ConsentRepository {
	return store.Consents()
}

func (r *consentRepository) Create(ctx context.Context, consent domain.Consent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	document, err := json.Marshal(consent)
	if err != nil {
		return fmt.Errorf("encode consent %s: %w", consent.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO consents (
			id, idempotency_key, status, expires_at, document, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		consent.ID,
		nullableKey(consent.IdempotencyKey),
		string(consent.Status),
		consent.ExpiresAt,
		document,
		consent.Version,
		consent.CreatedAt,
		time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConsentAlreadyExists
		}
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (r *consentRepository) Get(ctx context.Context, id string) (domain.Consent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return scanConsent(r.db.QueryRowContext(ctx, `
		SELECT document, version FROM consents WHERE id = $1
	`, id))
}

func (r *consentRepository) GetByIdempotencyKey(ctx context.Context, key string) (domain.Consent, error) {
	if key == "" {
		return domain.Consent{}, domain.ErrConsentNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return scanConsent(r.db.QueryRowContext(ctx, `
		SELECT document, version FROM consents WHERE idempotency_key = $1
	`, key))
}

func (r *consentRepository) Save(ctx context.Context, consent domain.Consent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return saveConsent(ctx, tx, consent)
	})
}

// saveConsent обновляет строку, если версия совпадает; иначе различает
// отсутствие записи и конфликт версий.
func saveConsent(ctx context.Context, tx *sql.Tx, consent domain.Consent) error {
	expected := consent.Version
	consent.Version++
	document, err := json.Marshal(consent)
	if err != nil {
		return fmt.Errorf("encode consent %s: %w", consent.ID, err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE consents
		SET status = $1,
		    expires_at = $2,
		    document = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $5 AND version = $6
	`,
		string(consent.Status),
		consent.ExpiresAt,
		document,
		time.Now().UTC(),
		consent.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consent rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM consents WHERE id = $1)`, consent.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check consent existence: %w", err)
	}
	if !exists {
		return domain.ErrConsentNotFound
	}
	return domain.ErrConsentVersionConflict
}

func scanConsent(row *sql.Row) (domain.Consent, error) {
	var (
		document []byte
		version  int64
	)
	if err := row.Scan(&document, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Consent{}, domain.ErrConsentNotFound
		}
		return domain.Consent{}, fmt.Errorf("get consent: %w", err)
	}

	var consent domain.Consent
	if err := json.Unmarshal(document, &consent); err != nil {
		return domain.Consent{}, fmt.Errorf("decode consent: %w", err)
	}
	consent.Version = version
	return consent, nil
}

var _ domain.ConsentRepository = (*consentRepository)(nil)
