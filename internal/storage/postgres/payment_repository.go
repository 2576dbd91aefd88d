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

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return store.Payments()
}

// CreateBatch пишет платежи, потребление согласий, outbox и историю одной транзакцией.
// Согласие блокируется FOR UPDATE, срок действия сверяется с моментом проверки.
func (r *paymentRepository) CreateBatch(ctx context.Context, batch domain.PaymentBatch) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, consentID := range batch.ConsumeConsents {
			if err := consumeConsent(ctx, tx, consentID, batch.ValidatedAt, batch.ConsumedAt); err != nil {
				return err
			}
		}
		for _, p := range batch.Payments {
			if err := insertPayment(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, msg := range batch.Events {
			if _, err := insertOutboxMessage(ctx, tx, msg); err != nil {
				return err
			}
		}
		for _, evt := range batch.Timeline {
			if err := insertTimelineEvent(ctx, tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
}

func consumeConsent(ctx context.Context, tx *sql.Tx, consentID string, validatedAt, now time.Time) error {
	consent, err := scanConsent(tx.QueryRowContext(ctx, `
		SELECT document, version FROM consents WHERE id = $1 FOR UPDATE
	`, consentID))
	if err != nil {
		return fmt.Errorf("consume %s: %w", consentID, err)
	}
	if err := consent.ConsumeValidated(validatedAt, now); err != nil {
		return err
	}
	return saveConsent(ctx, tx, consent)
}

// ClaimConsent вставляет строку consent_claims; при конфликте сравнивает ключ владельца.
func (r *paymentRepository) ClaimConsent(ctx context.Context, consentID, key string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO consent_claims (consent_id, idempotency_key, claimed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (consent_id) DO NOTHING
	`, consentID, key, at)
	if err != nil {
		return fmt.Errorf("claim consent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var owner string
	err = r.db.QueryRowContext(ctx, `
		SELECT idempotency_key FROM consent_claims WHERE consent_id = $1
	`, consentID).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Захват сняли между INSERT и SELECT: повторяем.
		return r.ClaimConsent(ctx, consentID, key, at)
	case err != nil:
		return fmt.Errorf("get consent claim: %w", err)
	case owner != key:
		return fmt.Errorf("%w: consent %s", domain.ErrConsentAlreadyClaimed, consentID)
	}
	return nil
}

func (r *paymentRepository) ReleaseConsentClaim(ctx context.Context, consentID, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM consent_claims WHERE consent_id = $1 AND idempotency_key = $2
	`, consentID, key); err != nil {
		return fmt.Errorf("release consent claim: %w", err)
	}
	return nil
}

func insertPayment(ctx context.Context, tx *sql.Tx, p domain.PixPayment) error {
	document, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payment %s: %w", p.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (
			id, idempotency_key, batch_index, consent_id, end_to_end_id,
			status, document, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		p.ID,
		nullableKey(p.IdempotencyKey),
		p.BatchIndex,
		p.ConsentID,
		p.EndToEndID,
		string(p.Status),
		document,
		p.Version,
		p.CreatedAt,
		time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: id %s", domain.ErrPaymentAlreadyExists, p.ID)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.PixPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		document []byte
		version  int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT document, version FROM payments WHERE id = $1
	`, id).Scan(&document, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PixPayment{}, domain.ErrPaymentNotFound
		}
		return domain.PixPayment{}, fmt.Errorf("get payment: %w", err)
	}
	return decodePayment(document, version)
}

func (r *paymentRepository) ListByIdempotencyKey(ctx context.Context, key string) ([]domain.PixPayment, error) {
	if key == "" {
		return []domain.PixPayment{}, nil
	}
	return r.list(ctx, `
		SELECT document, version
		FROM payments
		WHERE idempotency_key = $1
		ORDER BY batch_index ASC
	`, key)
}

func (r *paymentRepository) ListByConsent(ctx context.Context, consentID string, period domain.Period) ([]domain.PixPayment, error) {
	var from, to sql.NullTime
	if !period.From.IsZero() {
		from = sql.NullTime{Time: period.From, Valid: true}
	}
	if !period.To.IsZero() {
		to = sql.NullTime{Time: period.To, Valid: true}
	}
	return r.list(ctx, `
		SELECT document, version
		FROM payments
		WHERE consent_id = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2::timestamptz)
		  AND ($3::timestamptz IS NULL OR created_at < $3::timestamptz)
		ORDER BY created_at ASC, batch_index ASC
	`, consentID, from, to)
}

func (r *paymentRepository) list(ctx context.Context, query string, args ...any) ([]domain.PixPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	result := make([]domain.PixPayment, 0)
	for rows.Next() {
		var (
			document []byte
			version  int64
		)
		if err := rows.Scan(&document, &version); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p, err := decodePayment(document, version)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return result, nil
}

func (r *paymentRepository) Save(ctx context.Context, payment domain.PixPayment) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	expected := payment.Version
	payment.Version++
	document, err := json.Marshal(payment)
	if err != nil {
		return fmt.Errorf("encode payment %s: %w", payment.ID, err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
		    end_to_end_id = $2,
		    document = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $5 AND version = $6
	`,
		string(payment.Status),
		payment.EndToEndID,
		document,
		time.Now().UTC(),
		payment.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)`, payment.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check payment existence: %w", err)
	}
	if !exists {
		return domain.ErrPaymentNotFound
	}
	return domain.ErrPaymentVersionConflict
}

func decodePayment(document []byte, version int64) (domain.PixPayment, error) {
	var p domain.PixPayment
	if err := json.Unmarshal(document, &p); err != nil {
		return domain.PixPayment{}, fmt.Errorf("decode payment: %w", err)
	}
	p.Version = version
	return p, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
