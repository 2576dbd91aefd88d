package domain

import (
	"context"
	"time"
)

// ConsentRepository описывает требования к хранилищу согласий.
type ConsentRepository interface {
	// Create сохраняет новое согласие. ErrConsentAlreadyExists при дубликате id или idempotency-key.
	Create(ctx context.Context, consent Consent) error
	// Get возвращает согласие или ErrConsentNotFound.
	Get(ctx context.Context, id string) (Consent, error)
	// GetByIdempotencyKey ищет согласие, созданное по ключу.
	GetByIdempotencyKey(ctx context.Context, key string) (Consent, error)
	// Save применяет обновления с учётом optimistic locking (Version увеличивается).
	Save(ctx context.Context, consent Consent) error
}

// PaymentRepository описывает требования к хранилищу платежей.
type PaymentRepository interface {
	// CreateBatch атомарно сохраняет платежи, потребляет согласия и пишет события.
	CreateBatch(ctx context.Context, batch PaymentBatch) error
	// Get возвращает платёж или ErrPaymentNotFound.
	Get(ctx context.Context, id string) (PixPayment, error)
	// ListByIdempotencyKey возвращает платежи пакета в порядке BatchIndex.
	ListByIdempotencyKey(ctx context.Context, key string) ([]PixPayment, error)
	// ListByConsent возвращает платежи согласия за период в порядке создания.
	ListByConsent(ctx context.Context, consentID string, period Period) ([]PixPayment, error)
	// Save применяет обновления с учётом optimistic locking.
	Save(ctx context.Context, payment PixPayment) error
	// ClaimConsent закрепляет согласие за пакетом с ключом key до обращения к SPI.
	// Повторный захват тем же ключом успешен, чужой ключ получает ErrConsentAlreadyClaimed.
	ClaimConsent(ctx context.Context, consentID, key string, at time.Time) error
	// ReleaseConsentClaim снимает захват ключа key; захват другого ключа не трогается.
	ReleaseConsentClaim(ctx context.Context, consentID, key string) error
}

// PaymentBatch — единица атомарной записи при создании платежей.
type PaymentBatch struct {
	Payments []PixPayment
	// ConsumeConsents переводятся в CONSUMED в той же транзакции; согласие должно
	// оставаться действующим AUTHORISED, иначе вся запись отменяется с ErrConsentNotConsumable.
	ConsumeConsents []string
	// ValidatedAt — момент проверки согласий; срок действия сверяется с ним, а не
	// со временем записи, которое наступает после расчёта.
	ValidatedAt time.Time
	ConsumedAt  time.Time
	Events      []OutboxMessage
	Timeline    []TimelineEvent
}

// Period — интервал выборки [From, To). Нулевые границы означают отсутствие ограничения.
type Period struct {
	From time.Time
	To   time.Time
}

// NewPeriod строит период из дат YYYY-MM-DD; конечная дата включается целиком (UTC).
func NewPeriod(from, to string) (Period, error) {
	var p Period
	if from != "" {
		start, err := ParseScheduleDate(from)
		if err != nil {
			return Period{}, NewValidationError("startDate", "must be YYYY-MM-DD")
		}
		p.From = start
	}
	if to != "" {
		end, err := ParseScheduleDate(to)
		if err != nil {
			return Period{}, NewValidationError("endDate", "must be YYYY-MM-DD")
		}
		p.To = end.Add(24 * time.Hour)
	}
	if !p.From.IsZero() && !p.To.IsZero() && !p.From.Before(p.To) {
		return Period{}, NewValidationError("endDate", "must not be before startDate")
	}
	return p, nil
}

// Contains проверяет попадание момента в период.
func (p Period) Contains(t time.Time) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !t.Before(p.To) {
		return false
	}
	return true
}
