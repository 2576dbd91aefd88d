package domain

import (
	"context"
	"time"
)

// KeyValidationResult — ответ справочника ключей Pix (DICT).
type KeyValidationResult struct {
	Valid         bool
	Reason        string
	HolderName    string
	ISPB          string
	Issuer        string
	AccountNumber string
	AccountType   AccountType
}

// KeyValidator проверяет ключ Pix получателя.
type KeyValidator interface {
	// ValidateKey возвращает ошибку только при сбое транспорта; отказ в ключе — Valid=false.
	ValidateKey(ctx context.Context, proxy string) (KeyValidationResult, error)
}

// SettlementOutcome — результат передачи платежа в расчётную систему.
type SettlementOutcome string

const (
	SettlementAccepted SettlementOutcome = "accepted"
	SettlementPending  SettlementOutcome = "pending"
	SettlementRejected SettlementOutcome = "rejected"
)

// SettlementResult — ответ расчётной системы (SPI).
type SettlementResult struct {
	Outcome      SettlementOutcome
	EndToEndID   string
	ErrorCode    string
	ErrorMessage string
}

// SettlementGateway передаёт платёж на расчёт.
type SettlementGateway interface {
	// Submit должен быть идемпотентен по EndToEndID. Ошибка — только сбой транспорта или таймаут.
	Submit(ctx context.Context, payment PixPayment) (SettlementResult, error)
}

// ConsentGateway — read-only запрос согласия для платёжного контура.
type ConsentGateway interface {
	// Validate возвращает согласие, пригодное для платежа, или ErrConsentNotFound / ConsentInvalidError.
	Validate(ctx context.Context, consentID string) (Consent, error)
}

// ConsentConsumer переводит согласие в CONSUMED вне транзакции платежа (раздельная топология).
type ConsentConsumer interface {
	Consume(ctx context.Context, consentID string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла согласий и платежей.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, resourceType, resourceID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит связи ключ -> ресурсы с атомарной резервацией.
type IdempotencyRepository interface {
	// Reserve атомарно создаёт processing-запись. Если ключ занят, возвращает
	// существующую запись и ErrIdempotencyKeyAlreadyExists.
	Reserve(ctx context.Context, scope IdempotencyScope, key, requestHash string, lease IdempotencyLease) (IdempotencyRecord, error)
	// Takeover перехватывает processing-запись с истёкшей арендой (CAS по TTLAt).
	Takeover(ctx context.Context, scope IdempotencyScope, key string, now time.Time, lease IdempotencyLease) (IdempotencyRecord, error)
	// Complete и Release применяются только владельцем аренды, иначе ErrIdempotencyLeaseLost.
	Complete(ctx context.Context, scope IdempotencyScope, key, owner string, resourceIDs []string, retainUntil time.Time) error
	// Release не удаляет запись, а завершает аренду к моменту at: повтор перехватит
	// её и получит исходный CreatedAt.
	Release(ctx context.Context, scope IdempotencyScope, key, owner string, at time.Time) error
	Get(ctx context.Context, scope IdempotencyScope, key string) (IdempotencyRecord, error)
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
