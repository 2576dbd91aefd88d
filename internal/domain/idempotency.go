package domain

import (
	"errors"
	"time"
)

var (
	// ErrIdempotencyKeyRequired — запрос на создание пришёл без ключа.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — не передан хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарезервирован, запись возвращается вместе с ошибкой.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency request hash mismatch")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyLeaseLost — аренда ключа перехвачена другим обработчиком.
	ErrIdempotencyLeaseLost = errors.New("idempotency lease lost")
	// ErrIdempotencyInFlight — первый запрос с этим ключом ещё обрабатывается.
	ErrIdempotencyInFlight = errors.New("idempotency key is being processed")
)

// IdempotencyScope разделяет пространства ключей разных ресурсов.
type IdempotencyScope string

const (
	IdempotencyScopeConsent IdempotencyScope = "consent"
	IdempotencyScopePayment IdempotencyScope = "payment"
)

// Valid проверяет, что scope поддерживается.
func (s IdempotencyScope) Valid() bool {
	return s == IdempotencyScopeConsent || s == IdempotencyScopePayment
}

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что ресурсы созданы и идентификаторы сохранены.
	IdempotencyStatusDone IdempotencyStatus = "done"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone:
		return true
	default:
		return false
	}
}

// IdempotencyRecord связывает ключ с созданными по нему ресурсами.
// TTLAt для processing — конец аренды, для done — срок хранения.
// LeaseOwner пуст у освобождённой записи: её может перехватить любой повтор.
type IdempotencyRecord struct {
	Scope       IdempotencyScope
	Key         string
	RequestHash string
	Status      IdempotencyStatus
	ResourceIDs []string
	LeaseOwner  string
	TTLAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdempotencyLease — аренда processing-записи конкретным обработчиком.
type IdempotencyLease struct {
	Owner string
	Until time.Time
}

// LeaseExpired сообщает, что обработчик ключа пропал и запись можно перехватить.
func (r IdempotencyRecord) LeaseExpired(now time.Time) bool {
	return r.Status == IdempotencyStatusProcessing && now.After(r.TTLAt)
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным использованием ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
