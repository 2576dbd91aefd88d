package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConsentNotFound возвращается, если согласие не найдено.
	ErrConsentNotFound = errors.New("consent not found")
	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrConsentAlreadyExists сигнализирует о дубликате согласия (id или idempotency-key).
	ErrConsentAlreadyExists = errors.New("consent already exists")
	// ErrPaymentAlreadyExists сигнализирует о дубликате платежа.
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	// ErrConsentInvalid — согласие существует, но не пригодно для платежа.
	ErrConsentInvalid = errors.New("consent invalid")
	// ErrConsentAlreadyClaimed — согласие уже использует другой пакет платежей.
	ErrConsentAlreadyClaimed = errors.New("consent already claimed by another payment")
	// ErrConsentNotConsumable — согласие нельзя перевести в CONSUMED.
	ErrConsentNotConsumable = errors.New("consent cannot be consumed")
	// ErrConsentInvalidTransition — недопустимый переход статуса согласия.
	ErrConsentInvalidTransition = errors.New("consent status transition not allowed")
	// ErrPaymentInvalidTransition — недопустимый переход статуса платежа.
	ErrPaymentInvalidTransition = errors.New("payment status transition not allowed")
	// ErrCancellationNotAllowed — платёж в текущем статусе отменить нельзя.
	ErrCancellationNotAllowed = errors.New("payment cancellation not allowed")
	// ErrExternalValidation — внешний порт (DICT, SPI, сервис согласий) отказал или недоступен.
	ErrExternalValidation = errors.New("external validation failed")
	// ErrInvalidRequest — запрос не прошёл валидацию полей.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrConsentVersionConflict сигнализирует о конфликте версий согласия при сохранении.
	ErrConsentVersionConflict = errors.New("consent version conflict")
	// ErrPaymentVersionConflict сигнализирует о конфликте версий платежа при сохранении.
	ErrPaymentVersionConflict = errors.New("payment version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ConsentInvalidError описывает согласие, которое нельзя использовать для платежа.
type ConsentInvalidError struct {
	ConsentID string
	Status    ConsentStatus
	Detail    string
}

func (e *ConsentInvalidError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("consent %s is invalid (status %s)", e.ConsentID, e.Status)
	}
	return fmt.Sprintf("consent %s is invalid (status %s): %s", e.ConsentID, e.Status, e.Detail)
}

func (e *ConsentInvalidError) Unwrap() error { return ErrConsentInvalid }

// CancellationNotAllowedError возвращается политикой отмены.
type CancellationNotAllowedError struct {
	PaymentID string
	Status    PaymentStatus
}

func (e *CancellationNotAllowedError) Error() string {
	return fmt.Sprintf("payment %s cannot be cancelled in status %s", e.PaymentID, e.Status)
}

func (e *CancellationNotAllowedError) Unwrap() error { return ErrCancellationNotAllowed }

// ExternalPort идентифицирует внешний порт проверки.
type ExternalPort string

const (
	ExternalPortKeyValidation  ExternalPort = "key_validation"
	ExternalPortSettlement     ExternalPort = "settlement"
	ExternalPortConsentGateway ExternalPort = "consent_gateway"
)

// ExternalValidationError — отказ или недоступность внешнего порта.
// Transient=true означает, что запрос можно повторить с тем же idempotency-key.
type ExternalValidationError struct {
	Port      ExternalPort
	Code      string
	Message   string
	Transient bool
	Err       error
}

func (e *ExternalValidationError) Error() string {
	msg := fmt.Sprintf("%s: port=%s", ErrExternalValidation.Error(), e.Port)
	if e.Code != "" {
		msg += " code=" + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExternalValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExternalValidation}
	}
	return []error{ErrExternalValidation, e.Err}
}

// ValidationError описывает некорректное поле запроса.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError создаёт ошибку валидации поля.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrConsentVersionConflict) || errors.Is(err, ErrPaymentVersionConflict)
}

// IsNotFound проверяет, что ресурс не найден.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConsentNotFound) || errors.Is(err, ErrPaymentNotFound)
}

// IsTransient сообщает, имеет ли смысл повтор запроса с тем же ключом.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIdempotencyInFlight) {
		return true
	}
	var extErr *ExternalValidationError
	if errors.As(err, &extErr) {
		return extErr.Transient
	}
	return false
}
