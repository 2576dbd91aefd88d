package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConsentStatus описывает жизненный цикл согласия на платёж.
type ConsentStatus string

const (
	// ConsentStatusAwaitingAuthorisation — согласие создано и ждёт авторизации пользователем.
	ConsentStatusAwaitingAuthorisation ConsentStatus = "AWAITING_AUTHORISATION"
	// ConsentStatusPartiallyAccepted — часть обязательных подписантов уже согласилась.
	ConsentStatusPartiallyAccepted ConsentStatus = "PARTIALLY_ACCEPTED"
	// ConsentStatusAuthorised — согласие можно использовать для платежа.
	ConsentStatusAuthorised ConsentStatus = "AUTHORISED"
	// ConsentStatusRejected — согласие отклонено (терминальный статус).
	ConsentStatusRejected ConsentStatus = "REJECTED"
	// ConsentStatusConsumed — по согласию создан платёж (терминальный статус).
	ConsentStatusConsumed ConsentStatus = "CONSUMED"
)

const (
	// DefaultConsentExpiration — окно на авторизацию после создания.
	DefaultConsentExpiration = 5 * time.Minute
	// ConsentConsumptionWindow — окно на создание платежа после авторизации.
	ConsentConsumptionWindow = 60 * time.Minute

	consentIDPrefix = "urn:openfinance:"
	paymentTypePix  = "PIX"
)

// Valid проверяет, что статус поддерживается.
func (s ConsentStatus) Valid() bool {
	switch s {
	case ConsentStatusAwaitingAuthorisation, ConsentStatusPartiallyAccepted, ConsentStatusAuthorised,
		ConsentStatusRejected, ConsentStatusConsumed:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s ConsentStatus) Terminal() bool {
	return s == ConsentStatusRejected || s == ConsentStatusConsumed
}

// ConsentRejectionCode — причина отклонения согласия.
type ConsentRejectionCode string

const (
	ConsentRejectedByUser                ConsentRejectionCode = "REJEITADO_USUARIO"
	ConsentRejectedAuthorisationTimeout  ConsentRejectionCode = "TEMPO_EXPIRADO_AUTORIZACAO"
	ConsentRejectedConsumptionTimeout    ConsentRejectionCode = "TEMPO_EXPIRADO_CONSUMO"
	ConsentRejectedInfrastructureFailure ConsentRejectionCode = "FALHA_INFRAESTRUTURA"
	ConsentRejectedSameAccounts          ConsentRejectionCode = "CONTAS_ORIGEM_DESTINO_IGUAIS"
	ConsentRejectedAccountNotAllowed     ConsentRejectionCode = "CONTA_NAO_PERMITE_PAGAMENTO"
	ConsentRejectedInsufficientFunds     ConsentRejectionCode = "SALDO_INSUFICIENTE"
	ConsentRejectedAmountAboveLimit      ConsentRejectionCode = "VALOR_ACIMA_LIMITE"
	ConsentRejectedInvalidQRCode         ConsentRejectionCode = "QRCODE_INVALIDO"
)

// ConsentRejection — причина перевода в REJECTED.
type ConsentRejection struct {
	Code   ConsentRejectionCode
	Detail string
}

// PaymentDetails — детали Pix в намерении согласия.
type PaymentDetails struct {
	LocalInstrument LocalInstrument
	QRCode          string
	Proxy           string
	CreditorAccount Account
}

// PaymentIntent — параметры платежа, на которые дано согласие.
// Date пустая для немедленного платежа, иначе YYYY-MM-DD.
type PaymentIntent struct {
	Type     string
	Date     string
	Amount   Amount
	Currency string
	Details  PaymentDetails
}

// Consent — согласие пользователя на инициацию платежа.
type Consent struct {
	ID              string
	IdempotencyKey  string
	Status          ConsentStatus
	LoggedUser      Document
	BusinessEntity  *Document
	Creditor        Creditor
	Payment         PaymentIntent
	DebtorAccount   *Account
	Rejection       *ConsentRejection
	CreatedAt       time.Time
	ExpiresAt       time.Time
	StatusUpdatedAt time.Time
	Version         int64
}

// NewConsentID генерирует идентификатор вида urn:openfinance:XXXXXXXXXXXX.
func NewConsentID() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return consentIDPrefix + raw[:12]
}

// NewConsent собирает согласие в статусе AWAITING_AUTHORISATION.
func NewConsent(id, idempotencyKey string, now time.Time, expiration time.Duration) Consent {
	if expiration <= 0 {
		expiration = DefaultConsentExpiration
	}
	return Consent{
		ID:              id,
		IdempotencyKey:  idempotencyKey,
		Status:          ConsentStatusAwaitingAuthorisation,
		CreatedAt:       now,
		ExpiresAt:       now.Add(expiration),
		StatusUpdatedAt: now,
		Payment:         PaymentIntent{Type: paymentTypePix},
	}
}

// ValidateInvariants проверяет поля намерения и возвращает первую найденную ошибку.
func (c *Consent) ValidateInvariants() error {
	if err := c.LoggedUser.Validate("loggedUser.document"); err != nil {
		return err
	}
	if c.BusinessEntity != nil {
		if err := c.BusinessEntity.Validate("businessEntity.document"); err != nil {
			return err
		}
	}
	if err := c.Creditor.Validate(); err != nil {
		return err
	}
	if c.Payment.Type != paymentTypePix {
		return NewValidationError("payment.type", "only PIX is supported")
	}
	if c.Payment.Amount.IsZero() {
		return NewValidationError("payment.amount", "is required")
	}
	if err := ValidateCurrency(c.Payment.Currency); err != nil {
		return err
	}
	if c.Payment.Date != "" {
		if _, err := ParseScheduleDate(c.Payment.Date); err != nil {
			return err
		}
	}
	details := c.Payment.Details
	if err := ValidateInitiation(details.LocalInstrument, details.Proxy, details.QRCode); err != nil {
		return err
	}
	if err := details.CreditorAccount.Validate("payment.details.creditorAccount"); err != nil {
		return err
	}
	if c.DebtorAccount != nil {
		if err := c.DebtorAccount.Validate("debtorAccount"); err != nil {
			return err
		}
		if *c.DebtorAccount == details.CreditorAccount {
			return NewValidationError("debtorAccount", "must differ from creditor account")
		}
	}
	if !c.ExpiresAt.After(c.CreatedAt) {
		return NewValidationError("expirationDateTime", "must be after creation")
	}
	return nil
}

// CanBeConsumed сообщает, можно ли создать платёж по согласию в момент now.
func (c *Consent) CanBeConsumed(now time.Time) bool {
	return c.Status == ConsentStatusAuthorised && !now.After(c.ExpiresAt)
}

// Authorize переводит согласие в AUTHORISED и продлевает окно на ConsentConsumptionWindow.
func (c *Consent) Authorize(now time.Time) error {
	if c.Status != ConsentStatusAwaitingAuthorisation && c.Status != ConsentStatusPartiallyAccepted {
		return c.transitionError(ConsentStatusAuthorised)
	}
	c.Status = ConsentStatusAuthorised
	c.ExpiresAt = now.Add(ConsentConsumptionWindow)
	c.StatusUpdatedAt = now
	return nil
}

// PartiallyAccept фиксирует согласие части подписантов, окно не меняется.
func (c *Consent) PartiallyAccept(now time.Time) error {
	if c.Status != ConsentStatusAwaitingAuthorisation {
		return c.transitionError(ConsentStatusPartiallyAccepted)
	}
	c.Status = ConsentStatusPartiallyAccepted
	c.StatusUpdatedAt = now
	return nil
}

// Reject переводит согласие в REJECTED. Повторный reject ничего не меняет и возвращает false.
func (c *Consent) Reject(reason ConsentRejection, now time.Time) (bool, error) {
	switch c.Status {
	case ConsentStatusRejected:
		return false, nil
	case ConsentStatusConsumed:
		return false, c.transitionError(ConsentStatusRejected)
	}
	c.Status = ConsentStatusRejected
	c.Rejection = &reason
	c.StatusUpdatedAt = now
	return true, nil
}

// Consume переводит согласие в CONSUMED. Допустимо только для действующего AUTHORISED.
func (c *Consent) Consume(now time.Time) error {
	return c.ConsumeValidated(now, now)
}

// ConsumeValidated переводит согласие в CONSUMED, сверяя срок действия с моментом
// validatedAt, когда согласие было проверено перед расчётом.
func (c *Consent) ConsumeValidated(validatedAt, now time.Time) error {
	if validatedAt.IsZero() {
		validatedAt = now
	}
	if !c.CanBeConsumed(validatedAt) {
		return fmt.Errorf("%w: consent %s status %s expires %s",
			ErrConsentNotConsumable, c.ID, c.Status, c.ExpiresAt.Format(time.RFC3339))
	}
	c.Status = ConsentStatusConsumed
	c.StatusUpdatedAt = now
	return nil
}

// ExpireIfDue лениво отклоняет просроченное согласие. Возвращает true, если статус изменился.
func (c *Consent) ExpireIfDue(now time.Time) bool {
	if c.Status.Terminal() || !now.After(c.ExpiresAt) {
		return false
	}
	code := ConsentRejectedAuthorisationTimeout
	if c.Status == ConsentStatusAuthorised {
		code = ConsentRejectedConsumptionTimeout
	}
	c.Status = ConsentStatusRejected
	c.Rejection = &ConsentRejection{Code: code, Detail: "consent expired"}
	c.StatusUpdatedAt = now
	return true
}

// ScheduledDate возвращает дату отложенного платежа, если она задана.
func (c *Consent) ScheduledDate() (time.Time, bool) {
	if c.Payment.Date == "" {
		return time.Time{}, false
	}
	date, err := ParseScheduleDate(c.Payment.Date)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// IsScheduled сообщает, что платёж по согласию должен быть исполнен позже сегодняшнего дня (UTC).
func (c *Consent) IsScheduled(now time.Time) bool {
	date, ok := c.ScheduledDate()
	if !ok {
		return false
	}
	today := now.UTC().Truncate(24 * time.Hour)
	return date.After(today)
}

func (c *Consent) transitionError(to ConsentStatus) error {
	return fmt.Errorf("%w: consent %s %s -> %s", ErrConsentInvalidTransition, c.ID, c.Status, to)
}
