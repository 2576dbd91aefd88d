package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus описывает состояние Pix-платежа (коды ISO 20022).
type PaymentStatus string

const (
	// PaymentStatusReceived — платёж принят к обработке.
	PaymentStatusReceived PaymentStatus = "RCVD"
	// PaymentStatusAccepted — проверки держателя счёта пройдены.
	PaymentStatusAccepted PaymentStatus = "ACCP"
	// PaymentStatusAcceptedProcessing — платёж передан в SPI.
	PaymentStatusAcceptedProcessing PaymentStatus = "ACPD"
	// PaymentStatusRejected — платёж отклонён (терминальный статус).
	PaymentStatusRejected PaymentStatus = "RJCT"
	// PaymentStatusSettled — расчёт завершён (терминальный статус).
	PaymentStatusSettled PaymentStatus = "ACSC"
	// PaymentStatusPending — платёж ожидает ручной проверки на стороне держателя.
	PaymentStatusPending PaymentStatus = "PDNG"
	// PaymentStatusScheduled — платёж запланирован на будущую дату.
	PaymentStatusScheduled PaymentStatus = "SCHD"
	// PaymentStatusCancelled — платёж отменён (терминальный статус).
	PaymentStatusCancelled PaymentStatus = "CANC"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusReceived:           {PaymentStatusAccepted, PaymentStatusRejected, PaymentStatusPending, PaymentStatusScheduled},
	PaymentStatusAccepted:           {PaymentStatusAcceptedProcessing, PaymentStatusRejected, PaymentStatusPending},
	PaymentStatusAcceptedProcessing: {PaymentStatusSettled, PaymentStatusRejected},
	PaymentStatusPending:            {PaymentStatusCancelled},
	PaymentStatusScheduled:          {PaymentStatusCancelled},
}

// Valid проверяет, что статус поддерживается.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusReceived, PaymentStatusAccepted, PaymentStatusAcceptedProcessing, PaymentStatusRejected,
		PaymentStatusSettled, PaymentStatusPending, PaymentStatusScheduled, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

// CanTransitionPayment проверяет допустимость перехода from -> to.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentRejection — причина перевода платежа в RJCT.
type PaymentRejection struct {
	Code   string
	Detail string
}

const (
	// ReconciliationSettlementUnconfirmed — SPI не подтвердил приём платежа, хотя
	// другие платежи пакета уже прошли расчёт.
	ReconciliationSettlementUnconfirmed = "SETTLEMENT_UNCONFIRMED"
	// ReconciliationConsentNotConsumed — расчёт прошёл, но согласие не удалось
	// потребить при записи пакета.
	ReconciliationConsentNotConsumed = "CONSENT_NOT_CONSUMED"
)

// PaymentReconciliation помечает платёж, который требует ручной сверки с SPI
// или с сервисом согласий.
type PaymentReconciliation struct {
	Reason    string
	FlaggedAt time.Time
}

// PixPayment — платёж Pix, созданный по согласию.
type PixPayment struct {
	ID                        string
	IdempotencyKey            string
	BatchIndex                int
	EndToEndID                string
	ConsentID                 string
	Status                    PaymentStatus
	Amount                    Amount
	Currency                  string
	LocalInstrument           LocalInstrument
	Proxy                     string
	QRCode                    string
	CNPJInitiator             string
	TransactionIdentification string
	RemittanceInformation     string
	CreditorAccount           Account
	DebtorAccount             *Account
	AuthorisationFlow         AuthorisationFlow
	Rejection                 *PaymentRejection
	Cancellation              *Cancellation
	Reconciliation            *PaymentReconciliation
	CreatedAt                 time.Time
	StatusUpdatedAt           time.Time
	Version                   int64
}

// NewPaymentID генерирует идентификатор платежа (uuid без дефисов).
func NewPaymentID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateInvariants проверяет поля платежа до обращения к внешним портам.
func (p *PixPayment) ValidateInvariants() error {
	if strings.TrimSpace(p.ConsentID) == "" {
		return NewValidationError("consentId", "is required")
	}
	if err := ValidateEndToEndID(p.EndToEndID); err != nil {
		return err
	}
	if p.Amount.IsZero() {
		return NewValidationError("payment.amount", "is required")
	}
	if err := ValidateCurrency(p.Currency); err != nil {
		return err
	}
	if err := ValidateInitiation(p.LocalInstrument, p.Proxy, p.QRCode); err != nil {
		return err
	}
	if err := ValidateCNPJ("cnpjInitiator", p.CNPJInitiator); err != nil {
		return err
	}
	if err := ValidateRemittance(p.RemittanceInformation, p.TransactionIdentification); err != nil {
		return err
	}
	if !p.AuthorisationFlow.Valid() {
		return NewValidationError("authorisationFlow", "unsupported value")
	}
	return p.CreditorAccount.Validate("creditorAccount")
}

// Transition переводит платёж в новый статус по таблице переходов.
func (p *PixPayment) Transition(to PaymentStatus, now time.Time) error {
	if !CanTransitionPayment(p.Status, to) {
		return fmt.Errorf("%w: payment %s %s -> %s", ErrPaymentInvalidTransition, p.ID, p.Status, to)
	}
	p.Status = to
	p.StatusUpdatedAt = now
	return nil
}

// Reject переводит платёж в RJCT с причиной.
func (p *PixPayment) Reject(code, detail string, now time.Time) error {
	if err := p.Transition(PaymentStatusRejected, now); err != nil {
		return err
	}
	p.Rejection = &PaymentRejection{Code: code, Detail: detail}
	return nil
}

// FlagForReconciliation помечает платёж для ручной сверки; первая причина сохраняется.
func (p *PixPayment) FlagForReconciliation(reason string, now time.Time) {
	if p.Reconciliation != nil {
		return
	}
	p.Reconciliation = &PaymentReconciliation{Reason: reason, FlaggedAt: now}
}

// Succeeded сообщает, что платёж не отклонён и потребляет согласие.
func (p *PixPayment) Succeeded() bool {
	return p.Status != PaymentStatusRejected
}

// MatchesConsent сверяет сумму, валюту и получателя платежа с намерением согласия.
func (p *PixPayment) MatchesConsent(c *Consent) error {
	intent := c.Payment
	if !p.Amount.Equal(intent.Amount) || p.Currency != intent.Currency {
		return &ConsentInvalidError{ConsentID: c.ID, Status: c.Status, Detail: "payment does not match consent"}
	}
	if p.CreditorAccount != intent.Details.CreditorAccount {
		return &ConsentInvalidError{ConsentID: c.ID, Status: c.Status, Detail: "creditor account does not match consent"}
	}
	if p.LocalInstrument != intent.Details.LocalInstrument || p.Proxy != intent.Details.Proxy {
		return &ConsentInvalidError{ConsentID: c.ID, Status: c.Status, Detail: "initiation details do not match consent"}
	}
	return nil
}
