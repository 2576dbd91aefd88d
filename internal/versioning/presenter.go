package versioning

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

const (
	consentsPath = "/open-banking/payments/%s/consents/"
	paymentsPath = "/open-banking/payments/%s/pix/payments/"
)

// Strategy представляет ресурсы в форме конкретной версии API: общее ядро
// плюс дельта версии.
type Strategy struct {
	version      APIVersion
	paymentDelta func(*pixv1.Payment)
	consentDelta func(*pixv1.Consent)
}

func strategyFor(v APIVersion) (*Strategy, bool) {
	switch v {
	case V4:
		return &Strategy{version: V4, paymentDelta: v4PaymentDelta, consentDelta: noConsentDelta}, true
	case V5:
		return &Strategy{version: V5, paymentDelta: noPaymentDelta, consentDelta: noConsentDelta}, true
	default:
		return nil, false
	}
}

// v4 не знает о сценарии авторизации и стороне, отменившей платёж.
func v4PaymentDelta(p *pixv1.Payment) {
	p.AuthorisationFlow = ""
	if p.Cancellation != nil {
		p.Cancellation.CancelledFrom = ""
	}
}

func noPaymentDelta(*pixv1.Payment) {}

func noConsentDelta(*pixv1.Consent) {}

// Version возвращает версию стратегии.
func (s *Strategy) Version() APIVersion { return s.version }

// ConsentLink возвращает ссылку на согласие.
func (s *Strategy) ConsentLink(id string) string {
	return fmt.Sprintf(consentsPath, s.version.Major()) + id
}

// PaymentLink возвращает ссылку на платёж.
func (s *Strategy) PaymentLink(id string) string {
	return fmt.Sprintf(paymentsPath, s.version.Major()) + id
}

// PresentConsent строит ответ с согласием и его историей.
func (s *Strategy) PresentConsent(c domain.Consent, timeline []domain.TimelineEvent, now time.Time) *pixv1.ConsentResponse {
	data := consentCore(c)
	data.Timeline = presentTimeline(timeline)
	s.consentDelta(data)
	return &pixv1.ConsentResponse{
		Data:  data,
		Links: &pixv1.Links{Self: s.ConsentLink(c.ID)},
		Meta:  &pixv1.Meta{TotalRecords: 1, RequestDateTime: formatTime(now)},
	}
}

// PresentPayment строит ответ с одним платежом.
func (s *Strategy) PresentPayment(p domain.PixPayment, timeline []domain.TimelineEvent, now time.Time) *pixv1.PaymentResponse {
	data := paymentCore(p)
	data.Timeline = presentTimeline(timeline)
	s.paymentDelta(data)
	return &pixv1.PaymentResponse{
		Data:  data,
		Links: &pixv1.Links{Self: s.PaymentLink(p.ID)},
		Meta:  &pixv1.Meta{TotalRecords: 1, RequestDateTime: formatTime(now)},
	}
}

// PresentPayments строит ответ со списком платежей. self указывает на первый платёж
// при создании или на список платежей согласия.
func (s *Strategy) PresentPayments(payments []domain.PixPayment, self string, now time.Time) *pixv1.PaymentsResponse {
	data := make([]*pixv1.Payment, 0, len(payments))
	for _, p := range payments {
		item := paymentCore(p)
		s.paymentDelta(item)
		data = append(data, item)
	}
	if self == "" && len(payments) > 0 {
		self = s.PaymentLink(payments[0].ID)
	}
	return &pixv1.PaymentsResponse{
		Data:  data,
		Links: &pixv1.Links{Self: self},
		Meta:  &pixv1.Meta{TotalRecords: int32(len(data)), RequestDateTime: formatTime(now)},
	}
}

func consentCore(c domain.Consent) *pixv1.Consent {
	out := &pixv1.Consent{
		ConsentId:            c.ID,
		Status:               string(c.Status),
		CreationDateTime:     formatTime(c.CreatedAt),
		ExpirationDateTime:   formatTime(c.ExpiresAt),
		StatusUpdateDateTime: formatTime(c.StatusUpdatedAt),
		LoggedUser:           documentToProto(c.LoggedUser),
		Creditor: &pixv1.Creditor{
			PersonType: string(c.Creditor.PersonType),
			CpfCnpj:    c.Creditor.CPFCNPJ,
			Name:       c.Creditor.Name,
		},
		Payment: &pixv1.PaymentIntent{
			Type:     c.Payment.Type,
			Date:     c.Payment.Date,
			Amount:   c.Payment.Amount.String(),
			Currency: c.Payment.Currency,
			Details: &pixv1.PaymentDetails{
				LocalInstrument: string(c.Payment.Details.LocalInstrument),
				QrCode:          c.Payment.Details.QRCode,
				Proxy:           c.Payment.Details.Proxy,
				CreditorAccount: accountToProto(c.Payment.Details.CreditorAccount),
			},
		},
		Version: c.Version,
	}
	if c.BusinessEntity != nil {
		out.BusinessEntity = documentToProto(*c.BusinessEntity)
	}
	if c.DebtorAccount != nil {
		out.DebtorAccount = accountToProto(*c.DebtorAccount)
	}
	if c.Rejection != nil {
		out.RejectionReason = &pixv1.RejectionReason{Code: string(c.Rejection.Code), Detail: c.Rejection.Detail}
	}
	return out
}

func paymentCore(p domain.PixPayment) *pixv1.Payment {
	out := &pixv1.Payment{
		PaymentId:                 p.ID,
		EndToEndId:                p.EndToEndID,
		ConsentId:                 p.ConsentID,
		Status:                    string(p.Status),
		CreationDateTime:          formatTime(p.CreatedAt),
		StatusUpdateDateTime:      formatTime(p.StatusUpdatedAt),
		Amount:                    p.Amount.String(),
		Currency:                  p.Currency,
		LocalInstrument:           string(p.LocalInstrument),
		Proxy:                     p.Proxy,
		QrCode:                    p.QRCode,
		CnpjInitiator:             p.CNPJInitiator,
		TransactionIdentification: p.TransactionIdentification,
		RemittanceInformation:     p.RemittanceInformation,
		CreditorAccount:           accountToProto(p.CreditorAccount),
		AuthorisationFlow:         string(p.AuthorisationFlow),
		Version:                   p.Version,
	}
	if p.DebtorAccount != nil {
		out.DebtorAccount = accountToProto(*p.DebtorAccount)
	}
	if p.Rejection != nil {
		out.RejectionReason = &pixv1.RejectionReason{Code: p.Rejection.Code, Detail: p.Rejection.Detail}
	}
	if p.Cancellation != nil {
		out.Cancellation = &pixv1.Cancellation{
			Reason:        string(p.Cancellation.Reason),
			CancelledFrom: string(p.Cancellation.Channel),
			CancelledAt:   formatTime(p.Cancellation.CancelledAt),
			CancelledBy:   documentToProto(p.Cancellation.CancelledBy),
		}
	}
	return out
}

func presentTimeline(events []domain.TimelineEvent) []*pixv1.TimelineEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]*pixv1.TimelineEvent, 0, len(events))
	for _, e := range events {
		out = append(out, &pixv1.TimelineEvent{Status: e.Type, Reason: e.Reason, OccurredAt: formatTime(e.Occurred)})
	}
	return out
}

func documentToProto(d domain.Document) *pixv1.Document {
	return &pixv1.Document{Identification: d.Identification, Rel: d.Rel}
}

func accountToProto(a domain.Account) *pixv1.Account {
	return &pixv1.Account{Ispb: a.ISPB, Issuer: a.Issuer, Number: a.Number, AccountType: string(a.AccountType)}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
