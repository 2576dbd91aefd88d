package versioning

import (
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

// DocumentFromProto переводит документ из контракта; nil даёт пустой документ.
func DocumentFromProto(d *pixv1.Document) domain.Document {
	if d == nil {
		return domain.Document{}
	}
	return domain.Document{Identification: d.Identification, Rel: d.Rel}
}

// AccountFromProto переводит реквизиты счёта.
func AccountFromProto(a *pixv1.Account) domain.Account {
	if a == nil {
		return domain.Account{}
	}
	return domain.Account{
		ISPB:        a.Ispb,
		Issuer:      a.Issuer,
		Number:      a.Number,
		AccountType: domain.AccountType(a.AccountType),
	}
}

// CreditorFromProto переводит получателя.
func CreditorFromProto(c *pixv1.Creditor) domain.Creditor {
	if c == nil {
		return domain.Creditor{}
	}
	return domain.Creditor{PersonType: domain.PersonType(c.PersonType), CPFCNPJ: c.CpfCnpj, Name: c.Name}
}

// PaymentIntentFromProto переводит намерение платежа; сумма проверяется по формату.
func PaymentIntentFromProto(p *pixv1.PaymentIntent) (domain.PaymentIntent, error) {
	if p == nil {
		return domain.PaymentIntent{}, domain.NewValidationError("payment", "is required")
	}
	amount, err := domain.ParseAmount(p.Amount)
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			return domain.PaymentIntent{}, domain.NewValidationError("payment.amount", vErr.Reason)
		}
		return domain.PaymentIntent{}, err
	}
	intent := domain.PaymentIntent{
		Type:     p.Type,
		Date:     p.Date,
		Amount:   amount,
		Currency: p.Currency,
	}
	if p.Details != nil {
		intent.Details = domain.PaymentDetails{
			LocalInstrument: domain.LocalInstrument(p.Details.LocalInstrument),
			QRCode:          p.Details.QrCode,
			Proxy:           p.Details.Proxy,
			CreditorAccount: AccountFromProto(p.Details.CreditorAccount),
		}
	}
	return intent, nil
}

// ConsentFromProto восстанавливает согласие из ответа сервиса согласий.
func ConsentFromProto(c *pixv1.Consent) (domain.Consent, error) {
	if c == nil {
		return domain.Consent{}, fmt.Errorf("empty consent payload")
	}
	intent, err := PaymentIntentFromProto(c.Payment)
	if err != nil {
		return domain.Consent{}, err
	}
	created, err := parseTime("creationDateTime", c.CreationDateTime)
	if err != nil {
		return domain.Consent{}, err
	}
	expires, err := parseTime("expirationDateTime", c.ExpirationDateTime)
	if err != nil {
		return domain.Consent{}, err
	}
	updated, err := parseTime("statusUpdateDateTime", c.StatusUpdateDateTime)
	if err != nil {
		return domain.Consent{}, err
	}

	out := domain.Consent{
		ID:              c.ConsentId,
		Status:          domain.ConsentStatus(c.Status),
		LoggedUser:      DocumentFromProto(c.LoggedUser),
		Creditor:        CreditorFromProto(c.Creditor),
		Payment:         intent,
		CreatedAt:       created,
		ExpiresAt:       expires,
		StatusUpdatedAt: updated,
		Version:         c.Version,
	}
	if !out.Status.Valid() {
		return domain.Consent{}, fmt.Errorf("unknown consent status %q", c.Status)
	}
	if c.BusinessEntity != nil {
		doc := DocumentFromProto(c.BusinessEntity)
		out.BusinessEntity = &doc
	}
	if c.DebtorAccount != nil {
		acc := AccountFromProto(c.DebtorAccount)
		out.DebtorAccount = &acc
	}
	if c.RejectionReason != nil {
		out.Rejection = &domain.ConsentRejection{
			Code:   domain.ConsentRejectionCode(c.RejectionReason.Code),
			Detail: c.RejectionReason.Detail,
		}
	}
	return out, nil
}

func parseTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "must be RFC3339")
	}
	return t.UTC(), nil
}
