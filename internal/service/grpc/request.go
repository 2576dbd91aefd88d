package grpcsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/consent"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/payment"
	"github.com/vladislavdragonenkov/pix-initiation/internal/versioning"
	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

func readIdempotencyKey(ctx context.Context) (string, error) {
	key := incomingValue(ctx, pixv1.MetadataIdempotencyKey)
	if key == "" {
		return "", domain.ErrIdempotencyKeyRequired
	}
	return key, nil
}

func resolveStrategy(ctx context.Context, versions *versioning.Registry) (*versioning.Strategy, error) {
	return versions.Resolve(incomingValue(ctx, pixv1.MetadataAPIVersion))
}

func createConsentCommand(req *pixv1.CreateConsentRequest) (consent.CreateCommand, error) {
	if req == nil {
		return consent.CreateCommand{}, domain.NewValidationError("data", "is required")
	}
	if req.LoggedUser == nil {
		return consent.CreateCommand{}, domain.NewValidationError("loggedUser", "is required")
	}
	if req.Creditor == nil {
		return consent.CreateCommand{}, domain.NewValidationError("creditor", "is required")
	}
	intent, err := versioning.PaymentIntentFromProto(req.Payment)
	if err != nil {
		return consent.CreateCommand{}, err
	}

	cmd := consent.CreateCommand{
		LoggedUser: versioning.DocumentFromProto(req.LoggedUser),
		Creditor:   versioning.CreditorFromProto(req.Creditor),
		Payment:    intent,
	}
	if req.BusinessEntity != nil {
		doc := versioning.DocumentFromProto(req.BusinessEntity)
		cmd.BusinessEntity = &doc
	}
	if req.DebtorAccount != nil {
		acc := versioning.AccountFromProto(req.DebtorAccount)
		cmd.DebtorAccount = &acc
	}
	return cmd, nil
}

func createPaymentItems(req *pixv1.CreatePaymentsRequest) ([]payment.CreateItem, error) {
	if req == nil || len(req.Payments) == 0 {
		return nil, domain.NewValidationError("data", "at least one payment is required")
	}
	items := make([]payment.CreateItem, 0, len(req.Payments))
	for idx, in := range req.Payments {
		if in == nil {
			return nil, domain.NewValidationError(fmt.Sprintf("data[%d]", idx), "is required")
		}
		amount, err := domain.ParseAmount(in.Amount)
		if err != nil {
			var vErr *domain.ValidationError
			if errors.As(err, &vErr) {
				return nil, domain.NewValidationError(fmt.Sprintf("data[%d].amount", idx), vErr.Reason)
			}
			return nil, err
		}
		if in.CreditorAccount == nil {
			return nil, domain.NewValidationError(fmt.Sprintf("data[%d].creditorAccount", idx), "is required")
		}
		items = append(items, payment.CreateItem{
			ConsentID:                 in.ConsentId,
			EndToEndID:                in.EndToEndId,
			Amount:                    amount,
			Currency:                  in.Currency,
			LocalInstrument:           domain.LocalInstrument(in.LocalInstrument),
			Proxy:                     in.Proxy,
			QRCode:                    in.QrCode,
			CNPJInitiator:             in.CnpjInitiator,
			TransactionIdentification: in.TransactionIdentification,
			RemittanceInformation:     in.RemittanceInformation,
			CreditorAccount:           versioning.AccountFromProto(in.CreditorAccount),
			AuthorisationFlow:         domain.AuthorisationFlow(in.AuthorisationFlow),
		})
	}
	return items, nil
}
