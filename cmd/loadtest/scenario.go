package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

const (
	loadtestCPF         = "76109277673"
	loadtestCreditorCPF = "39804283019"
	loadtestCreditor    = "Loadtest Creditor"
	scheduleLayout      = "2006-01-02"
)

// runScenario проходит путь согласие -> авторизация -> платёж (-> отмена).
// Отменяемый сценарий создаёт согласие на завтра: отменить можно только SCHD.
func runScenario(cli clients, cfg config, index int, runID string, col *collector) error {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	defer func() {
		col.record(scenarioMethod, time.Since(scenarioStart), scenarioCode)
	}()

	fail := func(err error) error {
		scenarioCode = grpcCode(err)
		return err
	}

	cancelAfterPay := cfg.mode == modeConsentPayCancel ||
		(cfg.mode == modeConsentPay && shouldCancelScenario(index, cfg.cancelRate))

	scheduleDate := ""
	if cancelAfterPay {
		scheduleDate = time.Now().UTC().AddDate(0, 0, 1).Format(scheduleLayout)
	}

	consent, err := callCreateConsent(cli.consents, cfg, consentRequest(cfg, scheduleDate), fmt.Sprintf("%s-consent-%d", runID, index), col)
	if err != nil {
		return fail(err)
	}
	consentID := consent.GetData().GetConsentId()
	if consentID == "" {
		scenarioCode = codes.Internal
		return errors.New("create consent returned empty consent id")
	}
	if cfg.mode == modeConsent {
		return nil
	}

	if err := callAuthorizeConsent(cli.consents, cfg, consentID, col); err != nil {
		return fail(err)
	}

	payment, err := callCreatePayment(cli.payments, cfg, paymentItem(cfg, consentID), fmt.Sprintf("%s-payment-%d", runID, index), col)
	if err != nil {
		return fail(err)
	}
	if !cancelAfterPay {
		col.recordPaymentStatus(payment.GetStatus())
		return nil
	}

	cancelled, err := callCancelPayment(cli.payments, cfg, payment.GetPaymentId(), col)
	if err != nil {
		return fail(err)
	}
	col.recordPaymentStatus(cancelled.GetStatus())
	return nil
}

func consentRequest(cfg config, scheduleDate string) *pixv1.CreateConsentRequest {
	return &pixv1.CreateConsentRequest{
		LoggedUser: &pixv1.Document{Identification: loadtestCPF, Rel: "CPF"},
		Creditor:   &pixv1.Creditor{PersonType: "PESSOA_NATURAL", CpfCnpj: loadtestCreditorCPF, Name: loadtestCreditor},
		Payment: &pixv1.PaymentIntent{
			Type:     "PIX",
			Date:     scheduleDate,
			Amount:   cfg.amount,
			Currency: "BRL",
			Details: &pixv1.PaymentDetails{
				LocalInstrument: "DICT",
				Proxy:           cfg.proxy,
				CreditorAccount: creditorAccount(cfg),
			},
		},
	}
}

func paymentItem(cfg config, consentID string) *pixv1.CreatePaymentItem {
	return &pixv1.CreatePaymentItem{
		ConsentId:       consentID,
		Amount:          cfg.amount,
		Currency:        "BRL",
		LocalInstrument: "DICT",
		Proxy:           cfg.proxy,
		CnpjInitiator:   cfg.cnpjInitiator,
		CreditorAccount: creditorAccount(cfg),
	}
}

func creditorAccount(cfg config) *pixv1.Account {
	return &pixv1.Account{Ispb: cfg.creditorISPB, Issuer: "0001", Number: "1234567890", AccountType: "CACC"}
}

// outgoing собирает исходящие метаданные вызова: x-fapi-interaction-id,
// версию API, bearer и ключ идемпотентности.
func outgoing(ctx context.Context, cfg config, idempotencyKey string) context.Context {
	pairs := []string{pixv1.MetadataInteractionID, uuid.NewString()}
	if cfg.apiVersion != "" {
		pairs = append(pairs, pixv1.MetadataAPIVersion, cfg.apiVersion)
	}
	if cfg.bearer != "" {
		pairs = append(pairs, pixv1.MetadataAuthorization, "Bearer "+cfg.bearer)
	}
	if idempotencyKey != "" {
		pairs = append(pairs, pixv1.MetadataIdempotencyKey, idempotencyKey)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

func callCreateConsent(client pixv1.ConsentServiceClient, cfg config, req *pixv1.CreateConsentRequest, key string, col *collector) (*pixv1.ConsentResponse, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	resp, err := client.CreateConsent(outgoing(ctx, cfg, key), req)
	col.record("CreateConsent", time.Since(start), grpcCode(err))
	return resp, err
}

func callAuthorizeConsent(client pixv1.ConsentServiceClient, cfg config, consentID string, col *collector) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	_, err := client.AuthorizeConsent(outgoing(ctx, cfg, ""), &pixv1.AuthorizeConsentRequest{ConsentId: consentID})
	col.record("AuthorizeConsent", time.Since(start), grpcCode(err))
	return err
}

func callCreatePayment(client pixv1.PaymentServiceClient, cfg config, item *pixv1.CreatePaymentItem, key string, col *collector) (*pixv1.Payment, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	resp, err := client.CreatePayments(outgoing(ctx, cfg, key), &pixv1.CreatePaymentsRequest{Payments: []*pixv1.CreatePaymentItem{item}})
	if err == nil && len(resp.GetData()) != 1 {
		err = status.Errorf(codes.Internal, "create payments returned %d payments", len(resp.GetData()))
	}
	col.record("CreatePayments", time.Since(start), grpcCode(err))
	if err != nil {
		return nil, err
	}
	return resp.GetData()[0], nil
}

func callCancelPayment(client pixv1.PaymentServiceClient, cfg config, paymentID string, col *collector) (*pixv1.Payment, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	resp, err := client.CancelPayment(outgoing(ctx, cfg, ""), &pixv1.CancelPaymentRequest{
		PaymentId:     paymentID,
		CancelledBy:   &pixv1.Document{Identification: loadtestCPF, Rel: "CPF"},
		CancelledFrom: "INICIADORA",
	})
	col.record("CancelPayment", time.Since(start), grpcCode(err))
	return resp.GetData(), err
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
