package integration

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/pix-initiation/internal/app"
	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/pix-initiation/internal/service/grpc"
	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

const scenarioEndToEndID = "E12345678202401011200abc1234567"

// PixLifecycleTestSuite проходит сценарии инициации через gRPC-обработчики
// монолита поверх хранилища в памяти.
type PixLifecycleTestSuite struct {
	suite.Suite
	deps     *app.Dependencies
	consents *grpcsvc.ConsentServer
	payments *grpcsvc.PaymentServer
}

func (s *PixLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	deps, err := app.NewDependencies(logger)
	s.Require().NoError(err)
	s.deps = deps
	s.consents = grpcsvc.NewConsentServer(deps.Consents, deps.Registry, logger)
	s.payments = grpcsvc.NewPaymentServer(deps.Payments, deps.Registry, logger)
}

func withKey(key string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pixv1.MetadataIdempotencyKey, key))
}

func (s *PixLifecycleTestSuite) authorisedConsent(key string) string {
	created, err := s.consents.CreateConsent(withKey(key), consentRequest("100.00"))
	s.Require().NoError(err)

	_, err = s.consents.AuthorizeConsent(context.Background(), &pixv1.AuthorizeConsentRequest{ConsentId: created.Data.ConsentId})
	s.Require().NoError(err)
	return created.Data.ConsentId
}

// Scenario A: согласие -> авторизация -> платёж ACSC, согласие CONSUMED.
func (s *PixLifecycleTestSuite) TestConsentAuthorisePayConsume() {
	before := time.Now()
	created, err := s.consents.CreateConsent(withKey("consent-a"), consentRequest("100.00"))
	s.Require().NoError(err)
	s.Equal(string(domain.ConsentStatusAwaitingAuthorisation), created.Data.Status)
	s.WithinDuration(before.Add(5*time.Minute), parseTime(s.T(), created.Data.ExpirationDateTime), 5*time.Second)

	authorised, err := s.consents.AuthorizeConsent(context.Background(), &pixv1.AuthorizeConsentRequest{ConsentId: created.Data.ConsentId})
	s.Require().NoError(err)
	s.Equal(string(domain.ConsentStatusAuthorised), authorised.Data.Status)
	s.WithinDuration(time.Now().Add(60*time.Minute), parseTime(s.T(), authorised.Data.ExpirationDateTime), 5*time.Second)

	item := paymentItem(created.Data.ConsentId, "100.00")
	item.EndToEndId = scenarioEndToEndID
	resp, err := s.payments.CreatePayments(withKey("payment-a"), &pixv1.CreatePaymentsRequest{Payments: []*pixv1.CreatePaymentItem{item}})
	s.Require().NoError(err)
	s.Require().Len(resp.Data, 1)
	s.Equal(string(domain.PaymentStatusSettled), resp.Data[0].Status)
	s.Equal(scenarioEndToEndID, resp.Data[0].EndToEndId)

	consent, err := s.consents.GetConsent(context.Background(), &pixv1.GetConsentRequest{ConsentId: created.Data.ConsentId})
	s.Require().NoError(err)
	s.Equal(string(domain.ConsentStatusConsumed), consent.Data.Status)
}

// Scenario B: повторная оплата по потреблённому согласию отклоняется.
func (s *PixLifecycleTestSuite) TestPaymentAgainstConsumedConsent() {
	consentID := s.authorisedConsent("consent-b")
	_, err := s.payments.CreatePayments(withKey("payment-b1"), &pixv1.CreatePaymentsRequest{
		Payments: []*pixv1.CreatePaymentItem{paymentItem(consentID, "100.00")},
	})
	s.Require().NoError(err)

	_, err = s.payments.CreatePayments(withKey("payment-b2"), &pixv1.CreatePaymentsRequest{
		Payments: []*pixv1.CreatePaymentItem{paymentItem(consentID, "100.00")},
	})
	s.Require().Error(err)
	s.Equal(codes.FailedPrecondition, status.Code(err))
	s.Equal(grpcsvc.ReasonConsentInvalid, grpcsvc.ReasonFromError(err))

	listed, err := s.payments.ListPaymentsByConsent(context.Background(), &pixv1.ListPaymentsByConsentRequest{ConsentId: consentID})
	s.Require().NoError(err)
	s.Len(listed.Data, 1)
}

// Scenario C: платёж в PDNG отменяется один раз.
func (s *PixLifecycleTestSuite) TestCancelPendingPayment() {
	s.deps.Settlement.SetOutcome(domain.SettlementPending, "", "")
	consentID := s.authorisedConsent("consent-c")

	resp, err := s.payments.CreatePayments(withKey("payment-c"), &pixv1.CreatePaymentsRequest{
		Payments: []*pixv1.CreatePaymentItem{paymentItem(consentID, "100.00")},
	})
	s.Require().NoError(err)
	s.Require().Equal(string(domain.PaymentStatusPending), resp.Data[0].Status)
	paymentID := resp.Data[0].PaymentId

	cancel := &pixv1.CancelPaymentRequest{
		PaymentId:     paymentID,
		CancelledBy:   &pixv1.Document{Identification: "11111111111", Rel: "CPF"},
		CancelledFrom: string(domain.CancellationChannelInitiator),
	}
	cancelled, err := s.payments.CancelPayment(context.Background(), cancel)
	s.Require().NoError(err)
	s.Equal(string(domain.PaymentStatusCancelled), cancelled.Data.Status)
	s.Require().NotNil(cancelled.Data.Cancellation)
	s.Equal(string(domain.CancellationReasonPending), cancelled.Data.Cancellation.Reason)
	s.Equal("cancelled while pending", domain.CancellationReasonPending.Description())
	s.Equal("11111111111", cancelled.Data.Cancellation.CancelledBy.Identification)
	s.NotEmpty(cancelled.Data.Cancellation.CancelledAt)

	_, err = s.payments.CancelPayment(context.Background(), cancel)
	s.Require().Error(err)
	s.Equal(grpcsvc.ReasonCancellationForbidden, grpcsvc.ReasonFromError(err))
}

// Scenario D: повтор с тем же ключом возвращает тот же платёж без повторного расчёта.
func (s *PixLifecycleTestSuite) TestIdempotentPaymentReplay() {
	consentID := s.authorisedConsent("consent-d")
	req := &pixv1.CreatePaymentsRequest{Payments: []*pixv1.CreatePaymentItem{paymentItem(consentID, "100.00")}}

	first, err := s.payments.CreatePayments(withKey("payment-d"), req)
	s.Require().NoError(err)
	calls := s.deps.Settlement.Calls()

	second, err := s.payments.CreatePayments(withKey("payment-d"), req)
	s.Require().NoError(err)
	s.Require().Len(second.Data, 1)
	s.Equal(first.Data[0].PaymentId, second.Data[0].PaymentId)
	s.Equal(first.Data[0].EndToEndId, second.Data[0].EndToEndId)
	s.Equal(first.Data[0].Status, second.Data[0].Status)
	s.Equal(calls, s.deps.Settlement.Calls())
}

func (s *PixLifecycleTestSuite) TestRejectedConsentCannotBePaid() {
	created, err := s.consents.CreateConsent(withKey("consent-rejected"), consentRequest("50.00"))
	s.Require().NoError(err)

	rejected, err := s.consents.RejectConsent(context.Background(), &pixv1.RejectConsentRequest{ConsentId: created.Data.ConsentId})
	s.Require().NoError(err)
	s.Equal(string(domain.ConsentStatusRejected), rejected.Data.Status)

	_, err = s.payments.CreatePayments(withKey("payment-rejected"), &pixv1.CreatePaymentsRequest{
		Payments: []*pixv1.CreatePaymentItem{paymentItem(created.Data.ConsentId, "50.00")},
	})
	s.Equal(grpcsvc.ReasonConsentInvalid, grpcsvc.ReasonFromError(err))
	s.Zero(s.deps.Settlement.Calls())
}

func (s *PixLifecycleTestSuite) TestCreatePaymentRequiresIdempotencyKey() {
	consentID := s.authorisedConsent("consent-nokey")

	_, err := s.payments.CreatePayments(context.Background(), &pixv1.CreatePaymentsRequest{
		Payments: []*pixv1.CreatePaymentItem{paymentItem(consentID, "100.00")},
	})
	s.Equal(codes.InvalidArgument, status.Code(err))
	s.Equal(grpcsvc.ReasonMissingParameter, grpcsvc.ReasonFromError(err))
}

func TestPixLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(PixLifecycleTestSuite))
}

func consentRequest(amount string) *pixv1.CreateConsentRequest {
	return &pixv1.CreateConsentRequest{
		LoggedUser: &pixv1.Document{Identification: "11111111111", Rel: "CPF"},
		Creditor:   &pixv1.Creditor{PersonType: "PESSOA_NATURAL", CpfCnpj: "22222222222", Name: "Maria Silva"},
		Payment: &pixv1.PaymentIntent{
			Type:     "PIX",
			Amount:   amount,
			Currency: "BRL",
			Details: &pixv1.PaymentDetails{
				LocalInstrument: "DICT",
				Proxy:           "maria@example.com",
				CreditorAccount: creditorAccount(),
			},
		},
	}
}

func paymentItem(consentID, amount string) *pixv1.CreatePaymentItem {
	return &pixv1.CreatePaymentItem{
		ConsentId:       consentID,
		Amount:          amount,
		Currency:        "BRL",
		LocalInstrument: "DICT",
		Proxy:           "maria@example.com",
		CnpjInitiator:   "50685362000135",
		CreditorAccount: creditorAccount(),
	}
}

func creditorAccount() *pixv1.Account {
	return &pixv1.Account{Ispb: "12345678", Issuer: "0001", Number: "1234567890", AccountType: "CACC"}
}

func parseTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}
