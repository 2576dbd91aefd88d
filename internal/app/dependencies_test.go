package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/consent"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/payment"
)

func TestNewDependencies(t *testing.T) {
	deps, err := NewDependencies(log.WithField("test", "dependencies"))
	require.NoError(t, err)

	require.NotNil(t, deps.Consents)
	require.NotNil(t, deps.Payments)
	require.NotNil(t, deps.Settlement)
	require.NotNil(t, deps.Keys)
	require.NotNil(t, deps.ConsentConsumer)
	require.NotNil(t, deps.Publisher)
	require.Nil(t, deps.DLQPublisher, "DLQ needs kafka")
	require.NotNil(t, deps.Registry)
	require.NotNil(t, deps.Logger)
	require.NoError(t, deps.Close())
}

func TestNewDependencies_WithNilLogger(t *testing.T) {
	deps, err := NewDependencies(nil)
	require.NoError(t, err)
	require.NotNil(t, deps.Logger, "logger should be initialized even when nil is passed")
}

func TestNewDependencies_IndependentInstances(t *testing.T) {
	deps1, err := NewDependencies(nil)
	require.NoError(t, err)
	deps2, err := NewDependencies(nil)
	require.NoError(t, err)

	ctx := context.Background()
	created, err := deps1.Consents.Create(ctx, testConsentCommand(), "independent-key")
	require.NoError(t, err)

	_, err = deps2.Consents.Get(ctx, created.ID)
	require.ErrorIs(t, err, domain.ErrConsentNotFound)
}

func TestNewDependencies_MonolithPaymentConsumesConsent(t *testing.T) {
	deps, err := NewDependencies(log.WithField("test", "monolith-flow"))
	require.NoError(t, err)
	ctx := context.Background()

	created, err := deps.Consents.Create(ctx, testConsentCommand(), "consent-key")
	require.NoError(t, err)
	_, err = deps.Consents.Authorize(ctx, created.ID)
	require.NoError(t, err)

	payments, err := deps.Payments.Create(ctx, []payment.CreateItem{testPaymentItem(created.ID)}, "payment-key")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, domain.PaymentStatusSettled, payments[0].Status)
	require.Equal(t, 1, deps.Settlement.Calls())

	consumed, err := deps.Consents.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentStatusConsumed, consumed.Status)
}

func TestBuildDependencies_SplitTopology(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Topology = TopologySplit
	cfg.ConsentServiceAddr = "127.0.0.1:1"
	cfg.ServiceTokenSecret = "test-secret"

	deps, err := buildDependencies(cfg, memoryRuntime(), nil, log.WithField("test", "split"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	require.Nil(t, deps.Consents, "split instance does not own consents")
	require.NotNil(t, deps.Payments)
	require.NotNil(t, deps.ConsentConsumer)
	require.NoError(t, deps.consentServiceCheck(context.Background()))
}

func TestBuildDependencies_SplitRequiresSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Topology = TopologySplit
	cfg.ConsentServiceAddr = "127.0.0.1:1"

	_, err := buildDependencies(cfg, memoryRuntime(), nil, log.WithField("test", "split-no-secret"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewOutboxPublishers_SplitRelaysConsumptionWithoutKafka(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Topology = TopologySplit
	consumer := &recordingConsumer{}

	publisher, dlq := newOutboxPublishers(cfg, nil, consumer, log.WithField("test", "relay"))
	require.Nil(t, dlq)

	payload, err := json.Marshal(domain.ConsentConsumptionRequested{ConsentID: "consent-1", PaymentIDs: []string{"p-1"}})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, publisher.Publish(ctx, domain.OutboxMessage{
		ID:            "m-1",
		AggregateType: domain.AggregateTypeConsent,
		AggregateID:   "consent-1",
		EventType:     domain.EventConsentConsumptionRequested,
		Payload:       payload,
	}))
	require.NoError(t, publisher.Publish(ctx, domain.OutboxMessage{
		ID:            "m-2",
		AggregateType: domain.AggregateTypePayment,
		AggregateID:   "p-1",
		EventType:     domain.EventPaymentCreated,
	}))

	require.Equal(t, []string{"consent-1"}, consumer.consumed())
}

func TestNewOutboxPublishers_MonolithWithoutKafkaDropsEvents(t *testing.T) {
	consumer := &recordingConsumer{}
	publisher, _ := newOutboxPublishers(DefaultConfig(), nil, consumer, log.WithField("test", "monolith"))

	require.NoError(t, publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:        "m-1",
		EventType: domain.EventConsentConsumptionRequested,
	}))
	require.Empty(t, consumer.consumed())
}

type recordingConsumer struct {
	mu  sync.Mutex
	ids []string
}

func (c *recordingConsumer) Consume(_ context.Context, consentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, consentID)
	return nil
}

func (c *recordingConsumer) consumed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func memoryRuntime() runtimeDependencies {
	deps, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory}, log.WithField("test", "memory"))
	if err != nil {
		panic(err)
	}
	return deps
}

func testConsentCommand() consent.CreateCommand {
	return consent.CreateCommand{
		LoggedUser: domain.Document{Identification: "11111111111", Rel: "CPF"},
		Creditor:   domain.Creditor{PersonType: domain.PersonTypeNatural, CPFCNPJ: "22222222222", Name: "Maria Silva"},
		Payment: domain.PaymentIntent{
			Type:     "PIX",
			Amount:   domain.MustParseAmount("100.00"),
			Currency: "BRL",
			Details: domain.PaymentDetails{
				LocalInstrument: domain.LocalInstrumentDICT,
				Proxy:           "maria@example.com",
				CreditorAccount: testCreditorAccount(),
			},
		},
	}
}

func testCreditorAccount() domain.Account {
	return domain.Account{ISPB: "12345678", Issuer: "0001", Number: "1234567890", AccountType: domain.AccountTypeCurrent}
}

func testPaymentItem(consentID string) payment.CreateItem {
	return payment.CreateItem{
		ConsentID:       consentID,
		Amount:          domain.MustParseAmount("100.00"),
		Currency:        "BRL",
		LocalInstrument: domain.LocalInstrumentDICT,
		Proxy:           "maria@example.com",
		CNPJInitiator:   "50685362000135",
		CreditorAccount: testCreditorAccount(),
	}
}
