package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pix-initiation/internal/metrics"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/consent"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/gateway"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/idempotency"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/keyvalidation"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/outbox"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/payment"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/resilience"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/settlement"
	"github.com/vladislavdragonenkov/pix-initiation/internal/storage/memory"
	"github.com/vladislavdragonenkov/pix-initiation/internal/version"
	"github.com/vladislavdragonenkov/pix-initiation/internal/versioning"
	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second

	serviceTokenSubject  = "pix-payment-service"
	serviceTokenAudience = "pix-consent-service"
)

// Dependencies содержит собранный граф сервисов одного экземпляра.
// NOTE: расчёт (SPI) и справочник ключей (DICT) пока только заглушки;
// реальные клиенты подключаются вместо MockGateway и MockValidator.
type Dependencies struct {
	// Consents — nil в раздельной топологии: согласиями владеет другой экземпляр.
	Consents *consent.Lifecycle
	Payments *payment.Lifecycle

	Settlement *settlement.MockGateway
	Keys       *keyvalidation.MockValidator

	// ConsentConsumer потребляет согласие вне транзакции платежа.
	ConsentConsumer domain.ConsentConsumer
	Publisher       domain.OutboxPublisher
	DLQPublisher    domain.OutboxPublisher

	Registry *versioning.Registry
	Metrics  *metrics.PixMetrics
	Logger   *log.Entry

	consentConn *grpc.ClientConn
}

// NewDependencies собирает монолит поверх хранилища в памяти без Kafka.
func NewDependencies(logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	store := memory.NewStore()
	rt := runtimeDependencies{
		consentRepo:     store.Consents(),
		paymentRepo:     store.Payments(),
		outboxRepo:      store.Outbox(),
		timelineRepo:    store.Timeline(),
		idempotencyRepo: store.Idempotency(),
	}
	return buildDependencies(DefaultConfig(), rt, nil, logger)
}

func buildDependencies(cfg Config, rt runtimeDependencies, producer *kafka.Producer, logger *log.Entry) (*Dependencies, error) {
	registry, err := cfg.versionRegistry()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	pixMetrics := metrics.NewPixMetrics()
	guard := idempotency.NewGuard(rt.idempotencyRepo, idempotency.GuardConfig{}, logger.WithField("component", "idempotency-guard"))

	deps := &Dependencies{
		Settlement: settlement.NewMockGateway(),
		Keys:       keyvalidation.NewMockValidator(),
		Registry:   registry,
		Metrics:    pixMetrics,
		Logger:     logger,
	}

	settlementLogger := logger.WithField("component", "settlement")
	settlementPort := settlement.NewResilient(
		deps.Settlement,
		cfg.SettlementTimeout,
		resilience.NewCircuitBreaker(string(domain.ExternalPortSettlement), breakerMaxFailures, breakerResetTimeout, settlementLogger),
		pixMetrics,
		settlementLogger,
	)
	keysLogger := logger.WithField("component", "key-validation")
	keysPort := keyvalidation.NewResilient(
		deps.Keys,
		cfg.KeyValidationTimeout,
		resilience.NewCircuitBreaker(string(domain.ExternalPortKeyValidation), breakerMaxFailures, breakerResetTimeout, keysLogger),
		pixMetrics,
		keysLogger,
	)

	var (
		consents    domain.ConsentGateway
		consumption = payment.ConsumeInTransaction
	)
	switch cfg.Topology {
	case TopologySplit:
		remote, conn, err := dialConsentService(cfg, pixMetrics, logger)
		if err != nil {
			return nil, err
		}
		deps.consentConn = conn
		deps.ConsentConsumer = remote
		consents = remote
		consumption = payment.ConsumeViaOutbox
	default:
		deps.Consents = consent.NewLifecycle(consent.Dependencies{
			Consents: rt.consentRepo,
			Outbox:   rt.outboxRepo,
			Timeline: rt.timelineRepo,
			Guard:    guard,
			Metrics:  pixMetrics,
		}, consent.Config{Expiration: cfg.ConsentExpiration}, logger.WithField("component", "consent-lifecycle"))
		deps.ConsentConsumer = outbox.ConsumerFunc(deps.Consents.EnsureConsumed)
		consents = gateway.NewLocal(deps.Consents)
	}

	deps.Payments = payment.NewLifecycle(payment.Dependencies{
		Payments:   rt.paymentRepo,
		Consents:   consents,
		Keys:       keysPort,
		Settlement: settlementPort,
		Outbox:     rt.outboxRepo,
		Timeline:   rt.timelineRepo,
		Guard:      guard,
		Metrics:    pixMetrics,
	}, payment.Config{ISPB: cfg.ISPB, Consumption: consumption}, logger.WithField("component", "payment-lifecycle"))

	deps.Publisher, deps.DLQPublisher = newOutboxPublishers(cfg, producer, deps.ConsentConsumer, logger)
	return deps, nil
}

// dialConsentService готовит gRPC-клиент сервиса согласий. Соединение
// устанавливается лениво при первом вызове.
func dialConsentService(cfg Config, pixMetrics *metrics.PixMetrics, logger *log.Entry) (*gateway.Remote, *grpc.ClientConn, error) {
	tokens, err := gateway.NewTokenSource(cfg.ServiceTokenSecret, serviceTokenSubject, serviceTokenAudience, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	conn, err := grpc.NewClient(
		cfg.ConsentServiceAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(version.UserAgent()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dial consent service %s: %w", cfg.ConsentServiceAddr, err)
	}
	remote := gateway.NewRemote(
		pixv1.NewConsentServiceClient(conn),
		tokens,
		gateway.RemoteConfig{Timeout: cfg.ConsentGatewayTimeout, APIVersion: cfg.APIDefaultVersion},
		pixMetrics,
		logger.WithFields(log.Fields{"component": "consent-gateway", "target": cfg.ConsentServiceAddr}),
	)
	return remote, conn, nil
}

// newOutboxPublishers выбирает доставку outbox. С Kafka все события идут в
// брокер (consumption_requested — в отдельный topic для владельца согласий).
// Без Kafka в раздельной топологии запрос на потребление уходит по gRPC,
// остальные события считаются доставленными.
func newOutboxPublishers(cfg Config, producer *kafka.Producer, consumer domain.ConsentConsumer, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher) {
	var fallback, dlq domain.OutboxPublisher
	if producer != nil {
		fallback = kafka.NewOutboxPublisher(producer, "")
		dlq = kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
	}

	router := outbox.NewRouter(fallback)
	if producer == nil && cfg.Topology == TopologySplit && consumer != nil {
		router.Route(domain.EventConsentConsumptionRequested, outbox.NewConsumptionRelay(consumer, logger.WithField("component", "consumption-relay")))
	}
	return router, dlq
}

// consentServiceCheck сообщает о недоступности сервиса согласий, не снимая
// экземпляр с трафика.
func (d *Dependencies) consentServiceCheck(context.Context) error {
	if d.consentConn == nil {
		return nil
	}
	state := d.consentConn.GetState()
	if state == connectivity.Idle {
		d.consentConn.Connect()
	}
	if state == connectivity.TransientFailure || state == connectivity.Shutdown {
		return fmt.Errorf("consent service connection is %s", state)
	}
	return nil
}

// Close освобождает клиентские соединения.
func (d *Dependencies) Close() error {
	if d == nil || d.consentConn == nil {
		return nil
	}
	if err := d.consentConn.Close(); err != nil {
		return fmt.Errorf("close consent service connection: %w", err)
	}
	return nil
}
