package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/pix-initiation/internal/health"
	"github.com/vladislavdragonenkov/pix-initiation/internal/version"
)

func TestInitKafkaProducer_NoBrokersDisablesKafka(t *testing.T) {
	logger := log.WithField("test", "kafka")

	for _, brokers := range []string{"", " ", " , "} {
		producer, err := initKafkaProducer(brokers, logger)
		require.NoError(t, err, "brokers %q", brokers)
		require.Nil(t, producer)
	}
}

func TestInitKafkaProducer_UnreachableBrokers(t *testing.T) {
	producer, err := initKafkaProducer("broker1:9092, broker2:9092", log.WithField("test", "kafka"))
	require.Error(t, err)
	require.Nil(t, producer)

	// Run продолжает без Kafka: закрытие nil-продюсера безопасно.
	closeKafka(producer, log.WithField("test", "kafka"))
}

func TestStartConsumptionConsumer_DisabledWithoutBrokers(t *testing.T) {
	consumer, err := startConsumptionConsumer(context.Background(), DefaultConfig(), nil, &recordingConsumer{}, log.WithField("test", "consumer"))
	require.NoError(t, err)
	require.Nil(t, consumer)
}

func TestStartConsentConsumer_RequiresConsentOwnerAndKafka(t *testing.T) {
	ctx := context.Background()
	logger := log.WithField("test", "consent-consumer")

	cfg := DefaultConfig()
	cfg.KafkaBrokers = "broker:9092"

	// Платёжный экземпляр раздельной топологии согласиями не владеет.
	consumer, err := startConsentConsumer(ctx, cfg, nil, &Dependencies{}, logger)
	require.NoError(t, err)
	require.Nil(t, consumer)

	deps, err := NewDependencies(logger)
	require.NoError(t, err)
	defer deps.Close()

	consumer, err = startConsentConsumer(ctx, cfg, nil, deps, logger)
	require.NoError(t, err)
	require.Nil(t, consumer, "without a producer the consumer stays off")
}

func TestRegisterCheckers_KafkaIsOptional(t *testing.T) {
	ctx := context.Background()
	rt := memoryRuntime()

	t.Run("no brokers configured", func(t *testing.T) {
		handler := healthcheck.NewHandler(version.GetVersion())
		registerCheckers(handler, DefaultConfig(), rt, &Dependencies{}, nil)

		resp := handler.Evaluate(ctx)
		require.NotContains(t, resp.Checks, "kafka")
		require.NotContains(t, resp.Checks, "consent_service")
		require.Equal(t, healthcheck.StatusHealthy, resp.Status)
	})

	t.Run("split topology with lost producer", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Topology = TopologySplit
		cfg.KafkaBrokers = "broker:9092"

		handler := healthcheck.NewHandler(version.GetVersion())
		registerCheckers(handler, cfg, rt, &Dependencies{}, nil)

		resp := handler.Evaluate(ctx)
		require.Equal(t, healthcheck.StatusDegraded, resp.Status)
		require.Equal(t, healthcheck.StatusDegraded, resp.Checks["kafka"].Status)
		require.Equal(t, "kafka producer is not connected", resp.Checks["kafka"].Message)
		require.Equal(t, healthcheck.StatusHealthy, resp.Checks["consent_service"].Status)
	})
}
