package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/messaging/kafka"
)

const consumptionMaxRetries = 3

// initKafkaProducer инициализирует Kafka producer, если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// startConsumptionConsumer подписывает владельца согласий на запросы потребления
// от платёжных экземпляров. Сообщения, исчерпавшие повторы, уходят в DLQ через producer.
func startConsumptionConsumer(ctx context.Context, cfg Config, producer *kafka.Producer, consumer domain.ConsentConsumer, logger *log.Entry) (*kafka.Consumer, error) {
	brokerList := splitBrokers(cfg.KafkaBrokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	handler := kafka.NewConsumptionHandler(consumer, logger.WithField("component", "kafka-consumption-handler"))
	kafkaConsumer, err := kafka.NewConsumerWithDLQ(
		brokerList,
		cfg.KafkaConsumerGroup,
		[]string{kafka.TopicConsentConsumption},
		handler,
		producer,
		consumptionMaxRetries,
	)
	if err != nil {
		return nil, fmt.Errorf("create consumption consumer: %w", err)
	}
	if err := kafkaConsumer.Start(ctx); err != nil {
		_ = kafkaConsumer.Stop()
		return nil, fmt.Errorf("start consumption consumer: %w", err)
	}
	return kafkaConsumer, nil
}

// stopKafkaConsumer останавливает consumer если он не nil.
func stopKafkaConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
