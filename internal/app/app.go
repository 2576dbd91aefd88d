// Package app собирает и запускает экземпляр сервиса инициации Pix: хранилище,
// gRPC API, outbox, фоновые воркеры и HTTP-эндпоинты метрик и health.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/pix-initiation/internal/health"
	"github.com/vladislavdragonenkov/pix-initiation/internal/messaging/kafka"
	grpcsvc "github.com/vladislavdragonenkov/pix-initiation/internal/service/grpc"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/idempotency"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/outbox"
	"github.com/vladislavdragonenkov/pix-initiation/internal/version"
	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

const (
	healthSyncInterval = 5 * time.Second
	gracefulTimeout    = 5 * time.Second
)

// Run запускает экземпляр и блокируется до отмены ctx или ошибки gRPC-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	rt, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, logger)

	// Kafka опциональна: без брокера события outbox остаются в хранилище.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	deps, err := buildDependencies(cfg, rt, producer, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := deps.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close dependencies")
		}
	}()

	grpcMetrics := registerGRPCMetrics(logger)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcMetrics.UnaryServerInterceptor(),
		grpcsvc.RequestInterceptor(grpcsvc.InterceptorConfig{RequireAuth: cfg.RequireAuth}, logger.WithField("layer", "grpc")),
	))

	services := []string{""}
	if deps.Consents != nil {
		pixv1.RegisterConsentServiceServer(grpcServer, grpcsvc.NewConsentServer(deps.Consents, deps.Registry, logger.WithField("layer", "grpc")))
		services = append(services, pixv1.ConsentService_ServiceDesc.ServiceName)
	}
	pixv1.RegisterPaymentServiceServer(grpcServer, grpcsvc.NewPaymentServer(deps.Payments, deps.Registry, logger.WithField("layer", "grpc")))
	services = append(services, pixv1.PaymentService_ServiceDesc.ServiceName)
	grpcMetrics.InitializeMetrics(grpcServer)

	// Reflection для grpcurl и нагрузочных инструментов.
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	registerCheckers(healthHandler, cfg, rt, deps, producer)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	workersDone := startWorkers(workerCtx, cfg, rt, deps, healthHandler, healthServer, services, logger)

	consumer, err := startConsentConsumer(workerCtx, cfg, producer, deps, logger)
	if err != nil {
		logger.WithError(err).Warn("consent consumption consumer is disabled")
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		stopKafkaConsumer(consumer, logger)
		shutdownWorkers(cancelWorkers, workersDone, logger)
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{
			"addr":     lis.Addr().String(),
			"topology": cfg.Topology,
		}).Info("gRPC сервер слушает")
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.Shutdown()
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(gracefulTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		stopKafkaConsumer(consumer, logger)
		shutdownWorkers(cancelWorkers, workersDone, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		stopKafkaConsumer(consumer, logger)
		shutdownWorkers(cancelWorkers, workersDone, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// registerGRPCMetrics регистрирует метрики сервера или переиспользует уже
// зарегистрированные (повторный Run в одном процессе).
func registerGRPCMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

func registerCheckers(h *healthcheck.Handler, cfg Config, rt runtimeDependencies, deps *Dependencies, producer *kafka.Producer) {
	if rt.storageChecker != nil {
		h.RegisterChecker("storage", rt.storageChecker)
	}
	h.RegisterChecker("outbox", healthcheck.NewOptionalChecker("outbox", outboxBacklogCheck(rt.outboxRepo, cfg.OutboxMaxPending)))
	if cfg.KafkaBrokers != "" {
		h.RegisterChecker("kafka", healthcheck.NewOptionalChecker("kafka", func(context.Context) error {
			if producer == nil {
				return errors.New("kafka producer is not connected")
			}
			return nil
		}))
	}
	if cfg.Topology == TopologySplit {
		h.RegisterChecker("consent_service", healthcheck.NewOptionalChecker("consent_service", deps.consentServiceCheck))
	}
}

func outboxBacklogCheck(repo domain.OutboxRepository, maxPending int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}
		if maxPending > 0 && stats.PendingCount > maxPending {
			return errors.New("outbox backlog exceeds limit")
		}
		return nil
	}
}

// startWorkers запускает outbox, очистку ключей идемпотентности и синхронизацию
// gRPC health. Канал закрывается, когда все воркеры завершились.
func startWorkers(
	ctx context.Context,
	cfg Config,
	rt runtimeDependencies,
	deps *Dependencies,
	healthHandler *healthcheck.Handler,
	healthServer *health.Server,
	services []string,
	logger *log.Entry,
) <-chan struct{} {
	outboxWorker := outbox.NewWorker(
		rt.outboxRepo,
		deps.Publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(deps.DLQPublisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryDelays(cfg.OutboxRetryDelay, 0),
	)
	cleanupWorker := idempotency.NewCleanupWorker(
		rt.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		outboxWorker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanupWorker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		healthHandler.SyncGRPC(ctx, healthServer, healthSyncInterval, services...)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// startConsentConsumer подписывает владельца согласий на topic запросов
// потребления. В раздельной топологии и без Kafka ничего не делает.
func startConsentConsumer(ctx context.Context, cfg Config, producer *kafka.Producer, deps *Dependencies, logger *log.Entry) (*kafka.Consumer, error) {
	if deps.Consents == nil || producer == nil {
		return nil, nil
	}
	return startConsumptionConsumer(ctx, cfg, producer, deps.ConsentConsumer, logger)
}

// shutdownWorkers отменяет воркеры и ждёт их завершения не дольше gracefulTimeout.
func shutdownWorkers(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(gracefulTimeout):
		logger.Warn("background workers did not stop in time")
	}
}

// startMetricsServer запускает HTTP-обработчики /metrics, /healthz, /livez и /readyz.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
