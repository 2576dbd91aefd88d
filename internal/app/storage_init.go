package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/pix-initiation/internal/health"
	"github.com/vladislavdragonenkov/pix-initiation/internal/storage/memory"
	"github.com/vladislavdragonenkov/pix-initiation/internal/storage/mongodb"
	"github.com/vladislavdragonenkov/pix-initiation/internal/storage/postgres"
)

// runtimeDependencies — репозитории выбранного драйвера хранения.
type runtimeDependencies struct {
	consentRepo     domain.ConsentRepository
	paymentRepo     domain.PaymentRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}
	logger = logger.WithField("storage_driver", driver)

	switch driver {
	case StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return runtimeDependencies{
			consentRepo:     store.Consents(),
			paymentRepo:     store.Payments(),
			outboxRepo:      store.Outbox(),
			timelineRepo:    store.Timeline(),
			idempotencyRepo: store.Idempotency(),
			storageChecker: healthcheck.NewSimpleChecker("storage", func(context.Context) error {
				return nil
			}),
		}, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return runtimeDependencies{}, fmt.Errorf("%w: postgres storage requires PIX_POSTGRES_DSN", ErrInvalidConfig)
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("ensure postgres schema: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return runtimeDependencies{
			consentRepo:     store.Consents(),
			paymentRepo:     store.Payments(),
			outboxRepo:      store.Outbox(),
			timelineRepo:    store.Timeline(),
			idempotencyRepo: store.Idempotency(),
			storageChecker:  healthcheck.NewSimpleChecker("storage", store.Ping),
			closeFn:         store.Close,
		}, nil

	case StorageDriverMongo:
		uri := strings.TrimSpace(cfg.MongoURI)
		if uri == "" {
			return runtimeDependencies{}, fmt.Errorf("%w: mongo storage requires PIX_MONGO_URI", ErrInvalidConfig)
		}
		store, err := mongodb.Open(ctx, uri, cfg.MongoDatabase)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open mongodb store: %w", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(context.Background())
			return runtimeDependencies{}, fmt.Errorf("ensure mongodb indexes: %w", err)
		}
		logger.Info("using mongodb storage")
		return runtimeDependencies{
			consentRepo:     store.Consents(),
			paymentRepo:     store.Payments(),
			outboxRepo:      store.Outbox(),
			timelineRepo:    store.Timeline(),
			idempotencyRepo: store.Idempotency(),
			storageChecker:  healthcheck.NewSimpleChecker("storage", store.Ping),
			closeFn: func() error {
				return store.Close(context.Background())
			},
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("%w: unsupported storage driver %q", ErrInvalidConfig, cfg.StorageDriver)
	}
}

// closeRuntime освобождает соединения хранилища.
func closeRuntime(deps runtimeDependencies, logger *log.Entry) {
	if deps.closeFn == nil {
		return
	}
	if err := deps.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
		return
	}
	logger.Info("storage closed")
}
