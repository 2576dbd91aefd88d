package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vladislavdragonenkov/pix-initiation/internal/versioning"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"
	// StorageDriverMongo хранит данные в MongoDB.
	StorageDriverMongo = "mongo"
)

const (
	// TopologyMonolith — согласия и платежи в одном процессе.
	TopologyMonolith = "monolith"
	// TopologySplit — процесс обслуживает только платежи, согласия запрашиваются по gRPC.
	TopologySplit = "split"
)

// ErrInvalidConfig оборачивает все ошибки валидации конфигурации.
var ErrInvalidConfig = errors.New("invalid config")

// Config описывает настройки запуска приложения. Все поля сравнимы, чтобы
// конфигурации можно было сравнивать через ==.
type Config struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	StorageDriver       string `yaml:"storage_driver"`
	PostgresDSN         string `yaml:"postgres_dsn"`
	PostgresAutoMigrate bool   `yaml:"postgres_auto_migrate"`
	MongoURI            string `yaml:"mongo_uri"`
	MongoDatabase       string `yaml:"mongo_database"`

	Topology              string        `yaml:"topology"`
	ConsentServiceAddr    string        `yaml:"consent_service_addr"`
	ConsentGatewayTimeout time.Duration `yaml:"consent_gateway_timeout"`
	ServiceTokenSecret    string        `yaml:"service_token_secret"`
	RequireAuth           bool          `yaml:"require_auth"`

	ISPB                 string        `yaml:"ispb"`
	SettlementTimeout    time.Duration `yaml:"settlement_timeout"`
	KeyValidationTimeout time.Duration `yaml:"key_validation_timeout"`
	ConsentExpiration    time.Duration `yaml:"consent_expiration"`

	// APIVersions — включённые версии API через запятую.
	APIVersions       string `yaml:"api_versions"`
	APIDefaultVersion string `yaml:"api_default_version"`

	// KafkaBrokers — адреса брокеров через запятую; пустая строка отключает Kafka.
	KafkaBrokers       string `yaml:"kafka_brokers"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int           `yaml:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `yaml:"outbox_retry_delay"`
	// OutboxMaxPending — размер backlog, после которого сервис считается degraded.
	OutboxMaxPending int `yaml:"outbox_max_pending"`

	IdempotencyCleanupInterval  time.Duration `yaml:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `yaml:"idempotency_cleanup_batch_size"`
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		MongoDatabase:               "pix",
		Topology:                    TopologyMonolith,
		ConsentGatewayTimeout:       2 * time.Second,
		ISPB:                        "99999999",
		SettlementTimeout:           5 * time.Second,
		KeyValidationTimeout:        2 * time.Second,
		ConsentExpiration:           5 * time.Minute,
		APIVersions:                 "4.0.0,5.0.0",
		APIDefaultVersion:           "5.0.0",
		KafkaConsumerGroup:          "pix-consent-consumption",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		OutboxMaxPending:            1000,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем YAML-файл
// (если path не пустой, ${VAR} раскрываются из окружения), затем переменные PIX_*.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.UnmarshalStrict([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	env := envReader{}

	env.str("PIX_GRPC_ADDR", &cfg.GRPCAddr)
	env.str("PIX_METRICS_ADDR", &cfg.MetricsAddr)
	env.str("PIX_STORAGE_DRIVER", &cfg.StorageDriver)
	env.str("PIX_POSTGRES_DSN", &cfg.PostgresDSN)
	env.boolean("PIX_POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)
	env.str("PIX_MONGO_URI", &cfg.MongoURI)
	env.str("PIX_MONGO_DATABASE", &cfg.MongoDatabase)
	env.str("PIX_TOPOLOGY", &cfg.Topology)
	env.str("PIX_CONSENT_SERVICE_ADDR", &cfg.ConsentServiceAddr)
	env.duration("PIX_CONSENT_GATEWAY_TIMEOUT", &cfg.ConsentGatewayTimeout)
	env.str("PIX_SERVICE_TOKEN_SECRET", &cfg.ServiceTokenSecret)
	env.boolean("PIX_REQUIRE_AUTH", &cfg.RequireAuth)
	env.str("PIX_ISPB", &cfg.ISPB)
	env.duration("PIX_SETTLEMENT_TIMEOUT", &cfg.SettlementTimeout)
	env.duration("PIX_KEY_VALIDATION_TIMEOUT", &cfg.KeyValidationTimeout)
	env.duration("PIX_CONSENT_EXPIRATION", &cfg.ConsentExpiration)
	env.str("PIX_API_VERSIONS", &cfg.APIVersions)
	env.str("PIX_API_DEFAULT_VERSION", &cfg.APIDefaultVersion)
	env.str("KAFKA_BROKERS", &cfg.KafkaBrokers)
	env.str("PIX_KAFKA_CONSUMER_GROUP", &cfg.KafkaConsumerGroup)
	env.duration("PIX_OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	env.integer("PIX_OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	env.integer("PIX_OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	env.duration("PIX_OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)
	env.integer("PIX_OUTBOX_MAX_PENDING", &cfg.OutboxMaxPending)
	env.duration("PIX_IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	env.integer("PIX_IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	return errors.Join(env.errs...)
}

// envReader переносит непустые переменные окружения в поля конфигурации и
// копит ошибки разбора.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (r *envReader) str(key string, dst *string) {
	if value, ok := r.lookup(key); ok {
		*dst = value
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	value, ok := r.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, value))
		return
	}
	*dst = parsed
}

func (r *envReader) integer(key string, dst *int) {
	value, ok := r.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, value))
		return
	}
	*dst = parsed
}

func (r *envReader) duration(key string, dst *time.Duration) {
	value, ok := r.lookup(key)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalidConfig, key, value))
		return
	}
	*dst = parsed
}

// Validate проверяет конфигурацию до старта компонентов.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			invalid("postgres storage requires PIX_POSTGRES_DSN")
		}
	case StorageDriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			invalid("mongo storage requires PIX_MONGO_URI")
		}
		if strings.TrimSpace(c.MongoDatabase) == "" {
			invalid("mongo storage requires PIX_MONGO_DATABASE")
		}
	default:
		invalid("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.Topology {
	case TopologyMonolith:
	case TopologySplit:
		if strings.TrimSpace(c.ConsentServiceAddr) == "" {
			invalid("split topology requires PIX_CONSENT_SERVICE_ADDR")
		}
		if c.ServiceTokenSecret == "" {
			invalid("split topology requires PIX_SERVICE_TOKEN_SECRET")
		}
	default:
		invalid("unsupported topology %q", c.Topology)
	}

	if _, err := c.versionRegistry(); err != nil {
		invalid("%v", err)
	}
	if c.OutboxBatchSize <= 0 {
		invalid("outbox batch size must be positive")
	}
	if c.OutboxMaxAttempts <= 0 {
		invalid("outbox max attempts must be positive")
	}
	if c.IdempotencyCleanupBatchSize <= 0 {
		invalid("idempotency cleanup batch size must be positive")
	}

	return errors.Join(errs...)
}

func (c Config) versionRegistry() (*versioning.Registry, error) {
	enabled, err := versioning.ParseVersions(c.APIVersions)
	if err != nil {
		return nil, err
	}
	def, err := versioning.ParseAPIVersion(c.APIDefaultVersion)
	if err != nil {
		return nil, err
	}
	return versioning.NewRegistry(enabled, def)
}

func splitBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
