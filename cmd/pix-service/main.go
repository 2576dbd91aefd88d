package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/app"
	"github.com/vladislavdragonenkov/pix-initiation/internal/version"
)

const (
	envConfigFile = "PIX_CONFIG_FILE"
	envLogFormat  = "PIX_LOG_FORMAT"
	envLogLevel   = "PIX_LOG_LEVEL"
)

// loadEnvFiles подгружает config/*.env и .env. Уже заданные переменные
// окружения не перезаписываются.
func loadEnvFiles(dir string) []string {
	files, _ := filepath.Glob(filepath.Join(dir, "config", "*.env"))
	if _, err := os.Stat(filepath.Join(dir, ".env")); err == nil {
		files = append(files, filepath.Join(dir, ".env"))
	}
	if len(files) == 0 {
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		log.WithError(err).Warn("failed to load env files")
		return nil
	}
	return files
}

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(format, level string) {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func main() {
	envFiles := loadEnvFiles(".")
	setupLogger(os.Getenv(envLogFormat), os.Getenv(envLogLevel))

	cfg, err := app.LoadConfig(os.Getenv(envConfigFile))
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"topology":       cfg.Topology,
		"env_files":      envFiles,
	}).Info("запускаем сервис инициации Pix")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("сервис инициации Pix остановлен")
}
