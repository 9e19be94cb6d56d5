package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config описывает настройки запуска приложения. Все значения читаются из
// переменных окружения с префиксом INVENTIX_; .env подхватывается автоматически.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// PostgresDSN пустой означает in-memory хранилище.
	PostgresDSN string

	// KafkaBrokers пустой означает запуск без eventing.
	KafkaBrokers string
	OrderTopic   string
	DLQTopic     string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	LogLevel string
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		MetricsAddr:        ":9090",
		OrderTopic:         "inventix.order.events",
		DLQTopic:           "inventix.dlq",
		OutboxPollInterval: 1 * time.Second,
		OutboxBatchSize:    100,
		LogLevel:           "info",
	}
}

// LoadConfig собирает конфигурацию из окружения поверх дефолтов.
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.HTTPAddr = getEnv("INVENTIX_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = getEnv("INVENTIX_METRICS_ADDR", cfg.MetricsAddr)
	cfg.PostgresDSN = getEnv("INVENTIX_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.KafkaBrokers = getEnv("INVENTIX_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.OrderTopic = getEnv("INVENTIX_ORDER_TOPIC", cfg.OrderTopic)
	cfg.DLQTopic = getEnv("INVENTIX_DLQ_TOPIC", cfg.DLQTopic)
	cfg.LogLevel = getEnv("INVENTIX_LOG_LEVEL", cfg.LogLevel)

	if raw := os.Getenv("INVENTIX_OUTBOX_POLL_INTERVAL"); raw != "" {
		if interval, err := time.ParseDuration(raw); err == nil && interval > 0 {
			cfg.OutboxPollInterval = interval
		}
	}
	if raw := os.Getenv("INVENTIX_OUTBOX_BATCH_SIZE"); raw != "" {
		if batch, err := strconv.Atoi(raw); err == nil && batch > 0 {
			cfg.OutboxBatchSize = batch
		}
	}

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
