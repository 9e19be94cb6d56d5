package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/inventix/internal/api"
	"github.com/vladislavdragonenkov/inventix/internal/health"
	"github.com/vladislavdragonenkov/inventix/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/inventix/internal/service/outbox"
)

// Run собирает зависимости и запускает HTTP API, сервер метрик и
// outbox worker (если настроен Kafka). Блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	kafkaProducer := connectKafka(cfg.KafkaBrokers, logger)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	if kafkaProducer != nil {
		worker := outbox.NewWorker(
			deps.Outbox,
			kafka.NewOutboxPublisher(kafkaProducer, cfg.OrderTopic),
			outbox.Config{
				PollInterval: cfg.OutboxPollInterval,
				BatchSize:    cfg.OutboxBatchSize,
				DLQ:          kafka.NewOutboxPublisher(kafkaProducer, cfg.DLQTopic),
				Logger:       logger.WithField("component", "outbox-worker"),
			},
		)
		go worker.Run(workerCtx)
	} else {
		logger.Info("kafka is not configured, outbox worker disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	handler := api.NewHandler(deps.OrderManager, deps.ProductService, deps.Health, logger.WithField("component", "http-api"))
	handler.SetupRoutes(router)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, deps.Health)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API listening on %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		stopWorker()
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)
		return ctx.Err()
	case err := <-errCh:
		stopWorker()
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// connectKafka поднимает producer при непустом списке брокеров.
// Ошибка подключения не валит сервис: он работает без eventing.
func connectKafka(brokers string, logger *log.Entry) *kafka.Producer {
	if brokers == "" {
		return nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("kafka connect failed, continuing without eventing")
		return nil
	}

	logger.WithField("brokers", brokerList).Info("kafka producer connected")
	return producer
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer close failed")
	}
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проб.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("metrics available at %s/metrics", addr)
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
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
