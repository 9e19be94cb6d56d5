package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventix_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result.",
	}, []string{"result"})
	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inventix_outbox_pending_records",
		Help: "Current number of pending records in transactional outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inventix_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox record.",
	})
)

// Config настраивает воркер. Нулевые значения заменяются дефолтами.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration

	// DLQ принимает сообщения после исчерпания ретраев. nil отключает DLQ.
	DLQ    domain.OutboxPublisher
	Logger *log.Entry
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.Logger == nil {
		c.Logger = log.WithField("component", "outbox-worker")
	}
}

// Worker вычитывает pending-записи transactional outbox и доставляет их
// в брокер. Каждая запись либо помечается sent, либо после ретраев
// уходит в DLQ и помечается failed.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       Config
	logger    *log.Entry
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, cfg Config) *Worker {
	cfg.applyDefaults()
	return &Worker{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    cfg.Logger,
	}
}

// Run опрашивает outbox с заданным интервалом до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker disabled: repository or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain выполняет один цикл: забирает батч pending-записей и доставляет их.
func (w *Worker) Drain(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.observeBacklog()

	batch, err := w.repo.PullPending(w.cfg.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("pull pending outbox messages failed")
		return
	}

	for _, msg := range batch {
		if ctx.Err() != nil {
			return
		}
		w.dispatch(ctx, msg)
	}

	if len(batch) > 0 {
		w.observeBacklog()
	}
}

// dispatch доставляет одно сообщение и фиксирует его итоговый статус.
func (w *Worker) dispatch(ctx context.Context, msg domain.OutboxMessage) {
	err := w.attemptPublish(ctx, msg)
	if err == nil {
		if markErr := w.repo.MarkSent(msg.ID); markErr != nil {
			w.logger.WithError(markErr).WithField("outbox_id", msg.ID).Warn("mark sent failed")
		}
		return
	}

	w.logger.WithError(err).WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": msg.EventType,
	}).Error("outbox publish failed after retries")
	publishAttempts.WithLabelValues("failed").Inc()

	if dlqErr := w.deadLetter(msg, err); dlqErr != nil {
		w.logger.WithError(dlqErr).WithField("outbox_id", msg.ID).Warn("dead letter publish failed")
		publishAttempts.WithLabelValues("dlq_failed").Inc()
	}
	if markErr := w.repo.MarkFailed(msg.ID); markErr != nil {
		w.logger.WithError(markErr).WithField("outbox_id", msg.ID).Warn("mark failed failed")
	}
}

// attemptPublish пробует доставить сообщение с exponential backoff.
func (w *Worker) attemptPublish(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error

	for attempt := 0; attempt < w.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if delay := w.cfg.RetryBaseDelay << (attempt - 1); delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
		}

		if err := w.publisher.Publish(msg); err != nil {
			lastErr = err
			publishAttempts.WithLabelValues("retry_error").Inc()
			continue
		}
		publishAttempts.WithLabelValues("sent").Inc()
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", w.cfg.MaxAttempts, lastErr)
}

// deadLetter заворачивает сообщение вместе с причиной отказа и шлёт в DLQ.
func (w *Worker) deadLetter(msg domain.OutboxMessage, cause error) error {
	if w.cfg.DLQ == nil {
		return nil
	}

	payload, err := json.Marshal(struct {
		OutboxID      string          `json:"outbox_id"`
		AggregateType string          `json:"aggregate_type"`
		AggregateID   string          `json:"aggregate_id"`
		EventType     string          `json:"event_type"`
		Payload       json.RawMessage `json:"payload"`
		PublishError  string          `json:"publish_error"`
		FailedAt      time.Time       `json:"failed_at"`
	}{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishError:  cause.Error(),
		FailedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter payload: %w", err)
	}

	dead := msg
	dead.Payload = payload
	if err := w.cfg.DLQ.Publish(dead); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (w *Worker) observeBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("collect outbox backlog stats failed")
		return
	}

	pendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		oldestPendingAge.Set(0)
		return
	}
	if age := time.Since(stats.OldestPendingAt).Seconds(); age > 0 {
		oldestPendingAge.Set(age)
	} else {
		oldestPendingAge.Set(0)
	}
}
