package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Producer публикует события сервиса через идемпотентный sync-продюсер.
// Ошибка возвращается вызывающему только после исчерпания ретраев sarama.
type Producer struct {
	sp     sarama.SyncProducer
	logger *log.Entry
}

// producerConfig настраивает sarama для exactly-once записи со стороны продюсера.
func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Idempotent = true
	// Идемпотентность требует acks=all и один in-flight запрос
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	return cfg
}

// NewProducer подключается к брокерам и возвращает готовый Producer.
func NewProducer(brokers []string) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("create sync producer: %w", err)
	}
	return wrapProducer(sp), nil
}

func wrapProducer(sp sarama.SyncProducer) *Producer {
	return &Producer{
		sp:     sp,
		logger: log.WithField("component", "kafka-producer"),
	}
}

// Publish сериализует payload в JSON и синхронно отправляет его в topic.
// Ключ задаёт партицию, сообщения одного агрегата сохраняют порядок.
func (p *Producer) Publish(topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	partition, offset, err := p.sp.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
	})
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic": topic,
			"key":   key,
		}).Error("publish to kafka failed")
		return fmt.Errorf("send message: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     topic,
		"key":       key,
		"partition": partition,
		"offset":    offset,
	}).Debug("event published")
	return nil
}

func (p *Producer) Close() error {
	if err := p.sp.Close(); err != nil {
		return fmt.Errorf("close sync producer: %w", err)
	}
	return nil
}
