package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
)

type outboxStatus string

const (
	outboxStatusPending outboxStatus = "pending"
	outboxStatusSent    outboxStatus = "sent"
	outboxStatusFailed  outboxStatus = "failed"
)

type outboxRecord struct {
	msg       domain.OutboxMessage
	status    outboxStatus
	attempts  int
	createdAt time.Time
}

// outboxRepositoryInMemory — in-memory реализация transactional outbox.
// Порядок вставки сохраняется, чтобы PullPending отдавал события FIFO.
type outboxRepositoryInMemory struct {
	mu      sync.Mutex
	records []*outboxRecord
	byID    map[string]*outboxRecord
}

// NewOutboxRepository возвращает in-memory outbox для локальной разработки и тестов.
func NewOutboxRepository() domain.OutboxRepository {
	return &outboxRepositoryInMemory{
		byID: make(map[string]*outboxRecord),
	}
}

// Enqueue сохраняет событие в статусе pending. Пустой ID заполняется автоматически.
func (r *outboxRepositoryInMemory) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	payload := make([]byte, len(msg.Payload))
	copy(payload, msg.Payload)
	msg.Payload = payload

	record := &outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: time.Now().UTC(),
	}
	r.records = append(r.records, record)
	r.byID[msg.ID] = record

	return msg, nil
}

// PullPending возвращает до limit событий в порядке постановки в очередь.
// Повторный вызов до MarkSent/MarkFailed вернёт те же события.
func (r *outboxRepositoryInMemory) PullPending(limit int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.OutboxMessage
	for _, record := range r.records {
		if record.status != outboxStatusPending {
			continue
		}
		result = append(result, record.msg)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending события.
func (r *outboxRepositoryInMemory) Stats() (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for _, record := range r.records {
		if record.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || record.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = record.createdAt
		}
	}
	return stats, nil
}

// MarkSent помечает событие как опубликованное.
func (r *outboxRepositoryInMemory) MarkSent(id string) error {
	return r.setStatus(id, outboxStatusSent)
}

// MarkFailed помечает событие как неотправленное после исчерпания попыток.
func (r *outboxRepositoryInMemory) MarkFailed(id string) error {
	return r.setStatus(id, outboxStatusFailed)
}

func (r *outboxRepositoryInMemory) setStatus(id string, status outboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byID[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attempts++
	return nil
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
