package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
)

type fakeOutbox struct {
	pending []domain.OutboxMessage
	sent    []string
	failed  []string
}

func (f *fakeOutbox) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (f *fakeOutbox) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(f.pending) {
		return append([]domain.OutboxMessage(nil), f.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), f.pending[:limit]...), nil
}

func (f *fakeOutbox) Stats() (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(f.pending)}
	if len(f.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (f *fakeOutbox) MarkSent(id string) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(id string) error {
	f.failed = append(f.failed, id)
	return nil
}

// fakePublisher отдаёт ошибки из results по порядку, потом fallback err.
type fakePublisher struct {
	mu       sync.Mutex
	err      error
	results  []error
	count    int
	messages []domain.OutboxMessage
}

func (f *fakePublisher) Publish(msg domain.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count++
	f.messages = append(f.messages, msg)
	if len(f.results) > 0 {
		err := f.results[0]
		f.results = f.results[1:]
		return err
	}
	return f.err
}

func (f *fakePublisher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

var (
	_ domain.OutboxRepository = (*fakeOutbox)(nil)
	_ domain.OutboxPublisher  = (*fakePublisher)(nil)
)

func pendingMessage(id, status string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   "order-" + id,
		EventType:     "order.status_changed",
		Payload:       []byte(`{"status":"` + status + `"}`),
	}
}

func TestWorkerDrainMarksSent(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pending: []domain.OutboxMessage{pendingMessage("msg-1", "paid")}}
	publisher := &fakePublisher{}

	worker := NewWorker(repo, publisher, Config{MaxAttempts: 3})
	worker.Drain(context.Background())

	if len(repo.sent) != 1 || repo.sent[0] != "msg-1" {
		t.Fatalf("expected msg-1 marked sent, got %v", repo.sent)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("expected no failed marks, got %v", repo.failed)
	}
	if publisher.calls() != 1 {
		t.Fatalf("expected 1 publish call, got %d", publisher.calls())
	}
}

func TestWorkerDrainExhaustedRetriesGoToDLQ(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pending: []domain.OutboxMessage{pendingMessage("msg-2", "cancelled")}}
	publisher := &fakePublisher{err: errors.New("broker unavailable")}
	dlq := &fakePublisher{}

	worker := NewWorker(repo, publisher, Config{MaxAttempts: 3, DLQ: dlq})
	worker.Drain(context.Background())

	if publisher.calls() != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", publisher.calls())
	}
	if len(repo.sent) != 0 || len(repo.failed) != 1 || repo.failed[0] != "msg-2" {
		t.Fatalf("expected msg-2 marked failed, got sent=%v failed=%v", repo.sent, repo.failed)
	}
	if dlq.calls() != 1 {
		t.Fatalf("expected 1 dead letter publish, got %d", dlq.calls())
	}

	// DLQ-сообщение несёт исходный payload и причину отказа
	var wrapped struct {
		OutboxID     string          `json:"outbox_id"`
		Payload      json.RawMessage `json:"payload"`
		PublishError string          `json:"publish_error"`
	}
	if err := json.Unmarshal(dlq.messages[0].Payload, &wrapped); err != nil {
		t.Fatalf("decode dead letter payload: %v", err)
	}
	if wrapped.OutboxID != "msg-2" || wrapped.PublishError != "broker unavailable" {
		t.Errorf("unexpected dead letter payload: %+v", wrapped)
	}
}

func TestWorkerDrainSucceedsAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pending: []domain.OutboxMessage{pendingMessage("msg-3", "paid")}}
	publisher := &fakePublisher{
		results: []error{errors.New("first"), errors.New("second"), nil},
	}

	worker := NewWorker(repo, publisher, Config{MaxAttempts: 3})
	worker.Drain(context.Background())

	if publisher.calls() != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", publisher.calls())
	}
	if len(repo.sent) != 1 || len(repo.failed) != 0 {
		t.Fatalf("expected success after retry, got sent=%v failed=%v", repo.sent, repo.failed)
	}
}

func TestWorkerRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&fakeOutbox{}, &fakePublisher{}, Config{
		PollInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}
