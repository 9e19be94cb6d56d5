package domain

import "time"

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	// Create сохраняет новый товар. Возвращает ошибку, если запись с таким ID уже существует.
	Create(product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound, если его нет.
	Get(id string) (Product, error)
	// List возвращает товары с опциональным ограничением на количество.
	List(limit int) ([]Product, error)
	// Save применяет обновления к товару с учётом optimistic locking.
	Save(product Product) error
	// Delete удаляет товар или возвращает ErrProductNotFound.
	Delete(id string) error
}

// OrderRepository описывает требования к хранилищу заказов.
// Save обязан заменять коллекцию позиций атомарно вместе с заказом:
// последующие чтения видят согласованный снимок заказа и его позиций.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями.
	Create(order Order) error
	// Get возвращает заказ с позициями или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// List возвращает заказы с опциональным ограничением на количество.
	List(limit int) ([]Order, error)
	// ListByCustomer возвращает заказы клиента.
	ListByCustomer(customerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу и его позициям с учётом optimistic locking.
	Save(order Order) error
	// Delete удаляет заказ и все его позиции или возвращает ErrOrderNotFound.
	Delete(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}
