package product

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
	"github.com/vladislavdragonenkov/inventix/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/inventix/internal/stock"
)

// Service реализует CRUD каталога товаров. Мутации количества и цены
// выполняются под guard товара в Keeper, чтобы не гоняться с
// reserve/release по тому же товару.
type Service struct {
	products domain.ProductRepository
	keeper   *stock.Keeper
	outbox   domain.OutboxRepository
	logger   *log.Entry
}

// NewService конструирует сервис каталога. outbox может быть nil —
// тогда события каталога не публикуются.
func NewService(products domain.ProductRepository, keeper *stock.Keeper, outbox domain.OutboxRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "product-service")
	}
	return &Service{products: products, keeper: keeper, outbox: outbox, logger: logger}
}

// Input — атрибуты товара для создания/обновления.
type Input struct {
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int32
}

// Create сохраняет новый товар.
func (s *Service) Create(in Input) (domain.Product, error) {
	now := time.Now().UTC()
	product := domain.Product{
		ID:          uuid.NewString(),
		SKU:         in.SKU,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Quantity:    in.Quantity,
		Version:     0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, errs[0]
	}

	if err := s.products.Create(product); err != nil {
		s.logger.WithError(err).WithField("product_id", product.ID).Error("failed to create product")
		return domain.Product{}, err
	}

	s.emitEvent(&product, kafka.EventTypeProductCreated, map[string]any{
		"price":    product.Price.String(),
		"quantity": product.Quantity,
	})
	return product, nil
}

// Update перезаписывает атрибуты товара, включая абсолютное количество.
// Возвращает ErrProductNotFound, если товара нет.
func (s *Service) Update(id string, in Input) (domain.Product, error) {
	var updated domain.Product

	err := s.keeper.WithLock(id, func() error {
		product, err := s.products.Get(id)
		if err != nil {
			return err
		}

		product.SKU = in.SKU
		product.Name = in.Name
		product.Description = in.Description
		product.Price = in.Price
		product.Quantity = in.Quantity
		product.UpdatedAt = time.Now().UTC()

		if errs := product.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}

		if err := s.products.Save(product); err != nil {
			return err
		}
		product.Version++
		updated = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.emitEvent(&updated, kafka.EventTypeProductUpdated, map[string]any{
		"price":    updated.Price.String(),
		"quantity": updated.Quantity,
	})
	return updated, nil
}

// Get возвращает товар по идентификатору.
func (s *Service) Get(id string) (domain.Product, error) {
	return s.products.Get(id)
}

// List возвращает товары, ограничивая выборку limit (если >0).
func (s *Service) List(limit int) ([]domain.Product, error) {
	return s.products.List(limit)
}

// Delete удаляет товар или возвращает ErrProductNotFound.
func (s *Service) Delete(id string) error {
	var deleted domain.Product

	err := s.keeper.WithLock(id, func() error {
		product, err := s.products.Get(id)
		if err != nil {
			return err
		}
		if err := s.products.Delete(id); err != nil {
			return err
		}
		deleted = product
		return nil
	})
	if err != nil {
		return err
	}

	// Guard удалённого товара больше не нужен: все мутации перечитывают
	// товар под guard'ом, поэтому опоздавший конкурент получит
	// ErrProductNotFound, а не протухшее состояние.
	s.keeper.Forget(id)

	s.emitEvent(&deleted, kafka.EventTypeProductDeleted, map[string]any{
		"quantity": deleted.Quantity,
	})
	return nil
}

func (s *Service) emitEvent(product *domain.Product, eventType kafka.EventType, metadata map[string]any) {
	if s.outbox == nil {
		return
	}

	event := kafka.NewProductEvent(eventType, product.ID, product.SKU, metadata)
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"product_id": product.ID,
			"event":      eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "product",
		AggregateID:   product.ID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"product_id": product.ID,
			"event":      eventType,
		}).Error("enqueue event failed")
	}
}
