package integration

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
	"github.com/vladislavdragonenkov/inventix/internal/service/order"
	"github.com/vladislavdragonenkov/inventix/internal/service/product"
	"github.com/vladislavdragonenkov/inventix/internal/stock"
	"github.com/vladislavdragonenkov/inventix/internal/storage/memory"
)

// OrderLifecycleTestSuite тестирует полный жизненный цикл заказов
// поверх in-memory хранилища.
type OrderLifecycleTestSuite struct {
	suite.Suite
	products domain.ProductRepository
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	manager  *order.Manager
	catalog  *product.Service
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.products = memory.NewProductRepository()
	suite.orders = memory.NewOrderRepository()
	suite.timeline = memory.NewTimelineRepository()
	suite.outbox = memory.NewOutboxRepository()

	keeper := stock.NewKeeper(suite.products, nil)
	ledger := stock.NewLedger(keeper, logger)
	reconciler := stock.NewReconciler(suite.products)

	suite.manager = order.NewManager(
		suite.orders,
		suite.timeline,
		suite.outbox,
		reconciler,
		ledger,
		nil,
		logger,
	)
	suite.catalog = product.NewService(suite.products, keeper, suite.outbox, logger)
}

func (suite *OrderLifecycleTestSuite) seedProduct(name string, price string, qty int32) domain.Product {
	created, err := suite.catalog.Create(product.Input{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	})
	require.NoError(suite.T(), err)
	return created
}

func (suite *OrderLifecycleTestSuite) productQty(id string) int32 {
	p, err := suite.products.Get(id)
	require.NoError(suite.T(), err)
	return p.Quantity
}

func (suite *OrderLifecycleTestSuite) TestSuccessfulOrderLifecycle() {
	laptop := suite.seedProduct("laptop-pro", "1999.00", 5)
	mouse := suite.seedProduct("mouse-wireless", "49.99", 10)

	created, err := suite.manager.CreateOrder("customer-123", []order.ItemRequest{
		{ProductID: laptop.ID, Qty: 1},
		{ProductID: mouse.ID, Qty: 2},
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusCreated, created.Status)
	require.Equal(suite.T(), "2098.98", created.TotalAmount.StringFixed(2))

	// Сток списан сразу при создании
	require.Equal(suite.T(), int32(4), suite.productQty(laptop.ID))
	require.Equal(suite.T(), int32(8), suite.productQty(mouse.ID))

	// Проводим заказ по state machine до delivered
	for _, next := range []domain.OrderStatus{
		domain.OrderStatusPaid,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	} {
		updated, err := suite.manager.UpdateOrderStatus(created.ID, next)
		require.NoError(suite.T(), err)
		require.Equal(suite.T(), next, updated.Status)
	}

	// Timeline содержит создание и все три перехода
	_, events, err := suite.manager.GetOrder(created.ID)
	require.NoError(suite.T(), err)
	require.GreaterOrEqual(suite.T(), len(events), 4)

	// Удаление доставленного заказа не возвращает сток
	require.NoError(suite.T(), suite.manager.DeleteOrder(created.ID))
	require.Equal(suite.T(), int32(4), suite.productQty(laptop.ID))
	require.Equal(suite.T(), int32(8), suite.productQty(mouse.ID))

	_, _, err = suite.manager.GetOrder(created.ID)
	require.ErrorIs(suite.T(), err, domain.ErrOrderNotFound)
}

func (suite *OrderLifecycleTestSuite) TestDeleteRestoresStockForUndeliveredOrder() {
	item := suite.seedProduct("keyboard", "120.00", 7)

	created, err := suite.manager.CreateOrder("customer-456", []order.ItemRequest{
		{ProductID: item.ID, Qty: 3},
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(4), suite.productQty(item.ID))

	_, err = suite.manager.UpdateOrderStatus(created.ID, domain.OrderStatusPaid)
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.manager.DeleteOrder(created.ID))
	require.Equal(suite.T(), int32(7), suite.productQty(item.ID))
}

func (suite *OrderLifecycleTestSuite) TestUpdateRepricesChangedLines() {
	item := suite.seedProduct("widget", "5.00", 10)

	created, err := suite.manager.CreateOrder("customer-777", []order.ItemRequest{
		{ProductID: item.ID, Qty: 3},
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "15.00", created.TotalAmount.StringFixed(2))
	require.Equal(suite.T(), int32(7), suite.productQty(item.ID))

	// Цена в каталоге меняется между созданием и обновлением
	_, err = suite.catalog.Update(item.ID, product.Input{
		Name:     "widget",
		Price:    decimal.RequireFromString("6.00"),
		Quantity: 7,
	})
	require.NoError(suite.T(), err)

	updated, err := suite.manager.UpdateOrder(created.ID, []order.ItemRequest{
		{ProductID: item.ID, Qty: 5},
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(5), suite.productQty(item.ID))
	require.Len(suite.T(), updated.Items, 1)
	// Изменённая строка переоценивается по текущей цене каталога
	require.Equal(suite.T(), "6.00", updated.Items[0].PricePerUnit.StringFixed(2))
	require.Equal(suite.T(), "30.00", updated.TotalAmount.StringFixed(2))
}

func (suite *OrderLifecycleTestSuite) TestUpdateInsufficientStockLeavesOrderUnchanged() {
	item := suite.seedProduct("gadget", "5.00", 10)

	created, err := suite.manager.CreateOrder("customer-888", []order.ItemRequest{
		{ProductID: item.ID, Qty: 3},
	})
	require.NoError(suite.T(), err)

	_, err = suite.manager.UpdateOrder(created.ID, []order.ItemRequest{
		{ProductID: item.ID, Qty: 20},
	})
	require.Error(suite.T(), err)
	require.True(suite.T(), domain.IsInsufficientStock(err))

	// Заказ и сток остались прежними
	current, _, err := suite.manager.GetOrder(created.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "15.00", current.TotalAmount.StringFixed(2))
	require.Len(suite.T(), current.Items, 1)
	require.Equal(suite.T(), int32(3), current.Items[0].Qty)
	require.Equal(suite.T(), int32(7), suite.productQty(item.ID))
}

func (suite *OrderLifecycleTestSuite) TestConcurrentCreatesNeverOversell() {
	item := suite.seedProduct("limited", "10.00", 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = suite.manager.CreateOrder("customer-race", []order.ItemRequest{
				{ProductID: item.ID, Qty: 6},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.True(suite.T(), domain.IsInsufficientStock(err))
		}
	}
	require.Equal(suite.T(), 1, succeeded)
	require.Equal(suite.T(), int32(4), suite.productQty(item.ID))
}

func (suite *OrderLifecycleTestSuite) TestInvalidStatusTransitionRejected() {
	item := suite.seedProduct("thing", "1.00", 5)

	created, err := suite.manager.CreateOrder("customer-999", []order.ItemRequest{
		{ProductID: item.ID, Qty: 1},
	})
	require.NoError(suite.T(), err)

	_, err = suite.manager.UpdateOrderStatus(created.ID, domain.OrderStatusDelivered)
	require.True(suite.T(), domain.IsInvalidStatusTransition(err))

	// Отмена возможна из любого нетерминального статуса
	cancelled, err := suite.manager.UpdateOrderStatus(created.ID, domain.OrderStatusCancelled)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusCancelled, cancelled.Status)

	// Из терминального статуса переходов нет
	_, err = suite.manager.UpdateOrderStatus(created.ID, domain.OrderStatusPaid)
	require.True(suite.T(), domain.IsInvalidStatusTransition(err))
}

func (suite *OrderLifecycleTestSuite) TestCreateUnknownProductFailsBeforeAnyReservation() {
	item := suite.seedProduct("known", "2.50", 5)

	_, err := suite.manager.CreateOrder("customer-000", []order.ItemRequest{
		{ProductID: item.ID, Qty: 2},
		{ProductID: "missing-product", Qty: 1},
	})
	require.ErrorIs(suite.T(), err, domain.ErrProductNotFound)
	require.Equal(suite.T(), int32(5), suite.productQty(item.ID))
}

func (suite *OrderLifecycleTestSuite) TestEventsAreEnqueuedToOutbox() {
	item := suite.seedProduct("event-item", "3.00", 5)

	created, err := suite.manager.CreateOrder("customer-evt", []order.ItemRequest{
		{ProductID: item.ID, Qty: 1},
	})
	require.NoError(suite.T(), err)

	_, err = suite.manager.UpdateOrderStatus(created.ID, domain.OrderStatusPaid)
	require.NoError(suite.T(), err)

	pending, err := suite.outbox.PullPending(0)
	require.NoError(suite.T(), err)

	// Каталог тоже публикует события, отбираем только события заказа.
	var orderEvents []domain.OutboxMessage
	for _, msg := range pending {
		if msg.AggregateType == "order" {
			orderEvents = append(orderEvents, msg)
		}
	}
	require.Len(suite.T(), orderEvents, 2)
	require.Equal(suite.T(), "order.created", orderEvents[0].EventType)
	require.Equal(suite.T(), "order.status_changed", orderEvents[1].EventType)
	require.Equal(suite.T(), created.ID, orderEvents[0].AggregateID)
}

func TestOrderLifecycle(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
