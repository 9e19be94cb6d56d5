package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
	"github.com/vladislavdragonenkov/inventix/internal/health"
	"github.com/vladislavdragonenkov/inventix/internal/metrics"
	"github.com/vladislavdragonenkov/inventix/internal/service/order"
	"github.com/vladislavdragonenkov/inventix/internal/service/product"
	"github.com/vladislavdragonenkov/inventix/internal/stock"
	"github.com/vladislavdragonenkov/inventix/internal/storage/memory"
	"github.com/vladislavdragonenkov/inventix/internal/storage/postgres"
	"github.com/vladislavdragonenkov/inventix/internal/version"
)

// Dependencies содержит собранный граф зависимостей приложения.
type Dependencies struct {
	Products domain.ProductRepository
	Orders   domain.OrderRepository
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository

	Keeper     *stock.Keeper
	Ledger     *stock.Ledger
	Reconciler *stock.Reconciler

	OrderManager   *order.Manager
	ProductService *product.Service

	Metrics *metrics.StockMetrics
	Health  *health.Handler
	Store   *postgres.Store

	Logger *log.Entry
}

// NewDependencies инициализирует хранилище и доменные сервисы.
// Пустой DSN означает in-memory режим для локальной разработки.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Logger:  logger,
		Metrics: metrics.NewStockMetrics(),
		Health:  health.NewHandler(version.String()),
	}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}

		deps.Store = store
		deps.Products = postgres.NewProductRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		deps.Health.Register("postgres", func() error {
			return store.Ping(context.Background())
		})
		logger.Info("postgres storage initialized")
	} else {
		deps.Products = memory.NewProductRepository()
		deps.Orders = memory.NewOrderRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Timeline = memory.NewTimelineRepository()
		logger.Info("in-memory storage initialized")
	}

	deps.Keeper = stock.NewKeeper(deps.Products, deps.Metrics)
	deps.Ledger = stock.NewLedger(deps.Keeper, logger.WithField("component", "stock-ledger"))
	deps.Reconciler = stock.NewReconciler(deps.Products)

	deps.OrderManager = order.NewManager(
		deps.Orders,
		deps.Timeline,
		deps.Outbox,
		deps.Reconciler,
		deps.Ledger,
		deps.Metrics,
		logger.WithField("component", "order-lifecycle"),
	)
	deps.ProductService = product.NewService(deps.Products, deps.Keeper, deps.Outbox, logger.WithField("component", "product-service"))

	return deps, nil
}

// Close освобождает внешние ресурсы.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
