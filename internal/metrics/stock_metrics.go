package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StockMetrics содержит метрики складских операций и жизненного цикла заказов.
type StockMetrics struct {
	// Счётчики движения стока
	reservedUnits prometheus.Counter
	releasedUnits prometheus.Counter
	insufficient  prometheus.Counter

	// Операции над заказами по типу и результату
	orderOperations *prometheus.CounterVec

	// Гистограмма времени выполнения операций
	operationDuration *prometheus.HistogramVec

	// Счётчик событий outbox
	outboxEvents prometheus.Counter
}

// NewStockMetrics создаёт новый экземпляр метрик с default registerer.
func NewStockMetrics() *StockMetrics {
	return newStockMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newStockMetricsWithRegisterer(registerer prometheus.Registerer) *StockMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StockMetrics{
		reservedUnits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "inventix_stock_reserved_units_total",
			Help: "Total number of stock units reserved",
		}),
		releasedUnits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "inventix_stock_released_units_total",
			Help: "Total number of stock units released back",
		}),
		insufficient: registerCounter(registerer, prometheus.CounterOpts{
			Name: "inventix_stock_insufficient_total",
			Help: "Total number of reservations rejected due to insufficient stock",
		}),
		orderOperations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "inventix_order_operations_total",
			Help: "Total number of order lifecycle operations grouped by operation and result",
		}, []string{"operation", "result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "inventix_order_operation_duration_seconds",
			Help:    "Duration of order lifecycle operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "inventix_outbox_events_total",
			Help: "Total number of events enqueued to the transactional outbox",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordReservation учитывает успешно зарезервированные единицы.
func (m *StockMetrics) RecordReservation(qty int32) {
	m.reservedUnits.Add(float64(qty))
}

// RecordRelease учитывает возвращённые на склад единицы.
func (m *StockMetrics) RecordRelease(qty int32) {
	m.releasedUnits.Add(float64(qty))
}

// RecordInsufficientStock увеличивает счётчик отказов по нехватке стока.
func (m *StockMetrics) RecordInsufficientStock() {
	m.insufficient.Inc()
}

// RecordOrderOperation учитывает операцию жизненного цикла заказа.
func (m *StockMetrics) RecordOrderOperation(operation, result string) {
	m.orderOperations.WithLabelValues(operation, result).Inc()
}

// RecordOperationDuration записывает время выполнения операции.
func (m *StockMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *StockMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
