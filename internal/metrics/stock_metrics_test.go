package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func gatherValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range family.GetMetric() {
			if metric.GetCounter() != nil {
				total += metric.GetCounter().GetValue()
			}
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func gatherHistogramCount(t *testing.T, registry *prometheus.Registry, name string) uint64 {
	t.Helper()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total uint64
		for _, metric := range family.GetMetric() {
			if metric.GetHistogram() != nil {
				total += metric.GetHistogram().GetSampleCount()
			}
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestStockMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newStockMetricsWithRegisterer(registry)

	m.RecordReservation(3)
	m.RecordReservation(2)
	m.RecordRelease(4)
	m.RecordInsufficientStock()
	m.RecordOutboxEvent()

	if got := gatherValue(t, registry, "inventix_stock_reserved_units_total"); got != 5 {
		t.Errorf("expected 5 reserved units, got %v", got)
	}
	if got := gatherValue(t, registry, "inventix_stock_released_units_total"); got != 4 {
		t.Errorf("expected 4 released units, got %v", got)
	}
	if got := gatherValue(t, registry, "inventix_stock_insufficient_total"); got != 1 {
		t.Errorf("expected 1 insufficient rejection, got %v", got)
	}
	if got := gatherValue(t, registry, "inventix_outbox_events_total"); got != 1 {
		t.Errorf("expected 1 outbox event, got %v", got)
	}
}

func TestStockMetricsOrderOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newStockMetricsWithRegisterer(registry)

	m.RecordOrderOperation("create", "ok")
	m.RecordOrderOperation("create", "insufficient_stock")
	m.RecordOrderOperation("delete", "ok")
	m.RecordOperationDuration("create", 15*time.Millisecond)

	if got := gatherValue(t, registry, "inventix_order_operations_total"); got != 3 {
		t.Errorf("expected 3 operations, got %v", got)
	}
	if got := gatherHistogramCount(t, registry, "inventix_order_operation_duration_seconds"); got != 1 {
		t.Errorf("expected 1 duration sample, got %v", got)
	}
}

// Повторная регистрация в одном registerer должна вернуть существующие коллекторы.
func TestStockMetricsDoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newStockMetricsWithRegisterer(registry)
	second := newStockMetricsWithRegisterer(registry)

	first.RecordReservation(1)
	second.RecordReservation(2)

	if got := gatherValue(t, registry, "inventix_stock_reserved_units_total"); got != 3 {
		t.Errorf("both instances must share the collector, got %v", got)
	}
}
