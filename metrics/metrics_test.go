package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestUpdateStateMetrics(t *testing.T) {
	Position.Set(0)
	LastPrice.Set(0)
	VolatilityBps.Set(0)
	PriceSamples.Set(0)

	UpdateStateMetrics(-0.25, 50123.5, 42.0, 7)

	if testutil.ToFloat64(Position) != -0.25 {
		t.Errorf("Expected Position to be -0.25, got %f", testutil.ToFloat64(Position))
	}
	if testutil.ToFloat64(LastPrice) != 50123.5 {
		t.Errorf("Expected LastPrice to be 50123.5, got %f", testutil.ToFloat64(LastPrice))
	}
	if testutil.ToFloat64(VolatilityBps) != 42.0 {
		t.Errorf("Expected VolatilityBps to be 42.0, got %f", testutil.ToFloat64(VolatilityBps))
	}
	if testutil.ToFloat64(PriceSamples) != 7 {
		t.Errorf("Expected PriceSamples to be 7, got %f", testutil.ToFloat64(PriceSamples))
	}
}

func TestOrderCounters(t *testing.T) {
	OrdersPlaced.Reset()
	OrdersCanceled.Reset()
	OrderFailures.Reset()

	IncrementOrderPlaced("buy")
	IncrementOrderPlaced("sell")
	IncrementOrderCanceled("buy")
	IncrementOrderFailure("cancel")

	if got := testutil.ToFloat64(OrdersPlaced.WithLabelValues("buy")); got != 1.0 {
		t.Errorf("Expected OrdersPlaced[buy] to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(OrdersPlaced.WithLabelValues("sell")); got != 1.0 {
		t.Errorf("Expected OrdersPlaced[sell] to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(OrdersCanceled.WithLabelValues("buy")); got != 1.0 {
		t.Errorf("Expected OrdersCanceled[buy] to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(OrderFailures.WithLabelValues("cancel")); got != 1.0 {
		t.Errorf("Expected OrderFailures[cancel] to be 1, got %f", got)
	}
}

func TestObserveTick(t *testing.T) {
	TicksTotal.Reset()

	ObserveTick("quote", 5*time.Millisecond)
	ObserveTick("quote", 7*time.Millisecond)
	ObserveTick("no_price", time.Millisecond)

	if got := testutil.ToFloat64(TicksTotal.WithLabelValues("quote")); got != 2.0 {
		t.Errorf("Expected TicksTotal[quote] to be 2, got %f", got)
	}
	if got := testutil.ToFloat64(TicksTotal.WithLabelValues("no_price")); got != 1.0 {
		t.Errorf("Expected TicksTotal[no_price] to be 1, got %f", got)
	}
}

func TestSetWSConnected(t *testing.T) {
	SetWSConnected(true)
	if testutil.ToFloat64(WSConnected) != 1 {
		t.Errorf("Expected WSConnected to be 1, got %f", testutil.ToFloat64(WSConnected))
	}

	SetWSConnected(false)
	if testutil.ToFloat64(WSConnected) != 0 {
		t.Errorf("Expected WSConnected to be 0, got %f", testutil.ToFloat64(WSConnected))
	}
}
