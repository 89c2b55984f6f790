// Package metrics provides Prometheus metrics for the quoting agent.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "standx"
	subsystem = "maker"
)

// Registry 本仓库所有指标注册到独立registry，避免默认registry的隐式全局状态
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// tick循环
var (
	TicksTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ticks_total",
		Help:      "Tick executions by result (quote, hold, cancel, no_price, position_cap, volatility_pause, error)",
	}, []string{"result"})

	TickDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "tick_duration_seconds",
		Help:      "Duration of a single tick",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// 订单
var (
	OrdersPlaced = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "orders_placed_total",
		Help:      "Orders accepted by the exchange, by side",
	}, []string{"side"})

	OrdersCanceled = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "orders_canceled_total",
		Help:      "Orders successfully canceled, by side",
	}, []string{"side"})

	OrderFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "order_failures_total",
		Help:      "Failed exchange calls, by operation (place, cancel)",
	}, []string{"op"})

	Rejections = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rejections_total",
		Help:      "Business rejections (non-zero ack code) from the exchange",
	})
)

// 状态快照
var (
	Position = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "position",
		Help:      "Current signed position",
	})

	LastPrice = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "last_price",
		Help:      "Last observed market price",
	})

	VolatilityBps = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "volatility_bps",
		Help:      "Range volatility over the rolling window, in bps",
	})

	PriceSamples = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "price_samples",
		Help:      "Samples currently retained in the price window",
	})
)

// 连接与告警
var (
	WSConnected = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ws_connected",
		Help:      "1 when the market data WebSocket is connected",
	})

	WSReconnects = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ws_reconnects_total",
		Help:      "WebSocket reconnect attempts",
	})

	AlertsSent = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "alerts_sent_total",
		Help:      "Alerts delivered to at least one channel, by priority",
	}, []string{"priority"})
)

// UpdateStateMetrics 一次性刷新状态类gauge，tick结束时调用
func UpdateStateMetrics(position, lastPrice, volatilityBps float64, samples int) {
	Position.Set(position)
	LastPrice.Set(lastPrice)
	VolatilityBps.Set(volatilityBps)
	PriceSamples.Set(float64(samples))
}

// ObserveTick 记录一次tick的结果与耗时
func ObserveTick(result string, elapsed time.Duration) {
	TicksTotal.WithLabelValues(result).Inc()
	TickDuration.Observe(elapsed.Seconds())
}

// IncrementOrderPlaced 下单成功计数
func IncrementOrderPlaced(side string) {
	OrdersPlaced.WithLabelValues(side).Inc()
}

// IncrementOrderCanceled 撤单成功计数
func IncrementOrderCanceled(side string) {
	OrdersCanceled.WithLabelValues(side).Inc()
}

// IncrementOrderFailure 交易所调用失败计数
func IncrementOrderFailure(op string) {
	OrderFailures.WithLabelValues(op).Inc()
}

// IncrementRejection 业务拒单计数
func IncrementRejection() {
	Rejections.Inc()
}

// SetWSConnected 更新行情连接状态
func SetWSConnected(connected bool) {
	if connected {
		WSConnected.Set(1)
	} else {
		WSConnected.Set(0)
	}
}

var ready atomic.Bool

// SetReady 标记进程就绪，healthz随之返回200
func SetReady(v bool) {
	ready.Store(v)
}

// StartMetricsServer 启动Prometheus指标服务器（含healthz）
func StartMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
