package store

import (
	"math"
	"sync"
	"time"
)

// PriceSample 一次价格观测。
type PriceSample struct {
	Time  time.Time
	Price float64
}

// PriceHistory 维护滚动窗口内的价格序列，用于波动率计算。
// 行情 goroutine 写入，做市 goroutine 读取，由内部锁保护。
type PriceHistory struct {
	mu      sync.RWMutex
	window  time.Duration
	samples []PriceSample
}

func NewPriceHistory(window time.Duration) *PriceHistory {
	return &PriceHistory{
		window:  window,
		samples: make([]PriceSample, 0, 256),
	}
}

// Observe 记录一次观测并淘汰窗口外的旧样本。
// 窗口以最新样本时间为基准，早于 now-window 的样本被丢弃。
func (h *PriceHistory) Observe(price float64, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, PriceSample{Time: now, Price: price})
	cut := now.Add(-h.window)
	idx := 0
	for idx < len(h.samples) && h.samples[idx].Time.Before(cut) {
		idx++
	}
	if idx > 0 {
		h.samples = append(h.samples[:0], h.samples[idx:]...)
	}
}

// LastPrice 最近一次观测价。没有任何观测时第二个返回值为 false。
func (h *PriceHistory) LastPrice() (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.samples) == 0 {
		return 0, false
	}
	return h.samples[len(h.samples)-1].Price, true
}

// VolatilityBps 窗口内价格极差相对最新价的基点数。
// 样本不足 2 个时返回 0。这是极差波动率，不是标准差。
func (h *PriceHistory) VolatilityBps() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.samples) < 2 {
		return 0
	}
	lo := h.samples[0].Price
	hi := h.samples[0].Price
	for _, s := range h.samples[1:] {
		if s.Price < lo {
			lo = s.Price
		}
		if s.Price > hi {
			hi = s.Price
		}
	}
	ref := h.samples[len(h.samples)-1].Price
	if ref <= 0 {
		return 0
	}
	return (hi - lo) / ref * 10000
}

// Samples 当前窗口内样本数。
func (h *PriceHistory) Samples() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}

// RestingOrder 本地记录的一张挂单。每侧至多一张，缺席即该侧无挂单。
type RestingOrder struct {
	ClOrdID string
	Side    string
	Price   float64
	Qty     float64
}

// OrderBook 维护自身仓位与每侧至多一张挂单。
// 本地记录是声明而非事实，只在启动对账时与交易所校准一次。
type OrderBook struct {
	mu       sync.RWMutex
	position float64
	orders   map[string]RestingOrder
}

func NewOrderBook() *OrderBook {
	return &OrderBook{orders: make(map[string]RestingOrder, 2)}
}

// SetPosition 覆盖仓位，仅在对账时调用。
func (b *OrderBook) SetPosition(qty float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.position = qty
}

// Position 当前净仓位。
func (b *OrderBook) Position() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.position
}

// SetOrder 覆盖某一侧的挂单槽位，order 为 nil 时清空。
func (b *OrderBook) SetOrder(side string, order *RestingOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if order == nil {
		delete(b.orders, side)
		return
	}
	o := *order
	o.Side = side
	b.orders[side] = o
}

// Order 返回某一侧挂单的副本。
func (b *OrderBook) Order(side string) (RestingOrder, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[side]
	return o, ok
}

// HasOrder 某一侧是否有挂单。
func (b *OrderBook) HasOrder(side string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.orders[side]
	return ok
}

// Orders 两侧挂单快照，固定 buy 在前。
func (b *OrderBook) Orders() []RestingOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]RestingOrder, 0, 2)
	for _, side := range []string{"buy", "sell"} {
		if o, ok := b.orders[side]; ok {
			out = append(out, o)
		}
	}
	return out
}

// OrdersToCancel 找出需要撤掉的挂单：距离最新价不足 cancelBps（有被立刻
// 吃掉的风险），或超过 rebalanceBps（报价已经失效）。只读，不改状态，
// 撤单确认后由调用方清理槽位。
func (b *OrderBook) OrdersToCancel(cancelBps, rebalanceBps, lastPrice float64) []RestingOrder {
	if lastPrice <= 0 {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []RestingOrder
	for _, side := range []string{"buy", "sell"} {
		o, ok := b.orders[side]
		if !ok {
			continue
		}
		dist := math.Abs(o.Price-lastPrice) / lastPrice * 10000
		if dist < cancelBps || dist > rebalanceBps {
			out = append(out, o)
		}
	}
	return out
}
