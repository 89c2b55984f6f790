package maker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"standx-maker-go/gateway"
	"standx-maker-go/infrastructure/alert"
	"standx-maker-go/infrastructure/logger"
	"standx-maker-go/internal/store"
	"standx-maker-go/metrics"
)

// Gateway 做市循环消费的交易所能力集，生产实现是 gateway.Client。
type Gateway interface {
	QueryPositions(ctx context.Context, symbol string) ([]gateway.Position, error)
	QueryOpenOrders(ctx context.Context, symbol string) ([]gateway.OpenOrder, error)
	NewOrder(ctx context.Context, req gateway.NewOrderRequest) (*gateway.OrderAck, error)
	CancelOrder(ctx context.Context, clOrdID string) error
}

// AlertSink 告警出口，生产实现是 alert.Manager。失败由实现自行吞掉。
type AlertSink interface {
	Notify(title, message, priority string)
}

// State 引擎状态
type State int

const (
	// StateIdle 已构造未运行
	StateIdle State = iota
	// StateRunning 循环运行中
	StateRunning
	// StateStopped 终态，循环已退出
	StateStopped
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// QuoteParams 可热更新的报价参数。
type QuoteParams struct {
	OrderDistanceBps       float64
	CancelDistanceBps      float64
	RebalanceDistanceBps   float64
	OrderSize              float64
	VolatilityThresholdBps float64
}

// Config 做市配置
type Config struct {
	Symbol      string
	MaxPosition float64
	TickTimeout time.Duration // 无行情时的兜底tick间隔，默认5秒
	Quote       QuoteParams
}

// Components 做市依赖组件
type Components struct {
	Gateway Gateway
	Alerts  AlertSink
	Prices  *store.PriceHistory
	Book    *store.OrderBook
	Logger  *logger.Logger
}

// Maker 单合约做市引擎：围绕最新价对称报价，每侧至多一张挂单。
// 所有状态变更都发生在串行的tick里，行情线程只投递价格和唤醒信号。
type Maker struct {
	config   Config
	exchange Gateway
	alerts   AlertSink
	prices   *store.PriceHistory
	book     *store.OrderBook
	log      *logger.Logger

	state State
	mu    sync.RWMutex

	wakeChan chan struct{}
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// New 创建做市引擎
func New(cfg Config, components Components) (*Maker, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(components); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 5 * time.Second
	}

	return &Maker{
		config:   cfg,
		exchange: components.Gateway,
		alerts:   components.Alerts,
		prices:   components.Prices,
		book:     components.Book,
		log:      components.Logger,
		state:    StateIdle,
		wakeChan: make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Initialize 从交易所同步仓位和挂单，失败时引擎不得启动。
// 这是唯一的对账点，之后的本地状态直到停机都被视为可信。
func (m *Maker) Initialize(ctx context.Context) error {
	m.log.Info("从交易所同步初始状态", zap.String("symbol", m.config.Symbol))

	positions, err := m.exchange.QueryPositions(ctx, m.config.Symbol)
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}
	if len(positions) > 0 {
		m.book.SetPosition(positions[0].Qty)
	} else {
		m.book.SetPosition(0)
	}

	orders, err := m.exchange.QueryOpenOrders(ctx, m.config.Symbol)
	if err != nil {
		return fmt.Errorf("query open orders: %w", err)
	}
	// 同侧出现多张时保留最后一张，多余的不纳入跟踪
	for _, o := range orders {
		switch o.Side {
		case gateway.SideBuy, gateway.SideSell:
			m.book.SetOrder(o.Side, &store.RestingOrder{
				ClOrdID: o.ClOrdID,
				Side:    o.Side,
				Price:   o.Price,
				Qty:     o.Qty,
			})
		}
	}

	m.log.Info("初始状态同步完成",
		zap.Float64("position", m.book.Position()),
		zap.Bool("buy_order", m.book.HasOrder(gateway.SideBuy)),
		zap.Bool("sell_order", m.book.HasOrder(gateway.SideSell)))
	metrics.Position.Set(m.book.Position())
	return nil
}

// OnPrice 行情回调：观测入库并唤醒循环，绝不触碰订单簿。
func (m *Maker) OnPrice(price float64) {
	m.prices.Observe(price, time.Now())
	m.Wake()
}

// Wake 电平触发的唤醒信号，tick前的多次观测合并为一次唤醒。
func (m *Maker) Wake() {
	select {
	case m.wakeChan <- struct{}{}:
	default:
	}
}

// Run 运行做市循环，阻塞直到 Stop 或 ctx 取消。只能调用一次。
func (m *Maker) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return fmt.Errorf("maker already started (state: %s)", m.state)
	}
	m.state = StateRunning
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.state = StateStopped
		m.mu.Unlock()
		close(m.doneChan)
		m.log.Info("做市循环已停止")
	}()

	m.log.Info("做市循环启动",
		zap.String("symbol", m.config.Symbol),
		zap.Duration("tick_timeout", m.config.TickTimeout))

	timer := time.NewTimer(m.config.TickTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("上下文取消，做市循环退出")
			return nil
		case <-m.stopChan:
			m.log.Info("收到停止信号，做市循环退出")
			return nil
		case <-m.wakeChan:
		case <-timer.C:
		}

		start := time.Now()
		result, err := m.safeTick(ctx)
		elapsed := time.Since(start)
		if err != nil {
			result = "error"
			m.log.Error("tick 执行失败", zap.Error(err))
			m.notify("StandX 做市异常",
				fmt.Sprintf("%s tick 异常: %v", m.config.Symbol, err), alert.PriorityHigh)
		}
		metrics.ObserveTick(result, elapsed)
		m.log.LogTick(result, map[string]interface{}{
			"elapsed_ms": elapsed.Milliseconds(),
		})
		if err != nil {
			// 出错后稍作停顿，循环继续
			select {
			case <-ctx.Done():
				return nil
			case <-m.stopChan:
				return nil
			case <-time.After(time.Second):
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.snapshotConfig().TickTimeout)
	}
}

// Stop 停止循环，等当前tick完成后退出。
func (m *Maker) Stop() error {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state == StateIdle {
		return fmt.Errorf("maker not running (state: %s)", state)
	}

	m.stopOnce.Do(func() { close(m.stopChan) })

	select {
	case <-m.doneChan:
	case <-time.After(10 * time.Second):
		m.log.Warn("等待做市循环退出超时")
	}
	return nil
}

// State 当前引擎状态。
func (m *Maker) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ApplyQuoteParams 热更新报价参数，下一个tick开始生效。
// 钱包、交易对和波动率窗口不支持热更，需要重启。
func (m *Maker) ApplyQuoteParams(p QuoteParams) {
	if p.OrderDistanceBps <= 0 || p.CancelDistanceBps <= 0 || p.RebalanceDistanceBps <= 0 ||
		p.OrderSize <= 0 || p.VolatilityThresholdBps <= 0 {
		m.log.Warn("忽略非法的报价参数更新",
			zap.Float64("order_distance_bps", p.OrderDistanceBps),
			zap.Float64("cancel_distance_bps", p.CancelDistanceBps),
			zap.Float64("rebalance_distance_bps", p.RebalanceDistanceBps),
			zap.Float64("order_size", p.OrderSize),
			zap.Float64("volatility_threshold_bps", p.VolatilityThresholdBps))
		return
	}
	m.mu.Lock()
	m.config.Quote = p
	m.mu.Unlock()
	m.log.Info("报价参数已更新",
		zap.Float64("order_distance_bps", p.OrderDistanceBps),
		zap.Float64("cancel_distance_bps", p.CancelDistanceBps),
		zap.Float64("rebalance_distance_bps", p.RebalanceDistanceBps),
		zap.Float64("order_size", p.OrderSize),
		zap.Float64("volatility_threshold_bps", p.VolatilityThresholdBps))
}

func (m *Maker) snapshotConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// safeTick 兜住tick内的意外panic，循环不因单次tick终止。
func (m *Maker) safeTick(ctx context.Context) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return m.tick(ctx)
}

// tick 单次做市决策，自上而下短路：
// 无价格 → 仓位超限 → 撤单 → 波动率闸门 → 补单。
func (m *Maker) tick(ctx context.Context) (string, error) {
	cfg := m.snapshotConfig()

	last, ok := m.prices.LastPrice()
	if !ok {
		m.log.Debug("等待价格数据")
		return "no_price", nil
	}

	position := m.book.Position()
	vol := m.prices.VolatilityBps()
	metrics.UpdateStateMetrics(position, last, vol, m.prices.Samples())

	if math.Abs(position) >= cfg.MaxPosition {
		m.log.LogRisk("position_limit", map[string]interface{}{
			"position":     position,
			"max_position": cfg.MaxPosition,
		})
		return "position_cap", nil
	}

	toCancel := m.book.OrdersToCancel(cfg.Quote.CancelDistanceBps, cfg.Quote.RebalanceDistanceBps, last)
	if len(toCancel) > 0 {
		for _, o := range toCancel {
			m.cancelOrder(ctx, cfg, o)
		}
		// 本轮不补单：新价位可能立刻又落进撤单区间
		return "cancel", nil
	}

	if vol > cfg.Quote.VolatilityThresholdBps {
		m.log.Debug("波动率过高，暂停报价",
			zap.Float64("volatility_bps", vol),
			zap.Float64("threshold_bps", cfg.Quote.VolatilityThresholdBps))
		return "volatility_pause", nil
	}

	return m.placeMissing(ctx, cfg, last), nil
}

// placeMissing 为缺单的一侧补挂单。
func (m *Maker) placeMissing(ctx context.Context, cfg Config, last float64) string {
	missingBuy := !m.book.HasOrder(gateway.SideBuy)
	missingSell := !m.book.HasOrder(gateway.SideSell)
	if !missingBuy && !missingSell {
		return "hold"
	}

	if missingBuy {
		m.placeOrder(ctx, cfg, gateway.SideBuy, last*(1-cfg.Quote.OrderDistanceBps/10000))
	}
	if missingSell {
		m.placeOrder(ctx, cfg, gateway.SideSell, last*(1+cfg.Quote.OrderDistanceBps/10000))
	}
	return "quote"
}

// placeOrder 提交一张限价单。成功才落地本地记录，失败只告警，
// 空槽位保证下一个tick自动重试。
func (m *Maker) placeOrder(ctx context.Context, cfg Config, side string, price float64) {
	clOrdID := newClOrdID(side)
	tick, decimals := priceTick(cfg.Symbol)
	aligned := alignPrice(price, tick, side)
	priceStr := formatPrice(aligned, decimals)
	qtyStr := formatQty(cfg.Quote.OrderSize)

	m.log.LogOrder("place", clOrdID, map[string]interface{}{
		"side":  side,
		"price": priceStr,
		"qty":   qtyStr,
	})

	ack, err := m.exchange.NewOrder(ctx, gateway.NewOrderRequest{
		Symbol:    cfg.Symbol,
		Side:      side,
		OrderType: gateway.OrderTypeLimit,
		Qty:       qtyStr,
		Price:     priceStr,
		ClOrdID:   clOrdID,
	})
	switch {
	case err == nil:
		m.book.SetOrder(side, &store.RestingOrder{
			ClOrdID: clOrdID,
			Side:    side,
			Price:   aligned,
			Qty:     cfg.Quote.OrderSize,
		})
		metrics.IncrementOrderPlaced(side)
		m.log.LogOrder("place_ok", clOrdID, nil)
	case errors.Is(err, gateway.ErrRejected):
		reason := err.Error()
		if ack != nil && ack.Message != "" {
			reason = ack.Message
		}
		m.log.Error("下单被拒",
			zap.String("cl_ord_id", clOrdID),
			zap.String("side", side),
			zap.String("reason", reason))
		metrics.IncrementRejection()
		metrics.IncrementOrderFailure("place")
		m.notify("StandX 下单失败",
			fmt.Sprintf("%s %s 下单失败: %s", cfg.Symbol, side, reason), alert.PriorityHigh)
	default:
		m.log.Error("下单异常",
			zap.String("cl_ord_id", clOrdID),
			zap.String("side", side),
			zap.Error(err))
		metrics.IncrementOrderFailure("place")
		m.notify("StandX 下单异常",
			fmt.Sprintf("%s %s 下单异常: %v", cfg.Symbol, side, err), alert.PriorityHigh)
	}
}

// cancelOrder 撤一张挂单。失败保留槽位，下一个tick重新评估后重试。
func (m *Maker) cancelOrder(ctx context.Context, cfg Config, o store.RestingOrder) {
	m.log.LogOrder("cancel", o.ClOrdID, map[string]interface{}{
		"side":  o.Side,
		"price": o.Price,
	})
	if err := m.exchange.CancelOrder(ctx, o.ClOrdID); err != nil {
		m.log.Error("撤单失败",
			zap.String("cl_ord_id", o.ClOrdID),
			zap.Error(err))
		metrics.IncrementOrderFailure("cancel")
		m.notify("StandX 撤单失败",
			fmt.Sprintf("%s 撤单失败: %v", cfg.Symbol, err), alert.PriorityHigh)
		return
	}
	m.book.SetOrder(o.Side, nil)
	metrics.IncrementOrderCanceled(o.Side)
}

func (m *Maker) notify(title, message, priority string) {
	if m.alerts == nil {
		return
	}
	m.alerts.Notify(title, message, priority)
}

// validateConfig 验证配置
func validateConfig(cfg Config) error {
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if cfg.Quote.OrderDistanceBps <= 0 {
		return errors.New("order_distance_bps must be > 0")
	}
	if cfg.Quote.CancelDistanceBps <= 0 {
		return errors.New("cancel_distance_bps must be > 0")
	}
	if cfg.Quote.RebalanceDistanceBps <= 0 {
		return errors.New("rebalance_distance_bps must be > 0")
	}
	if cfg.Quote.OrderSize <= 0 {
		return errors.New("order_size must be > 0")
	}
	if cfg.MaxPosition <= 0 {
		return errors.New("max_position must be > 0")
	}
	if cfg.Quote.VolatilityThresholdBps <= 0 {
		return errors.New("volatility_threshold_bps must be > 0")
	}
	if cfg.TickTimeout < 0 {
		return errors.New("tick_timeout must be >= 0")
	}
	return nil
}

// validateComponents 验证组件
func validateComponents(comp Components) error {
	if comp.Gateway == nil {
		return errors.New("gateway is required")
	}
	if comp.Prices == nil {
		return errors.New("price history is required")
	}
	if comp.Book == nil {
		return errors.New("order book is required")
	}
	if comp.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}
