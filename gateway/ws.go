package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"standx-maker-go/metrics"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsBackoffMin   = time.Second
	wsBackoffMax   = 30 * time.Second
)

// PriceFeed 订阅 StandX 价格频道并把最新价推给回调，断开后自动重连。
// 回调在 feed 自己的 goroutine 里执行，必须保持轻量（只做入库 + 唤醒）。
type PriceFeed struct {
	URL     string
	Symbol  string
	Dialer  *websocket.Dialer
	log     *zap.Logger
	onPrice func(price float64)

	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPriceFeed(wsURL, symbol string, log *zap.Logger) *PriceFeed {
	if log == nil {
		log = zap.NewNop()
	}
	return &PriceFeed{
		URL:    wsURL,
		Symbol: symbol,
		Dialer: websocket.DefaultDialer,
		log:    log,
	}
}

// OnPrice 注册价格回调，须在 Start 之前调用。
func (f *PriceFeed) OnPrice(fn func(price float64)) {
	f.onPrice = fn
}

// Start 启动后台连接循环。
func (f *PriceFeed) Start() error {
	if f.URL == "" {
		return fmt.Errorf("ws url required")
	}
	if f.Symbol == "" {
		return fmt.Errorf("symbol required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.ctx = ctx
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run()
	return nil
}

// Stop 断开连接并停止重连，等待后台 goroutine 退出。
func (f *PriceFeed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	f.mu.Lock()
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
	f.mu.Unlock()
	<-f.done
}

// run 连接循环，断开后指数退避重连（1s 起步，封顶 30s）。
func (f *PriceFeed) run() {
	defer close(f.done)
	backoff := wsBackoffMin
	for {
		if f.ctx.Err() != nil {
			return
		}
		conn, _, err := f.Dialer.DialContext(f.ctx, f.URL, nil)
		if err == nil {
			err = f.subscribe(conn)
			if err == nil {
				f.mu.Lock()
				f.conn = conn
				f.mu.Unlock()
				metrics.SetWSConnected(true)
				f.log.Info("价格流已连接", zap.String("symbol", f.Symbol))
				backoff = wsBackoffMin

				f.readLoop(conn)

				f.mu.Lock()
				f.conn = nil
				f.mu.Unlock()
				metrics.SetWSConnected(false)
			} else {
				_ = conn.Close()
			}
		}
		if f.ctx.Err() != nil {
			return
		}
		if err != nil {
			f.log.Warn("价格流连接失败", zap.Error(err), zap.Duration("retry_in", backoff))
		} else {
			f.log.Warn("价格流断开，准备重连", zap.Duration("retry_in", backoff))
		}
		metrics.WSReconnects.Inc()
		select {
		case <-f.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsBackoffMax {
			backoff = wsBackoffMax
		}
	}
}

type wsSubscribeRequest struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

func (f *PriceFeed) subscribe(conn *websocket.Conn) error {
	sub := wsSubscribeRequest{Op: "subscribe", Channel: "price", Symbol: f.Symbol}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe %s: %w", f.Symbol, err)
	}
	return nil
}

// readLoop 读取消息直到连接断开，读超时由 pong 和正常消息共同续期。
func (f *PriceFeed) readLoop(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go f.pingLoop(conn, pingDone)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if f.ctx.Err() == nil {
				f.log.Warn("价格流读取失败", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		f.handleMessage(msg)
	}
}

func (f *PriceFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (f *PriceFeed) handleMessage(raw []byte) {
	symbol, price, err := ParsePriceUpdate(raw)
	if err != nil {
		if !errors.Is(err, ErrNotPrice) {
			f.log.Debug("忽略无法解析的消息", zap.Error(err))
		}
		return
	}
	// 订阅的是单一符号，其他推送直接丢弃
	if symbol != "" && symbol != f.Symbol {
		return
	}
	if f.onPrice != nil {
		f.onPrice(price)
	}
}
