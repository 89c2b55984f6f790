package gateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type priceRecorder struct {
	mu     sync.Mutex
	prices []float64
}

func (r *priceRecorder) record(p float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices = append(r.prices, p)
}

func (r *priceRecorder) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.prices))
	copy(out, r.prices)
	return out
}

func waitForPrices(t *testing.T, rec *priceRecorder, n int, timeout time.Duration) []float64 {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := rec.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d prices, got %v", n, rec.snapshot())
	return nil
}

func TestPriceFeedDeliversPrices(t *testing.T) {
	var subMu sync.Mutex
	var subs []wsSubscribeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub wsSubscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subMu.Lock()
		subs = append(subs, sub)
		subMu.Unlock()

		frames := []string{
			`{"channel":"price","data":{"symbol":"BTC-USD","last_price":"50000.5"}}`,
			`{"channel":"price","data":{"symbol":"BTC-USD","last_price":"50001.25"}}`,
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// 挂住连接直到客户端断开
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := &priceRecorder{}
	feed := NewPriceFeed(wsURL(srv), "BTC-USD", nil)
	feed.OnPrice(rec.record)
	if err := feed.Start(); err != nil {
		t.Fatalf("start feed: %v", err)
	}
	defer feed.Stop()

	got := waitForPrices(t, rec, 2, 3*time.Second)
	if got[0] != 50000.5 || got[1] != 50001.25 {
		t.Fatalf("unexpected prices: %v", got)
	}

	subMu.Lock()
	defer subMu.Unlock()
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}
	if subs[0].Op != "subscribe" || subs[0].Channel != "price" || subs[0].Symbol != "BTC-USD" {
		t.Fatalf("unexpected subscription: %+v", subs[0])
	}
}

func TestPriceFeedFiltersFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub wsSubscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}

		frames := []string{
			`{"op":"subscribed","channel":"price","symbol":"BTC-USD"}`,
			`{"channel":"orders","data":{"cl_ord_id":"mm-buy-1a2b3c4d"}}`,
			`{"channel":"price","data":{"symbol":"ETH-USD","last_price":"3000"}}`,
			`not json at all`,
			`{"channel":"price","data":{"symbol":"BTC-USD","last_price":"49999.5"}}`,
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := &priceRecorder{}
	feed := NewPriceFeed(wsURL(srv), "BTC-USD", nil)
	feed.OnPrice(rec.record)
	if err := feed.Start(); err != nil {
		t.Fatalf("start feed: %v", err)
	}
	defer feed.Stop()

	got := waitForPrices(t, rec, 1, 3*time.Second)
	// 稍等确认没有多余推送混进来
	time.Sleep(100 * time.Millisecond)
	got = rec.snapshot()
	if len(got) != 1 || got[0] != 49999.5 {
		t.Fatalf("expected only the matching frame, got %v", got)
	}
}

func TestPriceFeedReconnects(t *testing.T) {
	var connCount int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&connCount, 1)

		var sub wsSubscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			conn.Close()
			return
		}
		frame := fmt.Sprintf(`{"channel":"price","data":{"symbol":"BTC-USD","last_price":"%d"}}`, 100+n)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))

		// 第一条连接立刻掐断，验证退避重连和重新订阅
		if n == 1 {
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := &priceRecorder{}
	feed := NewPriceFeed(wsURL(srv), "BTC-USD", nil)
	feed.OnPrice(rec.record)
	if err := feed.Start(); err != nil {
		t.Fatalf("start feed: %v", err)
	}
	defer feed.Stop()

	got := waitForPrices(t, rec, 2, 5*time.Second)
	if got[0] != 101 || got[1] != 102 {
		t.Fatalf("unexpected prices across reconnect: %v", got)
	}
	if atomic.LoadInt32(&connCount) < 2 {
		t.Fatalf("expected at least 2 connections, got %d", connCount)
	}
}

func TestPriceFeedStartValidation(t *testing.T) {
	feed := NewPriceFeed("", "BTC-USD", nil)
	if err := feed.Start(); err == nil {
		t.Fatal("expected error for missing url")
	}

	feed = NewPriceFeed("ws://localhost:1", "", nil)
	if err := feed.Start(); err == nil {
		t.Fatal("expected error for missing symbol")
	}
}

func TestPriceFeedStopWithoutStart(t *testing.T) {
	feed := NewPriceFeed("ws://localhost:1", "BTC-USD", nil)
	// 未启动时 Stop 应当直接返回
	feed.Stop()
}
