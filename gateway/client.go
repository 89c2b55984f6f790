package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client StandX 永续合约 REST 客户端。HTTPClient 可注入 httptest，
// 默认不发起真实网络调用；Limiter 为空时不限流。
type Client struct {
	BaseURL    string
	APIToken   string
	APISecret  string
	HTTPClient *http.Client
	Limiter    RateLimiter
}

// NewClient 构造带默认超时的客户端。
func NewClient(baseURL, apiToken, apiSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    baseURL,
		APIToken:   apiToken,
		APISecret:  apiSecret,
		HTTPClient: &http.Client{Timeout: timeout},
		Limiter:    NewTokenBucketLimiter(5, 10),
	}
}

// QuerySymbolPrice 查询最新成交价。
func (c *Client) QuerySymbolPrice(ctx context.Context, symbol string) (float64, error) {
	raw, err := c.get(ctx, "/api/query_symbol_price", url.Values{"symbol": {symbol}})
	if err != nil {
		return 0, err
	}
	var wp wirePrice
	if err := json.Unmarshal(raw, &wp); err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}
	price, err := wp.LastPrice.Float64()
	if err != nil {
		return 0, fmt.Errorf("parse last_price %q: %w", wp.LastPrice, err)
	}
	return price, nil
}

// QueryPositions 查询当前仓位。
func (c *Client) QueryPositions(ctx context.Context, symbol string) ([]Position, error) {
	raw, err := c.get(ctx, "/api/query_positions", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}
	list, err := unwrapList(raw, "positions")
	if err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	var wire []wirePosition
	if err := json.Unmarshal(list, &wire); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	out := make([]Position, 0, len(wire))
	for _, w := range wire {
		out = append(out, Position{
			Symbol:     w.Symbol,
			Qty:        numFloat(w.Qty),
			EntryPrice: numFloat(w.EntryPrice),
			UPnL:       numFloat(w.UPnL),
		})
	}
	return out, nil
}

// QueryOpenOrders 查询未成交挂单。
func (c *Client) QueryOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	raw, err := c.get(ctx, "/api/query_open_orders", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}
	list, err := unwrapList(raw, "orders")
	if err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	var wire []wireOrder
	if err := json.Unmarshal(list, &wire); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	out := make([]OpenOrder, 0, len(wire))
	for _, w := range wire {
		out = append(out, OpenOrder{
			ClOrdID: w.ClOrdID,
			Symbol:  w.Symbol,
			Side:    w.Side,
			Price:   numFloat(w.Price),
			Qty:     numFloat(w.Qty),
		})
	}
	return out, nil
}

// NewOrder 提交限价单。业务拒绝（code != 0）时同时返回应答和包装了
// ErrRejected 的错误，调用方可以从应答里取出拒绝原因。
func (c *Client) NewOrder(ctx context.Context, req NewOrderRequest) (*OrderAck, error) {
	raw, err := c.post(ctx, "/api/new_order", req)
	if err != nil {
		return nil, err
	}
	var ack OrderAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, fmt.Errorf("decode order ack: %w", err)
	}
	if ack.Code != 0 {
		return &ack, fmt.Errorf("%w: code=%d message=%s", ErrRejected, ack.Code, ack.Message)
	}
	return &ack, nil
}

// CancelOrder 按客户端订单号撤单。
func (c *Client) CancelOrder(ctx context.Context, clOrdID string) error {
	raw, err := c.post(ctx, "/api/cancel_order", map[string]string{"cl_ord_id": clOrdID})
	if err != nil {
		return err
	}
	var ack OrderAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return fmt.Errorf("decode cancel ack: %w", err)
	}
	if ack.Code != 0 {
		return fmt.Errorf("%w: code=%d message=%s", ErrRejected, ack.Code, ack.Message)
	}
	return nil
}

// QueryBalance 查询账户权益。
func (c *Client) QueryBalance(ctx context.Context) (*Balance, error) {
	raw, err := c.get(ctx, "/api/query_balance", nil)
	if err != nil {
		return nil, err
	}
	var wb wireBalance
	if err := json.Unmarshal(raw, &wb); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	return &Balance{
		Equity:  numFloat(wb.Equity),
		Balance: numFloat(wb.Balance),
		UPnL:    numFloat(wb.UPnL),
	}, nil
}

// QueryTrades 查询最近成交，limit <= 0 时由服务端决定条数。
func (c *Client) QueryTrades(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	q := url.Values{"symbol": {symbol}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	raw, err := c.get(ctx, "/api/query_trades", q)
	if err != nil {
		return nil, err
	}
	list, err := unwrapList(raw, "trades")
	if err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}
	var wire []wireTrade
	if err := json.Unmarshal(list, &wire); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}
	out := make([]Trade, 0, len(wire))
	for _, w := range wire {
		out = append(out, Trade{
			Time:   w.Time,
			Symbol: w.Symbol,
			Side:   w.Side,
			Price:  numFloat(w.Price),
			Qty:    numFloat(w.Qty),
			PnL:    numFloat(w.PnL),
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	if c.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
	if c.APISecret != "" {
		req.Header.Set("X-API-Secret", c.APISecret)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s status %d: %s", req.Method, req.URL.Path, resp.StatusCode, truncate(raw, 256))
	}
	return raw, nil
}

// unwrapList 兼容两种响应形态：裸数组，或 {"positions": [...]} 这类包装对象。
// 包装对象缺少对应键时按空列表处理。
func unwrapList(raw []byte, key string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return trimmed, nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, err
	}
	if inner, ok := wrapper[key]; ok {
		return inner, nil
	}
	return json.RawMessage("[]"), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
