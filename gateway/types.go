package gateway

import (
	"encoding/json"
	"errors"
)

// 订单方向常量，与 StandX 接口的取值保持一致（小写）。
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// OrderTypeLimit 是做市使用的唯一订单类型。
const OrderTypeLimit = "limit"

// ErrRejected 表示交易所受理了请求但返回了非零业务码（价格非法、保证金不足等）。
// 传输层错误（网络、超时、非 2xx）不会包装此错误。
var ErrRejected = errors.New("exchange rejected request")

// Position 单个合约仓位。qty 有符号，正为多、负为空。
type Position struct {
	Symbol     string
	Qty        float64
	EntryPrice float64
	UPnL       float64
}

// OpenOrder 交易所报告的未成交挂单。
type OpenOrder struct {
	ClOrdID string
	Symbol  string
	Side    string
	Price   float64
	Qty     float64
}

// OrderAck 下单/撤单接口的应答，code == 0 表示受理成功。
type OrderAck struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewOrderRequest 下单请求体。价格与数量由调用方格式化成字符串，
// 避免浮点序列化引入超出 tick 精度的小数位。
type NewOrderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	OrderType string `json:"order_type"`
	Qty       string `json:"qty"`
	Price     string `json:"price"`
	ClOrdID   string `json:"cl_ord_id"`
}

// Balance 账户权益快照。
type Balance struct {
	Equity  float64
	Balance float64
	UPnL    float64
}

// Trade 历史成交记录。
type Trade struct {
	Time   int64
	Symbol string
	Side   string
	Price  float64
	Qty    float64
	PnL    float64
}

// StandX 的数值字段在 JSON 里以字符串传输（偶尔也会是裸数字），
// wire 结构统一用 json.Number 接收，再在客户端边界转成 float64。

type wirePrice struct {
	Symbol    string      `json:"symbol"`
	LastPrice json.Number `json:"last_price"`
}

type wirePosition struct {
	Symbol     string      `json:"symbol"`
	Qty        json.Number `json:"qty"`
	EntryPrice json.Number `json:"entry_price"`
	UPnL       json.Number `json:"upnl"`
}

type wireOrder struct {
	ClOrdID string      `json:"cl_ord_id"`
	Symbol  string      `json:"symbol"`
	Side    string      `json:"side"`
	Price   json.Number `json:"price"`
	Qty     json.Number `json:"qty"`
}

type wireBalance struct {
	Equity  json.Number `json:"equity"`
	Balance json.Number `json:"balance"`
	UPnL    json.Number `json:"upnl"`
}

type wireTrade struct {
	Time   int64       `json:"time"`
	Symbol string      `json:"symbol"`
	Side   string      `json:"side"`
	Price  json.Number `json:"price"`
	Qty    json.Number `json:"qty"`
	PnL    json.Number `json:"pnl"`
}

func numFloat(n json.Number) float64 {
	f, _ := n.Float64()
	return f
}
