package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotPrice 表示消息合法但不是 price 频道推送（订阅确认、pong 等）。
var ErrNotPrice = errors.New("not a price update")

// wsEnvelope 对应 StandX WS 推送的外层包装。
type wsEnvelope struct {
	Op      string          `json:"op"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// ParsePriceUpdate 解析 price 频道消息，返回符号与最新价。
// 非 price 消息返回 ErrNotPrice，调用方应忽略。
func ParsePriceUpdate(raw []byte) (symbol string, price float64, err error) {
	var env wsEnvelope
	if err = json.Unmarshal(raw, &env); err != nil {
		return "", 0, fmt.Errorf("decode ws frame: %w", err)
	}
	if env.Channel != "price" || len(env.Data) == 0 {
		return "", 0, ErrNotPrice
	}
	var wp wirePrice
	if err = json.Unmarshal(env.Data, &wp); err != nil {
		return "", 0, fmt.Errorf("decode price data: %w", err)
	}
	price, err = wp.LastPrice.Float64()
	if err != nil {
		return "", 0, fmt.Errorf("parse last_price %q: %w", wp.LastPrice, err)
	}
	return wp.Symbol, price, nil
}
