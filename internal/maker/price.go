package maker

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"standx-maker-go/gateway"
)

// priceTick 返回合约的最小价格增量和价格小数位。
// BTC 系合约 tick 0.01 保留两位，其余 tick 0.1 保留一位。
func priceTick(symbol string) (tick float64, decimals int) {
	if strings.HasPrefix(symbol, "BTC") {
		return 0.01, 2
	}
	return 0.1, 1
}

// alignPrice 把目标价对齐到 tick：买向下取整、卖向上取整，
// 保证实际挂单距离不小于目标距离。
func alignPrice(price, tick float64, side string) float64 {
	if tick <= 0 {
		return price
	}
	if side == gateway.SideBuy {
		return math.Floor(price/tick) * tick
	}
	return math.Ceil(price/tick) * tick
}

func formatPrice(price float64, decimals int) string {
	return strconv.FormatFloat(price, 'f', decimals, 64)
}

// formatQty 数量固定三位小数。
func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', 3, 64)
}

// newClOrdID 生成形如 mm-buy-1a2b3c4d 的客户端订单号。
func newClOrdID(side string) string {
	id := uuid.New()
	return fmt.Sprintf("mm-%s-%x", side, id[:4])
}
