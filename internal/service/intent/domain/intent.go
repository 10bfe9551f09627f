// internal/service/intent/domain/intent.go
package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCart         = errors.New("cart is empty or has a non-positive quantity")
	ErrProductNotFound     = errors.New("product not found")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// CartLine 是客户端提交的购物车行，只有商品 ID 和数量，价格一律以服务端目录为准。
type CartLine struct {
	ProductID string `json:"id"`
	Quantity  int    `json:"quantity"`
}

// Product 是可信商品目录中的一条记录，Price 为主货币单位。
type Product struct {
	ID    string
	Name  string
	Price float64
}

// ProviderOrder 是支付渠道返回的订单对象，原样回传给客户端。
type ProviderOrder struct {
	ID         string `json:"id"`
	Entity     string `json:"entity"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	CreatedAt  int64  `json:"created_at"`
}

// PaymentIntent 是服务端登记的一次性收款授权，后续记录订单时据此确定金额和归属。
type PaymentIntent struct {
	ProviderOrderID string
	CustomerID      string
	Amount          int64
	Currency        string
	Receipt         string
	CreatedAt       time.Time
}

// NormalizeCart 校验并合并购物车行：同一商品的数量累加，输出按商品 ID 排序。
func NormalizeCart(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidCart
	}
	merged := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity <= 0 {
			return nil, ErrInvalidCart
		}
		merged[l.ProductID] += l.Quantity
	}
	out := make([]CartLine, 0, len(merged))
	for id, qty := range merged {
		out = append(out, CartLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// ComputeAmount 用目录价格计算应收金额（最小货币单位）。任一商品不在目录中即失败。
func ComputeAmount(lines []CartLine, catalog map[string]Product) (int64, error) {
	var total int64
	for _, l := range lines {
		p, ok := catalog[l.ProductID]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrProductNotFound, l.ProductID)
		}
		total += ToMinorUnits(p.Price) * int64(l.Quantity)
	}
	return total, nil
}

// ToMinorUnits 把主单位价格换算为最小货币单位，四舍五入。
func ToMinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

// NewReceipt 生成每次调用唯一的收据号，供支付渠道侧审计使用。
func NewReceipt(now time.Time) string {
	return fmt.Sprintf("receipt_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}
