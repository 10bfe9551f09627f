// internal/service/intent/port/ports.go
package port

import (
	"context"
	"time"

	"tiffin/internal/service/intent/domain"
)

// ProductCatalog 是可信商品目录的出站端口。返回的 map 只包含存在的商品。
type ProductCatalog interface {
	ProductsByID(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// CreateOrderRequest 对应支付渠道的 create-order 请求体。
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// PaymentProvider 是支付渠道的出站端口。
type PaymentProvider interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*domain.ProviderOrder, error)
}

// IntentRegistry 登记一次性支付意图，订单服务之后凭渠道订单号认领。
type IntentRegistry interface {
	Put(ctx context.Context, intent *domain.PaymentIntent, ttl time.Duration) error
}
