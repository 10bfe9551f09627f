// internal/service/intent/infrastructure/sandbox_provider.go
package infrastructure

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"tiffin/internal/service/intent/domain"
	"tiffin/internal/service/intent/port"
)

// SandboxProvider 在本地模拟支付渠道的 create-order，payment.baseUrl 为 "sandbox" 时启用。
type SandboxProvider struct{}

func (SandboxProvider) CreateOrder(_ context.Context, req *port.CreateOrderRequest) (*domain.ProviderOrder, error) {
	return &domain.ProviderOrder{
		ID:        "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		Entity:    "order",
		Amount:    req.Amount,
		AmountDue: req.Amount,
		Currency:  req.Currency,
		Receipt:   req.Receipt,
		Status:    "created",
		CreatedAt: time.Now().Unix(),
	}, nil
}
